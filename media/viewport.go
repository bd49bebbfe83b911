package media

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

const DefaultLeadRows = 5

type Requester interface {
	Request(ctx context.Context, key Key) (string, error)
}

// Viewport requests stripped media for the rows a user is about to see.
type Viewport struct {
	loader Requester
	lead   int
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	rows    map[int][]Key
	stopped bool
	wg      sync.WaitGroup
}

func NewViewport(loader Requester, leadRows int, log zerolog.Logger) *Viewport {
	if leadRows < 0 {
		leadRows = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Viewport{
		loader: loader,
		lead:   leadRows,
		log:    log.With().Str("component", "media-viewport").Logger(),
		ctx:    ctx,
		cancel: cancel,
		rows:   map[int][]Key{},
	}
}

// Observe registers the media keys of the row at index, replacing any keys
// registered for it before.
func (v *Viewport) Observe(index int, keys ...Key) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stopped {
		return
	}
	if len(keys) == 0 {
		delete(v.rows, index)
		return
	}
	v.rows[index] = append([]Key(nil), keys...)
}

// Reset forgets every row, for when the list is replaced.
func (v *Viewport) Reset() {
	v.mu.Lock()
	v.rows = map[int][]Key{}
	v.mu.Unlock()
}

// Scroll requests the media of rows first through last plus the lead rows
// below them and returns the keys it requested, in row order.
func (v *Viewport) Scroll(first, last int) []Key {
	if last < first {
		first, last = last, first
	}
	end := last
	if end <= math.MaxInt-v.lead {
		end += v.lead
	} else {
		end = math.MaxInt
	}

	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		return nil
	}
	var indexes []int
	for i := range v.rows {
		if i >= first && i <= end {
			indexes = append(indexes, i)
		}
	}
	sort.Ints(indexes)
	var keys []Key
	for _, i := range indexes {
		keys = append(keys, v.rows[i]...)
	}
	v.wg.Add(len(keys))
	v.mu.Unlock()

	for _, key := range keys {
		go func(key Key) {
			defer v.wg.Done()
			if _, err := v.loader.Request(v.ctx, key); err != nil {
				v.log.Debug().Err(err).Str("key", key.String()).Msg("media not loaded")
			}
		}(key)
	}
	return keys
}

// Stop ends observing. Requests still waiting on the loader are abandoned.
func (v *Viewport) Stop() {
	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		return
	}
	v.stopped = true
	v.rows = map[int][]Key{}
	v.mu.Unlock()

	v.cancel()
	v.wg.Wait()
}
