package media

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"production-dashboard/models"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultMaxConcurrent = 3
	DefaultRetryDelay    = 150 * time.Millisecond
)

type OrderFetcher interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
}

type LoaderOptions struct {
	MaxConcurrent int64
	RetryDelay    time.Duration
}

// Loader fetches full order records for media that bulk list responses
// stripped, at most MaxConcurrent at a time, and caches every usable
// reference the record carries.
type Loader struct {
	fetcher    OrderFetcher
	cache      Cache
	resolver   Resolver
	gate       *semaphore.Weighted
	retryDelay time.Duration
	log        zerolog.Logger

	mu          sync.Mutex
	inflight    map[int64]*call
	unavailable map[Key]bool

	fetches atomic.Int64
}

type call struct {
	done    chan struct{}
	err     error
	results map[Key]string
}

func NewLoader(fetcher OrderFetcher, cache Cache, resolver Resolver, opts LoaderOptions, log zerolog.Logger) *Loader {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	if resolver == nil {
		resolver = PassthroughResolver
	}
	return &Loader{
		fetcher:     fetcher,
		cache:       cache,
		resolver:    resolver,
		gate:        semaphore.NewWeighted(opts.MaxConcurrent),
		retryDelay:  opts.RetryDelay,
		log:         log.With().Str("component", "media-loader").Logger(),
		inflight:    map[int64]*call{},
		unavailable: map[Key]bool{},
	}
}

// Peek returns a cached URL without touching the network.
func (l *Loader) Peek(ctx context.Context, key Key) (string, bool) {
	return l.cache.Get(ctx, key)
}

// Fetches reports how many full-order fetches were issued.
func (l *Loader) Fetches() int64 {
	return l.fetches.Load()
}

// Forget clears what is remembered as unavailable for an order, so the next
// request for any of its media fetches the record again. Call it when the
// order changed.
func (l *Loader) Forget(orderID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k := range l.unavailable {
		if k.OrderID == orderID {
			delete(l.unavailable, k)
		}
	}
}

// Request resolves the media URL for key. A cached key returns without a
// network call and a key whose order is already being fetched waits for that
// fetch. Anything that cannot be resolved returns an error wrapping
// ErrUnavailable.
func (l *Loader) Request(ctx context.Context, key Key) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	if url, ok := l.cache.Get(ctx, key); ok {
		return url, nil
	}

	l.mu.Lock()
	if l.unavailable[key] {
		l.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrUnavailable, key)
	}
	c, ok := l.inflight[key.OrderID]
	if !ok {
		c = &call{done: make(chan struct{})}
		l.inflight[key.OrderID] = c
		// The fetch outlives the first caller so other waiters and the
		// cache still get its result.
		go l.fetch(context.WithoutCancel(ctx), c, key.OrderID)
	}
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	case <-c.done:
	}

	if c.err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnavailable, key, c.err)
	}
	if url, ok := c.results[key]; ok {
		return url, nil
	}

	l.mu.Lock()
	l.unavailable[key] = true
	l.mu.Unlock()
	return "", fmt.Errorf("%w: %s", ErrUnavailable, key)
}

func (l *Loader) fetch(ctx context.Context, c *call, orderID int64) {
	defer func() {
		l.mu.Lock()
		delete(l.inflight, orderID)
		l.mu.Unlock()
		close(c.done)
	}()

	if err := l.acquire(ctx); err != nil {
		c.err = err
		return
	}
	defer l.gate.Release(1)

	l.fetches.Add(1)
	order, err := l.fetcher.GetOrderByID(ctx, orderID)
	if err != nil {
		l.log.Warn().Err(err).Int64("order_id", orderID).Msg("failed to fetch order media")
		c.err = err
		return
	}
	c.results = l.store(ctx, order)
}

// acquire polls the gate. Waiters are not served in arrival order.
func (l *Loader) acquire(ctx context.Context) error {
	for {
		if l.gate.TryAcquire(1) {
			return nil
		}
		t := time.NewTimer(l.retryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// store caches the first usable reference of every design and kind in the
// record. Keys whose references are still stripped are remembered as
// unavailable so they are not fetched again.
func (l *Loader) store(ctx context.Context, order *models.Order) map[Key]string {
	results := map[Key]string{}
	var missing []Key

	for _, d := range order.Designs {
		for _, kind := range Kinds {
			key := Key{OrderID: order.ID, DesignID: d.ID, Kind: kind}
			usable := models.UsableMedia(References(d, kind))
			if len(usable) == 0 {
				missing = append(missing, key)
				continue
			}
			url, err := l.resolver.Resolve(kind, usable[0])
			if err != nil {
				l.log.Warn().Err(err).Str("key", key.String()).Msg("failed to resolve media reference")
				missing = append(missing, key)
				continue
			}
			l.cache.Set(ctx, key, url)
			results[key] = url
		}
	}

	if len(missing) > 0 {
		l.mu.Lock()
		for _, k := range missing {
			l.unavailable[k] = true
		}
		l.mu.Unlock()
	}
	return results
}
