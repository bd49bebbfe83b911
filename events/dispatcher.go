package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"production-dashboard/realtime"

	"github.com/rs/zerolog"
)

const (
	DefaultQueueSize   = 256
	panicRecoveryDelay = 100 * time.Millisecond
)

type Handler func(Event)

type subscriber struct {
	name  string
	kinds map[Kind]bool
	fn    Handler
}

func (s subscriber) wants(k Kind) bool {
	return len(s.kinds) == 0 || s.kinds[k]
}

// Dispatcher turns hub invocations into Events and fans them out to
// subscribers from a single loop.
type Dispatcher struct {
	log   zerolog.Logger
	queue chan Event

	mu     sync.RWMutex
	subs   map[uint64]subscriber
	nextID uint64

	dropped atomic.Uint64
}

func NewDispatcher(queueSize int, log zerolog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Dispatcher{
		log:   log.With().Str("component", "events").Logger(),
		queue: make(chan Event, queueSize),
		subs:  map[uint64]subscriber{},
	}
}

// Handlers returns the hub handler map covering every known event kind.
func (d *Dispatcher) Handlers() realtime.Handlers {
	h := make(realtime.Handlers, len(Kinds))
	for _, k := range Kinds {
		target := string(k)
		h[target] = func(args []json.RawMessage) { d.Publish(target, args) }
	}
	return h
}

// Publish decodes and queues one invocation. Decode failures are logged and
// dropped.
func (d *Dispatcher) Publish(target string, args []json.RawMessage) {
	ev, err := Decode(target, args)
	if err != nil {
		if errors.Is(err, ErrUnknownEvent) {
			d.log.Debug().Str("target", target).Msg("ignoring unknown event")
			return
		}
		d.log.Warn().Err(err).Str("target", target).Msg("failed to decode event")
		return
	}
	d.Enqueue(ev)
}

// Enqueue never blocks; a full queue drops the event.
func (d *Dispatcher) Enqueue(ev Event) bool {
	select {
	case d.queue <- ev:
		return true
	default:
		d.dropped.Add(1)
		d.log.Warn().Str("kind", string(ev.Kind)).Msg("event queue full, dropping event")
		return false
	}
}

func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Subscribe registers fn for the given kinds, or for every kind when none
// are given. The returned func unsubscribes.
func (d *Dispatcher) Subscribe(name string, fn Handler, kinds ...Kind) func() {
	s := subscriber{name: name, fn: fn}
	if len(kinds) > 0 {
		s.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = true
		}
	}

	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.subs[id] = s
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
		})
	}
}

// Run consumes the queue until ctx is done. A panicking subscriber is logged
// and the loop continues with the next event.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		if err := d.runLoop(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				d.log.Debug().Msg("dispatcher stopped")
				return
			}
			d.log.Error().Err(err).Msg("dispatch loop crashed, restarting")
			time.Sleep(panicRecoveryDelay)
		}
	}
}

func (d *Dispatcher) runLoop(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatcher panic: %v\n%s", r, debug.Stack())
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-d.queue:
			d.dispatch(ev)
		}
	}
}

func (d *Dispatcher) dispatch(ev Event) {
	for _, s := range d.subscribers(ev.Kind) {
		d.deliver(s, ev)
	}
}

func (d *Dispatcher) deliver(s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Interface("panic", r).
				Str("subscriber", s.name).
				Str("kind", string(ev.Kind)).
				Msg("event handler panicked")
		}
	}()
	s.fn(ev)
}

func (d *Dispatcher) subscribers(k Kind) []subscriber {
	d.mu.RLock()
	ids := make([]uint64, 0, len(d.subs))
	for id, s := range d.subs {
		if s.wants(k) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]subscriber, 0, len(ids))
	for _, id := range ids {
		out = append(out, d.subs[id])
	}
	d.mu.RUnlock()
	return out
}
