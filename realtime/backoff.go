package realtime

import (
	"context"
	"time"
)

var DefaultReconnectDelays = []time.Duration{
	0,
	2 * time.Second,
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// ReconnectPolicy maps the number of consecutive failed reconnect attempts
// to the wait before the next one. MaxAttempts of zero never gives up.
type ReconnectPolicy struct {
	Delays      []time.Duration
	MaxAttempts int
}

func (p ReconnectPolicy) Delay(failures int) time.Duration {
	delays := p.Delays
	if len(delays) == 0 {
		delays = DefaultReconnectDelays
	}
	if failures < 0 {
		failures = 0
	}
	if failures >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[failures]
}

func (p ReconnectPolicy) Exhausted(failures int) bool {
	return p.MaxAttempts > 0 && failures >= p.MaxAttempts
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
