package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeTransport) Kind() TransportKind { return TransportWebSockets }

func (f *fakeTransport) Send(_ context.Context, data []byte) error {
	select {
	case <-f.closed:
		return ErrTransportClosed
	default:
	}
	if bytes.Contains(data, []byte(`"protocol"`)) {
		go f.push(`{}`)
	}
	return nil
}

func (f *fakeTransport) Read() ([]byte, error) {
	select {
	case d := <-f.in:
		return d, nil
	case <-f.closed:
		return nil, io.EOF
	}
}

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) push(frame string) {
	select {
	case f.in <- append([]byte(frame), recordSeparator):
	case <-f.closed:
	}
}

func fakeDial(opened chan<- *fakeTransport) dialFunc {
	return func(ctx context.Context, address string, tier Tier, token string) (*Channel, error) {
		ft := newFakeTransport()
		ch := &Channel{transport: ft, address: address}
		if err := ch.handshake(ctx); err != nil {
			return nil, err
		}
		opened <- ft
		return ch, nil
	}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.DevOrigins = nil
	opts.Reconnect = ReconnectPolicy{Delays: []time.Duration{0, 5 * time.Millisecond}}
	return opts
}

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	m, err := NewManager(func(context.Context) (string, error) { return "token", nil }, opts, zerolog.Nop())
	require.NoError(t, err)
	return m
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func TestProbeCascadeOrder(t *testing.T) {
	p := NewProbe(testOptions(), zerolog.Nop())

	var attempts []string
	p.dial = func(ctx context.Context, address string, tier Tier, token string) (*Channel, error) {
		attempts = append(attempts, tier.Name+" "+address)
		if tier.Name == "negotiated-streaming" && address == "http://b" {
			return &Channel{transport: newFakeTransport(), address: address}, nil
		}
		return nil, errors.New("refused")
	}

	tokens := func(context.Context) (string, error) { return "t", nil }
	ch, err := p.Open(context.Background(), []string{"http://a", "http://b"}, DefaultTiers, tokens)
	require.NoError(t, err)
	assert.Equal(t, "http://b", ch.Address())
	assert.Equal(t, []string{
		"direct-websocket http://a",
		"direct-websocket http://b",
		"negotiated-streaming http://a",
		"negotiated-streaming http://b",
	}, attempts)
}

func TestProbeAllTiersFail(t *testing.T) {
	p := NewProbe(testOptions(), zerolog.Nop())
	calls := 0
	p.dial = func(context.Context, string, Tier, string) (*Channel, error) {
		calls++
		return nil, errors.New("refused")
	}

	tokens := func(context.Context) (string, error) { return "t", nil }
	_, err := p.Open(context.Background(), []string{"http://a", "http://b"}, DefaultTiers, tokens)
	assert.ErrorIs(t, err, ErrAllTransportsFailed)
	assert.Equal(t, 6, calls)
}

func TestProbeAsksForTokenEveryAttempt(t *testing.T) {
	p := NewProbe(testOptions(), zerolog.Nop())
	var seen []string
	p.dial = func(_ context.Context, _ string, _ Tier, token string) (*Channel, error) {
		seen = append(seen, token)
		return nil, errors.New("refused")
	}

	n := 0
	tokens := func(context.Context) (string, error) {
		n++
		return fmt.Sprintf("t%d", n), nil
	}
	_, err := p.Open(context.Background(), []string{"http://a"}, DefaultTiers, tokens)
	require.Error(t, err)
	assert.Equal(t, []string{"t1", "t2", "t3"}, seen)
}

func TestManagerDeliversInvocations(t *testing.T) {
	m := newTestManager(t, testOptions())
	opened := make(chan *fakeTransport, 4)
	m.probe.dial = fakeDial(opened)

	got := make(chan []json.RawMessage, 1)
	dispose, err := m.Connect(context.Background(), "http://hub", Handlers{
		"OrderStatusChanged": func(args []json.RawMessage) { got <- args },
	})
	require.NoError(t, err)
	defer dispose()

	ft := receive(t, opened)
	ft.push(`{"type":1,"target":"Unknown","arguments":[]}`)
	ft.push(`not json`)
	ft.push(`{"type":1,"target":"OrderStatusChanged","arguments":[{"orderId":1001}]}`)

	args := receive(t, got)
	require.Len(t, args, 1)
	assert.JSONEq(t, `{"orderId":1001}`, string(args[0]))

	snap := m.Snapshot()
	assert.Equal(t, StateConnected, snap.State)
	assert.Equal(t, TransportWebSockets, snap.Transport)
	assert.Equal(t, []string{"OrderStatusChanged"}, snap.Handlers)
}

func TestManagerRecoversHandlerPanic(t *testing.T) {
	m := newTestManager(t, testOptions())
	opened := make(chan *fakeTransport, 4)
	m.probe.dial = fakeDial(opened)

	got := make(chan string, 1)
	dispose, err := m.Connect(context.Background(), "http://hub", Handlers{
		"OrderCreated": func([]json.RawMessage) { panic("boom") },
		"OrderUpdated": func([]json.RawMessage) { got <- "updated" },
	})
	require.NoError(t, err)
	defer dispose()

	ft := receive(t, opened)
	ft.push(`{"type":1,"target":"OrderCreated","arguments":[]}`)
	ft.push(`{"type":1,"target":"OrderUpdated","arguments":[]}`)
	assert.Equal(t, "updated", receive(t, got))
}

func TestManagerReconnectsAfterDrop(t *testing.T) {
	m := newTestManager(t, testOptions())
	opened := make(chan *fakeTransport, 4)
	m.probe.dial = fakeDial(opened)

	got := make(chan struct{}, 4)
	dispose, err := m.Connect(context.Background(), "http://hub", Handlers{
		"OrderCreated": func([]json.RawMessage) { got <- struct{}{} },
	})
	require.NoError(t, err)
	defer dispose()

	first := receive(t, opened)
	first.Close()

	second := receive(t, opened)
	second.push(`{"type":1,"target":"OrderCreated","arguments":[]}`)
	receive(t, got)
	assert.Equal(t, 0, m.Snapshot().ReconnectAttempts)
}

func TestManagerReportsExhaustionOnce(t *testing.T) {
	opts := testOptions()
	opts.Reconnect.MaxAttempts = 3

	var closedCalls atomic.Int32
	closedErr := make(chan error, 4)
	opts.OnClosed = func(err error) {
		closedCalls.Add(1)
		closedErr <- err
	}

	m := newTestManager(t, opts)
	opened := make(chan *fakeTransport, 1)
	dial := fakeDial(opened)
	var dials atomic.Int32
	m.probe.dial = func(ctx context.Context, address string, tier Tier, token string) (*Channel, error) {
		if dials.Add(1) == 1 {
			return dial(ctx, address, tier, token)
		}
		return nil, errors.New("hub down")
	}

	dispose, err := m.Connect(context.Background(), "http://hub", nil)
	require.NoError(t, err)
	defer dispose()

	receive(t, opened).Close()

	err = receive(t, closedErr)
	assert.ErrorIs(t, err, ErrReconnectExhausted)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), closedCalls.Load())
	assert.Equal(t, StateDisconnected, m.Snapshot().State)
	// one initial dial plus three reconnect attempts, each walking 3 tiers
	assert.Equal(t, int32(1+3*3), dials.Load())
}

func TestManagerServerCloseWithoutReconnect(t *testing.T) {
	opts := testOptions()
	closedErr := make(chan error, 1)
	opts.OnClosed = func(err error) { closedErr <- err }

	m := newTestManager(t, opts)
	opened := make(chan *fakeTransport, 4)
	m.probe.dial = fakeDial(opened)

	dispose, err := m.Connect(context.Background(), "http://hub", nil)
	require.NoError(t, err)
	defer dispose()

	receive(t, opened).push(`{"type":7,"error":"session revoked"}`)

	var closeErr *CloseError
	require.ErrorAs(t, receive(t, closedErr), &closeErr)
	assert.Equal(t, "session revoked", closeErr.Message)
	assert.Empty(t, opened)
}

func TestConnectFailsWhenEveryTierFails(t *testing.T) {
	var closedCalls atomic.Int32
	opts := testOptions()
	opts.OnClosed = func(error) { closedCalls.Add(1) }

	m := newTestManager(t, opts)
	m.probe.dial = func(context.Context, string, Tier, string) (*Channel, error) {
		return nil, errors.New("refused")
	}

	_, err := m.Connect(context.Background(), "http://hub", nil)
	assert.ErrorIs(t, err, ErrAllTransportsFailed)
	assert.Equal(t, int32(0), closedCalls.Load())
	assert.Equal(t, StateDisconnected, m.Snapshot().State)
}

func TestStartReportsFailureThroughOnClosed(t *testing.T) {
	opts := testOptions()
	closedErr := make(chan error, 1)
	opts.OnClosed = func(err error) { closedErr <- err }

	m := newTestManager(t, opts)
	m.probe.dial = func(context.Context, string, Tier, string) (*Channel, error) {
		return nil, errors.New("refused")
	}

	dispose := m.Start(context.Background(), "http://hub", nil)
	defer dispose()
	assert.ErrorIs(t, receive(t, closedErr), ErrAllTransportsFailed)
}

func TestDisposeIsIdempotentAndCancelsAttempt(t *testing.T) {
	m := newTestManager(t, testOptions())

	dialing := make(chan struct{})
	cancelled := make(chan struct{})
	m.probe.dial = func(ctx context.Context, _ string, _ Tier, _ string) (*Channel, error) {
		close(dialing)
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	}

	dispose := m.Start(context.Background(), "http://hub", nil)
	receive(t, dialing)
	assert.Equal(t, StateConnecting, m.Snapshot().State)

	dispose()
	assert.NotPanics(t, func() { dispose() })
	receive(t, cancelled)
	assert.Equal(t, StateDisconnected, m.Snapshot().State)
}

func TestNoHandlerRunsAfterDispose(t *testing.T) {
	m := newTestManager(t, testOptions())
	opened := make(chan *fakeTransport, 4)
	m.probe.dial = fakeDial(opened)

	var calls atomic.Int32
	got := make(chan struct{}, 4)
	dispose, err := m.Connect(context.Background(), "http://hub", Handlers{
		"OrderCreated": func([]json.RawMessage) {
			calls.Add(1)
			got <- struct{}{}
		},
	})
	require.NoError(t, err)

	ft := receive(t, opened)
	ft.push(`{"type":1,"target":"OrderCreated","arguments":[]}`)
	receive(t, got)

	dispose()
	dispose()
	ft.push(`{"type":1,"target":"OrderCreated","arguments":[]}`)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, opened, "no reconnect after dispose")
}

func TestStartReplacesActiveChannel(t *testing.T) {
	m := newTestManager(t, testOptions())
	opened := make(chan *fakeTransport, 4)
	m.probe.dial = fakeDial(opened)

	first, err := m.Connect(context.Background(), "http://hub", nil)
	require.NoError(t, err)
	ft := receive(t, opened)

	second, err := m.Connect(context.Background(), "http://hub", nil)
	require.NoError(t, err)
	defer second()
	receive(t, opened)

	select {
	case <-ft.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("previous channel was not closed")
	}
	first()
	assert.Equal(t, StateConnected, m.Snapshot().State)
}
