package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

type (
	HandlerFunc   func(arguments []json.RawMessage)
	Handlers      map[string]HandlerFunc
	Disposable    func()
	TokenProvider func(ctx context.Context) (string, error)
)

type ConnectionState struct {
	ID                string        `json:"id,omitempty"`
	State             State         `json:"state"`
	Transport         TransportKind `json:"transport,omitempty"`
	Address           string        `json:"address,omitempty"`
	ReconnectAttempts int           `json:"reconnect_attempts"`
	Handlers          []string      `json:"handlers"`
	ConnectedAt       *time.Time    `json:"connected_at,omitempty"`
}

type Options struct {
	Tiers      []Tier
	DevOrigins []string
	Reconnect  ReconnectPolicy

	ServerTimeout     time.Duration
	HeartbeatInterval time.Duration
	KeepAliveInterval time.Duration
	HandshakeTimeout  time.Duration

	HTTPClient      *http.Client
	WebSocketDialer *websocket.Dialer

	OnStateChange func(ConnectionState)
	OnClosed      func(error)
}

func DefaultOptions() Options {
	return Options{
		Tiers:             DefaultTiers,
		DevOrigins:        DefaultDevOrigins,
		Reconnect:         ReconnectPolicy{Delays: DefaultReconnectDelays},
		ServerTimeout:     120 * time.Second,
		HeartbeatInterval: 15 * time.Second,
		KeepAliveInterval: 15 * time.Second,
		HandshakeTimeout:  15 * time.Second,
	}
}

func (o Options) Validate() error {
	if o.ServerTimeout <= o.HeartbeatInterval {
		return fmt.Errorf("%w: server timeout %s must exceed heartbeat interval %s",
			ErrInvalidOptions, o.ServerTimeout, o.HeartbeatInterval)
	}
	if o.KeepAliveInterval <= 0 {
		return fmt.Errorf("%w: keep-alive interval must be positive", ErrInvalidOptions)
	}
	if len(o.Tiers) == 0 {
		return fmt.Errorf("%w: no transport tiers", ErrInvalidOptions)
	}
	if o.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("%w: negative max reconnect attempts", ErrInvalidOptions)
	}
	return nil
}

// Manager owns the session's push channel: it walks the transport cascade,
// delivers hub invocations to the registered handlers and reconnects after
// unplanned disconnects.
type Manager struct {
	opts   Options
	tokens TokenProvider
	probe  *Probe
	log    zerolog.Logger

	mu     sync.RWMutex
	state  ConnectionState
	active *subscription
}

type subscription struct {
	id       string
	handlers Handlers
	cancel   context.CancelFunc
	disposed atomic.Bool
	once     sync.Once
	failOnce sync.Once
	done     chan struct{}
}

func NewManager(tokens TokenProvider, opts Options, log zerolog.Logger) (*Manager, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if tokens == nil {
		tokens = func(context.Context) (string, error) { return "", nil }
	}
	return &Manager{
		opts:   opts,
		tokens: tokens,
		probe:  NewProbe(opts, log),
		log:    log.With().Str("component", "realtime").Logger(),
		state:  ConnectionState{State: StateDisconnected},
	}, nil
}

func (m *Manager) Snapshot() ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.state
	s.Handlers = append([]string(nil), m.state.Handlers...)
	return s
}

// Start connects in the background and returns immediately. A failure of
// the whole cascade, or an exhausted reconnect chain, is reported once
// through Options.OnClosed.
func (m *Manager) Start(ctx context.Context, baseAddress string, handlers Handlers) Disposable {
	return m.start(ctx, baseAddress, handlers, nil)
}

// Connect blocks until the first handshake succeeds or every tier failed.
func (m *Manager) Connect(ctx context.Context, baseAddress string, handlers Handlers) (Disposable, error) {
	first := make(chan error, 1)
	dispose := m.start(ctx, baseAddress, handlers, first)

	select {
	case err := <-first:
		if err != nil {
			dispose()
			return nil, err
		}
		return dispose, nil
	case <-ctx.Done():
		dispose()
		return nil, ctx.Err()
	}
}

func (m *Manager) start(ctx context.Context, baseAddress string, handlers Handlers, first chan<- error) Disposable {
	runCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		id:       uuid.NewString(),
		handlers: make(Handlers, len(handlers)),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	names := make([]string, 0, len(handlers))
	for name, h := range handlers {
		sub.handlers[name] = h
		names = append(names, name)
	}
	sort.Strings(names)

	m.mu.Lock()
	prev := m.active
	m.active = sub
	m.state = ConnectionState{ID: sub.id, State: StateConnecting, Handlers: names}
	m.mu.Unlock()

	if prev != nil {
		m.dispose(prev)
	}

	go m.run(runCtx, sub, baseAddress, first)
	return func() { m.dispose(sub) }
}

func (m *Manager) dispose(sub *subscription) {
	sub.once.Do(func() {
		sub.disposed.Store(true)
		sub.cancel()

		m.mu.Lock()
		if m.active == sub {
			m.active = nil
			m.state = ConnectionState{State: StateDisconnected}
		}
		m.mu.Unlock()

		m.log.Debug().Str("connection_id", sub.id).Msg("channel disposed")
	})
}

func (m *Manager) run(ctx context.Context, sub *subscription, baseAddress string, first chan<- error) {
	defer close(sub.done)
	log := m.log.With().Str("connection_id", sub.id).Logger()

	report := func(err error) {
		if first != nil {
			first <- err
			first = nil
			return
		}
		if err != nil {
			m.fail(sub, err)
		}
	}

	candidates := Candidates(baseAddress, m.opts.DevOrigins)
	ch, err := m.probe.Open(ctx, candidates, m.opts.Tiers, m.tokens)
	if err != nil {
		m.update(sub, func(s *ConnectionState) { s.State = StateDisconnected })
		if ctx.Err() != nil {
			if first != nil {
				first <- ctx.Err()
			}
			return
		}
		log.Error().Err(err).Msg("could not connect to hub")
		report(err)
		return
	}
	report(nil)

	for {
		m.connected(sub, ch)
		err := m.serve(ctx, sub, ch)
		if ctx.Err() != nil {
			m.update(sub, func(s *ConnectionState) { s.State = StateDisconnected })
			return
		}

		var closeErr *CloseError
		if errors.As(err, &closeErr) && !closeErr.AllowReconnect {
			log.Warn().Err(err).Msg("hub closed the channel without reconnect")
			m.update(sub, func(s *ConnectionState) { s.State = StateDisconnected; s.Transport = "" })
			m.fail(sub, err)
			return
		}
		log.Warn().Err(err).Msg("channel lost, reconnecting")

		ch, err = m.reconnect(ctx, sub, candidates, log)
		if err != nil {
			m.update(sub, func(s *ConnectionState) { s.State = StateDisconnected; s.Transport = "" })
			if ctx.Err() == nil {
				log.Error().Err(err).Msg("giving up on hub channel")
				m.fail(sub, err)
			}
			return
		}
		log.Info().Str("transport", string(ch.Kind())).Msg("channel reconnected")
	}
}

func (m *Manager) reconnect(ctx context.Context, sub *subscription, candidates []string, log zerolog.Logger) (*Channel, error) {
	var lastErr error
	for failures := 0; ; failures++ {
		if m.opts.Reconnect.Exhausted(failures) {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, failures, lastErr)
		}
		m.update(sub, func(s *ConnectionState) {
			s.State = StateReconnecting
			s.Transport = ""
			s.ReconnectAttempts = failures
		})
		if !sleepContext(ctx, m.opts.Reconnect.Delay(failures)) {
			return nil, ctx.Err()
		}

		ch, err := m.probe.Open(ctx, candidates, m.opts.Tiers, m.tokens)
		if err == nil {
			return ch, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		log.Debug().Err(err).Int("attempt", failures+1).Msg("reconnect attempt failed")
	}
}

func (m *Manager) connected(sub *subscription, ch *Channel) {
	now := time.Now()
	m.update(sub, func(s *ConnectionState) {
		s.State = StateConnected
		s.Transport = ch.Kind()
		s.Address = ch.Address()
		s.ReconnectAttempts = 0
		s.ConnectedAt = &now
	})
}

// update applies fn to the state if sub is still the active subscription.
func (m *Manager) update(sub *subscription, fn func(*ConnectionState)) {
	m.mu.Lock()
	if m.active != sub {
		m.mu.Unlock()
		return
	}
	fn(&m.state)
	snapshot := m.state
	snapshot.Handlers = append([]string(nil), m.state.Handlers...)
	m.mu.Unlock()

	if m.opts.OnStateChange != nil && !sub.disposed.Load() {
		m.opts.OnStateChange(snapshot)
	}
}

func (m *Manager) fail(sub *subscription, err error) {
	sub.failOnce.Do(func() {
		if m.opts.OnClosed != nil && !sub.disposed.Load() {
			m.opts.OnClosed(err)
		}
	})
}

func (m *Manager) serve(ctx context.Context, sub *subscription, ch *Channel) error {
	defer ch.Close()

	for _, frame := range ch.pending {
		if err := m.handleFrame(sub, frame); err != nil {
			return err
		}
	}
	ch.pending = nil

	frames := make(chan []byte, 64)
	done := make(chan struct{})
	defer close(done)

	var readErr error
	go func() {
		defer close(frames)
		for {
			data, err := ch.transport.Read()
			if err != nil {
				readErr = err
				return
			}
			for _, f := range ch.frames.Write(data) {
				select {
				case frames <- f:
				case <-done:
					return
				}
			}
		}
	}()

	idle := time.NewTimer(m.opts.ServerTimeout)
	defer idle.Stop()
	keepAlive := time.NewTicker(m.opts.KeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-idle.C:
			return ErrServerTimeout

		case <-keepAlive.C:
			sendCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := ch.transport.Send(sendCtx, pingFrame())
			cancel()
			if err != nil {
				return fmt.Errorf("keep-alive: %w", err)
			}

		case frame, ok := <-frames:
			if !ok {
				if readErr == nil {
					readErr = ErrTransportClosed
				}
				return fmt.Errorf("read: %w", readErr)
			}
			idle.Reset(m.opts.ServerTimeout)
			if err := m.handleFrame(sub, frame); err != nil {
				return err
			}
		}
	}
}

func (m *Manager) handleFrame(sub *subscription, frame []byte) error {
	var msg HubMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		m.log.Warn().Err(err).Msg("malformed hub frame")
		return nil
	}

	switch msg.Type {
	case TypeInvocation:
		m.invoke(sub, msg)
	case TypeClose:
		return &CloseError{Message: msg.Error, AllowReconnect: msg.AllowReconnect}
	case TypePing:
	default:
		m.log.Debug().Int("type", int(msg.Type)).Msg("ignoring hub message")
	}
	return nil
}

func (m *Manager) invoke(sub *subscription, msg HubMessage) {
	if sub.disposed.Load() {
		return
	}
	h, ok := sub.handlers[msg.Target]
	if !ok {
		m.log.Debug().Str("target", msg.Target).Msg("no handler for hub invocation")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Str("target", msg.Target).Msg("hub handler panicked")
		}
	}()
	h(msg.Arguments)
}
