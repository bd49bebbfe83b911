package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"production-dashboard/events"
	"production-dashboard/lifecycle"
	"production-dashboard/media"
	"production-dashboard/models"
	"production-dashboard/realtime"
	"production-dashboard/repositories"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type SessionDeps struct {
	Tokens   *TokenSource
	Orders   OrderStore
	Messages MessageSource
	Hidden   repositories.HiddenMessageStore
	Cache    media.Cache
	Resolver media.Resolver
}

type SessionOptions struct {
	APIBaseURL string
	HubPath    string
	Role       lifecycle.Role

	Realtime        realtime.Options
	EventQueueSize  int
	RefreshDebounce time.Duration
	Loader          media.LoaderOptions
	LeadRows        int
}

// Session is everything one signed-in dashboard owns: the push channel, the
// event loop, the role's lists and messages, and the media loader.
// Start mounts it and Close unmounts it.
type Session struct {
	ID         string
	User       models.User
	Policy     lifecycle.Policy
	Tokens     *TokenSource
	Manager    *realtime.Manager
	Dispatcher *events.Dispatcher
	Dashboard  *DashboardService
	Messages   *MessageService
	Loader     *media.Loader
	Viewport   *media.Viewport

	hubAddress string
	log        zerolog.Logger

	orderRefresh   *events.Debouncer
	messageRefresh *events.Debouncer

	mu          sync.Mutex
	started     bool
	closed      bool
	cancel      context.CancelFunc
	dispose     realtime.Disposable
	unsubscribe []func()
}

func NewSession(deps SessionDeps, opts SessionOptions, log zerolog.Logger) (*Session, error) {
	user := deps.Tokens.User()
	role := opts.Role
	if role == "" {
		role = user.Role
	}
	policy, err := lifecycle.PolicyFor(role)
	if err != nil {
		return nil, err
	}

	hubAddress, err := realtime.HubAddress(opts.APIBaseURL, opts.HubPath)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:         uuid.NewString(),
		User:       user,
		Policy:     policy,
		Tokens:     deps.Tokens,
		hubAddress: hubAddress,
	}
	s.log = log.With().Str("session_id", s.ID).Int64("user_id", user.ID).Logger()

	rtOpts := opts.Realtime
	rtOpts.OnStateChange = s.connectionChanged
	rtOpts.OnClosed = s.connectionClosed
	s.Manager, err = realtime.NewManager(deps.Tokens.Token, rtOpts, s.log)
	if err != nil {
		return nil, err
	}

	s.Dispatcher = events.NewDispatcher(opts.EventQueueSize, s.log)
	s.Dashboard = NewDashboardService(deps.Orders, policy, user, s.log)
	s.Messages = NewMessageService(deps.Messages, deps.Hidden, user, s.log)
	s.Loader = media.NewLoader(deps.Orders, deps.Cache, deps.Resolver, opts.Loader, s.log)
	s.Viewport = media.NewViewport(s.Loader, opts.LeadRows, s.log)

	debounce := opts.RefreshDebounce
	if debounce <= 0 {
		debounce = events.DefaultDebounceWindow
	}
	s.orderRefresh = events.NewDebouncer(debounce, s.refreshOrders)
	s.messageRefresh = events.NewDebouncer(debounce, s.refreshMessages)
	return s, nil
}

func (s *Session) HubAddress() string {
	return s.hubAddress
}

// Start mounts the session: it starts the event loop and the push channel
// and loads the initial lists. Load failures are logged; the next event or
// reconnect refreshes again.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session %s is closed", s.ID)
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.unsubscribe = []func(){
		s.Dispatcher.Subscribe("order-lists", func(events.Event) { s.orderRefresh.Trigger() }, events.OrderKinds...),
		s.Dispatcher.Subscribe("messages", func(events.Event) { s.messageRefresh.Trigger() }, events.MessageKinds...),
		s.Dispatcher.Subscribe("media", s.orderChanged, events.OrderKinds...),
		s.Dispatcher.Subscribe("toasts", s.toast, events.NewNotification, events.MessageCreated, events.OrderCreated),
	}
	go s.Dispatcher.Run(runCtx)
	s.dispose = s.Manager.Start(runCtx, s.hubAddress, s.Dispatcher.Handlers())
	s.mu.Unlock()

	s.log.Info().Str("hub", s.hubAddress).Str("role", string(s.Policy.Role)).Msg("session started")

	if err := s.Dashboard.Refresh(ctx); err != nil {
		s.log.Warn().Err(err).Msg("initial order load failed")
	}
	if err := s.Messages.Refresh(ctx); err != nil {
		s.log.Warn().Err(err).Msg("initial message load failed")
	}
	return nil
}

// Close unmounts the session. It is safe to call more than once. Media
// fetches already running may still complete into the cache.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	dispose, cancel, unsubscribe := s.dispose, s.cancel, s.unsubscribe
	s.mu.Unlock()

	if dispose != nil {
		dispose()
	}
	for _, u := range unsubscribe {
		u()
	}
	s.orderRefresh.Stop()
	s.messageRefresh.Stop()
	s.Viewport.Stop()
	if cancel != nil {
		cancel()
	}
	s.log.Info().Msg("session closed")
}

func (s *Session) refreshOrders() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Dashboard.Refresh(ctx); err != nil {
		s.log.Debug().Err(err).Msg("order refresh failed")
	}
}

func (s *Session) refreshMessages() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Messages.Refresh(ctx); err != nil {
		s.log.Debug().Err(err).Msg("message refresh failed")
		return
	}
	s.Dashboard.Notify(Update{Type: UpdateRefreshed, Message: "messages"})
}

func (s *Session) orderChanged(ev events.Event) {
	if id := ev.OrderID(); id != 0 {
		s.Loader.Forget(id)
	}
}

func (s *Session) toast(ev events.Event) {
	if text, ok := ev.Toast(); ok {
		s.Dashboard.Toast(text, ev)
	}
}

// connectionChanged refreshes after every (re)connect, since events sent
// while disconnected are lost.
func (s *Session) connectionChanged(state realtime.ConnectionState) {
	s.Dashboard.Notify(Update{Type: UpdateConnection, Data: state})
	if state.State == realtime.StateConnected {
		s.orderRefresh.Trigger()
		s.messageRefresh.Trigger()
	}
}

func (s *Session) connectionClosed(err error) {
	s.log.Error().Err(err).Msg("live updates stopped")
	s.Dashboard.Toast("Live updates unavailable, reload to retry", nil)
}
