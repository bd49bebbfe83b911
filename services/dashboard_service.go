package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"production-dashboard/lifecycle"
	"production-dashboard/models"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var timeNow = time.Now

var (
	ErrTransitionFailed = errors.New("transition failed")
	ErrActionNotAllowed = errors.New("action not allowed")
	ErrStatusNotWatched = errors.New("status not shown on this dashboard")
)

type OrderStore interface {
	ListByStatus(ctx context.Context, status lifecycle.Status, date *time.Time) ([]models.Order, error)
	ListAssigned(ctx context.Context, preparerID int64, status lifecycle.Status) ([]models.Order, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	UpdateNotes(ctx context.Context, id int64, notes string) error
	SetStatus(ctx context.Context, id int64, status lifecycle.Status) error
	AssignPreparer(ctx context.Context, id, preparerID int64) error
	CreateShipments(ctx context.Context, orderIDs []int64) ([]models.Shipment, error)
}

const (
	UpdateRefreshed  = "refreshed"
	UpdateToast      = "toast"
	UpdateConnection = "connection"
)

// Update is pushed to stream subscribers whenever the dashboard state
// changes or a toast should be shown.
type Update struct {
	Type    string      `json:"type"`
	Version uint64      `json:"version"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	At      time.Time   `json:"at"`
}

// DashboardService keeps the role's order lists. Lists are only ever
// replaced by a refresh from the API, never patched locally.
type DashboardService struct {
	orders OrderStore
	policy lifecycle.Policy
	user   models.User
	log    zerolog.Logger

	mu          sync.RWMutex
	lists       map[lifecycle.Status][]models.Order
	date        *time.Time
	refreshedAt time.Time
	version     uint64

	subMu  sync.Mutex
	subs   map[int]chan Update
	nextID int
}

func NewDashboardService(orders OrderStore, policy lifecycle.Policy, user models.User, log zerolog.Logger) *DashboardService {
	return &DashboardService{
		orders: orders,
		policy: policy,
		user:   user,
		log:    log.With().Str("component", "dashboard").Str("role", string(policy.Role)).Logger(),
		lists:  map[lifecycle.Status][]models.Order{},
		subs:   map[int]chan Update{},
	}
}

func (s *DashboardService) Policy() lifecycle.Policy {
	return s.policy
}

// SetDate limits the status lists to orders created on date; nil shows all.
func (s *DashboardService) SetDate(date *time.Time) {
	s.mu.Lock()
	if date != nil {
		d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
		s.date = &d
	} else {
		s.date = nil
	}
	s.mu.Unlock()
}

func (s *DashboardService) Date() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.date
}

// Refresh re-queries every watched list concurrently. Lists that fail keep
// their previous contents; the errors are returned joined.
func (s *DashboardService) Refresh(ctx context.Context) error {
	date := s.Date()

	results := make([][]models.Order, len(s.policy.Lists))
	errs := make([]error, len(s.policy.Lists))

	var g errgroup.Group
	g.SetLimit(4)
	for i, list := range s.policy.Lists {
		g.Go(func() error {
			orders, err := s.orders.ListByStatus(ctx, list.Status, date)
			if err != nil {
				errs[i] = fmt.Errorf("list %s: %w", list.Status, err)
				return nil
			}
			results[i] = onlyStatus(orders, list.Status)
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	for i, list := range s.policy.Lists {
		if errs[i] == nil {
			s.lists[list.Status] = results[i]
		}
	}
	s.refreshedAt = timeNow()
	s.version++
	version := s.version
	s.mu.Unlock()

	err := errors.Join(errs...)
	if err != nil {
		s.log.Warn().Err(err).Msg("dashboard refresh incomplete")
	}
	s.publish(Update{Type: UpdateRefreshed, Version: version})
	return err
}

// onlyStatus drops rows whose status no longer matches the list they were
// requested for.
func onlyStatus(orders []models.Order, status lifecycle.Status) []models.Order {
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

func (s *DashboardService) Orders(status lifecycle.Status) []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Order(nil), s.lists[status]...)
}

// FilteredOrders returns the orders of one watched status, or of all watched
// statuses when status is empty, matching the search text. Orders are
// returned ready for display, see models.Order.ForDisplay.
func (s *DashboardService) FilteredOrders(status, search string) ([]models.Order, error) {
	statuses, err := s.watched(status)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Order{}
	for _, st := range statuses {
		for _, o := range s.lists[st] {
			if o.Matches(search) {
				out = append(out, o.ForDisplay())
			}
		}
	}
	return out, nil
}

// AssignedOrders asks the API for the orders assigned to the signed-in
// preparer. Unlike the watched lists it is not kept between calls.
func (s *DashboardService) AssignedOrders(ctx context.Context, status, search string) ([]models.Order, error) {
	statuses, err := s.watched(status)
	if err != nil {
		return nil, err
	}

	out := []models.Order{}
	for _, st := range statuses {
		orders, err := s.orders.ListAssigned(ctx, s.user.ID, st)
		if err != nil {
			return nil, err
		}
		for _, o := range onlyStatus(orders, st) {
			if o.Matches(search) {
				out = append(out, o.ForDisplay())
			}
		}
	}
	return out, nil
}

func (s *DashboardService) watched(status string) ([]lifecycle.Status, error) {
	var statuses []lifecycle.Status
	if status == "" {
		for _, l := range s.policy.Lists {
			statuses = append(statuses, l.Status)
		}
	} else {
		st, err := lifecycle.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		if !s.policy.Watches(st) {
			return nil, fmt.Errorf("%w: %s", ErrStatusNotWatched, st)
		}
		statuses = []lifecycle.Status{st}
	}
	return statuses, nil
}

func (s *DashboardService) Summary(connection interface{}) models.DashboardSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make([]models.StatusCount, 0, len(s.policy.Lists))
	for _, l := range s.policy.Lists {
		counts = append(counts, models.StatusCount{Status: l.Status, Count: len(s.lists[l.Status])})
	}
	return models.DashboardSummary{
		User:        s.user,
		Connection:  connection,
		Counts:      counts,
		RefreshedAt: s.refreshedAt,
		Version:     s.version,
	}
}

// Actions fetches the order and projects the role's affordances on it.
func (s *DashboardService) Actions(ctx context.Context, orderID int64) (*models.Order, []lifecycle.Affordance, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, s.policy.Actions(order.Snapshot(), s.user.ID), nil
}

// Transition performs action on the order. The affordance is checked against
// a freshly fetched record, and the lists are refreshed afterwards whether
// the call succeeded or not.
func (s *DashboardService) Transition(ctx context.Context, orderID int64, action lifecycle.Action) (*models.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransitionFailed, err)
	}

	aff, ok := s.policy.Affordance(order.Snapshot(), s.user.ID, action)
	if !ok {
		return order, fmt.Errorf("%w: %s on %s order", ErrActionNotAllowed, action, order.Status)
	}
	if !aff.Enabled {
		return order, fmt.Errorf("%w: %s", ErrActionNotAllowed, aff.Reason)
	}
	t, err := lifecycle.Lookup(action, order.Status)
	if err != nil {
		return order, fmt.Errorf("%w: %w", ErrActionNotAllowed, err)
	}

	defer s.refreshAfter(ctx)

	log := s.log.With().Int64("order_id", orderID).Str("action", string(action)).Logger()
	switch {
	case t.AssignsPreparer:
		if err := s.orders.AssignPreparer(ctx, orderID, s.user.ID); err != nil {
			log.Warn().Err(err).Msg("assign preparer failed")
			return nil, fmt.Errorf("%w: %w", ErrTransitionFailed, err)
		}
		err = s.orders.SetStatus(ctx, orderID, t.To)
	case t.ViaShipment:
		_, err = s.orders.CreateShipments(ctx, []int64{orderID})
	default:
		err = s.orders.SetStatus(ctx, orderID, t.To)
	}
	if err != nil {
		log.Warn().Err(err).Msg("transition failed")
		return nil, fmt.Errorf("%w: %w", ErrTransitionFailed, err)
	}
	log.Info().Str("to", string(t.To)).Msg("transition done")

	updated, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		log.Warn().Err(err).Msg("could not re-fetch order after transition")
		return nil, nil
	}
	return updated, nil
}

func (s *DashboardService) UpdateNotes(ctx context.Context, orderID int64, notes string) error {
	defer s.refreshAfter(ctx)
	if err := s.orders.UpdateNotes(ctx, orderID, notes); err != nil {
		return err
	}
	return nil
}

// CreateShipments ships several completed orders at once. Every order must
// offer the ship action to this user.
func (s *DashboardService) CreateShipments(ctx context.Context, orderIDs []int64) ([]models.Shipment, error) {
	if len(orderIDs) == 0 {
		return nil, fmt.Errorf("%w: no orders selected", ErrActionNotAllowed)
	}
	for _, id := range orderIDs {
		order, err := s.orders.GetOrderByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTransitionFailed, err)
		}
		aff, ok := s.policy.Affordance(order.Snapshot(), s.user.ID, lifecycle.ActionShip)
		if !ok || !aff.Enabled {
			return nil, fmt.Errorf("%w: order %d cannot be shipped from %s", ErrActionNotAllowed, id, order.Status)
		}
	}

	defer s.refreshAfter(ctx)
	shipments, err := s.orders.CreateShipments(ctx, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransitionFailed, err)
	}
	return shipments, nil
}

func (s *DashboardService) refreshAfter(ctx context.Context) {
	if err := s.Refresh(context.WithoutCancel(ctx)); err != nil {
		s.log.Warn().Err(err).Msg("refresh after action failed")
	}
}

// Subscribe returns a channel of updates. Slow subscribers miss updates
// rather than block the dashboard.
func (s *DashboardService) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Update, buffer)

	s.subMu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *DashboardService) Toast(message string, data interface{}) {
	s.mu.RLock()
	version := s.version
	s.mu.RUnlock()
	s.publish(Update{Type: UpdateToast, Version: version, Message: message, Data: data})
}

func (s *DashboardService) Notify(u Update) {
	if u.Version == 0 {
		s.mu.RLock()
		u.Version = s.version
		s.mu.RUnlock()
	}
	s.publish(u)
}

func (s *DashboardService) publish(u Update) {
	if u.At.IsZero() {
		u.At = timeNow()
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- u:
		default:
		}
	}
}
