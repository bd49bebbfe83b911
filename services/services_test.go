package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"production-dashboard/config"
	"production-dashboard/events"
	"production-dashboard/lifecycle"
	"production-dashboard/media"
	"production-dashboard/models"
	"production-dashboard/realtime"
	"production-dashboard/repositories"
	"production-dashboard/utils"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type fakeOrders struct {
	mu        sync.Mutex
	orders    map[int64]*models.Order
	setErr    error
	listCalls int
	setCalls  []lifecycle.Status
}

func newFakeOrders(orders ...models.Order) *fakeOrders {
	f := &fakeOrders{orders: map[int64]*models.Order{}}
	for i := range orders {
		o := orders[i]
		f.orders[o.ID] = &o
	}
	return f
}

func (f *fakeOrders) ListByStatus(_ context.Context, status lifecycle.Status, _ *time.Time) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	var out []models.Order
	for _, o := range f.orders {
		if o.Status == status {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrders) ListAssigned(_ context.Context, preparerID int64, status lifecycle.Status) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	var out []models.Order
	for _, o := range f.orders {
		if o.Status == status && o.AssignedPreparerID != nil && *o.AssignedPreparerID == preparerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrders) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, &repositories.APIError{StatusCode: http.StatusNotFound, Message: "order not found"}
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) UpdateNotes(_ context.Context, id int64, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[id].Notes = &notes
	return nil
}

func (f *fakeOrders) SetStatus(_ context.Context, id int64, status lifecycle.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls = append(f.setCalls, status)
	if f.setErr != nil {
		return f.setErr
	}
	f.orders[id].Status = status
	return nil
}

func (f *fakeOrders) AssignPreparer(_ context.Context, id, preparerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[id].AssignedPreparerID = &preparerID
	return nil
}

func (f *fakeOrders) CreateShipments(_ context.Context, ids []int64) ([]models.Shipment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Shipment
	for _, id := range ids {
		f.orders[id].Status = lifecycle.StatusSentToDeliveryCompany
		out = append(out, models.Shipment{OrderID: id})
	}
	return out, nil
}

func (f *fakeOrders) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func newDashboard(t *testing.T, store OrderStore, role lifecycle.Role, userID int64) *DashboardService {
	t.Helper()
	policy, err := lifecycle.PolicyFor(role)
	require.NoError(t, err)
	return NewDashboardService(store, policy, models.User{ID: userID, Role: role}, zerolog.Nop())
}

func ids(orders []models.Order) []int64 {
	out := make([]int64, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}

func TestStartPrintingMovesOrderBetweenLists(t *testing.T) {
	store := newFakeOrders(models.Order{ID: 1001, OrderNumber: "1001", Status: lifecycle.StatusPendingPrinting})
	dash := newDashboard(t, store, lifecycle.RoleDesignManager, 7)
	ctx := context.Background()

	require.NoError(t, dash.Refresh(ctx))
	assert.Equal(t, []int64{1001}, ids(dash.Orders(lifecycle.StatusPendingPrinting)))
	assert.Empty(t, dash.Orders(lifecycle.StatusInPrinting))

	_, affs, err := dash.Actions(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, affs, 1)
	assert.Equal(t, lifecycle.ActionStartPrinting, affs[0].Action)
	assert.True(t, affs[0].Enabled)

	updated, err := dash.Transition(ctx, 1001, lifecycle.ActionStartPrinting)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, lifecycle.StatusInPrinting, updated.Status)

	assert.Empty(t, dash.Orders(lifecycle.StatusPendingPrinting))
	assert.Equal(t, []int64{1001}, ids(dash.Orders(lifecycle.StatusInPrinting)))
}

func TestClaimRaceSecondPreparerIsRejected(t *testing.T) {
	store := newFakeOrders(models.Order{ID: 2002, OrderNumber: "2002", Status: lifecycle.StatusInPreparation})
	preparerA := newDashboard(t, store, lifecycle.RolePreparer, 1)
	preparerB := newDashboard(t, store, lifecycle.RolePreparer, 2)
	ctx := context.Background()

	require.NoError(t, preparerB.Refresh(ctx))
	assert.Equal(t, []int64{2002}, ids(preparerB.Orders(lifecycle.StatusInPreparation)))

	_, err := preparerA.Transition(ctx, 2002, lifecycle.ActionClaim)
	require.NoError(t, err)

	// B still shows the stale row, but the action is checked against a fresh fetch.
	_, err = preparerB.Transition(ctx, 2002, lifecycle.ActionClaim)
	assert.ErrorIs(t, err, ErrActionNotAllowed)

	require.NoError(t, preparerB.Refresh(ctx))
	open := preparerB.Orders(lifecycle.StatusOpenOrder)
	require.Equal(t, []int64{2002}, ids(open))
	require.NotNil(t, open[0].AssignedPreparerID)
	assert.Equal(t, int64(1), *open[0].AssignedPreparerID)
	assert.Empty(t, preparerB.Orders(lifecycle.StatusInPreparation))

	_, affs, err := preparerB.Actions(ctx, 2002)
	require.NoError(t, err)
	byAction := map[lifecycle.Action]lifecycle.Affordance{}
	for _, a := range affs {
		byAction[a.Action] = a
	}
	claim, ok := byAction[lifecycle.ActionClaim]
	require.True(t, ok, "claim must stay visible")
	assert.False(t, claim.Enabled)
	assert.Equal(t, lifecycle.ReasonClaimedByOther, claim.Reason)
	assert.False(t, byAction[lifecycle.ActionCompletePreparation].Enabled)

	_, affs, err = preparerA.Actions(ctx, 2002)
	require.NoError(t, err)
	require.Len(t, affs, 1)
	assert.Equal(t, lifecycle.ActionCompletePreparation, affs[0].Action)
	assert.True(t, affs[0].Enabled)
}

func TestAssignedOrdersOnlyListsOwnClaims(t *testing.T) {
	one, two := int64(1), int64(2)
	store := newFakeOrders(
		models.Order{ID: 1, Status: lifecycle.StatusOpenOrder, AssignedPreparerID: &one},
		models.Order{ID: 2, Status: lifecycle.StatusOpenOrder, AssignedPreparerID: &two},
	)
	dash := newDashboard(t, store, lifecycle.RolePreparer, 1)

	mine, err := dash.AssignedOrders(context.Background(), "OPEN_ORDER", "")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(mine))

	_, err = dash.AssignedOrders(context.Background(), "COMPLETED", "")
	assert.ErrorIs(t, err, ErrStatusNotWatched)
}

func TestFilteredOrdersHideMediaSentinels(t *testing.T) {
	store := newFakeOrders(models.Order{ID: 1, Status: lifecycle.StatusPendingPrinting, Designs: []models.OrderDesign{
		{ID: 10, MockupImages: []string{models.MediaExcluded}, PrintFiles: []string{models.MediaPlaceholder}},
	}})
	dash := newDashboard(t, store, lifecycle.RoleDesignManager, 7)
	require.NoError(t, dash.Refresh(context.Background()))

	orders, err := dash.FilteredOrders("", "")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	d := orders[0].Designs[0]
	assert.Empty(t, d.MockupImages)
	assert.Empty(t, d.PrintFiles)
	assert.True(t, d.MockupsStripped)
	assert.False(t, d.PrintFilesStripped)

	// the kept list still carries the sentinel for the media loader
	assert.Equal(t, []string{models.MediaExcluded}, dash.Orders(lifecycle.StatusPendingPrinting)[0].Designs[0].MockupImages)
}

func TestFailedTransitionStillRefreshes(t *testing.T) {
	store := newFakeOrders(models.Order{ID: 1, Status: lifecycle.StatusPendingPrinting})
	store.setErr = errors.New("backend down")
	dash := newDashboard(t, store, lifecycle.RoleDesignManager, 7)

	before := store.listCount()
	_, err := dash.Transition(context.Background(), 1, lifecycle.ActionStartPrinting)
	assert.ErrorIs(t, err, ErrTransitionFailed)
	assert.Greater(t, store.listCount(), before)
	assert.Equal(t, []int64{1}, ids(dash.Orders(lifecycle.StatusPendingPrinting)))
}

func TestTransitionRejectsActionOfAnotherRole(t *testing.T) {
	store := newFakeOrders(models.Order{ID: 1, Status: lifecycle.StatusCompleted})
	dash := newDashboard(t, store, lifecycle.RoleSeller, 3)

	_, err := dash.Transition(context.Background(), 1, lifecycle.ActionShip)
	assert.ErrorIs(t, err, ErrActionNotAllowed)
	store.mu.Lock()
	assert.Empty(t, store.setCalls)
	store.mu.Unlock()
}

func TestCreateShipmentsChecksEveryOrder(t *testing.T) {
	store := newFakeOrders(
		models.Order{ID: 1, Status: lifecycle.StatusCompleted},
		models.Order{ID: 2, Status: lifecycle.StatusInPackaging},
	)
	dash := newDashboard(t, store, lifecycle.RolePackager, 4)
	ctx := context.Background()

	_, err := dash.CreateShipments(ctx, []int64{1, 2})
	assert.ErrorIs(t, err, ErrActionNotAllowed)

	shipments, err := dash.CreateShipments(ctx, []int64{1})
	require.NoError(t, err)
	require.Len(t, shipments, 1)
	assert.Equal(t, []int64{1}, ids(dash.Orders(lifecycle.StatusSentToDeliveryCompany)))
}

func TestFilteredOrdersIsIdempotent(t *testing.T) {
	store := newFakeOrders(
		models.Order{ID: 1, OrderNumber: "A-100", CustomerName: "Sara", Status: lifecycle.StatusPendingPrinting},
		models.Order{ID: 2, OrderNumber: "B-200", CustomerName: "Omar", Status: lifecycle.StatusInPrinting},
	)
	dash := newDashboard(t, store, lifecycle.RoleDesignManager, 7)
	require.NoError(t, dash.Refresh(context.Background()))

	first, err := dash.FilteredOrders("", "omar")
	require.NoError(t, err)
	second, err := dash.FilteredOrders("", "omar")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, []int64{2}, ids(first))

	all, err := dash.FilteredOrders("", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = dash.FilteredOrders("COMPLETED", "")
	assert.ErrorIs(t, err, ErrStatusNotWatched)
	_, err = dash.FilteredOrders("NOPE", "")
	assert.ErrorIs(t, err, lifecycle.ErrUnknownStatus)
}

func TestRefreshPublishesUpdates(t *testing.T) {
	dash := newDashboard(t, newFakeOrders(), lifecycle.RoleDesignManager, 7)
	updates, unsubscribe := dash.Subscribe(4)
	defer unsubscribe()

	require.NoError(t, dash.Refresh(context.Background()))
	select {
	case u := <-updates:
		assert.Equal(t, UpdateRefreshed, u.Type)
		assert.Equal(t, uint64(1), u.Version)
	case <-time.After(time.Second):
		t.Fatal("no update published")
	}

	unsubscribe()
	unsubscribe()
}

type fakeMessages struct {
	messages []models.Message
}

func (f *fakeMessages) ListForUser(context.Context, int64) ([]models.Message, error) {
	return f.messages, nil
}

func openHiddenStore(t *testing.T, path string) *repositories.SQLiteHiddenMessageRepository {
	t.Helper()
	db, err := config.OpenLocalStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo, err := repositories.NewSQLiteHiddenMessageRepository(db)
	require.NoError(t, err)
	return repo
}

func TestVisibleMessagesSkipExpiredAndInactive(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = time.Now })

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	source := &fakeMessages{messages: []models.Message{
		{ID: 1, Title: "expired", IsActive: true, ExpiresAt: &past, CreatedAt: now.Add(-3 * time.Hour)},
		{ID: 2, Title: "inactive", IsActive: false, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: 3, Title: "older", IsActive: true, ExpiresAt: &future, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: 4, Title: "newer", IsActive: true, CreatedAt: now.Add(-time.Hour)},
	}}
	svc := NewMessageService(source, openHiddenStore(t, filepath.Join(t.TempDir(), "local.db")), models.User{ID: 9}, zerolog.Nop())
	require.NoError(t, svc.Refresh(context.Background()))

	visible := svc.Visible()
	require.Len(t, visible, 2)
	assert.Equal(t, int64(4), visible[0].ID)
	assert.Equal(t, int64(3), visible[1].ID)
}

func TestHiddenBroadcastStaysHiddenAfterReload(t *testing.T) {
	recipient := int64(9)
	source := &fakeMessages{messages: []models.Message{
		{ID: 55, Title: "maintenance tonight", IsActive: true, CreatedAt: time.Now()},
		{ID: 56, UserID: &recipient, Title: "personal", IsActive: true, CreatedAt: time.Now()},
	}}
	path := filepath.Join(t.TempDir(), "local.db")
	user := models.User{ID: 9}
	ctx := context.Background()

	svc := NewMessageService(source, openHiddenStore(t, path), user, zerolog.Nop())
	require.NoError(t, svc.Refresh(ctx))
	require.Len(t, svc.Visible(), 2)

	require.NoError(t, svc.Hide(ctx, 55))
	assert.ErrorIs(t, svc.Hide(ctx, 56), ErrNotBroadcast)
	assert.ErrorIs(t, svc.Hide(ctx, 99), ErrMessageNotFound)

	reloaded := NewMessageService(source, openHiddenStore(t, path), user, zerolog.Nop())
	require.NoError(t, reloaded.Refresh(ctx))
	visible := reloaded.Visible()
	require.Len(t, visible, 1)
	assert.Equal(t, int64(56), visible[0].ID)

	other := NewMessageService(source, openHiddenStore(t, path), models.User{ID: 10}, zerolog.Nop())
	require.NoError(t, other.Refresh(ctx))
	assert.Len(t, other.Visible(), 2)
}

func mustToken(t *testing.T, user models.User, expiry time.Duration) string {
	t.Helper()
	token, err := utils.GenerateToken(user, testSecret, expiry)
	require.NoError(t, err)
	return token
}

func TestTokenSourceUpdate(t *testing.T) {
	user := models.User{ID: 5, Email: "p@example.com", Role: lifecycle.RolePreparer}
	first := mustToken(t, user, time.Hour)

	src, err := NewTokenSource(first, testSecret)
	require.NoError(t, err)
	assert.Equal(t, int64(5), src.User().ID)

	longer := mustToken(t, user, 2*time.Hour)
	require.NoError(t, src.Update(longer))
	token, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, longer, token)

	shorter := mustToken(t, user, 30*time.Minute)
	assert.ErrorIs(t, src.Update(shorter), ErrTokenNotNewer)
	token, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, longer, token)

	stranger := mustToken(t, models.User{ID: 6, Role: lifecycle.RolePreparer}, 3*time.Hour)
	assert.ErrorIs(t, src.Update(stranger), ErrTokenUserMismatch)

	assert.Error(t, src.Update("not-a-token"))
}

func TestTokenSourceWithoutSecretKeepsSessionToken(t *testing.T) {
	user := models.User{ID: 5, Role: lifecycle.RolePreparer}
	issued, err := utils.GenerateToken(user, "api-key", time.Hour)
	require.NoError(t, err)

	src, err := NewTokenSource(issued, "")
	require.NoError(t, err)
	require.NoError(t, src.Update(issued))

	forged, err := utils.GenerateToken(user, "attacker-key", 365*24*time.Hour)
	require.NoError(t, err)
	assert.ErrorIs(t, src.Update(forged), ErrTokenUnverified)

	refreshed, err := utils.GenerateToken(user, "api-key", 2*time.Hour)
	require.NoError(t, err)
	assert.ErrorIs(t, src.Update(refreshed), ErrTokenUnverified)

	token, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, issued, token)
}

func TestTokenSourceRejectsForgedToken(t *testing.T) {
	user := models.User{ID: 5, Role: lifecycle.RolePreparer}
	src, err := NewTokenSource(mustToken(t, user, time.Hour), testSecret)
	require.NoError(t, err)

	forged, err := utils.GenerateToken(user, "attacker-key", 365*24*time.Hour)
	require.NoError(t, err)
	assert.ErrorIs(t, src.Update(forged), utils.ErrTokenInvalid)

	refreshed := mustToken(t, user, 2*time.Hour)
	require.NoError(t, src.Update(refreshed))
	token, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, refreshed, token)
}

func TestTokenSourceRejectsExpiredToken(t *testing.T) {
	user := models.User{ID: 5, Role: lifecycle.RolePreparer}
	src, err := NewTokenSource(mustToken(t, user, time.Hour), testSecret)
	require.NoError(t, err)

	timeNow = func() time.Time { return time.Now().Add(2 * time.Hour) }
	t.Cleanup(func() { timeNow = time.Now })

	_, err = src.Token(context.Background())
	assert.ErrorIs(t, err, utils.ErrTokenExpired)
}

func newTestSession(t *testing.T, store *fakeOrders) *Session {
	t.Helper()
	hub := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(hub.Close)

	user := models.User{ID: 7, Role: lifecycle.RoleDesignManager}
	tokens, err := NewTokenSource(mustToken(t, user, time.Hour), testSecret)
	require.NoError(t, err)

	rt := realtime.DefaultOptions()
	rt.DevOrigins = nil
	rt.Reconnect = realtime.ReconnectPolicy{Delays: []time.Duration{0}, MaxAttempts: 1}
	rt.HandshakeTimeout = time.Second

	session, err := NewSession(SessionDeps{
		Tokens:   tokens,
		Orders:   store,
		Messages: &fakeMessages{},
		Hidden:   openHiddenStore(t, filepath.Join(t.TempDir(), "local.db")),
		Cache:    media.NewMemoryCache(),
		Resolver: media.PassthroughResolver,
	}, SessionOptions{
		APIBaseURL:      hub.URL + "/api",
		Realtime:        rt,
		RefreshDebounce: 10 * time.Millisecond,
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, hub.URL+realtime.DefaultHubPath, session.HubAddress())
	t.Cleanup(session.Close)
	return session
}

func TestSessionLoadsListsAndReportsLostConnection(t *testing.T) {
	store := newFakeOrders(models.Order{ID: 1001, Status: lifecycle.StatusPendingPrinting})
	session := newTestSession(t, store)

	updates, unsubscribe := session.Dashboard.Subscribe(32)
	defer unsubscribe()

	require.NoError(t, session.Start(context.Background()))
	assert.Equal(t, []int64{1001}, ids(session.Dashboard.Orders(lifecycle.StatusPendingPrinting)))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case u := <-updates:
			if u.Type == UpdateToast && u.Message != "" && u.Data == nil {
				session.Close()
				session.Close()
				return
			}
		case <-deadline:
			t.Fatal("lost connection was never reported")
		}
	}
}

func TestSessionOrderEventRetriesUnavailableMedia(t *testing.T) {
	store := newFakeOrders(models.Order{ID: 1001, Status: lifecycle.StatusPendingPrinting, Designs: []models.OrderDesign{{ID: 10}}})
	session := newTestSession(t, store)
	require.NoError(t, session.Start(context.Background()))
	ctx := context.Background()
	key := media.Key{OrderID: 1001, DesignID: 10, Kind: media.KindMockup}

	_, err := session.Loader.Request(ctx, key)
	require.ErrorIs(t, err, media.ErrUnavailable)

	store.mu.Lock()
	store.orders[1001].Designs[0].MockupImages = []string{"https://cdn.example.com/1001.png"}
	store.mu.Unlock()

	require.True(t, session.Dispatcher.Enqueue(events.Event{
		Kind:  events.OrderUpdated,
		Order: &events.OrderHint{ID: 1001},
	}))

	assert.Eventually(t, func() bool {
		url, err := session.Loader.Request(ctx, key)
		return err == nil && url == "https://cdn.example.com/1001.png"
	}, 2*time.Second, 20*time.Millisecond)
}
