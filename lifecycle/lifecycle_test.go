package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func TestCanTransition_Table(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		role Role
		want bool
	}{
		{"design manager starts printing", StatusPendingPrinting, StatusInPrinting, RoleDesignManager, true},
		{"design manager sends to preparation", StatusInPrinting, StatusInPreparation, RoleDesignManager, true},
		{"preparer claims", StatusInPreparation, StatusOpenOrder, RolePreparer, true},
		{"preparer completes", StatusOpenOrder, StatusCompleted, RolePreparer, true},
		{"packager completes packaging", StatusInPackaging, StatusCompleted, RolePackager, true},
		{"packager ships", StatusCompleted, StatusSentToDeliveryCompany, RolePackager, true},
		{"carrier returns", StatusSentToDeliveryCompany, StatusReturnedShipment, RoleDeliveryCompany, true},
		{"preparer cannot start printing", StatusPendingPrinting, StatusInPrinting, RolePreparer, false},
		{"packager cannot return", StatusSentToDeliveryCompany, StatusReturnedShipment, RolePackager, false},
		{"no skipping printing", StatusPendingPrinting, StatusInPreparation, RoleDesignManager, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to, tt.role))
		})
	}
}

func TestAllowed_Cancellation(t *testing.T) {
	assert.True(t, Allowed(StatusPendingPrinting, StatusCancelled))
	assert.True(t, Allowed(StatusInPackaging, StatusCancelled))
	assert.False(t, Allowed(StatusSentToDeliveryCompany, StatusCancelled))
	assert.False(t, Allowed(StatusCancelled, StatusCancelled))
	assert.True(t, Allowed(StatusSentToDeliveryCompany, StatusReturnedShipment))
	assert.False(t, Allowed(StatusReturnedShipment, StatusSentToDeliveryCompany))
}

func TestStatus_Terminal(t *testing.T) {
	for _, s := range Statuses {
		want := s == StatusSentToDeliveryCompany || s == StatusCancelled || s == StatusReturnedShipment
		assert.Equal(t, want, s.Terminal(), string(s))
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("IN_PRINTING")
	require.NoError(t, err)
	assert.Equal(t, StatusInPrinting, s)

	_, err = ParseStatus("printing")
	assert.True(t, errors.Is(err, ErrUnknownStatus))
}

func TestLookup(t *testing.T) {
	tr, err := Lookup(ActionClaim, StatusInPreparation)
	require.NoError(t, err)
	assert.True(t, tr.AssignsPreparer)
	assert.Equal(t, StatusOpenOrder, tr.To)

	_, err = Lookup(ActionClaim, StatusOpenOrder)
	assert.ErrorIs(t, err, ErrTransitionInvalid)

	_, err = Lookup(Action("teleport"), StatusOpenOrder)
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestPolicyFor(t *testing.T) {
	p, err := PolicyFor(RolePreparer)
	require.NoError(t, err)
	assert.True(t, p.Watches(StatusInPreparation))
	assert.False(t, p.Watches(StatusPendingPrinting))

	_, err = PolicyFor(RoleDeliveryCompany)
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestActions_DesignManager(t *testing.T) {
	p, _ := PolicyFor(RoleDesignManager)

	actions := p.Actions(Snapshot{Status: StatusPendingPrinting}, 7)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionStartPrinting, actions[0].Action)
	assert.True(t, actions[0].Enabled)

	assert.Empty(t, p.Actions(Snapshot{Status: StatusInPreparation}, 7))
}

func TestActions_ClaimRace(t *testing.T) {
	p, _ := PolicyFor(RolePreparer)
	userA, userB := int64(10), int64(20)

	unclaimed := Snapshot{Status: StatusInPreparation}
	a, ok := p.Affordance(unclaimed, userB, ActionClaim)
	require.True(t, ok)
	assert.True(t, a.Enabled)

	// A won the claim; B still sees the button, disabled.
	claimed := Snapshot{Status: StatusInPreparation, AssignedPreparerID: ptr(userA)}
	a, ok = p.Affordance(claimed, userB, ActionClaim)
	require.True(t, ok)
	assert.False(t, a.Enabled)
	assert.Equal(t, ReasonClaimedByOther, a.Reason)

	a, ok = p.Affordance(claimed, userA, ActionClaim)
	require.True(t, ok)
	assert.True(t, a.Enabled)
	// After the claim went through the order is OPEN_ORDER; B still gets the
	// claim button, disabled.
	won := Snapshot{Status: StatusOpenOrder, AssignedPreparerID: ptr(userA)}
	a, ok = p.Affordance(won, userB, ActionClaim)
	require.True(t, ok)
	assert.False(t, a.Enabled)
	assert.Equal(t, ReasonClaimedByOther, a.Reason)

	_, ok = p.Affordance(won, userA, ActionClaim)
	assert.False(t, ok)
	_, ok = p.Affordance(Snapshot{Status: StatusOpenOrder, AssignedPreparerID: ptr(userA)}, userB, ActionCompletePreparation)
	assert.True(t, ok)
}

func TestActions_CompleteRequiresAssignee(t *testing.T) {
	p, _ := PolicyFor(RolePreparer)

	open := Snapshot{Status: StatusOpenOrder, AssignedPreparerID: ptr(10)}
	a, ok := p.Affordance(open, 10, ActionCompletePreparation)
	require.True(t, ok)
	assert.True(t, a.Enabled)

	a, _ = p.Affordance(open, 11, ActionCompletePreparation)
	assert.False(t, a.Enabled)
	assert.Equal(t, ReasonNotAssignee, a.Reason)
}

func TestActions_ExternalNeverOffered(t *testing.T) {
	for _, role := range []Role{RoleDesignManager, RolePreparer, RolePackager, RoleSeller, RoleAdmin} {
		p, err := PolicyFor(role)
		require.NoError(t, err)
		for _, a := range p.Actions(Snapshot{Status: StatusSentToDeliveryCompany}, 1) {
			assert.NotEqual(t, ActionReturnShipment, a.Action)
		}
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("design-manager")
	require.NoError(t, err)
	assert.Equal(t, RoleDesignManager, r)

	r, err = ParseRole(" preparer ")
	require.NoError(t, err)
	assert.Equal(t, RolePreparer, r)

	_, err = ParseRole("accountant")
	assert.ErrorIs(t, err, ErrUnknownRole)
}
