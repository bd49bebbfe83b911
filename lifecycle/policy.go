package lifecycle

import (
	"fmt"
	"strings"
)

// Role identifies which dashboard a user works in.
type Role string

const (
	RoleDesignManager   Role = "DESIGN_MANAGER"
	RolePreparer        Role = "PREPARER"
	RolePackager        Role = "PACKAGER"
	RoleSeller          Role = "SELLER"
	RoleAdmin           Role = "ADMIN"
	RoleDeliveryCompany Role = "DELIVERY_COMPANY"
)

// ParseRole accepts role names in any case, with dashes or underscores.
func ParseRole(raw string) (Role, error) {
	r := Role(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_")))
	switch r {
	case RoleDesignManager, RolePreparer, RolePackager, RoleSeller, RoleAdmin, RoleDeliveryCompany:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
}

type WatchedList struct {
	Status Status
}

// Policy is the role-specific view of the state machine a dashboard is
// parameterized with.
type Policy struct {
	Role  Role
	Lists []WatchedList
}

var policies = map[Role]Policy{
	RoleDesignManager: {
		Role: RoleDesignManager,
		Lists: []WatchedList{
			{Status: StatusPendingPrinting},
			{Status: StatusInPrinting},
		},
	},
	RolePreparer: {
		Role: RolePreparer,
		Lists: []WatchedList{
			{Status: StatusInPreparation},
			{Status: StatusOpenOrder},
		},
	},
	RolePackager: {
		Role: RolePackager,
		Lists: []WatchedList{
			{Status: StatusInPackaging},
			{Status: StatusCompleted},
			{Status: StatusSentToDeliveryCompany},
		},
	},
	RoleSeller: {
		Role: RoleSeller,
		Lists: []WatchedList{
			{Status: StatusPendingPrinting},
			{Status: StatusInPrinting},
			{Status: StatusInPreparation},
			{Status: StatusOpenOrder},
			{Status: StatusCompleted},
			{Status: StatusInPackaging},
			{Status: StatusSentToDeliveryCompany},
		},
	},
	RoleAdmin: {
		Role:  RoleAdmin,
		Lists: allLists(),
	},
}

func allLists() []WatchedList {
	lists := make([]WatchedList, 0, len(Statuses))
	for _, s := range Statuses {
		lists = append(lists, WatchedList{Status: s})
	}
	return lists
}

// PolicyFor returns the policy of a dashboard role. The delivery company is
// a system actor and has no dashboard.
func PolicyFor(role Role) (Policy, error) {
	p, ok := policies[role]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return p, nil
}

// Watches reports whether the dashboard shows a list for status.
func (p Policy) Watches(status Status) bool {
	for _, l := range p.Lists {
		if l.Status == status {
			return true
		}
	}
	return false
}

// Snapshot is the part of a fetched order the projection depends on.
type Snapshot struct {
	Status             Status
	AssignedPreparerID *int64
}

// Affordance is one action button for an order. Disabled affordances stay
// visible and carry the reason.
type Affordance struct {
	Action  Action `json:"action"`
	To      Status `json:"to"`
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason,omitempty"`
}

const (
	ReasonClaimedByOther = "claimed by another preparer"
	ReasonNotAssignee    = "order is assigned to another preparer"
)

// Actions projects the affordances the role gets for an order snapshot.
// It must be called with the latest fetched snapshot; a stale one can offer
// a claim that another preparer already won.
func (p Policy) Actions(order Snapshot, userID int64) []Affordance {
	var out []Affordance
	for _, t := range transitions {
		if t.Role != p.Role || t.From != order.Status || t.External {
			continue
		}
		a := Affordance{Action: t.Action, To: t.To, Enabled: true}
		assigned := order.AssignedPreparerID
		switch t.Action {
		case ActionClaim:
			if assigned != nil && *assigned != userID {
				a.Enabled = false
				a.Reason = ReasonClaimedByOther
			}
		case ActionCompletePreparation:
			if assigned == nil || *assigned != userID {
				a.Enabled = false
				a.Reason = ReasonNotAssignee
			}
		}
		out = append(out, a)
	}
	return append(claimedElsewhere(p.Role, order, userID), out...)
}

// claimedElsewhere keeps the claim button, disabled, on an order another
// preparer already claimed.
func claimedElsewhere(role Role, order Snapshot, userID int64) []Affordance {
	assigned := order.AssignedPreparerID
	if assigned == nil || *assigned == userID {
		return nil
	}
	var out []Affordance
	for _, t := range transitions {
		if t.AssignsPreparer && t.Role == role && t.To == order.Status {
			out = append(out, Affordance{Action: t.Action, To: t.To, Enabled: false, Reason: ReasonClaimedByOther})
		}
	}
	return out
}

// Affordance returns the projection of a single action, or false when the
// role never gets that action in the order's status.
func (p Policy) Affordance(order Snapshot, userID int64, action Action) (Affordance, bool) {
	for _, a := range p.Actions(order, userID) {
		if a.Action == action {
			return a, true
		}
	}
	return Affordance{}, false
}
