package lifecycle

// Action names a user-facing affordance that triggers one transition.
type Action string

const (
	ActionStartPrinting       Action = "start_printing"
	ActionSendToPreparation   Action = "send_to_preparation"
	ActionClaim               Action = "claim"
	ActionCompletePreparation Action = "complete_preparation"
	ActionCompletePackaging   Action = "complete_packaging"
	ActionShip                Action = "ship"
	ActionReturnShipment      Action = "return_shipment"
)

// Transition is one row of the transition table.
type Transition struct {
	Action Action
	From   Status
	To     Status
	Role   Role

	// AssignsPreparer marks the claim: the acting preparer becomes the
	// order's assignee before the status is set.
	AssignsPreparer bool
	// ViaShipment marks transitions performed by creating a shipment
	// instead of setting the status directly.
	ViaShipment bool
	// External transitions are driven by a system webhook and are never
	// offered on a dashboard.
	External bool
}

var transitions = []Transition{
	{Action: ActionStartPrinting, From: StatusPendingPrinting, To: StatusInPrinting, Role: RoleDesignManager},
	{Action: ActionSendToPreparation, From: StatusInPrinting, To: StatusInPreparation, Role: RoleDesignManager},
	{Action: ActionClaim, From: StatusInPreparation, To: StatusOpenOrder, Role: RolePreparer, AssignsPreparer: true},
	{Action: ActionCompletePreparation, From: StatusOpenOrder, To: StatusCompleted, Role: RolePreparer},
	{Action: ActionCompletePackaging, From: StatusInPackaging, To: StatusCompleted, Role: RolePackager},
	{Action: ActionShip, From: StatusCompleted, To: StatusSentToDeliveryCompany, Role: RolePackager, ViaShipment: true},
	{Action: ActionReturnShipment, From: StatusSentToDeliveryCompany, To: StatusReturnedShipment, Role: RoleDeliveryCompany, External: true},
}

// Transitions returns a copy of the full transition table.
func Transitions() []Transition {
	out := make([]Transition, len(transitions))
	copy(out, transitions)
	return out
}

// Allowed reports whether the state machine permits from -> to regardless of
// who triggers it. Cancellation is reachable from every non-terminal status.
func Allowed(from, to Status) bool {
	if to == StatusCancelled {
		return from.Valid() && !from.Terminal()
	}
	for _, t := range transitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// CanTransition reports whether role may move an order from -> to.
func CanTransition(from, to Status, role Role) bool {
	for _, t := range transitions {
		if t.From == from && t.To == to && t.Role == role {
			return true
		}
	}
	return false
}

// Lookup finds the transition an action performs from the given status.
func Lookup(action Action, from Status) (Transition, error) {
	known := false
	for _, t := range transitions {
		if t.Action != action {
			continue
		}
		known = true
		if t.From == from {
			return t, nil
		}
	}
	if !known {
		return Transition{}, ErrUnknownAction
	}
	return Transition{}, ErrTransitionInvalid
}
