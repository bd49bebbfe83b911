package lifecycle

import "fmt"

// Status is the production status of an order as stored by the backend.
type Status string

const (
	StatusPendingPrinting       Status = "PENDING_PRINTING"
	StatusInPrinting            Status = "IN_PRINTING"
	StatusInPreparation         Status = "IN_PREPARATION"
	StatusOpenOrder             Status = "OPEN_ORDER"
	StatusCompleted             Status = "COMPLETED"
	StatusInPackaging           Status = "IN_PACKAGING"
	StatusSentToDeliveryCompany Status = "SENT_TO_DELIVERY_COMPANY"
	StatusCancelled             Status = "CANCELLED"
	StatusReturnedShipment      Status = "RETURNED_SHIPMENT"
)

// Statuses lists every status in pipeline order, side branches last.
var Statuses = []Status{
	StatusPendingPrinting,
	StatusInPrinting,
	StatusInPreparation,
	StatusOpenOrder,
	StatusCompleted,
	StatusInPackaging,
	StatusSentToDeliveryCompany,
	StatusCancelled,
	StatusReturnedShipment,
}

func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no dashboard can move the order any further.
// SENT_TO_DELIVERY_COMPANY is terminal for users; only the carrier webhook
// can still turn it into RETURNED_SHIPMENT.
func (s Status) Terminal() bool {
	switch s {
	case StatusSentToDeliveryCompany, StatusCancelled, StatusReturnedShipment:
		return true
	}
	return false
}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return s, nil
}
