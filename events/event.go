package events

import (
	"time"

	"production-dashboard/lifecycle"
	"production-dashboard/models"
)

type Kind string

const (
	OrderCreated                Kind = "OrderCreated"
	OrderStatusChanged          Kind = "OrderStatusChanged"
	OrderUpdated                Kind = "OrderUpdated"
	OrderContactedStatusChanged Kind = "OrderContactedStatusChanged"
	DeliveryStatusChanged       Kind = "DeliveryStatusChanged"
	ShipmentStatusUpdated       Kind = "ShipmentStatusUpdated"
	ShipmentNoteAdded           Kind = "ShipmentNoteAdded"
	NewNotification             Kind = "NewNotification"
	MessageCreated              Kind = "MessageCreated"
	MessageUpdated              Kind = "MessageUpdated"
	MessageRemoved              Kind = "MessageRemoved"
)

var Kinds = []Kind{
	OrderCreated,
	OrderStatusChanged,
	OrderUpdated,
	OrderContactedStatusChanged,
	DeliveryStatusChanged,
	ShipmentStatusUpdated,
	ShipmentNoteAdded,
	NewNotification,
	MessageCreated,
	MessageUpdated,
	MessageRemoved,
}

// OrderKinds invalidate order lists.
var OrderKinds = []Kind{
	OrderCreated,
	OrderStatusChanged,
	OrderUpdated,
	OrderContactedStatusChanged,
	DeliveryStatusChanged,
	ShipmentStatusUpdated,
	ShipmentNoteAdded,
}

// MessageKinds invalidate the message list.
var MessageKinds = []Kind{MessageCreated, MessageUpdated, MessageRemoved}

// Event is a decoded hub invocation. Exactly one of the payload pointers is
// set, according to Kind. Payloads are hints: consumers re-query the
// collaborator for the authoritative state and use payload fields for
// toasts only.
type Event struct {
	Kind       Kind      `json:"kind"`
	ReceivedAt time.Time `json:"received_at"`

	Order        *OrderHint           `json:"order,omitempty"`
	Delivery     *DeliveryHint        `json:"delivery,omitempty"`
	Contacted    *ContactedHint       `json:"contacted,omitempty"`
	Shipment     *ShipmentHint        `json:"shipment,omitempty"`
	Message      *MessageHint         `json:"message,omitempty"`
	Notification *models.Notification `json:"notification,omitempty"`
}

type OrderHint struct {
	ID          int64            `json:"id"`
	OrderNumber string           `json:"order_number,omitempty"`
	Status      lifecycle.Status `json:"status,omitempty"`
}

type DeliveryHint struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

type ContactedHint struct {
	OrderID     int64 `json:"order_id"`
	IsContacted bool  `json:"is_contacted"`
}

type ShipmentHint struct {
	ID      int64  `json:"id"`
	OrderID int64  `json:"order_id"`
	Status  string `json:"status,omitempty"`
	Note    string `json:"note,omitempty"`
}

type MessageHint struct {
	ID     int64  `json:"id"`
	UserID *int64 `json:"user_id,omitempty"`
	Title  string `json:"title,omitempty"`
}

// OrderID returns the order the event refers to, or zero.
func (e Event) OrderID() int64 {
	switch {
	case e.Order != nil:
		return e.Order.ID
	case e.Delivery != nil:
		return e.Delivery.OrderID
	case e.Contacted != nil:
		return e.Contacted.OrderID
	case e.Shipment != nil:
		return e.Shipment.OrderID
	case e.Notification != nil && e.Notification.OrderID != nil:
		return *e.Notification.OrderID
	}
	return 0
}

// Toast returns a short text suitable for an optimistic notification while
// the authoritative refresh runs.
func (e Event) Toast() (string, bool) {
	switch {
	case e.Kind == MessageCreated && e.Message != nil && e.Message.Title != "":
		return e.Message.Title, true
	case e.Kind == NewNotification && e.Notification != nil && e.Notification.Title != "":
		return e.Notification.Title, true
	case e.Kind == OrderCreated && e.Order != nil && e.Order.OrderNumber != "":
		return "New order #" + e.Order.OrderNumber, true
	}
	return "", false
}

func IsOrderKind(k Kind) bool {
	for _, o := range OrderKinds {
		if o == k {
			return true
		}
	}
	return false
}

func IsMessageKind(k Kind) bool {
	for _, m := range MessageKinds {
		if m == k {
			return true
		}
	}
	return false
}
