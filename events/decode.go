package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"production-dashboard/lifecycle"
	"production-dashboard/models"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrMalformedEvent = errors.New("malformed event payload")
)

type wireOrder struct {
	ID          int64  `json:"id"`
	OrderID     int64  `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
}

type wireOrderField struct {
	OrderID int64  `json:"orderId"`
	Status  string `json:"status"`
	Value   *bool  `json:"isContacted"`
}

type wireShipment struct {
	ID      int64  `json:"id"`
	OrderID int64  `json:"orderId"`
	Status  string `json:"status"`
	Note    string `json:"note"`
}

type wireNotification struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"message"`
	OrderID   *int64    `json:"orderId"`
	CreatedAt time.Time `json:"createdAt"`
}

type wireMessage struct {
	ID     int64  `json:"id"`
	UserID *int64 `json:"userId"`
	Title  string `json:"title"`
}

// Decode maps a hub invocation to an Event. Unknown targets return
// ErrUnknownEvent and are expected to be ignored by the caller.
func Decode(target string, args []json.RawMessage) (Event, error) {
	ev := Event{Kind: Kind(target), ReceivedAt: time.Now()}

	var err error
	switch ev.Kind {
	case OrderCreated, OrderStatusChanged, OrderUpdated:
		ev.Order, err = decodeOrder(args)
	case DeliveryStatusChanged:
		ev.Delivery, err = decodeDelivery(args)
	case OrderContactedStatusChanged:
		ev.Contacted, err = decodeContacted(args)
	case ShipmentStatusUpdated, ShipmentNoteAdded:
		ev.Shipment, err = decodeShipment(args)
	case NewNotification:
		ev.Notification, err = decodeNotification(args)
	case MessageCreated, MessageUpdated, MessageRemoved:
		ev.Message, err = decodeMessage(args)
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, target)
	}
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, target, err)
	}
	return ev, nil
}

func firstArg(args []json.RawMessage) (json.RawMessage, error) {
	if len(args) == 0 || len(bytes.TrimSpace(args[0])) == 0 {
		return nil, errors.New("missing argument")
	}
	return args[0], nil
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func decodeOrder(args []json.RawMessage) (*OrderHint, error) {
	raw, err := firstArg(args)
	if err != nil {
		return nil, err
	}

	var w wireOrder
	if isObject(raw) {
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
	} else if err := json.Unmarshal(raw, &w.ID); err != nil {
		return nil, err
	}

	id := w.ID
	if id == 0 {
		id = w.OrderID
	}
	if id <= 0 {
		return nil, errors.New("missing order id")
	}

	hint := &OrderHint{ID: id, OrderNumber: w.OrderNumber}
	if s, err := lifecycle.ParseStatus(w.Status); err == nil {
		hint.Status = s
	}
	return hint, nil
}

func decodeDelivery(args []json.RawMessage) (*DeliveryHint, error) {
	var hint DeliveryHint
	if len(args) >= 2 {
		if err := json.Unmarshal(args[0], &hint.OrderID); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(args[1], &hint.Status); err != nil {
			return nil, err
		}
	} else {
		raw, err := firstArg(args)
		if err != nil {
			return nil, err
		}
		var w wireOrderField
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		hint = DeliveryHint{OrderID: w.OrderID, Status: w.Status}
	}
	if hint.OrderID <= 0 {
		return nil, errors.New("missing order id")
	}
	return &hint, nil
}

func decodeContacted(args []json.RawMessage) (*ContactedHint, error) {
	var hint ContactedHint
	if len(args) >= 2 {
		if err := json.Unmarshal(args[0], &hint.OrderID); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(args[1], &hint.IsContacted); err != nil {
			return nil, err
		}
	} else {
		raw, err := firstArg(args)
		if err != nil {
			return nil, err
		}
		var w wireOrderField
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		if w.Value == nil {
			return nil, errors.New("missing contacted flag")
		}
		hint = ContactedHint{OrderID: w.OrderID, IsContacted: *w.Value}
	}
	if hint.OrderID <= 0 {
		return nil, errors.New("missing order id")
	}
	return &hint, nil
}

func decodeShipment(args []json.RawMessage) (*ShipmentHint, error) {
	raw, err := firstArg(args)
	if err != nil {
		return nil, err
	}
	var w wireShipment
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if w.OrderID <= 0 && w.ID <= 0 {
		return nil, errors.New("missing shipment id")
	}
	return &ShipmentHint{ID: w.ID, OrderID: w.OrderID, Status: w.Status, Note: w.Note}, nil
}

func decodeNotification(args []json.RawMessage) (*models.Notification, error) {
	raw, err := firstArg(args)
	if err != nil {
		return nil, err
	}
	var w wireNotification
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &models.Notification{
		ID:        w.ID,
		Title:     w.Title,
		Body:      w.Body,
		OrderID:   w.OrderID,
		CreatedAt: w.CreatedAt,
	}, nil
}

func decodeMessage(args []json.RawMessage) (*MessageHint, error) {
	raw, err := firstArg(args)
	if err != nil {
		return nil, err
	}
	var w wireMessage
	if isObject(raw) {
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
	} else if err := json.Unmarshal(raw, &w.ID); err != nil {
		return nil, err
	}
	if w.ID <= 0 {
		return nil, errors.New("missing message id")
	}
	return &MessageHint{ID: w.ID, UserID: w.UserID, Title: w.Title}, nil
}
