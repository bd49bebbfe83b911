package repositories

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"production-dashboard/lifecycle"
	"production-dashboard/models"
)

const DateLayout = "2006-01-02"

type OrderRepository struct {
	client *APIClient
}

func NewOrderRepository(client *APIClient) *OrderRepository {
	return &OrderRepository{client: client}
}

// StatusSegment is the path segment of the transition endpoint that moves an
// order into status, e.g. IN_PRINTING -> in-printing.
func StatusSegment(status lifecycle.Status) string {
	return strings.ReplaceAll(strings.ToLower(string(status)), "_", "-")
}

// ListByStatus returns the orders in status. A non-nil date limits the list
// to orders created on that day.
func (r *OrderRepository) ListByStatus(ctx context.Context, status lifecycle.Status, date *time.Time) ([]models.Order, error) {
	q := url.Values{}
	q.Set("status", string(status))
	if date != nil {
		q.Set("date", date.Format(DateLayout))
	}

	var orders []models.Order
	if err := r.client.Get(ctx, "/orders", q, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) ListAssigned(ctx context.Context, preparerID int64, status lifecycle.Status) ([]models.Order, error) {
	q := url.Values{}
	q.Set("status", string(status))

	var orders []models.Order
	path := fmt.Sprintf("/orders/preparer/%d", preparerID)
	if err := r.client.Get(ctx, path, q, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetOrderByID returns the full record, media included.
func (r *OrderRepository) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	if err := r.client.Get(ctx, "/orders/"+strconv.FormatInt(id, 10), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) UpdateNotes(ctx context.Context, id int64, notes string) error {
	path := fmt.Sprintf("/orders/%d/notes", id)
	return r.client.Patch(ctx, path, models.UpdateNotesRequest{Notes: notes}, nil)
}

func (r *OrderRepository) SetStatus(ctx context.Context, id int64, status lifecycle.Status) error {
	path := fmt.Sprintf("/orders/%d/%s", id, StatusSegment(status))
	return r.client.Put(ctx, path, nil, nil)
}

func (r *OrderRepository) AssignPreparer(ctx context.Context, id, preparerID int64) error {
	path := fmt.Sprintf("/orders/%d/assign-preparer/%d", id, preparerID)
	return r.client.Put(ctx, path, nil, nil)
}

func (r *OrderRepository) CreateShipments(ctx context.Context, orderIDs []int64) ([]models.Shipment, error) {
	var shipments []models.Shipment
	if err := r.client.Post(ctx, "/shipments", models.CreateShipmentsRequest{OrderIDs: orderIDs}, &shipments); err != nil {
		return nil, err
	}
	return shipments, nil
}
