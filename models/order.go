package models

import (
	"strings"
	"time"

	"production-dashboard/lifecycle"

	"github.com/shopspring/decimal"
)

const (
	// MediaPlaceholder marks a media slot that never held a file.
	MediaPlaceholder = "placeholder"
	// MediaExcluded marks media stripped from bulk list responses; the full
	// order record has to be fetched to resolve it.
	MediaExcluded = "EXCLUDED"
)

type Order struct {
	ID                 int64            `json:"id"`
	OrderNumber        string           `json:"order_number"`
	Status             lifecycle.Status `json:"status"`
	CustomerName       string           `json:"customer_name"`
	CustomerPhone      string           `json:"customer_phone,omitempty"`
	Notes              *string          `json:"notes,omitempty"`
	SellerID           int64            `json:"seller_id"`
	AssignedPreparerID *int64           `json:"assigned_preparer_id,omitempty"`
	IsContacted        bool             `json:"is_contacted"`
	DeliveryStatus     string           `json:"delivery_status,omitempty"`
	Subtotal           decimal.Decimal  `json:"subtotal"`
	Discount           decimal.Decimal  `json:"discount"`
	DeliveryFee        decimal.Decimal  `json:"delivery_fee"`
	Total              decimal.Decimal  `json:"total"`
	Designs            []OrderDesign    `json:"designs,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

type OrderDesign struct {
	ID           int64             `json:"id"`
	OrderID      int64             `json:"order_id"`
	Name         string            `json:"name"`
	MockupImages []string          `json:"mockup_images,omitempty"`
	PrintFiles   []string          `json:"print_files,omitempty"`
	Items        []OrderDesignItem `json:"items,omitempty"`

	// Set on served copies when the list response stripped that media and
	// it has to be requested through the media endpoint.
	MockupsStripped    bool `json:"mockups_stripped,omitempty"`
	PrintFilesStripped bool `json:"print_files_stripped,omitempty"`
}

type OrderDesignItem struct {
	ID         int64           `json:"id"`
	DesignID   int64           `json:"design_id"`
	FabricType string          `json:"fabric_type"`
	Color      string          `json:"color"`
	Size       string          `json:"size"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// Consistent checks the server-computed line total against quantity × unit
// price. The total is displayed as received either way.
func (i OrderDesignItem) Consistent() bool {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))).Equal(i.TotalPrice)
}

func (o Order) Snapshot() lifecycle.Snapshot {
	return lifecycle.Snapshot{Status: o.Status, AssignedPreparerID: o.AssignedPreparerID}
}

// ForDisplay returns a copy of the order with placeholder and stripped media
// references removed. Stripped media is flagged on the design instead.
func (o Order) ForDisplay() Order {
	if len(o.Designs) == 0 {
		return o
	}
	designs := make([]OrderDesign, len(o.Designs))
	for i, d := range o.Designs {
		d.MockupsStripped = d.MockupsStripped || HasExcludedMedia(d.MockupImages)
		d.PrintFilesStripped = d.PrintFilesStripped || HasExcludedMedia(d.PrintFiles)
		d.MockupImages = UsableMedia(d.MockupImages)
		d.PrintFiles = UsableMedia(d.PrintFiles)
		designs[i] = d
	}
	o.Designs = designs
	return o
}

func (o Order) Design(id int64) (*OrderDesign, bool) {
	for i := range o.Designs {
		if o.Designs[i].ID == id {
			return &o.Designs[i], true
		}
	}
	return nil, false
}

// Matches reports whether the order matches a free-text dashboard search.
// An empty query matches everything.
func (o Order) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	fields := []string{o.OrderNumber, o.CustomerName, o.CustomerPhone}
	if o.Notes != nil {
		fields = append(fields, *o.Notes)
	}
	for _, d := range o.Designs {
		fields = append(fields, d.Name)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// UsableMedia filters a media list down to references that can be shown.
func UsableMedia(refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if IsUsableMedia(r) {
			out = append(out, r)
		}
	}
	return out
}

func IsUsableMedia(ref string) bool {
	r := strings.TrimSpace(ref)
	return r != "" && r != MediaPlaceholder && r != MediaExcluded
}

// HasExcludedMedia reports whether any reference was stripped from a bulk
// response.
func HasExcludedMedia(refs []string) bool {
	for _, r := range refs {
		if strings.TrimSpace(r) == MediaExcluded {
			return true
		}
	}
	return false
}

type Shipment struct {
	ID             int64     `json:"id"`
	OrderID        int64     `json:"order_id"`
	TrackingNumber string    `json:"tracking_number,omitempty"`
	Carrier        string    `json:"carrier,omitempty"`
	Status         string    `json:"status"`
	Notes          []string  `json:"notes,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type CreateShipmentsRequest struct {
	OrderIDs []int64 `json:"order_ids" binding:"required,min=1"`
}

type UpdateNotesRequest struct {
	Notes string `json:"notes"`
}
