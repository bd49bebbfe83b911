package models

import "time"

type Message struct {
	ID        int64      `json:"id"`
	UserID    *int64     `json:"user_id,omitempty"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	IsActive  bool       `json:"is_active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Broadcast messages have no recipient and show on every dashboard.
func (m Message) Broadcast() bool {
	return m.UserID == nil
}

func (m Message) Visible(now time.Time) bool {
	return m.IsActive && (m.ExpiresAt == nil || m.ExpiresAt.After(now))
}

type Notification struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	OrderID   *int64    `json:"order_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
