package models

import (
	"time"

	"production-dashboard/lifecycle"
)

type OrderListQuery struct {
	Status string `form:"status"`
	Search string `form:"search"`
	Date   string `form:"date"`
	Mine   bool   `form:"mine"`
}

type StatusCount struct {
	Status lifecycle.Status `json:"status"`
	Count  int              `json:"count"`
}

type DashboardSummary struct {
	User        User          `json:"user"`
	Connection  interface{}   `json:"connection"`
	Counts      []StatusCount `json:"counts"`
	RefreshedAt time.Time     `json:"refreshed_at"`
	Version     uint64        `json:"version"`
}

type MediaRow struct {
	Index    int    `json:"index"`
	OrderID  int64  `json:"order_id" binding:"required"`
	DesignID int64  `json:"design_id" binding:"required"`
	Kind     string `json:"kind"`
}

type ViewportRequest struct {
	Rows  []MediaRow `json:"rows"`
	First int        `json:"first"`
	Last  int        `json:"last"`
}

type MediaResponse struct {
	OrderID   int64  `json:"order_id"`
	DesignID  int64  `json:"design_id"`
	Kind      string `json:"kind"`
	URL       string `json:"url,omitempty"`
	Available bool   `json:"available"`
}
