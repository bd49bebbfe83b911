package models

import "production-dashboard/lifecycle"

// User is the signed-in dashboard user as read from the access token.
type User struct {
	ID    int64          `json:"id"`
	Email string         `json:"email"`
	Role  lifecycle.Role `json:"role"`
}
