package repositories

import (
	"context"
	"net/url"
	"strconv"

	"production-dashboard/models"
)

type MessageRepository struct {
	client *APIClient
}

func NewMessageRepository(client *APIClient) *MessageRepository {
	return &MessageRepository{client: client}
}

// ListForUser returns the user's direct messages and all broadcasts,
// including inactive and expired ones.
func (r *MessageRepository) ListForUser(ctx context.Context, userID int64) ([]models.Message, error) {
	q := url.Values{}
	q.Set("user_id", strconv.FormatInt(userID, 10))

	var messages []models.Message
	if err := r.client.Get(ctx, "/messages", q, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
