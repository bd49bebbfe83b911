package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"production-dashboard/models"
	"production-dashboard/repositories"

	"github.com/rs/zerolog"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNotBroadcast    = errors.New("only broadcast messages can be hidden")
)

type MessageSource interface {
	ListForUser(ctx context.Context, userID int64) ([]models.Message, error)
}

type MessageService struct {
	source MessageSource
	hidden repositories.HiddenMessageStore
	user   models.User
	log    zerolog.Logger

	mu       sync.RWMutex
	messages []models.Message
	hiddenID map[int64]bool
}

func NewMessageService(source MessageSource, hidden repositories.HiddenMessageStore, user models.User, log zerolog.Logger) *MessageService {
	return &MessageService{
		source:   source,
		hidden:   hidden,
		user:     user,
		log:      log.With().Str("component", "messages").Logger(),
		hiddenID: map[int64]bool{},
	}
}

func (s *MessageService) Refresh(ctx context.Context) error {
	messages, err := s.source.ListForUser(ctx, s.user.ID)
	if err != nil {
		return err
	}
	hidden, err := s.hidden.Hidden(ctx, s.user.ID)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to load hidden messages")
		hidden = nil
	}

	s.mu.Lock()
	s.messages = messages
	if hidden != nil {
		s.hiddenID = hidden
	}
	s.mu.Unlock()
	return nil
}

// Visible returns the active, unexpired messages the user has not hidden,
// newest first.
func (s *MessageService) Visible() []models.Message {
	now := timeNow()

	s.mu.RLock()
	out := make([]models.Message, 0, len(s.messages))
	for _, m := range s.messages {
		if !m.Visible(now) {
			continue
		}
		if m.Broadcast() && s.hiddenID[m.ID] {
			continue
		}
		out = append(out, m)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Hide dismisses a broadcast message for this user only.
func (s *MessageService) Hide(ctx context.Context, messageID int64) error {
	s.mu.RLock()
	var found *models.Message
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			m := s.messages[i]
			found = &m
			break
		}
	}
	s.mu.RUnlock()

	if found == nil {
		return fmt.Errorf("%w: %d", ErrMessageNotFound, messageID)
	}
	if !found.Broadcast() {
		return fmt.Errorf("%w: %d", ErrNotBroadcast, messageID)
	}

	if err := s.hidden.Hide(ctx, s.user.ID, messageID); err != nil {
		return err
	}
	s.mu.Lock()
	s.hiddenID[messageID] = true
	s.mu.Unlock()
	return nil
}
