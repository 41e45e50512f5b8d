package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/BearBump/CargoDesk/internal/models"
	"github.com/pkg/errors"
)

func (s *Store) CreateNotification(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.Status == "" {
		n.Status = models.NotificationStatusPending
	}
	n.ID, n.CreatedAt = s.nextID()
	n.UpdatedAt = n.CreatedAt
	c := *n
	s.notifications[n.ID] = &c
	return nil
}

func (s *Store) MarkNotification(_ context.Context, id uint64, status string, errText *string, sentAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return errors.Wrap(models.ErrNotFound, "update notification")
	}
	n.Status, n.Error, n.SentAt, n.UpdatedAt = status, errText, sentAt, s.now()
	return nil
}

func (s *Store) ListNotificationsByUser(_ context.Context, userID uint64, limit int) ([]*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			c := *n
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Notifications returns every stored notification ordered by id.
func (s *Store) Notifications() []*models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		c := *n
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
