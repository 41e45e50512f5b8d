package pgstore

import (
	"context"
	"time"

	"github.com/BearBump/CargoDesk/internal/models"
	"github.com/pkg/errors"
)

func (s *Storage) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.Status == "" {
		n.Status = models.NotificationStatusPending
	}
	err := s.q(ctx).QueryRow(ctx, `
INSERT INTO notifications (user_id, kind, subject, message, status, error, tracking_id, sent_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id, created_at, updated_at
`, n.UserID, n.Kind, n.Subject, n.Message, n.Status, n.Error, n.TrackingID, n.SentAt,
	).Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	return wrapWriteErr(err, "insert notification")
}

// MarkNotification records the delivery outcome.
func (s *Storage) MarkNotification(ctx context.Context, id uint64, status string, errText *string, sentAt *time.Time) error {
	tag, err := s.q(ctx).Exec(ctx, `
UPDATE notifications SET status = $2, error = $3, sent_at = $4, updated_at = now()
WHERE id = $1
`, id, status, errText, sentAt)
	if err != nil {
		return errors.Wrap(err, "update notification")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(models.ErrNotFound, "update notification")
	}
	return nil
}

func (s *Storage) ListNotificationsByUser(ctx context.Context, userID uint64, limit int) ([]*models.Notification, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.q(ctx).Query(ctx, `
SELECT id, user_id, kind, subject, message, status, error, tracking_id, sent_at, created_at, updated_at
FROM notifications
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select notifications")
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.Kind, &n.Subject, &n.Message, &n.Status, &n.Error,
			&n.TrackingID, &n.SentAt, &n.CreatedAt, &n.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		out = append(out, &n)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
