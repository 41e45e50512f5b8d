package pgstore

import (
	"context"

	"github.com/BearBump/CargoDesk/internal/models"
	"github.com/pkg/errors"
)

const userColumns = `
  id, username, full_name, email, contact, location, role, status,
  login_attempts, last_login,
  notify_email, notify_order_updates, notify_promotions, created_at`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Username, &u.FullName, &u.Email, &u.Contact, &u.Location, &u.Role, &u.Status,
		&u.LoginAttempts, &u.LastLogin,
		&u.NotifyEmail, &u.NotifyOrderUpdates, &u.NotifyPromotions, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Storage) CreateUser(ctx context.Context, u *models.User) error {
	u.ApplyStatusRules()
	err := s.q(ctx).QueryRow(ctx, `
INSERT INTO users (
  username, full_name, email, contact, location, role, status,
  login_attempts, notify_email, notify_order_updates, notify_promotions
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING id, created_at
`, u.Username, u.FullName, u.Email, u.Contact, u.Location, u.Role, u.Status,
		u.LoginAttempts, u.NotifyEmail, u.NotifyOrderUpdates, u.NotifyPromotions,
	).Scan(&u.ID, &u.CreatedAt)
	return wrapWriteErr(err, "insert user")
}

func (s *Storage) GetUserByID(ctx context.Context, id uint64) (*models.User, error) {
	u, err := scanUser(s.q(ctx).QueryRow(ctx, `SELECT`+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "select user")
	}
	return u, nil
}

func (s *Storage) GetUsersByIDs(ctx context.Context, ids []uint64) ([]*models.User, error) {
	if len(ids) == 0 {
		return []*models.User{}, nil
	}
	return s.queryUsers(ctx, `SELECT`+userColumns+` FROM users WHERE id = ANY($1)`, ids)
}

func (s *Storage) ListAdmins(ctx context.Context) ([]*models.User, error) {
	return s.queryUsers(ctx, `SELECT`+userColumns+` FROM users WHERE role = $1 AND status = $2 ORDER BY id`,
		models.RoleAdmin, models.UserStatusActive)
}

func (s *Storage) queryUsers(ctx context.Context, sql string, args ...any) ([]*models.User, error) {
	rows, err := s.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select users")
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan user")
		}
		out = append(out, u)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// SaveUserLogin persists the login counters and status.
func (s *Storage) SaveUserLogin(ctx context.Context, u *models.User) error {
	u.ApplyStatusRules()
	tag, err := s.q(ctx).Exec(ctx, `
UPDATE users SET login_attempts = $2, status = $3, last_login = $4
WHERE id = $1
`, u.ID, u.LoginAttempts, u.Status, u.LastLogin)
	if err != nil {
		return errors.Wrap(err, "update user login")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(models.ErrNotFound, "update user login")
	}
	return nil
}
