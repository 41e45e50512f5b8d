package pgstore

import (
	"context"
	"time"

	"github.com/BearBump/CargoDesk/internal/models"
	"github.com/pkg/errors"
)

const trackingColumns = `
  id, tracking_number, owner_id, shipping_mark, status,
  cbm::text, shipping_fee::text, goods_type, eta,
  date_added, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTracking(row rowScanner) (*models.Tracking, error) {
	var t models.Tracking
	var cbm, fee *string
	if err := row.Scan(
		&t.ID, &t.TrackingNumber, &t.OwnerID, &t.ShippingMark, &t.Status,
		&cbm, &fee, &t.GoodsType, &t.ETA,
		&t.DateAdded, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if t.CBM, err = parseDecimal(cbm); err != nil {
		return nil, err
	}
	if t.ShippingFee, err = parseDecimal(fee); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Storage) queryTrackings(ctx context.Context, sql string, args ...any) ([]*models.Tracking, error) {
	rows, err := s.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select trackings")
	}
	defer rows.Close()

	var out []*models.Tracking
	for rows.Next() {
		t, err := scanTracking(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan tracking")
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// CreateTracking appends a row; it never merges with existing rows of the
// same tracking number.
func (s *Storage) CreateTracking(ctx context.Context, t *models.Tracking) error {
	if t.Status == "" {
		t.Status = models.TrackingStatusPending
	}
	now := time.Now().UTC()
	err := s.q(ctx).QueryRow(ctx, `
INSERT INTO trackings (
  tracking_number, owner_id, shipping_mark, status,
  cbm, shipping_fee, goods_type, eta, date_added, updated_at
)
VALUES ($1,$2,$3,$4,$5::numeric,$6::numeric,$7,$8,$9,$9)
RETURNING id, date_added, updated_at
`, t.TrackingNumber, t.OwnerID, t.ShippingMark, t.Status,
		decimalText(t.CBM), decimalText(t.ShippingFee), t.GoodsType, t.ETA, now,
	).Scan(&t.ID, &t.DateAdded, &t.UpdatedAt)
	return wrapWriteErr(err, "insert tracking")
}

func (s *Storage) UpdateTracking(ctx context.Context, t *models.Tracking) error {
	err := s.q(ctx).QueryRow(ctx, `
UPDATE trackings SET
  owner_id = $2, shipping_mark = $3, status = $4,
  cbm = $5::numeric, shipping_fee = $6::numeric, goods_type = $7, eta = $8,
  updated_at = now()
WHERE id = $1
RETURNING updated_at
`, t.ID, t.OwnerID, t.ShippingMark, t.Status,
		decimalText(t.CBM), decimalText(t.ShippingFee), t.GoodsType, t.ETA,
	).Scan(&t.UpdatedAt)
	return notFound(err, "update tracking")
}

func (s *Storage) GetTrackingByID(ctx context.Context, id uint64) (*models.Tracking, error) {
	row := s.q(ctx).QueryRow(ctx, `SELECT`+trackingColumns+` FROM trackings WHERE id = $1`, id)
	t, err := scanTracking(row)
	if err != nil {
		return nil, notFound(err, "select tracking")
	}
	return t, nil
}

// ListTrackingsByNumber returns the group newest first.
func (s *Storage) ListTrackingsByNumber(ctx context.Context, number string) ([]*models.Tracking, error) {
	return s.queryTrackings(ctx, `SELECT`+trackingColumns+`
FROM trackings
WHERE tracking_number = $1
ORDER BY date_added DESC, id DESC
`, number)
}

// LockTrackingNumber takes a transaction-scoped advisory lock on number.
// Row locks cannot cover rows other transactions have not committed yet, so
// every writer of a group takes this lock before inserting into it.
// Must be called inside InTx.
func (s *Storage) LockTrackingNumber(ctx context.Context, number string) error {
	_, err := s.q(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, number)
	return errors.Wrap(err, "lock tracking number")
}

// LockTrackingGroup is ListTrackingsByNumber with the group's advisory lock
// and row locks held until the surrounding transaction ends. Must be called
// inside InTx.
func (s *Storage) LockTrackingGroup(ctx context.Context, number string) ([]*models.Tracking, error) {
	if err := s.LockTrackingNumber(ctx, number); err != nil {
		return nil, err
	}
	return s.queryTrackings(ctx, `SELECT`+trackingColumns+`
FROM trackings
WHERE tracking_number = $1
ORDER BY date_added DESC, id DESC
FOR UPDATE
`, number)
}

// ApplyTrackingGroup writes owner and mark to every row of the group. A nil
// argument leaves that column as is.
func (s *Storage) ApplyTrackingGroup(ctx context.Context, number string, ownerID *uint64, mark *string) (int64, error) {
	tag, err := s.q(ctx).Exec(ctx, `
UPDATE trackings SET
  owner_id = COALESCE($2::bigint, owner_id),
  shipping_mark = COALESCE($3::text, shipping_mark),
  updated_at = now()
WHERE tracking_number = $1
`, number, ownerID, mark)
	if err != nil {
		return 0, errors.Wrap(err, "apply tracking group")
	}
	return tag.RowsAffected(), nil
}

// DistinctTrackingNumbers lists every tracking number in a stable order;
// limit <= 0 means all of them.
func (s *Storage) DistinctTrackingNumbers(ctx context.Context, limit int) ([]string, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.q(ctx).Query(ctx, `
SELECT DISTINCT tracking_number
FROM trackings
ORDER BY tracking_number
LIMIT $1
`, lim)
	if err != nil {
		return nil, errors.Wrap(err, "select tracking numbers")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, errors.Wrap(err, "scan tracking number")
		}
		out = append(out, n)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ListUnassignedTrackings returns ownerless rows that carry a mark.
func (s *Storage) ListUnassignedTrackings(ctx context.Context) ([]*models.Tracking, error) {
	return s.queryTrackings(ctx, `SELECT`+trackingColumns+`
FROM trackings
WHERE owner_id IS NULL AND shipping_mark <> ''
ORDER BY id
`)
}

func (s *Storage) AssignTrackingOwner(ctx context.Context, id, ownerID uint64) error {
	tag, err := s.q(ctx).Exec(ctx, `UPDATE trackings SET owner_id = $2, updated_at = now() WHERE id = $1`, id, ownerID)
	if err != nil {
		return errors.Wrap(err, "assign tracking owner")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(models.ErrNotFound, "assign tracking owner")
	}
	return nil
}
