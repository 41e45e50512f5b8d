package pgstore

import (
	"context"

	"github.com/BearBump/CargoDesk/internal/models"
)

const markColumns = ` id, owner_id, mark_id, name, created_at `

func scanMark(row rowScanner) (*models.ShippingMark, error) {
	var m models.ShippingMark
	if err := row.Scan(&m.ID, &m.OwnerID, &m.MarkID, &m.Name, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateShippingMark fails with ErrConflict when the owner already has a mark
// or the mark id is taken.
func (s *Storage) CreateShippingMark(ctx context.Context, m *models.ShippingMark) error {
	err := s.q(ctx).QueryRow(ctx, `
INSERT INTO shipping_marks (owner_id, mark_id, name)
VALUES ($1,$2,$3)
RETURNING id, created_at
`, m.OwnerID, m.MarkID, m.Name).Scan(&m.ID, &m.CreatedAt)
	return wrapWriteErr(err, "insert shipping mark")
}

func (s *Storage) GetShippingMarkByMarkID(ctx context.Context, markID string) (*models.ShippingMark, error) {
	m, err := scanMark(s.q(ctx).QueryRow(ctx, `SELECT`+markColumns+`FROM shipping_marks WHERE mark_id = $1`, markID))
	if err != nil {
		return nil, notFound(err, "select shipping mark")
	}
	return m, nil
}

func (s *Storage) GetShippingMarkByOwner(ctx context.Context, ownerID uint64) (*models.ShippingMark, error) {
	m, err := scanMark(s.q(ctx).QueryRow(ctx, `SELECT`+markColumns+`FROM shipping_marks WHERE owner_id = $1`, ownerID))
	if err != nil {
		return nil, notFound(err, "select shipping mark")
	}
	return m, nil
}

// RenameShippingMark changes the display name only; mark_id is immutable.
func (s *Storage) RenameShippingMark(ctx context.Context, ownerID uint64, name string) (*models.ShippingMark, error) {
	m, err := scanMark(s.q(ctx).QueryRow(ctx, `
UPDATE shipping_marks SET name = $2
WHERE owner_id = $1
RETURNING`+markColumns, ownerID, name))
	if err != nil {
		return nil, notFound(err, "rename shipping mark")
	}
	return m, nil
}
