package pgstore

import (
	"context"

	"github.com/BearBump/CargoDesk/internal/models"
	"github.com/pkg/errors"
)

// ShippingRateRepo and BaseAddressRepo share one shape so the settings
// service can drive both through a single generic normalizer.
type ShippingRateRepo struct{ s *Storage }

func (s *Storage) ShippingRates() *ShippingRateRepo { return &ShippingRateRepo{s: s} }

func (r *ShippingRateRepo) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.s.InTx(ctx, fn)
}

func (r *ShippingRateRepo) DeactivateOthers(ctx context.Context, exceptID uint64) (int64, error) {
	tag, err := r.s.q(ctx).Exec(ctx, `
UPDATE shipping_rates SET is_active = FALSE, updated_at = now()
WHERE is_active AND id <> $1
`, exceptID)
	if err != nil {
		return 0, errors.Wrap(err, "deactivate shipping rates")
	}
	return tag.RowsAffected(), nil
}

func (r *ShippingRateRepo) Save(ctx context.Context, rate *models.ShippingRate) error {
	normal, special := rate.NormalGoodsRate.String(), rate.SpecialGoodsRate.String()
	if rate.ID == 0 {
		err := r.s.q(ctx).QueryRow(ctx, `
INSERT INTO shipping_rates (
  normal_goods_rate, special_goods_rate, normal_goods_rate_lt1, special_goods_rate_lt1, is_active
)
VALUES ($1::numeric,$2::numeric,$3::numeric,$4::numeric,$5)
RETURNING id, created_at, updated_at
`, normal, special, decimalText(rate.NormalGoodsRateLT1), decimalText(rate.SpecialGoodsRateLT1), rate.IsActive,
		).Scan(&rate.ID, &rate.CreatedAt, &rate.UpdatedAt)
		return wrapWriteErr(err, "insert shipping rate")
	}
	err := r.s.q(ctx).QueryRow(ctx, `
UPDATE shipping_rates SET
  normal_goods_rate = $2::numeric, special_goods_rate = $3::numeric,
  normal_goods_rate_lt1 = $4::numeric, special_goods_rate_lt1 = $5::numeric,
  is_active = $6, updated_at = now()
WHERE id = $1
RETURNING created_at, updated_at
`, rate.ID, normal, special, decimalText(rate.NormalGoodsRateLT1), decimalText(rate.SpecialGoodsRateLT1), rate.IsActive,
	).Scan(&rate.CreatedAt, &rate.UpdatedAt)
	return wrapWriteErr(err, "update shipping rate")
}

func (r *ShippingRateRepo) Get(ctx context.Context, id uint64) (*models.ShippingRate, error) {
	return r.scanOne(ctx, `WHERE id = $1`, id)
}

// Current returns the newest active rate.
func (r *ShippingRateRepo) Current(ctx context.Context) (*models.ShippingRate, error) {
	return r.scanOne(ctx, `WHERE is_active ORDER BY created_at DESC, id DESC LIMIT 1`)
}

func (r *ShippingRateRepo) scanOne(ctx context.Context, where string, args ...any) (*models.ShippingRate, error) {
	var rate models.ShippingRate
	var normal, special string
	var normalLT1, specialLT1 *string
	err := r.s.q(ctx).QueryRow(ctx, `
SELECT id, normal_goods_rate::text, special_goods_rate::text,
       normal_goods_rate_lt1::text, special_goods_rate_lt1::text,
       is_active, created_at, updated_at
FROM shipping_rates `+where, args...).Scan(
		&rate.ID, &normal, &special, &normalLT1, &specialLT1,
		&rate.IsActive, &rate.CreatedAt, &rate.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "select shipping rate")
	}

	n, err := parseDecimal(&normal)
	if err != nil {
		return nil, err
	}
	sp, err := parseDecimal(&special)
	if err != nil {
		return nil, err
	}
	rate.NormalGoodsRate, rate.SpecialGoodsRate = *n, *sp
	if rate.NormalGoodsRateLT1, err = parseDecimal(normalLT1); err != nil {
		return nil, err
	}
	if rate.SpecialGoodsRateLT1, err = parseDecimal(specialLT1); err != nil {
		return nil, err
	}
	return &rate, nil
}

type BaseAddressRepo struct{ s *Storage }

func (s *Storage) BaseAddresses() *BaseAddressRepo { return &BaseAddressRepo{s: s} }

func (r *BaseAddressRepo) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.s.InTx(ctx, fn)
}

func (r *BaseAddressRepo) DeactivateOthers(ctx context.Context, exceptID uint64) (int64, error) {
	tag, err := r.s.q(ctx).Exec(ctx, `
UPDATE default_base_addresses SET is_active = FALSE, updated_at = now()
WHERE is_active AND id <> $1
`, exceptID)
	if err != nil {
		return 0, errors.Wrap(err, "deactivate base addresses")
	}
	return tag.RowsAffected(), nil
}

func (r *BaseAddressRepo) Save(ctx context.Context, a *models.DefaultBaseAddress) error {
	if a.ID == 0 {
		err := r.s.q(ctx).QueryRow(ctx, `
INSERT INTO default_base_addresses (base_address, is_active, updated_by)
VALUES ($1,$2,$3)
RETURNING id, created_at, updated_at
`, a.BaseAddress, a.IsActive, a.UpdatedBy).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
		return wrapWriteErr(err, "insert base address")
	}
	err := r.s.q(ctx).QueryRow(ctx, `
UPDATE default_base_addresses SET base_address = $2, is_active = $3, updated_by = $4, updated_at = now()
WHERE id = $1
RETURNING created_at, updated_at
`, a.ID, a.BaseAddress, a.IsActive, a.UpdatedBy).Scan(&a.CreatedAt, &a.UpdatedAt)
	return wrapWriteErr(err, "update base address")
}

func (r *BaseAddressRepo) Get(ctx context.Context, id uint64) (*models.DefaultBaseAddress, error) {
	return r.scanOne(ctx, `WHERE id = $1`, id)
}

func (r *BaseAddressRepo) Current(ctx context.Context) (*models.DefaultBaseAddress, error) {
	return r.scanOne(ctx, `WHERE is_active ORDER BY created_at DESC, id DESC LIMIT 1`)
}

func (r *BaseAddressRepo) scanOne(ctx context.Context, where string, args ...any) (*models.DefaultBaseAddress, error) {
	var a models.DefaultBaseAddress
	err := r.s.q(ctx).QueryRow(ctx, `
SELECT id, base_address, is_active, updated_by, created_at, updated_at
FROM default_base_addresses `+where, args...).Scan(
		&a.ID, &a.BaseAddress, &a.IsActive, &a.UpdatedBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "select base address")
	}
	return &a, nil
}

func (s *Storage) InsertCurrencyRate(ctx context.Context, c *models.CurrencyRate) error {
	err := s.q(ctx).QueryRow(ctx, `
INSERT INTO currency_rates (usd_to_ghs, notes, updated_by)
VALUES ($1::numeric,$2,$3)
RETURNING id, created_at, updated_at
`, c.USDToGHS.String(), c.Notes, c.UpdatedBy).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return wrapWriteErr(err, "insert currency rate")
}

// LatestCurrencyRate returns the most recently created rate.
func (s *Storage) LatestCurrencyRate(ctx context.Context) (*models.CurrencyRate, error) {
	var c models.CurrencyRate
	var rate string
	err := s.q(ctx).QueryRow(ctx, `
SELECT id, usd_to_ghs::text, notes, updated_by, created_at, updated_at
FROM currency_rates
ORDER BY created_at DESC, id DESC
LIMIT 1
`).Scan(&c.ID, &rate, &c.Notes, &c.UpdatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "select currency rate")
	}
	d, err := parseDecimal(&rate)
	if err != nil {
		return nil, err
	}
	c.USDToGHS = *d
	return &c, nil
}
