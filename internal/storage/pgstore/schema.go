package pgstore

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS users (
  id BIGSERIAL PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  full_name TEXT NOT NULL,
  email TEXT NOT NULL UNIQUE,
  contact TEXT NOT NULL UNIQUE,
  location TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL DEFAULT 'user',
  status TEXT NOT NULL DEFAULT 'active',
  login_attempts INT NOT NULL DEFAULT 0,
  last_login TIMESTAMPTZ NULL,
  notify_email BOOLEAN NOT NULL DEFAULT TRUE,
  notify_order_updates BOOLEAN NOT NULL DEFAULT TRUE,
  notify_promotions BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`
CREATE TABLE IF NOT EXISTS shipping_marks (
  id BIGSERIAL PRIMARY KEY,
  owner_id BIGINT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
  mark_id TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		// tracking_number is intentionally not unique: rows are appended and
		// merged by group.
		`
CREATE TABLE IF NOT EXISTS trackings (
  id BIGSERIAL PRIMARY KEY,
  tracking_number TEXT NOT NULL,
  owner_id BIGINT NULL REFERENCES users(id) ON DELETE SET NULL,
  shipping_mark TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'pending',
  cbm NUMERIC(10,3) NULL,
  shipping_fee NUMERIC(12,2) NULL,
  goods_type TEXT NULL,
  eta DATE NULL,
  date_added TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_trackings_number ON trackings(tracking_number)`,
		`CREATE INDEX IF NOT EXISTS idx_trackings_unassigned ON trackings(id) WHERE owner_id IS NULL AND shipping_mark <> ''`,
		`
CREATE TABLE IF NOT EXISTS shipping_rates (
  id BIGSERIAL PRIMARY KEY,
  normal_goods_rate NUMERIC(10,2) NOT NULL,
  special_goods_rate NUMERIC(10,2) NOT NULL,
  normal_goods_rate_lt1 NUMERIC(10,2) NULL,
  special_goods_rate_lt1 NUMERIC(10,2) NULL,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_shipping_rates_active ON shipping_rates((is_active)) WHERE is_active`,
		`
CREATE TABLE IF NOT EXISTS default_base_addresses (
  id BIGSERIAL PRIMARY KEY,
  base_address TEXT NOT NULL,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  updated_by BIGINT NULL REFERENCES users(id) ON DELETE SET NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_default_base_addresses_active ON default_base_addresses((is_active)) WHERE is_active`,
		`
CREATE TABLE IF NOT EXISTS currency_rates (
  id BIGSERIAL PRIMARY KEY,
  usd_to_ghs NUMERIC(10,4) NOT NULL,
  notes TEXT NOT NULL DEFAULT '',
  updated_by BIGINT NULL REFERENCES users(id) ON DELETE SET NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`
CREATE TABLE IF NOT EXISTS notifications (
  id BIGSERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  kind TEXT NOT NULL,
  subject TEXT NOT NULL,
  message TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  error TEXT NULL,
  tracking_id BIGINT NULL REFERENCES trackings(id) ON DELETE SET NULL,
  sent_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at DESC)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
