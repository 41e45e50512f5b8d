package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShippingRate holds per-CBM prices. At most one record is active.
type ShippingRate struct {
	ID                  uint64           `json:"id"`
	NormalGoodsRate     decimal.Decimal  `json:"normal_goods_rate"`
	SpecialGoodsRate    decimal.Decimal  `json:"special_goods_rate"`
	NormalGoodsRateLT1  *decimal.Decimal `json:"normal_goods_rate_lt1,omitempty"`
	SpecialGoodsRateLT1 *decimal.Decimal `json:"special_goods_rate_lt1,omitempty"`
	IsActive            bool             `json:"is_active"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

func (r ShippingRate) RecordID() uint64 { return r.ID }
func (r ShippingRate) Active() bool     { return r.IsActive }

// FeeFor prices a shipment. Below 1 CBM the "_lt1" rate, when set, is a flat
// fee; otherwise the per-CBM rate is multiplied by the volume.
func (r ShippingRate) FeeFor(goodsType string, cbm decimal.Decimal) (decimal.Decimal, bool) {
	var perCBM decimal.Decimal
	var lt1 *decimal.Decimal
	switch goodsType {
	case GoodsTypeNormal:
		perCBM, lt1 = r.NormalGoodsRate, r.NormalGoodsRateLT1
	case GoodsTypeSpecial:
		perCBM, lt1 = r.SpecialGoodsRate, r.SpecialGoodsRateLT1
	default:
		return decimal.Zero, false
	}
	if !cbm.IsPositive() {
		return decimal.Zero, false
	}
	if cbm.LessThan(decimal.NewFromInt(1)) && lt1 != nil {
		return lt1.Round(2), true
	}
	return perCBM.Mul(cbm).Round(2), true
}

type ShippingRateInput struct {
	// ID re-activates or edits an existing record when set.
	ID                  uint64           `json:"id,omitempty"`
	NormalGoodsRate     decimal.Decimal  `json:"normal_goods_rate"`
	SpecialGoodsRate    decimal.Decimal  `json:"special_goods_rate"`
	NormalGoodsRateLT1  *decimal.Decimal `json:"normal_goods_rate_lt1,omitempty"`
	SpecialGoodsRateLT1 *decimal.Decimal `json:"special_goods_rate_lt1,omitempty"`
	IsActive            *bool            `json:"is_active,omitempty"`
}

// DefaultBaseAddress is the template used for generated shipping addresses.
// At most one record is active.
type DefaultBaseAddress struct {
	ID          uint64    `json:"id"`
	BaseAddress string    `json:"base_address"`
	IsActive    bool      `json:"is_active"`
	UpdatedBy   *uint64   `json:"updated_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (a DefaultBaseAddress) RecordID() uint64 { return a.ID }
func (a DefaultBaseAddress) Active() bool     { return a.IsActive }

type BaseAddressInput struct {
	ID          uint64  `json:"id,omitempty"`
	BaseAddress string  `json:"base_address" validate:"required"`
	IsActive    *bool   `json:"is_active,omitempty"`
	UpdatedBy   *uint64 `json:"updated_by,omitempty"`
}

// CurrencyRate is the USD->GHS rate used for invoices. The latest record wins.
type CurrencyRate struct {
	ID        uint64          `json:"id"`
	USDToGHS  decimal.Decimal `json:"usd_to_ghs"`
	Notes     string          `json:"notes"`
	UpdatedBy *uint64         `json:"updated_by,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type CurrencyRateInput struct {
	USDToGHS  decimal.Decimal `json:"usd_to_ghs"`
	Notes     string          `json:"notes"`
	UpdatedBy *uint64         `json:"updated_by,omitempty"`
}
