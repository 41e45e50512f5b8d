package settings

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/CargoDesk/internal/cache"
	"github.com/BearBump/CargoDesk/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	shippingRateKey = "settings:shipping_rate:current"
	baseAddressKey  = "settings:base_address:current"
	currencyRateKey = "settings:currency_rate:current"
)

// Defaults are served when no record exists yet.
type Defaults struct {
	NormalGoodsRate  decimal.Decimal
	SpecialGoodsRate decimal.Decimal
	BaseAddress      string
	USDToGHS         decimal.Decimal
}

type CurrencyStore interface {
	InsertCurrencyRate(ctx context.Context, c *models.CurrencyRate) error
	LatestCurrencyRate(ctx context.Context) (*models.CurrencyRate, error)
}

type Service struct {
	rates     *Singleton[models.ShippingRate]
	addresses *Singleton[models.DefaultBaseAddress]
	currency  CurrencyStore
	cache     cache.BytesCache
	ttl       time.Duration
	defaults  Defaults
	validate  *validator.Validate
}

func New(
	rates Store[models.ShippingRate],
	addresses Store[models.DefaultBaseAddress],
	currency CurrencyStore,
	c cache.BytesCache,
	ttl time.Duration,
	defaults Defaults,
) *Service {
	return &Service{
		rates: NewSingleton(rates, c, shippingRateKey, ttl, func() models.ShippingRate {
			return models.ShippingRate{NormalGoodsRate: defaults.NormalGoodsRate, SpecialGoodsRate: defaults.SpecialGoodsRate}
		}),
		addresses: NewSingleton(addresses, c, baseAddressKey, ttl, func() models.DefaultBaseAddress {
			return models.DefaultBaseAddress{BaseAddress: defaults.BaseAddress}
		}),
		currency: currency,
		cache:    c,
		ttl:      ttl,
		defaults: defaults,
		validate: validator.New(),
	}
}

func (s *Service) SaveShippingRate(ctx context.Context, in models.ShippingRateInput) (*models.ShippingRate, error) {
	if !in.NormalGoodsRate.IsPositive() || !in.SpecialGoodsRate.IsPositive() {
		return nil, errors.Wrap(models.ErrValidation, "rates must be positive")
	}
	for _, lt1 := range []*decimal.Decimal{in.NormalGoodsRateLT1, in.SpecialGoodsRateLT1} {
		if lt1 != nil && !lt1.IsPositive() {
			return nil, errors.Wrap(models.ErrValidation, "lt1 rates must be positive")
		}
	}

	rate := &models.ShippingRate{ID: in.ID}
	if in.ID != 0 {
		cur, err := s.rates.Get(ctx, in.ID)
		if err != nil {
			return nil, err
		}
		rate = cur
	}
	rate.NormalGoodsRate = in.NormalGoodsRate
	rate.SpecialGoodsRate = in.SpecialGoodsRate
	rate.NormalGoodsRateLT1 = in.NormalGoodsRateLT1
	rate.SpecialGoodsRateLT1 = in.SpecialGoodsRateLT1
	rate.IsActive = in.IsActive == nil || *in.IsActive

	if err := s.rates.Activate(ctx, rate); err != nil {
		return nil, err
	}
	return rate, nil
}

func (s *Service) CurrentShippingRate(ctx context.Context) (*models.ShippingRate, error) {
	rate, _, err := s.rates.Current(ctx)
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

// ShippingFee prices cbm of goodsType with the current rate.
func (s *Service) ShippingFee(ctx context.Context, goodsType string, cbm decimal.Decimal) (decimal.Decimal, bool, error) {
	rate, err := s.CurrentShippingRate(ctx)
	if err != nil {
		return decimal.Zero, false, err
	}
	fee, ok := rate.FeeFor(goodsType, cbm)
	return fee, ok, nil
}

func (s *Service) SaveBaseAddress(ctx context.Context, in models.BaseAddressInput) (*models.DefaultBaseAddress, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, errors.Wrap(models.ErrValidation, err.Error())
	}

	addr := &models.DefaultBaseAddress{}
	if in.ID != 0 {
		cur, err := s.addresses.Get(ctx, in.ID)
		if err != nil {
			return nil, err
		}
		addr = cur
	}
	addr.BaseAddress = in.BaseAddress
	addr.UpdatedBy = in.UpdatedBy
	addr.IsActive = in.IsActive == nil || *in.IsActive

	if err := s.addresses.Activate(ctx, addr); err != nil {
		return nil, err
	}
	return addr, nil
}

func (s *Service) CurrentBaseAddress(ctx context.Context) (*models.DefaultBaseAddress, error) {
	addr, _, err := s.addresses.Current(ctx)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

// SaveCurrencyRate appends a new rate; the latest one is current.
func (s *Service) SaveCurrencyRate(ctx context.Context, in models.CurrencyRateInput) (*models.CurrencyRate, error) {
	if !in.USDToGHS.IsPositive() {
		return nil, errors.Wrap(models.ErrValidation, "usd_to_ghs must be positive")
	}
	c := &models.CurrencyRate{USDToGHS: in.USDToGHS, Notes: in.Notes, UpdatedBy: in.UpdatedBy}
	if err := s.currency.InsertCurrencyRate(ctx, c); err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, currencyRateKey)
	}
	return c, nil
}

func (s *Service) CurrentCurrencyRate(ctx context.Context) (*models.CurrencyRate, error) {
	if s.cache != nil && s.ttl > 0 {
		if b, ok, err := s.cache.Get(ctx, currencyRateKey); err == nil && ok {
			var c models.CurrencyRate
			if json.Unmarshal(b, &c) == nil {
				return &c, nil
			}
		}
	}

	c, err := s.currency.LatestCurrencyRate(ctx)
	if errors.Is(err, models.ErrNotFound) {
		return &models.CurrencyRate{USDToGHS: s.defaults.USDToGHS, Notes: "default"}, nil
	}
	if err != nil {
		return nil, err
	}
	if s.cache != nil && s.ttl > 0 {
		if b, err := json.Marshal(c); err == nil {
			_ = s.cache.Set(ctx, currencyRateKey, b, s.ttl)
		}
	}
	return c, nil
}
