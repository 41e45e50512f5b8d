package memstore

import (
	"context"
	"time"

	"github.com/BearBump/CargoDesk/internal/models"
	"github.com/pkg/errors"
)

type ShippingRateRepo struct{ s *Store }

func (s *Store) ShippingRates() *ShippingRateRepo { return &ShippingRateRepo{s: s} }

func (r *ShippingRateRepo) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.s.InTx(ctx, fn)
}

func (r *ShippingRateRepo) DeactivateOthers(_ context.Context, exceptID uint64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, rate := range r.s.rates {
		if id != exceptID && rate.IsActive {
			rate.IsActive = false
			n++
		}
	}
	return n, nil
}

// Save enforces the single-active constraint the way the partial unique
// index does.
func (r *ShippingRateRepo) Save(_ context.Context, rate *models.ShippingRate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rate.IsActive {
		for id, o := range r.s.rates {
			if id != rate.ID && o.IsActive {
				return errors.Wrap(models.ErrConflict, "uq_shipping_rates_active")
			}
		}
	}
	if rate.ID == 0 {
		rate.ID, rate.CreatedAt = r.s.nextID()
	} else if _, ok := r.s.rates[rate.ID]; !ok {
		return errors.Wrap(models.ErrNotFound, "update shipping rate")
	}
	rate.UpdatedAt = r.s.now()
	c := *rate
	r.s.rates[rate.ID] = &c
	return nil
}

func (r *ShippingRateRepo) Get(_ context.Context, id uint64) (*models.ShippingRate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rate, ok := r.s.rates[id]
	if !ok {
		return nil, errors.Wrap(models.ErrNotFound, "select shipping rate")
	}
	c := *rate
	return &c, nil
}

func (r *ShippingRateRepo) Current(_ context.Context) (*models.ShippingRate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var best *models.ShippingRate
	for _, rate := range r.s.rates {
		if rate.IsActive && (best == nil || newer(rate.CreatedAt, rate.ID, best.CreatedAt, best.ID)) {
			best = rate
		}
	}
	if best == nil {
		return nil, errors.Wrap(models.ErrNotFound, "select shipping rate")
	}
	c := *best
	return &c, nil
}

type BaseAddressRepo struct{ s *Store }

func (s *Store) BaseAddresses() *BaseAddressRepo { return &BaseAddressRepo{s: s} }

func (r *BaseAddressRepo) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.s.InTx(ctx, fn)
}

func (r *BaseAddressRepo) DeactivateOthers(_ context.Context, exceptID uint64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, a := range r.s.addresses {
		if id != exceptID && a.IsActive {
			a.IsActive = false
			n++
		}
	}
	return n, nil
}

func (r *BaseAddressRepo) Save(_ context.Context, a *models.DefaultBaseAddress) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a.IsActive {
		for id, o := range r.s.addresses {
			if id != a.ID && o.IsActive {
				return errors.Wrap(models.ErrConflict, "uq_default_base_addresses_active")
			}
		}
	}
	if a.ID == 0 {
		a.ID, a.CreatedAt = r.s.nextID()
	} else if _, ok := r.s.addresses[a.ID]; !ok {
		return errors.Wrap(models.ErrNotFound, "update base address")
	}
	a.UpdatedAt = r.s.now()
	c := *a
	r.s.addresses[a.ID] = &c
	return nil
}

func (r *BaseAddressRepo) Get(_ context.Context, id uint64) (*models.DefaultBaseAddress, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.addresses[id]
	if !ok {
		return nil, errors.Wrap(models.ErrNotFound, "select base address")
	}
	c := *a
	return &c, nil
}

func (r *BaseAddressRepo) Current(_ context.Context) (*models.DefaultBaseAddress, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var best *models.DefaultBaseAddress
	for _, a := range r.s.addresses {
		if a.IsActive && (best == nil || newer(a.CreatedAt, a.ID, best.CreatedAt, best.ID)) {
			best = a
		}
	}
	if best == nil {
		return nil, errors.Wrap(models.ErrNotFound, "select base address")
	}
	c := *best
	return &c, nil
}

func (s *Store) InsertCurrencyRate(_ context.Context, c *models.CurrencyRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID, c.CreatedAt = s.nextID()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	s.currency = append(s.currency, &cp)
	return nil
}

func (s *Store) LatestCurrencyRate(_ context.Context) (*models.CurrencyRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.currency) == 0 {
		return nil, errors.Wrap(models.ErrNotFound, "select currency rate")
	}
	c := *s.currency[len(s.currency)-1]
	return &c, nil
}

func newer(at time.Time, id uint64, thanAt time.Time, thanID uint64) bool {
	if !at.Equal(thanAt) {
		return at.After(thanAt)
	}
	return id > thanID
}
