package settings

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/CargoDesk/internal/cache"
	"github.com/BearBump/CargoDesk/internal/models"
	"github.com/pkg/errors"
)

// Record is a config row of which at most one may be active.
type Record interface {
	RecordID() uint64
	Active() bool
}

type Store[T Record] interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	DeactivateOthers(ctx context.Context, exceptID uint64) (int64, error)
	Save(ctx context.Context, rec *T) error
	Get(ctx context.Context, id uint64) (*T, error)
	Current(ctx context.Context) (*T, error)
}

// Singleton keeps the "only one active record" rule for one config table and
// serves the current record through a read cache.
type Singleton[T Record] struct {
	store    Store[T]
	cache    cache.BytesCache
	key      string
	ttl      time.Duration
	fallback func() T
}

func NewSingleton[T Record](store Store[T], c cache.BytesCache, key string, ttl time.Duration, fallback func() T) *Singleton[T] {
	return &Singleton[T]{store: store, cache: c, key: key, ttl: ttl, fallback: fallback}
}

// Activate saves rec. If rec is active every other record is deactivated in
// the same transaction, excluding rec itself so re-saving an active record
// keeps it active.
func (s *Singleton[T]) Activate(ctx context.Context, rec *T) error {
	err := s.store.InTx(ctx, func(ctx context.Context) error {
		if (*rec).Active() {
			n, err := s.store.DeactivateOthers(ctx, (*rec).RecordID())
			if err != nil {
				return err
			}
			if n > 0 {
				slog.Debug("deactivated previous records", "key", s.key, "count", n)
			}
		}
		return s.store.Save(ctx, rec)
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, s.key); err != nil {
			slog.Warn("settings cache invalidation failed", "key", s.key, "err", err)
		}
	}
	return nil
}

func (s *Singleton[T]) Get(ctx context.Context, id uint64) (*T, error) {
	return s.store.Get(ctx, id)
}

// Current returns the newest active record, or the fallback with
// isFallback=true when there is none.
func (s *Singleton[T]) Current(ctx context.Context) (rec T, isFallback bool, err error) {
	if s.cache != nil && s.ttl > 0 {
		if b, ok, err := s.cache.Get(ctx, s.key); err == nil && ok {
			if json.Unmarshal(b, &rec) == nil {
				return rec, false, nil
			}
		}
	}

	cur, err := s.store.Current(ctx)
	if errors.Is(err, models.ErrNotFound) {
		return s.fallback(), true, nil
	}
	if err != nil {
		return rec, false, err
	}

	if s.cache != nil && s.ttl > 0 {
		if b, err := json.Marshal(cur); err == nil {
			_ = s.cache.Set(ctx, s.key, b, s.ttl)
		}
	}
	return *cur, false, nil
}
