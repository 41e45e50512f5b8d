package trackings

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/CargoDesk/internal/broker/messages"
	"github.com/BearBump/CargoDesk/internal/cache"
	"github.com/BearBump/CargoDesk/internal/models"
	"github.com/BearBump/CargoDesk/internal/services/reconcile"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Repository interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	LockTrackingNumber(ctx context.Context, number string) error
	CreateTracking(ctx context.Context, t *models.Tracking) error
	UpdateTracking(ctx context.Context, t *models.Tracking) error
	GetTrackingByID(ctx context.Context, id uint64) (*models.Tracking, error)
	ListTrackingsByNumber(ctx context.Context, number string) ([]*models.Tracking, error)
	GetUserByID(ctx context.Context, id uint64) (*models.User, error)
	GetShippingMarkByOwner(ctx context.Context, ownerID uint64) (*models.ShippingMark, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, number string) (*reconcile.Result, error)
}

type FeeCalculator interface {
	ShippingFee(ctx context.Context, goodsType string, cbm decimal.Decimal) (decimal.Decimal, bool, error)
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, ev messages.DomainEvent) error
}

type Service struct {
	repo       Repository
	reconciler Reconciler
	fees       FeeCalculator
	events     EventPublisher
	cache      cache.BytesCache
	groupTTL   time.Duration
	validate   *validator.Validate
}

func New(repo Repository, reconciler Reconciler, fees FeeCalculator, events EventPublisher, c cache.BytesCache, groupTTL time.Duration) *Service {
	return &Service{
		repo:       repo,
		reconciler: reconciler,
		fees:       fees,
		events:     events,
		cache:      c,
		groupTTL:   groupTTL,
		validate:   validator.New(),
	}
}

// CreateForUser records a self-service shipment. The caller becomes the owner
// and an empty mark defaults to the caller's own shipping mark.
func (s *Service) CreateForUser(ctx context.Context, userID uint64, in models.TrackingInput) (*models.Tracking, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, errors.Wrap(models.ErrValidation, err.Error())
	}
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	t := newTracking(in)
	t.OwnerID = &user.ID
	if t.ShippingMark == "" {
		sm, err := s.repo.GetShippingMarkByOwner(ctx, user.ID)
		switch {
		case err == nil:
			t.ShippingMark = sm.MarkID
		case !errors.Is(err, models.ErrNotFound):
			return nil, err
		}
	}
	return s.create(ctx, t, user.Role)
}

// CreateByAdmin records a back-office shipment; owner and mark are optional.
func (s *Service) CreateByAdmin(ctx context.Context, in models.TrackingInput) (*models.Tracking, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, errors.Wrap(models.ErrValidation, err.Error())
	}
	t := newTracking(in)
	if in.OwnerID != nil && *in.OwnerID != 0 {
		if _, err := s.repo.GetUserByID(ctx, *in.OwnerID); err != nil {
			return nil, err
		}
		t.OwnerID = in.OwnerID
	}
	return s.create(ctx, t, models.RoleAdmin)
}

// UpdateByAdmin applies patch to one row and reconciles its group.
func (s *Service) UpdateByAdmin(ctx context.Context, id uint64, patch models.TrackingPatch) (*models.Tracking, error) {
	if err := s.validate.Struct(patch); err != nil {
		return nil, errors.Wrap(models.ErrValidation, err.Error())
	}
	if patch.OwnerID != nil && *patch.OwnerID != 0 {
		if _, err := s.repo.GetUserByID(ctx, *patch.OwnerID); err != nil {
			return nil, err
		}
	}

	var out *models.Tracking
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		t, err := s.repo.GetTrackingByID(ctx, id)
		if err != nil {
			return err
		}
		patch.Apply(t)
		if patch.OwnerID != nil && *patch.OwnerID == 0 {
			t.OwnerID = nil
		}
		if patch.CBM != nil || patch.GoodsType != nil {
			// stale fee is recomputed unless the patch sets one
			if patch.ShippingFee == nil {
				t.ShippingFee = nil
			}
		}
		if err := s.fillFee(ctx, t); err != nil {
			return err
		}
		if err := s.repo.UpdateTracking(ctx, t); err != nil {
			return err
		}
		out, err = s.reconcileAndReload(ctx, t)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, out, false, models.RoleAdmin)
	return out, nil
}

// OnTrackingWritten reconciles the group of an already stored row.
func (s *Service) OnTrackingWritten(ctx context.Context, id uint64) (*reconcile.Result, error) {
	t, err := s.repo.GetTrackingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := s.reconciler.Reconcile(ctx, t.TrackingNumber)
	if err != nil {
		return nil, err
	}
	s.invalidateGroup(ctx, t.TrackingNumber)
	return res, nil
}

// GetGroup returns every row of a tracking number, newest first.
func (s *Service) GetGroup(ctx context.Context, number string) ([]*models.Tracking, error) {
	if number == "" {
		return nil, errors.Wrap(models.ErrValidation, "tracking number is required")
	}
	key := cache.TrackingGroupKey(number)
	if s.cache != nil && s.groupTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var rows []*models.Tracking
			if json.Unmarshal(b, &rows) == nil {
				return rows, nil
			}
		}
	}

	rows, err := s.repo.ListTrackingsByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(models.ErrNotFound, "tracking %q", number)
	}
	if s.cache != nil && s.groupTTL > 0 {
		if b, err := json.Marshal(rows); err == nil {
			_ = s.cache.Set(ctx, key, b, s.groupTTL)
		}
	}
	return rows, nil
}

func (s *Service) create(ctx context.Context, t *models.Tracking, actorRole string) (*models.Tracking, error) {
	var out *models.Tracking
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		if err := s.fillFee(ctx, t); err != nil {
			return err
		}
		// held until commit, so a concurrent first write to the same number
		// waits and then reconciles both rows
		if err := s.repo.LockTrackingNumber(ctx, t.TrackingNumber); err != nil {
			return err
		}
		if err := s.repo.CreateTracking(ctx, t); err != nil {
			return err
		}
		var err error
		out, err = s.reconcileAndReload(ctx, t)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, out, true, actorRole)
	return out, nil
}

func (s *Service) reconcileAndReload(ctx context.Context, t *models.Tracking) (*models.Tracking, error) {
	if _, err := s.reconciler.Reconcile(ctx, t.TrackingNumber); err != nil {
		return nil, err
	}
	return s.repo.GetTrackingByID(ctx, t.ID)
}

// afterWrite runs once the transaction has committed. Failures are logged:
// the write itself already succeeded.
func (s *Service) afterWrite(ctx context.Context, t *models.Tracking, created bool, actorRole string) {
	s.invalidateGroup(ctx, t.TrackingNumber)
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, messages.TrackingWritten(t.ID, created, actorRole)); err != nil {
		slog.Error("publish tracking event failed", "tracking_id", t.ID, "err", err)
	}
}

func (s *Service) invalidateGroup(ctx context.Context, number string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.TrackingGroupKey(number)); err != nil {
		slog.Warn("tracking cache invalidation failed", "tracking_number", number, "err", err)
	}
}

func (s *Service) fillFee(ctx context.Context, t *models.Tracking) error {
	if s.fees == nil || t.ShippingFee != nil || t.CBM == nil || t.GoodsType == nil {
		return nil
	}
	fee, ok, err := s.fees.ShippingFee(ctx, *t.GoodsType, *t.CBM)
	if err != nil {
		return err
	}
	if ok {
		t.ShippingFee = &fee
	}
	return nil
}

func newTracking(in models.TrackingInput) *models.Tracking {
	status := in.Status
	if status == "" {
		status = models.TrackingStatusPending
	}
	return &models.Tracking{
		TrackingNumber: in.TrackingNumber,
		ShippingMark:   in.ShippingMark,
		Status:         status,
		CBM:            in.CBM,
		ShippingFee:    in.ShippingFee,
		GoodsType:      in.GoodsType,
		ETA:            in.ETA,
	}
}
