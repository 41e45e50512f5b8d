package users

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/BearBump/CargoDesk/internal/broker/messages"
	"github.com/BearBump/CargoDesk/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

const markAttempts = 5

type Repository interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id uint64) (*models.User, error)
	SaveUserLogin(ctx context.Context, u *models.User) error
	CreateShippingMark(ctx context.Context, m *models.ShippingMark) error
	GetShippingMarkByOwner(ctx context.Context, ownerID uint64) (*models.ShippingMark, error)
	RenameShippingMark(ctx context.Context, ownerID uint64, name string) (*models.ShippingMark, error)
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, ev messages.DomainEvent) error
}

// MarkFormat describes generated mark ids: "<Prefix>-<Code><3 digits>".
type MarkFormat struct {
	Prefix string
	Code   string
}

func (f MarkFormat) generate(r *rand.Rand) string {
	return fmt.Sprintf("%s-%s%03d", f.Prefix, f.Code, r.IntN(1000))
}

type Service struct {
	repo     Repository
	events   EventPublisher
	marks    MarkFormat
	rnd      *rand.Rand
	now      func() time.Time
	validate *validator.Validate
}

func New(repo Repository, events EventPublisher, marks MarkFormat) *Service {
	return &Service{
		repo:     repo,
		events:   events,
		marks:    marks,
		rnd:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		now:      func() time.Time { return time.Now().UTC() },
		validate: validator.New(),
	}
}

func (s *Service) Register(ctx context.Context, in models.RegisterInput) (*models.User, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, errors.Wrap(models.ErrValidation, err.Error())
	}
	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	u := &models.User{
		Username:           strings.TrimSpace(in.Username),
		FullName:           in.FullName,
		Email:              strings.ToLower(strings.TrimSpace(in.Email)),
		Contact:            in.Contact,
		Location:           in.Location,
		Role:               role,
		Status:             models.UserStatusActive,
		NotifyEmail:        true,
		NotifyOrderUpdates: true,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.publish(ctx, messages.UserRegistered(u.ID))
	return u, nil
}

// RecordLogin applies a login outcome. A suspended account stays suspended
// and rejects successful logins.
func (s *Service) RecordLogin(ctx context.Context, userID uint64, success bool) (*models.User, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Status == models.UserStatusSuspended && success {
		return u, errors.Wrapf(models.ErrSuspended, "user %d", userID)
	}

	u.RecordLogin(success, s.now())
	if err := s.repo.SaveUserLogin(ctx, u); err != nil {
		return nil, err
	}
	if u.Status == models.UserStatusSuspended {
		slog.Warn("user suspended after failed logins", "user_id", u.ID, "attempts", u.LoginAttempts)
	}
	return u, nil
}

// GenerateShippingMark creates the user's permanent mark. A user gets at most
// one; random ids are retried on collision.
func (s *Service) GenerateShippingMark(ctx context.Context, userID uint64, in models.ShippingMarkInput) (*models.ShippingMark, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, errors.Wrap(models.ErrValidation, err.Error())
	}
	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetShippingMarkByOwner(ctx, userID); err == nil {
		return nil, errors.Wrapf(models.ErrConflict, "user %d already has a shipping mark", userID)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	var lastErr error
	for i := 0; i < markAttempts; i++ {
		m := &models.ShippingMark{OwnerID: userID, MarkID: s.marks.generate(s.rnd), Name: in.Name}
		err := s.repo.CreateShippingMark(ctx, m)
		if err == nil {
			s.publish(ctx, messages.ShippingMarkCreated(userID, m.MarkID))
			return m, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		// the owner may have raced us to it
		if _, gerr := s.repo.GetShippingMarkByOwner(ctx, userID); gerr == nil {
			return nil, errors.Wrapf(models.ErrConflict, "user %d already has a shipping mark", userID)
		}
		lastErr = err
	}
	return nil, errors.Wrap(lastErr, "no free shipping mark id")
}

func (s *Service) RenameShippingMark(ctx context.Context, userID uint64, in models.ShippingMarkInput) (*models.ShippingMark, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, errors.Wrap(models.ErrValidation, err.Error())
	}
	return s.repo.RenameShippingMark(ctx, userID, in.Name)
}

func (s *Service) publish(ctx context.Context, ev messages.DomainEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, ev); err != nil {
		slog.Error("publish user event failed", "kind", ev.Kind, "user_id", ev.UserID, "err", err)
	}
}
