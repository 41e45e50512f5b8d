// Package notifier turns committed domain events into user and admin
// messages. It never returns delivery errors to its callers; every outcome is
// persisted as a notification record instead.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/BearBump/CargoDesk/internal/broker/messages"
	"github.com/BearBump/CargoDesk/internal/models"
	"github.com/pkg/errors"
)

type Store interface {
	GetUserByID(ctx context.Context, id uint64) (*models.User, error)
	ListAdmins(ctx context.Context) ([]*models.User, error)
	GetTrackingByID(ctx context.Context, id uint64) (*models.Tracking, error)
	GetShippingMarkByOwner(ctx context.Context, ownerID uint64) (*models.ShippingMark, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
	MarkNotification(ctx context.Context, id uint64, status string, errText *string, sentAt *time.Time) error
}

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, to, subject, body string) error {
	slog.Info("mail", "to", to, "subject", subject, "bytes", len(body))
	return nil
}

type errUnknownKind string

func (e errUnknownKind) Error() string { return "unknown notification kind " + string(e) }

type Notifier struct {
	store   Store
	mailer  Mailer
	limiter RateLimiter
	limit   int64
	site    Site
	now     func() time.Time
}

// New builds a Notifier. limiter may be nil; perMinute <= 0 disables limiting.
func New(store Store, mailer Mailer, limiter RateLimiter, perMinute int64, site Site) *Notifier {
	return &Notifier{
		store:   store,
		mailer:  mailer,
		limiter: limiter,
		limit:   perMinute,
		site:    site,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// HandleMessage is a broker handler. Malformed or stale events are logged and
// acknowledged.
func (n *Notifier) HandleMessage(ctx context.Context, _, value []byte) error {
	ev, err := messages.Decode(value)
	if err != nil {
		slog.Warn("skip malformed event", "err", err)
		return nil
	}
	n.HandleEvent(ctx, ev)
	return nil
}

func (n *Notifier) HandleEvent(ctx context.Context, ev messages.DomainEvent) {
	eventsTotal.WithLabelValues(ev.Kind).Inc()
	switch ev.Kind {
	case messages.KindTrackingWritten:
		t, err := n.store.GetTrackingByID(ctx, ev.TrackingID)
		if err != nil {
			slog.Warn("tracking event: load tracking", "tracking_id", ev.TrackingID, "err", err)
			return
		}
		kind := models.NotificationTrackingUpdate
		if ev.Created {
			kind = models.NotificationTrackingCreated
		}
		n.Notify(ctx, kind, t)
		if ev.Created && ev.ActorRole != models.RoleAdmin {
			n.Notify(ctx, models.NotificationAdminNewShipment, t)
		}

	case messages.KindUserRegistered:
		u, err := n.store.GetUserByID(ctx, ev.UserID)
		if err != nil {
			slog.Warn("user event: load user", "user_id", ev.UserID, "err", err)
			return
		}
		n.Notify(ctx, models.NotificationWelcome, u)
		if !u.IsAdmin() {
			n.Notify(ctx, models.NotificationAdminNewUser, u)
		}

	case messages.KindShippingMarkCreated:
		m, err := n.store.GetShippingMarkByOwner(ctx, ev.UserID)
		if err != nil {
			slog.Warn("mark event: load mark", "user_id", ev.UserID, "err", err)
			return
		}
		n.Notify(ctx, models.NotificationShippingMarkCreated, m)

	default:
		slog.Debug("ignore event", "kind", ev.Kind, "id", ev.ID)
	}
}

// Notify sends kind about subject, which must be the committed entity:
// *models.Tracking, *models.User or *models.ShippingMark.
func (n *Notifier) Notify(ctx context.Context, kind string, subject any) {
	switch kind {
	case models.NotificationTrackingCreated, models.NotificationTrackingUpdate:
		t, ok := subject.(*models.Tracking)
		if !ok {
			n.badSubject(kind, subject)
			return
		}
		if !t.HasOwner() {
			n.skip(kind, "tracking has no owner")
			return
		}
		owner, err := n.store.GetUserByID(ctx, *t.OwnerID)
		if err != nil {
			slog.Warn("notify: load owner", "kind", kind, "owner_id", *t.OwnerID, "err", err)
			return
		}
		if owner.IsAdmin() {
			n.skip(kind, "admin-owned tracking")
			return
		}
		if !owner.NotifyEmail || !owner.NotifyOrderUpdates {
			n.skip(kind, "order updates disabled")
			return
		}
		n.deliver(ctx, owner, kind, templateData{Tracking: t}, &t.ID)

	case models.NotificationAdminNewShipment:
		t, ok := subject.(*models.Tracking)
		if !ok {
			n.badSubject(kind, subject)
			return
		}
		data := templateData{Tracking: t}
		if t.HasOwner() {
			if owner, err := n.store.GetUserByID(ctx, *t.OwnerID); err == nil {
				data.User = owner
			}
		}
		n.toAdmins(ctx, kind, data, &t.ID)

	case models.NotificationWelcome:
		u, ok := subject.(*models.User)
		if !ok {
			n.badSubject(kind, subject)
			return
		}
		if !u.NotifyEmail {
			n.skip(kind, "email disabled")
			return
		}
		n.deliver(ctx, u, kind, templateData{User: u}, nil)

	case models.NotificationAdminNewUser:
		u, ok := subject.(*models.User)
		if !ok {
			n.badSubject(kind, subject)
			return
		}
		n.toAdmins(ctx, kind, templateData{User: u}, nil)

	case models.NotificationShippingMarkCreated:
		m, ok := subject.(*models.ShippingMark)
		if !ok {
			n.badSubject(kind, subject)
			return
		}
		owner, err := n.store.GetUserByID(ctx, m.OwnerID)
		if err != nil {
			slog.Warn("notify: load mark owner", "owner_id", m.OwnerID, "err", err)
			return
		}
		if !owner.NotifyEmail {
			n.skip(kind, "email disabled")
			return
		}
		n.deliver(ctx, owner, kind, templateData{Mark: m}, nil)

	default:
		slog.Error("notify: unknown kind", "kind", kind)
	}
}

func (n *Notifier) toAdmins(ctx context.Context, kind string, data templateData, trackingID *uint64) {
	admins, err := n.store.ListAdmins(ctx)
	if err != nil {
		slog.Warn("notify: list admins", "kind", kind, "err", err)
		return
	}
	for _, a := range admins {
		n.deliver(ctx, a, kind, data, trackingID)
	}
}

// deliver renders, persists and sends one message. Every failure ends as a
// failed notification record.
func (n *Notifier) deliver(ctx context.Context, to *models.User, kind string, data templateData, trackingID *uint64) {
	data.Site = n.site
	data.Recipient = to

	rec := &models.Notification{
		UserID:     to.ID,
		Kind:       kind,
		Status:     models.NotificationStatusPending,
		TrackingID: trackingID,
	}
	subject, body, renderErr := render(kind, data)
	rec.Subject, rec.Message = subject, body
	if renderErr != nil {
		rec.Subject = kind
		rec.Message = ""
	}
	if err := n.store.CreateNotification(ctx, rec); err != nil {
		slog.Error("notify: persist notification", "kind", kind, "user_id", to.ID, "err", err)
		notificationsTotal.WithLabelValues(kind, models.NotificationStatusFailed).Inc()
		return
	}

	sendErr := renderErr
	if sendErr == nil {
		sendErr = n.allow(ctx, to.ID)
	}
	if sendErr == nil {
		sendErr = n.mailer.Send(ctx, to.Email, subject, body)
	}

	if sendErr != nil {
		msg := sendErr.Error()
		n.mark(ctx, rec.ID, models.NotificationStatusFailed, &msg, nil)
		slog.Warn("notification failed", "kind", kind, "user_id", to.ID, "notification_id", rec.ID, "err", sendErr)
		notificationsTotal.WithLabelValues(kind, models.NotificationStatusFailed).Inc()
		return
	}

	sentAt := n.now()
	n.mark(ctx, rec.ID, models.NotificationStatusSent, nil, &sentAt)
	notificationsTotal.WithLabelValues(kind, models.NotificationStatusSent).Inc()
}

func (n *Notifier) allow(ctx context.Context, userID uint64) error {
	if n.limiter == nil || n.limit <= 0 {
		return nil
	}
	key := "notify:user:" + strconv.FormatUint(userID, 10)
	ok, count, err := n.limiter.Allow(ctx, key, n.limit, time.Minute)
	if err != nil {
		// limiter outage should not block mail
		slog.Warn("notify: rate limiter unavailable", "err", err)
		return nil
	}
	if !ok {
		return errors.Errorf("rate limited: %d messages in the last minute", count)
	}
	return nil
}

func (n *Notifier) mark(ctx context.Context, id uint64, status string, errText *string, sentAt *time.Time) {
	if err := n.store.MarkNotification(ctx, id, status, errText, sentAt); err != nil {
		slog.Error("notify: update notification", "notification_id", id, "status", status, "err", err)
	}
}

func (n *Notifier) skip(kind, reason string) {
	slog.Debug("notification skipped", "kind", kind, "reason", reason)
	notificationsTotal.WithLabelValues(kind, "skipped").Inc()
}

func (n *Notifier) badSubject(kind string, subject any) {
	slog.Error("notify: unexpected subject", "kind", kind, "type", fmt.Sprintf("%T", subject))
}
