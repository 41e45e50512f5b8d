package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/CargoDesk/internal/broker/messages"
	"github.com/BearBump/CargoDesk/internal/cache"
	"github.com/BearBump/CargoDesk/internal/models"
	"github.com/pkg/errors"
)

type UnassignedStore interface {
	ListUnassignedTrackings(ctx context.Context) ([]*models.Tracking, error)
	GetShippingMarkByMarkID(ctx context.Context, markID string) (*models.ShippingMark, error)
	AssignTrackingOwner(ctx context.Context, id, ownerID uint64) error
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, ev messages.DomainEvent) error
}

// Per-row outcomes of the unassigned sweep.
const (
	OutcomeMatched = "matched"
	OutcomeNoMark  = "no_mark"
	OutcomeError   = "error"
)

type RowOutcome struct {
	TrackingID     uint64  `json:"tracking_id"`
	TrackingNumber string  `json:"tracking_number"`
	Mark           string  `json:"mark"`
	OwnerID        *uint64 `json:"owner_id,omitempty"`
	Outcome        string  `json:"outcome"`
	Error          string  `json:"error,omitempty"`
}

// UnassignedSummary counts a missing mark and a store error alike as failed.
type UnassignedSummary struct {
	Scanned int          `json:"scanned"`
	Matched int          `json:"matched"`
	Failed  int          `json:"failed"`
	Rows    []RowOutcome `json:"rows,omitempty"`
}

type UnassignedSweeper struct {
	store  UnassignedStore
	events EventPublisher
	groups cache.BytesCache
}

// NewUnassignedSweeper builds the sweeper; events and groups may be nil.
// groups is the cache of tracking group reads, cleared for every matched row.
func NewUnassignedSweeper(store UnassignedStore, events EventPublisher, groups cache.BytesCache) *UnassignedSweeper {
	return &UnassignedSweeper{store: store, events: events, groups: groups}
}

// RunUnassignedSweep gives every ownerless row that carries a known mark the
// owner of that mark. Fully owned groups are not rescanned.
func (s *UnassignedSweeper) RunUnassignedSweep(ctx context.Context, verbose bool) (*UnassignedSummary, error) {
	start := time.Now()
	defer func() { sweepDuration.WithLabelValues("unassigned").Observe(time.Since(start).Seconds()) }()

	rows, err := s.store.ListUnassignedTrackings(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list unassigned trackings")
	}

	sum := &UnassignedSummary{Scanned: len(rows)}
	logRow := slog.Debug
	if verbose {
		logRow = slog.Info
	}

	for _, t := range rows {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		out := s.assign(ctx, t)
		sum.Rows = append(sum.Rows, out)
		unassignedRows.WithLabelValues(out.Outcome).Inc()

		switch out.Outcome {
		case OutcomeMatched:
			sum.Matched++
			logRow("matched tracking to mark owner", "tracking_number", t.TrackingNumber, "mark", t.ShippingMark, "owner_id", *out.OwnerID)
		case OutcomeNoMark:
			sum.Failed++
			logRow("no user for mark", "tracking_number", t.TrackingNumber, "mark", t.ShippingMark)
		default:
			sum.Failed++
			slog.Error("unassigned sweep row failed", "tracking_number", t.TrackingNumber, "err", out.Error)
		}
	}

	if sum.Scanned > 0 || verbose {
		slog.Info("unassigned sweep finished", "scanned", sum.Scanned, "matched", sum.Matched, "failed", sum.Failed)
	}
	return sum, nil
}

func (s *UnassignedSweeper) assign(ctx context.Context, t *models.Tracking) RowOutcome {
	out := RowOutcome{TrackingID: t.ID, TrackingNumber: t.TrackingNumber, Mark: t.ShippingMark}

	sm, err := s.store.GetShippingMarkByMarkID(ctx, t.ShippingMark)
	if errors.Is(err, models.ErrNotFound) {
		out.Outcome = OutcomeNoMark
		return out
	}
	if err == nil {
		err = s.store.AssignTrackingOwner(ctx, t.ID, sm.OwnerID)
	}
	if err != nil {
		out.Outcome, out.Error = OutcomeError, err.Error()
		return out
	}

	owner := sm.OwnerID
	out.OwnerID, out.Outcome = &owner, OutcomeMatched
	invalidateGroup(ctx, s.groups, t.TrackingNumber)
	if s.events != nil {
		if err := s.events.PublishEvent(ctx, messages.TrackingWritten(t.ID, false, messages.ActorSystem)); err != nil {
			slog.Warn("publish tracking event failed", "tracking_id", t.ID, "err", err)
		}
	}
	return out
}

func invalidateGroup(ctx context.Context, groups cache.BytesCache, number string) {
	if groups == nil {
		return
	}
	if err := groups.Delete(ctx, cache.TrackingGroupKey(number)); err != nil {
		slog.Warn("tracking cache invalidation failed", "tracking_number", number, "err", err)
	}
}
