// Package reconcile converges every tracking row sharing a tracking number on
// one owner and one shipping mark.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/CargoDesk/internal/models"
	"github.com/pkg/errors"
)

// How the canonical owner of a group was found.
const (
	SourceNonAdminOwner = "non_admin_owner"
	SourceMarkInference = "mark_inference"
	SourceUnresolved    = "unresolved"
	SourceEmpty         = "empty"
)

type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	LockTrackingGroup(ctx context.Context, number string) ([]*models.Tracking, error)
	ApplyTrackingGroup(ctx context.Context, number string, ownerID *uint64, mark *string) (int64, error)
	GetUsersByIDs(ctx context.Context, ids []uint64) ([]*models.User, error)
	GetShippingMarkByMarkID(ctx context.Context, markID string) (*models.ShippingMark, error)
	GetShippingMarkByOwner(ctx context.Context, ownerID uint64) (*models.ShippingMark, error)
}

// RowChange describes what reconciliation does (or would do) to one row.
type RowChange struct {
	TrackingID uint64  `json:"tracking_id"`
	OwnerFrom  *uint64 `json:"owner_from,omitempty"`
	OwnerTo    *uint64 `json:"owner_to,omitempty"`
	MarkFrom   string  `json:"mark_from"`
	MarkTo     string  `json:"mark_to"`
}

type Result struct {
	TrackingNumber string      `json:"tracking_number"`
	Rows           int         `json:"rows"`
	RowsTouched    int64       `json:"rows_touched"`
	OwnerID        *uint64     `json:"owner_id,omitempty"`
	Mark           *string     `json:"mark,omitempty"`
	Source         string      `json:"source"`
	Changes        []RowChange `json:"changes,omitempty"`
	DryRun         bool        `json:"dry_run"`
}

func (r *Result) Changed() bool { return len(r.Changes) > 0 }

func (r *Result) Resolved() bool { return r.OwnerID != nil }

type Engine struct {
	store            Store
	harmonizeUnowned bool
	log              *slog.Logger
}

type Option func(*Engine)

// WithUnownedMarkHarmonization makes groups without a resolvable owner still
// converge on their most frequent mark. Off by default: such groups are left
// untouched.
func WithUnownedMarkHarmonization(on bool) Option {
	return func(e *Engine) { e.harmonizeUnowned = on }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func New(store Store, opts ...Option) *Engine {
	e := &Engine{store: store, log: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Reconcile locks the group, resolves the canonical owner and mark and writes
// them to every row. When ctx already carries a transaction the work joins it.
func (e *Engine) Reconcile(ctx context.Context, number string) (*Result, error) {
	return e.run(ctx, number, false)
}

// Plan resolves the group like Reconcile but writes nothing.
func (e *Engine) Plan(ctx context.Context, number string) (*Result, error) {
	return e.run(ctx, number, true)
}

func (e *Engine) run(ctx context.Context, number string, dryRun bool) (*Result, error) {
	start := time.Now()
	mode := "apply"
	if dryRun {
		mode = "plan"
	}

	var res *Result
	err := e.store.InTx(ctx, func(ctx context.Context) error {
		rows, err := e.store.LockTrackingGroup(ctx, number)
		if err != nil {
			return errors.Wrapf(err, "lock group %q", number)
		}

		res, err = e.resolve(ctx, number, rows)
		if err != nil {
			return err
		}
		res.DryRun = dryRun
		if dryRun || (res.OwnerID == nil && res.Mark == nil) {
			return nil
		}

		res.RowsTouched, err = e.store.ApplyTrackingGroup(ctx, number, res.OwnerID, res.Mark)
		return errors.Wrapf(err, "apply group %q", number)
	})
	reconcileLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		reconcileErrors.Inc()
		return nil, err
	}

	reconcileTotal.WithLabelValues(res.Source, mode).Inc()
	if !dryRun {
		reconcileRowsChanged.Add(float64(len(res.Changes)))
	}
	e.log.Debug("reconciled tracking group",
		"tracking_number", number,
		"source", res.Source,
		"rows", res.Rows,
		"changed", len(res.Changes),
		"dry_run", dryRun,
	)
	return res, nil
}

// resolve expects rows newest first.
func (e *Engine) resolve(ctx context.Context, number string, rows []*models.Tracking) (*Result, error) {
	res := &Result{TrackingNumber: number, Rows: len(rows), Source: SourceEmpty}
	if len(rows) == 0 {
		return res, nil
	}

	ownerID, err := e.newestCustomerOwner(ctx, rows)
	if err != nil {
		return nil, err
	}
	if ownerID != nil {
		res.Source = SourceNonAdminOwner
	} else {
		ownerID, err = e.ownerFromMarks(ctx, rows)
		if err != nil {
			return nil, err
		}
		if ownerID != nil {
			res.Source = SourceMarkInference
		}
	}

	if ownerID == nil {
		res.Source = SourceUnresolved
		if !e.harmonizeUnowned {
			return res, nil
		}
	}
	res.OwnerID = ownerID

	var mark string
	if ownerID != nil {
		sm, err := e.store.GetShippingMarkByOwner(ctx, *ownerID)
		switch {
		case err == nil:
			mark = sm.MarkID
		case !errors.Is(err, models.ErrNotFound):
			return nil, errors.Wrap(err, "owner mark")
		}
	}
	if mark == "" {
		mark = mostFrequentMark(rows)
	}
	if mark != "" {
		res.Mark = &mark
	}

	res.Changes = diff(rows, res.OwnerID, res.Mark)
	return res, nil
}

// newestCustomerOwner returns the owner of the most recent row owned by a
// non-admin user.
func (e *Engine) newestCustomerOwner(ctx context.Context, rows []*models.Tracking) (*uint64, error) {
	ids := make([]uint64, 0, len(rows))
	seen := make(map[uint64]struct{}, len(rows))
	for _, r := range rows {
		if !r.HasOwner() {
			continue
		}
		if _, ok := seen[*r.OwnerID]; ok {
			continue
		}
		seen[*r.OwnerID] = struct{}{}
		ids = append(ids, *r.OwnerID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	users, err := e.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "load owners")
	}
	byID := make(map[uint64]*models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	for _, r := range rows {
		if !r.HasOwner() {
			continue
		}
		if u, ok := byID[*r.OwnerID]; ok && !u.IsAdmin() {
			id := u.ID
			return &id, nil
		}
	}
	return nil, nil
}

// ownerFromMarks infers the owner through the first row mark that names an
// existing shipping mark. Unknown marks are skipped.
func (e *Engine) ownerFromMarks(ctx context.Context, rows []*models.Tracking) (*uint64, error) {
	tried := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if r.ShippingMark == "" {
			continue
		}
		if _, ok := tried[r.ShippingMark]; ok {
			continue
		}
		tried[r.ShippingMark] = struct{}{}

		sm, err := e.store.GetShippingMarkByMarkID(ctx, r.ShippingMark)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "infer owner from mark")
		}
		id := sm.OwnerID
		return &id, nil
	}
	return nil, nil
}

// mostFrequentMark returns the most common non-empty mark; ties go to the
// value seen first in row order.
func mostFrequentMark(rows []*models.Tracking) string {
	counts := make(map[string]int, len(rows))
	var order []string
	for _, r := range rows {
		if r.ShippingMark == "" {
			continue
		}
		if counts[r.ShippingMark] == 0 {
			order = append(order, r.ShippingMark)
		}
		counts[r.ShippingMark]++
	}

	best, bestN := "", 0
	for _, m := range order {
		if counts[m] > bestN {
			best, bestN = m, counts[m]
		}
	}
	return best
}

func diff(rows []*models.Tracking, ownerID *uint64, mark *string) []RowChange {
	var out []RowChange
	for _, r := range rows {
		ownerChanged := ownerID != nil && (r.OwnerID == nil || *r.OwnerID != *ownerID)
		markChanged := mark != nil && r.ShippingMark != *mark
		if !ownerChanged && !markChanged {
			continue
		}
		c := RowChange{
			TrackingID: r.ID,
			OwnerFrom:  r.OwnerID,
			OwnerTo:    r.OwnerID,
			MarkFrom:   r.ShippingMark,
			MarkTo:     r.ShippingMark,
		}
		if ownerID != nil {
			c.OwnerTo = ownerID
		}
		if mark != nil {
			c.MarkTo = *mark
		}
		out = append(out, c)
	}
	return out
}
