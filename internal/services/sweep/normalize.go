package sweep

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BearBump/CargoDesk/internal/cache"
	"github.com/BearBump/CargoDesk/internal/services/reconcile"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type GroupLister interface {
	DistinctTrackingNumbers(ctx context.Context, limit int) ([]string, error)
}

type GroupReconciler interface {
	Reconcile(ctx context.Context, number string) (*reconcile.Result, error)
	Plan(ctx context.Context, number string) (*reconcile.Result, error)
}

type NormalizeOptions struct {
	DryRun bool
	// Limit caps the number of groups visited; <= 0 visits all.
	Limit int
	// Concurrency is the number of groups reconciled in parallel.
	Concurrency int
}

type GroupFailure struct {
	TrackingNumber string `json:"tracking_number"`
	Error          string `json:"error"`
}

type NormalizeSummary struct {
	GroupsProcessed  int                 `json:"groups_processed"`
	GroupsChanged    int                 `json:"groups_changed"`
	GroupsUnresolved int                 `json:"groups_unresolved"`
	GroupsFailed     int                 `json:"groups_failed"`
	RowsChanged      int                 `json:"rows_changed"`
	DryRun           bool                `json:"dry_run"`
	Changed          []*reconcile.Result `json:"changed,omitempty"`
	Failures         []GroupFailure      `json:"failures,omitempty"`
}

type Normalizer struct {
	groups GroupLister
	engine GroupReconciler
	cache  cache.BytesCache
}

// NewNormalizer builds the normalizer. c, when set, has the cached read of
// every group it changes deleted.
func NewNormalizer(groups GroupLister, engine GroupReconciler, c cache.BytesCache) *Normalizer {
	return &Normalizer{groups: groups, engine: engine, cache: c}
}

// RunFullNormalize reconciles every tracking group. Groups are independent:
// one failing group is recorded and the sweep moves on. Interrupting the
// sweep leaves finished groups converged, so it can be rerun from scratch.
func (n *Normalizer) RunFullNormalize(ctx context.Context, opts NormalizeOptions) (*NormalizeSummary, error) {
	start := time.Now()
	defer func() { sweepDuration.WithLabelValues("normalize").Observe(time.Since(start).Seconds()) }()

	numbers, err := n.groups.DistinctTrackingNumbers(ctx, opts.Limit)
	if err != nil {
		return nil, errors.Wrap(err, "list tracking numbers")
	}

	sum := &NormalizeSummary{DryRun: opts.DryRun}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Concurrency, 1))
	for _, number := range numbers {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			var res *reconcile.Result
			var err error
			if opts.DryRun {
				res, err = n.engine.Plan(gctx, number)
			} else {
				res, err = n.engine.Reconcile(gctx, number)
				if err == nil && res.Changed() {
					invalidateGroup(gctx, n.cache, number)
				}
			}

			mu.Lock()
			defer mu.Unlock()
			sum.GroupsProcessed++
			switch {
			case err != nil:
				sum.GroupsFailed++
				sum.Failures = append(sum.Failures, GroupFailure{TrackingNumber: number, Error: err.Error()})
				normalizeGroups.WithLabelValues("failed").Inc()
				slog.Error("normalize group failed", "tracking_number", number, "err", err)
			case res.Changed():
				sum.GroupsChanged++
				sum.RowsChanged += len(res.Changes)
				sum.Changed = append(sum.Changed, res)
				normalizeGroups.WithLabelValues("changed").Inc()
			case res.Source == reconcile.SourceUnresolved:
				sum.GroupsUnresolved++
				normalizeGroups.WithLabelValues("unresolved").Inc()
			default:
				normalizeGroups.WithLabelValues("unchanged").Inc()
			}
			return nil
		})
	}
	// group errors are collected above; only cancellation surfaces here
	if err := g.Wait(); err != nil {
		return sum, errors.Wrap(err, "normalize interrupted")
	}

	sort.Slice(sum.Changed, func(i, j int) bool { return sum.Changed[i].TrackingNumber < sum.Changed[j].TrackingNumber })
	sort.Slice(sum.Failures, func(i, j int) bool { return sum.Failures[i].TrackingNumber < sum.Failures[j].TrackingNumber })

	slog.Info("normalize finished",
		"groups", sum.GroupsProcessed,
		"changed", sum.GroupsChanged,
		"unresolved", sum.GroupsUnresolved,
		"failed", sum.GroupsFailed,
		"dry_run", opts.DryRun,
	)
	return sum, nil
}
