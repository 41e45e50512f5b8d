package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/BearBump/CargoDesk/config"
	"github.com/BearBump/CargoDesk/internal/broker/messages"
	"github.com/BearBump/CargoDesk/internal/cache"
	"github.com/BearBump/CargoDesk/internal/cache/rediscache"
	"github.com/BearBump/CargoDesk/internal/models"
	"github.com/BearBump/CargoDesk/internal/services/sweep"
	"github.com/BearBump/CargoDesk/internal/storage/memstore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct{ events []messages.DomainEvent }

func (p *recordingPublisher) PublishEvent(_ context.Context, ev messages.DomainEvent) error {
	p.events = append(p.events, ev)
	return nil
}

type fixture struct {
	store  *memstore.Store
	redis  *miniredis.Miniredis
	pub    *recordingPublisher
	closed int
	user   *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: memstore.New(), redis: miniredis.RunT(t), pub: &recordingPublisher{}}
	f.user = &models.User{Username: "kofi", Email: "k@example.com", Role: models.RoleUser, Status: models.UserStatusActive}
	require.NoError(t, f.store.CreateUser(ctx, f.user))
	require.NoError(t, f.store.CreateShippingMark(ctx, &models.ShippingMark{OwnerID: f.user.ID, MarkID: "M856-FIM123"}))
	return f
}

func (f *fixture) deps() ctlDeps {
	return ctlDeps{
		loadConfig: func(string) (*config.Config, error) {
			return &config.Config{CargoDesk: config.CargoDeskConfig{NormalizeConcurrency: 2}}, nil
		},
		openStore: func(*config.Config) (ctlStore, func(), error) {
			return f.store, func() { f.closed++ }, nil
		},
		newPublisher: func(*config.Config) (sweep.EventPublisher, func()) {
			return f.pub, nil
		},
		newGroupCache: func(*config.Config) (cache.BytesCache, func()) {
			rc := rediscache.New(f.redis.Addr())
			return rc, func() { _ = rc.Close() }
		},
	}
}

func (f *fixture) cacheGroup(t *testing.T, number string) string {
	t.Helper()
	key := "cargodesk:" + cache.TrackingGroupKey(number)
	require.NoError(t, f.redis.Set(key, "[]"))
	return key
}

func (f *fixture) row(t *testing.T, number string, owner *uint64, mark string) *models.Tracking {
	t.Helper()
	tr := &models.Tracking{TrackingNumber: number, OwnerID: owner, ShippingMark: mark}
	require.NoError(t, f.store.CreateTracking(context.Background(), tr))
	return tr
}

func run(t *testing.T, deps ctlDeps, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(deps)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	err := execute(context.Background(), root, append([]string{"--config", "cfg.yaml"}, args...))
	return out.String(), err
}

func TestNormalize_DryRunThenApply(t *testing.T) {
	f := newFixture(t)
	f.row(t, "A", &f.user.ID, "")
	f.row(t, "A", nil, "")
	f.row(t, "B", nil, "LOOSE")
	f.row(t, "B", nil, "")

	out, err := run(t, f.deps(), "normalize", "--dry-run")
	require.NoError(t, err)
	require.Contains(t, out, "normalize (dry run): 2 groups, 2 changed")
	for _, r := range f.store.Trackings() {
		if r.TrackingNumber == "A" && r.ShippingMark != "" {
			t.Fatalf("dry run wrote row %d", r.ID)
		}
	}

	out, err = run(t, f.deps(), "normalize")
	require.NoError(t, err)
	require.Contains(t, out, "normalize (applied)")
	require.Contains(t, out, "M856-FIM123")
	for _, r := range f.store.Trackings() {
		switch r.TrackingNumber {
		case "A":
			require.Equal(t, f.user.ID, *r.OwnerID)
			require.Equal(t, "M856-FIM123", r.ShippingMark)
		case "B":
			// no owner can be inferred, the mark is still harmonized
			require.Nil(t, r.OwnerID)
			require.Equal(t, "LOOSE", r.ShippingMark)
		}
	}
	require.Equal(t, 2, f.closed)
}

func TestNormalize_JSONAndLimit(t *testing.T) {
	f := newFixture(t)
	f.row(t, "A", &f.user.ID, "")
	f.row(t, "B", &f.user.ID, "")
	f.store.FailApply["A"] = errors.New("lock timeout")

	out, err := run(t, f.deps(), "normalize", "--limit", "1", "--json")
	require.NoError(t, err)

	var sum sweep.NormalizeSummary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	require.Equal(t, 1, sum.GroupsProcessed)
	require.Equal(t, 1, sum.GroupsFailed)
	require.Equal(t, "A", sum.Failures[0].TrackingNumber)
}

func TestAutoSync(t *testing.T) {
	f := newFixture(t)
	matched := f.row(t, "A", nil, "M856-FIM123")
	f.row(t, "B", nil, "M856-XXX000")

	out, err := run(t, f.deps(), "auto-sync", "--verbose")
	require.NoError(t, err)
	require.Contains(t, out, "auto-sync: scanned 2, matched 1, failed 1")
	require.Contains(t, out, "no_mark B (M856-XXX000)")

	got, err := f.store.GetTrackingByID(context.Background(), matched.ID)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, *got.OwnerID)
	require.Len(t, f.pub.events, 1)
}

func TestSweeps_ClearCachedGroups(t *testing.T) {
	f := newFixture(t)
	f.row(t, "A", nil, "M856-FIM123")
	f.row(t, "B", &f.user.ID, "")
	f.row(t, "B", nil, "")
	keyA, keyB := f.cacheGroup(t, "A"), f.cacheGroup(t, "B")

	_, err := run(t, f.deps(), "auto-sync")
	require.NoError(t, err)
	require.False(t, f.redis.Exists(keyA))
	require.True(t, f.redis.Exists(keyB))

	_, err = run(t, f.deps(), "normalize", "--dry-run")
	require.NoError(t, err)
	require.True(t, f.redis.Exists(keyB))

	_, err = run(t, f.deps(), "normalize")
	require.NoError(t, err)
	require.False(t, f.redis.Exists(keyB))
}

func TestAutoSync_NoPublish(t *testing.T) {
	f := newFixture(t)
	f.row(t, "A", nil, "M856-FIM123")

	_, err := run(t, f.deps(), "auto-sync", "--publish=false")
	require.NoError(t, err)
	require.Empty(t, f.pub.events)
}

func TestMatchReport(t *testing.T) {
	f := newFixture(t)
	f.row(t, "A", nil, "M856-FIM123")
	f.row(t, "B", nil, "NOPE")

	out, err := run(t, f.deps(), "match")
	require.NoError(t, err)
	require.Contains(t, out, "OUTCOME")
	require.Contains(t, out, "matched")
	require.Contains(t, out, "no_mark")
	require.Contains(t, out, "matched 1 of 2, 1 without a user")
}

func TestRoot_Errors(t *testing.T) {
	f := newFixture(t)

	root := newRootCmd(f.deps())
	root.SetOut(&bytes.Buffer{})
	err := execute(context.Background(), root, []string{"normalize", "--config", ""})
	require.Error(t, err)

	deps := f.deps()
	deps.openStore = func(*config.Config) (ctlStore, func(), error) { return nil, nil, errors.New("refused") }
	_, err = run(t, deps, "auto-sync")
	require.ErrorContains(t, err, "open storage")

	_, err = run(t, f.deps(), "normalize", "extra")
	require.Error(t, err)
}
