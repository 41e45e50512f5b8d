package sweep

import (
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/BearBump/CargoDesk/internal/cache"
	"github.com/BearBump/CargoDesk/internal/cache/rediscache"
	"github.com/BearBump/CargoDesk/internal/services/reconcile"
	"github.com/BearBump/CargoDesk/internal/services/trackings"
	"github.com/stretchr/testify/require"
)

func newGroupReader(t *testing.T, s *seed) (*trackings.Service, *rediscache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := rediscache.New(mr.Addr())
	t.Cleanup(func() { _ = rc.Close() })
	return trackings.New(s.store, reconcile.New(s.store), nil, nil, rc, time.Minute), rc, mr
}

func TestRunUnassignedSweep_ClearsCachedGroup(t *testing.T) {
	s := newSeed(t)
	s.row(t, "T9", nil, "FIM123")
	reader, rc, mr := newGroupReader(t, s)

	rows, err := reader.GetGroup(s.ctx, "T9")
	require.NoError(t, err)
	require.Nil(t, rows[0].OwnerID)
	require.True(t, mr.Exists("cargodesk:"+cache.TrackingGroupKey("T9")))

	sum, err := NewUnassignedSweeper(s.store, nil, rc).RunUnassignedSweep(s.ctx, false)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Matched)

	rows, err = reader.GetGroup(s.ctx, "T9")
	require.NoError(t, err)
	require.NotNil(t, rows[0].OwnerID)
	require.Equal(t, s.user.ID, *rows[0].OwnerID)
}

func TestRunFullNormalize_ClearsCachedGroups(t *testing.T) {
	s := newSeed(t)
	s.row(t, "A", s.user, "")
	s.row(t, "A", nil, "")
	s.row(t, "B", s.other, "AMA001")
	reader, rc, mr := newGroupReader(t, s)

	for _, n := range []string{"A", "B"} {
		_, err := reader.GetGroup(s.ctx, n)
		require.NoError(t, err)
	}

	_, err := NewNormalizer(s.store, reconcile.New(s.store), rc).RunFullNormalize(s.ctx, NormalizeOptions{DryRun: true})
	require.NoError(t, err)
	require.True(t, mr.Exists("cargodesk:"+cache.TrackingGroupKey("A")), "dry run leaves the cache alone")

	_, err = NewNormalizer(s.store, reconcile.New(s.store), rc).RunFullNormalize(s.ctx, NormalizeOptions{})
	require.NoError(t, err)
	require.False(t, mr.Exists("cargodesk:"+cache.TrackingGroupKey("A")))
	require.True(t, mr.Exists("cargodesk:"+cache.TrackingGroupKey("B")), "unchanged group keeps its entry")

	rows, err := reader.GetGroup(s.ctx, "A")
	require.NoError(t, err)
	for _, r := range rows {
		require.Equal(t, s.user.ID, *r.OwnerID)
		require.Equal(t, "FIM123", r.ShippingMark)
	}
}
