// Package memstore is an in-memory stand-in for pgstore used by service and
// command tests. It keeps the same method set and error semantics.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BearBump/CargoDesk/internal/models"
	"github.com/pkg/errors"
)

type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	now func() time.Time
	seq uint64

	trackings     map[uint64]*models.Tracking
	users         map[uint64]*models.User
	marks         map[uint64]*models.ShippingMark // by owner
	rates         map[uint64]*models.ShippingRate
	addresses     map[uint64]*models.DefaultBaseAddress
	currency      []*models.CurrencyRate
	notifications map[uint64]*models.Notification

	// FailApply makes ApplyTrackingGroup fail for the given tracking numbers.
	FailApply map[string]error
}

func New() *Store {
	return &Store{
		now:           func() time.Time { return time.Now().UTC() },
		trackings:     map[uint64]*models.Tracking{},
		users:         map[uint64]*models.User{},
		marks:         map[uint64]*models.ShippingMark{},
		rates:         map[uint64]*models.ShippingRate{},
		addresses:     map[uint64]*models.DefaultBaseAddress{},
		notifications: map[uint64]*models.Notification{},
		FailApply:     map[string]error{},
	}
}

type txKey struct{}

// InTx runs fn as one transaction. Transactions are serialized, nested calls
// join the outer one, and an error from fn restores every table to its state
// before the call. Ids handed out inside a failed transaction are not reused.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type tables struct {
	trackings     map[uint64]*models.Tracking
	users         map[uint64]*models.User
	marks         map[uint64]*models.ShippingMark
	rates         map[uint64]*models.ShippingRate
	addresses     map[uint64]*models.DefaultBaseAddress
	currency      []*models.CurrencyRate
	notifications map[uint64]*models.Notification
}

func (s *Store) snapshot() tables {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tables{
		trackings:     cloneMap(s.trackings),
		users:         cloneMap(s.users),
		marks:         cloneMap(s.marks),
		rates:         cloneMap(s.rates),
		addresses:     cloneMap(s.addresses),
		currency:      append([]*models.CurrencyRate(nil), s.currency...),
		notifications: cloneMap(s.notifications),
	}
}

func (s *Store) restore(t tables) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackings, s.users, s.marks = t.trackings, t.users, t.marks
	s.rates, s.addresses, s.currency = t.rates, t.addresses, t.currency
	s.notifications = t.notifications
}

func cloneMap[T any](m map[uint64]*T) map[uint64]*T {
	out := make(map[uint64]*T, len(m))
	for k, v := range m {
		c := *v
		out[k] = &c
	}
	return out
}

func (s *Store) Ping(context.Context) error { return nil }

// nextID hands out increasing ids and a strictly increasing timestamp so
// recency ordering is deterministic.
func (s *Store) nextID() (uint64, time.Time) {
	s.seq++
	return s.seq, s.now().Add(time.Duration(s.seq) * time.Millisecond)
}

func cloneTracking(t *models.Tracking) *models.Tracking {
	c := *t
	if t.OwnerID != nil {
		id := *t.OwnerID
		c.OwnerID = &id
	}
	return &c
}

func (s *Store) CreateTracking(_ context.Context, t *models.Tracking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Status == "" {
		t.Status = models.TrackingStatusPending
	}
	if t.OwnerID != nil {
		if _, ok := s.users[*t.OwnerID]; !ok {
			return errors.Wrap(models.ErrValidation, "owner does not exist")
		}
	}
	t.ID, t.DateAdded = s.nextID()
	t.UpdatedAt = t.DateAdded
	s.trackings[t.ID] = cloneTracking(t)
	return nil
}

func (s *Store) UpdateTracking(_ context.Context, t *models.Tracking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.trackings[t.ID]
	if !ok {
		return errors.Wrap(models.ErrNotFound, "update tracking")
	}
	t.DateAdded = cur.DateAdded
	t.UpdatedAt = s.now()
	s.trackings[t.ID] = cloneTracking(t)
	return nil
}

func (s *Store) GetTrackingByID(_ context.Context, id uint64) (*models.Tracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackings[id]
	if !ok {
		return nil, errors.Wrap(models.ErrNotFound, "select tracking")
	}
	return cloneTracking(t), nil
}

func (s *Store) ListTrackingsByNumber(_ context.Context, number string) ([]*models.Tracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Tracking
	for _, t := range s.trackings {
		if t.TrackingNumber == number {
			out = append(out, cloneTracking(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateAdded.Equal(out[j].DateAdded) {
			return out[i].DateAdded.After(out[j].DateAdded)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// LockTrackingNumber only checks that it runs inside InTx; transactions are
// already serialized.
func (s *Store) LockTrackingNumber(ctx context.Context, number string) error {
	if ctx.Value(txKey{}) == nil {
		return errors.Errorf("lock tracking number %q outside a transaction", number)
	}
	return nil
}

func (s *Store) LockTrackingGroup(ctx context.Context, number string) ([]*models.Tracking, error) {
	return s.ListTrackingsByNumber(ctx, number)
}

func (s *Store) ApplyTrackingGroup(_ context.Context, number string, ownerID *uint64, mark *string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailApply[number]; err != nil {
		return 0, err
	}
	var n int64
	for _, t := range s.trackings {
		if t.TrackingNumber != number {
			continue
		}
		if ownerID != nil {
			id := *ownerID
			t.OwnerID = &id
		}
		if mark != nil {
			t.ShippingMark = *mark
		}
		t.UpdatedAt = s.now()
		n++
	}
	return n, nil
}

func (s *Store) DistinctTrackingNumbers(_ context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	var out []string
	for _, t := range s.trackings {
		if _, ok := seen[t.TrackingNumber]; ok {
			continue
		}
		seen[t.TrackingNumber] = struct{}{}
		out = append(out, t.TrackingNumber)
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListUnassignedTrackings(_ context.Context) ([]*models.Tracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Tracking
	for _, t := range s.trackings {
		if t.OwnerID == nil && t.ShippingMark != "" {
			out = append(out, cloneTracking(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AssignTrackingOwner(_ context.Context, id, ownerID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackings[id]
	if !ok {
		return errors.Wrap(models.ErrNotFound, "assign tracking owner")
	}
	t.OwnerID = &ownerID
	t.UpdatedAt = s.now()
	return nil
}

// Trackings returns a snapshot of every row ordered by id.
func (s *Store) Trackings() []*models.Tracking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Tracking, 0, len(s.trackings))
	for _, t := range s.trackings {
		out = append(out, cloneTracking(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
