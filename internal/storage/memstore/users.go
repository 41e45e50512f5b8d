package memstore

import (
	"context"
	"sort"

	"github.com/BearBump/CargoDesk/internal/models"
	"github.com/pkg/errors"
)

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.users {
		if o.Username == u.Username || o.Email == u.Email || o.Contact == u.Contact {
			return errors.Wrap(models.ErrConflict, "users")
		}
	}
	u.ApplyStatusRules()
	u.ID, u.CreatedAt = s.nextID()
	c := *u
	s.users[u.ID] = &c
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id uint64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errors.Wrap(models.ErrNotFound, "select user")
	}
	c := *u
	return &c, nil
}

func (s *Store) GetUsersByIDs(_ context.Context, ids []uint64) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *Store) ListAdmins(_ context.Context) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.User
	for _, u := range s.users {
		if u.Role == models.RoleAdmin && u.Status == models.UserStatusActive {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveUserLogin(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok {
		return errors.Wrap(models.ErrNotFound, "update user login")
	}
	u.ApplyStatusRules()
	cur.LoginAttempts, cur.Status, cur.LastLogin = u.LoginAttempts, u.Status, u.LastLogin
	return nil
}

// DeleteUser mirrors ON DELETE SET NULL / CASCADE of the relational schema.
func (s *Store) DeleteUser(_ context.Context, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	delete(s.marks, id)
	for _, t := range s.trackings {
		if t.OwnerID != nil && *t.OwnerID == id {
			t.OwnerID = nil
		}
	}
}

func (s *Store) CreateShippingMark(_ context.Context, m *models.ShippingMark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.marks[m.OwnerID]; ok {
		return errors.Wrap(models.ErrConflict, "shipping_marks_owner_id_key")
	}
	for _, o := range s.marks {
		if o.MarkID == m.MarkID {
			return errors.Wrap(models.ErrConflict, "shipping_marks_mark_id_key")
		}
	}
	m.ID, m.CreatedAt = s.nextID()
	c := *m
	s.marks[m.OwnerID] = &c
	return nil
}

func (s *Store) GetShippingMarkByMarkID(_ context.Context, markID string) (*models.ShippingMark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.marks {
		if m.MarkID == markID {
			c := *m
			return &c, nil
		}
	}
	return nil, errors.Wrap(models.ErrNotFound, "select shipping mark")
}

func (s *Store) GetShippingMarkByOwner(_ context.Context, ownerID uint64) (*models.ShippingMark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.marks[ownerID]
	if !ok {
		return nil, errors.Wrap(models.ErrNotFound, "select shipping mark")
	}
	c := *m
	return &c, nil
}

func (s *Store) RenameShippingMark(_ context.Context, ownerID uint64, name string) (*models.ShippingMark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.marks[ownerID]
	if !ok {
		return nil, errors.Wrap(models.ErrNotFound, "rename shipping mark")
	}
	m.Name = name
	c := *m
	return &c, nil
}
