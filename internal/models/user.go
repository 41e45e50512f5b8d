package models

import "time"

const (
	RoleAdmin     = "admin"
	RoleUser      = "user"
	RoleModerator = "moderator"
)

const (
	UserStatusActive    = "active"
	UserStatusInactive  = "inactive"
	UserStatusSuspended = "suspended"
)

// MaxLoginAttempts failed logins suspend the account.
const MaxLoginAttempts = 3

type User struct {
	ID            uint64     `json:"id"`
	Username      string     `json:"username"`
	FullName      string     `json:"full_name"`
	Email         string     `json:"email"`
	Contact       string     `json:"contact"`
	Location      string     `json:"location"`
	Role          string     `json:"role"`
	Status        string     `json:"status"`
	LoginAttempts int        `json:"login_attempts"`
	LastLogin     *time.Time `json:"last_login,omitempty"`

	NotifyEmail        bool `json:"notify_email"`
	NotifyOrderUpdates bool `json:"notify_order_updates"`
	NotifyPromotions   bool `json:"notify_promotions"`

	CreatedAt time.Time `json:"created_at"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// ApplyStatusRules enforces the save-time status invariants.
func (u *User) ApplyStatusRules() {
	if u.LoginAttempts >= MaxLoginAttempts {
		u.Status = UserStatusSuspended
	}
}

// RecordLogin registers a login attempt at the given time.
func (u *User) RecordLogin(success bool, at time.Time) {
	if !success {
		u.LoginAttempts++
		u.ApplyStatusRules()
		return
	}
	u.LoginAttempts = 0
	u.LastLogin = &at
	if u.Status == UserStatusInactive {
		u.Status = UserStatusActive
	}
}

type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=10"`
	FullName string `json:"full_name" validate:"required,max=30"`
	Email    string `json:"email" validate:"required,email"`
	Contact  string `json:"contact" validate:"required,max=20"`
	Location string `json:"location" validate:"max=20"`
	Role     string `json:"role" validate:"omitempty,oneof=admin user moderator"`
}
