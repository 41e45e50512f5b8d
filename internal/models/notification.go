package models

import "time"

const (
	NotificationStatusPending = "pending"
	NotificationStatusSent    = "sent"
	NotificationStatusFailed  = "failed"
)

const (
	NotificationTrackingCreated     = "tracking_created"
	NotificationTrackingUpdate      = "tracking_update"
	NotificationWelcome             = "welcome"
	NotificationShippingMarkCreated = "shipping_mark_created"
	NotificationAdminNewShipment    = "admin_new_shipment"
	NotificationAdminNewUser        = "admin_new_user"
)

type Notification struct {
	ID         uint64     `json:"id"`
	UserID     uint64     `json:"user_id"`
	Kind       string     `json:"kind"`
	Subject    string     `json:"subject"`
	Message    string     `json:"message"`
	Status     string     `json:"status"`
	Error      *string    `json:"error,omitempty"`
	TrackingID *uint64    `json:"tracking_id,omitempty"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
