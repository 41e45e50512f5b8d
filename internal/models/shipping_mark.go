package models

import "time"

// ShippingMark is the permanent per-user mark. MarkID never changes after
// creation; only Name is editable.
type ShippingMark struct {
	ID        uint64    `json:"id"`
	OwnerID   uint64    `json:"owner_id"`
	MarkID    string    `json:"mark_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type ShippingMarkInput struct {
	Name string `json:"name" validate:"required,max=100"`
}
