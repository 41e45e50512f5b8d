package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Shipment lifecycle statuses.
const (
	TrackingStatusPending      = "pending"
	TrackingStatusInTransit    = "in_transit"
	TrackingStatusArrived      = "arrived"
	TrackingStatusCancelled    = "cancelled"
	TrackingStatusRejected     = "rejected"
	TrackingStatusNotReceived  = "not_received"
	TrackingStatusVessel       = "vessel"
	TrackingStatusClearing     = "clearing"
	TrackingStatusArrivedGhana = "arrived_ghana"
	TrackingStatusOffLoading   = "off_loading"
	TrackingStatusPickUp       = "pick_up"
)

var trackingStatusLabels = map[string]string{
	TrackingStatusPending:      "Pending",
	TrackingStatusInTransit:    "In Transit",
	TrackingStatusArrived:      "Arrived(China)",
	TrackingStatusCancelled:    "Cancelled",
	TrackingStatusRejected:     "Rejected",
	TrackingStatusNotReceived:  "Not Received",
	TrackingStatusVessel:       "On The Vessel",
	TrackingStatusClearing:     "Clearing",
	TrackingStatusArrivedGhana: "Arrived(Ghana)",
	TrackingStatusOffLoading:   "Off Loading",
	TrackingStatusPickUp:       "Pick up",
}

// TrackingStatusLabel returns the human label, or the raw status if unknown.
func TrackingStatusLabel(status string) string {
	if l, ok := trackingStatusLabels[status]; ok {
		return l
	}
	return status
}

const (
	GoodsTypeNormal  = "normal"
	GoodsTypeSpecial = "special"
)

// Tracking is one physical row of a shipment. Several rows may share a
// TrackingNumber until the group is reconciled.
//
// ShippingMark is free text rather than a reference to ShippingMark so that it
// can be written before the matching mark record exists.
type Tracking struct {
	ID             uint64           `json:"id"`
	TrackingNumber string           `json:"tracking_number"`
	OwnerID        *uint64          `json:"owner_id,omitempty"`
	ShippingMark   string           `json:"shipping_mark"`
	Status         string           `json:"status"`
	CBM            *decimal.Decimal `json:"cbm,omitempty"`
	ShippingFee    *decimal.Decimal `json:"shipping_fee,omitempty"`
	GoodsType      *string          `json:"goods_type,omitempty"`
	ETA            *time.Time       `json:"eta,omitempty"`
	DateAdded      time.Time        `json:"date_added"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func (t *Tracking) HasOwner() bool {
	return t.OwnerID != nil && *t.OwnerID != 0
}

// TrackingInput is the write payload shared by self-service and admin creates.
type TrackingInput struct {
	TrackingNumber string           `json:"tracking_number" validate:"required,max=64"`
	ShippingMark   string           `json:"shipping_mark" validate:"max=255"`
	Status         string           `json:"status" validate:"omitempty,oneof=pending in_transit arrived cancelled rejected not_received vessel clearing arrived_ghana off_loading pick_up"`
	CBM            *decimal.Decimal `json:"cbm,omitempty"`
	ShippingFee    *decimal.Decimal `json:"shipping_fee,omitempty"`
	GoodsType      *string          `json:"goods_type,omitempty" validate:"omitempty,oneof=normal special"`
	ETA            *time.Time       `json:"eta,omitempty"`
	// OwnerID is honoured only on admin writes.
	OwnerID *uint64 `json:"owner_id,omitempty"`
}

// TrackingPatch carries admin edits; nil fields are left unchanged.
type TrackingPatch struct {
	ShippingMark *string          `json:"shipping_mark,omitempty" validate:"omitempty,max=255"`
	Status       *string          `json:"status,omitempty" validate:"omitempty,oneof=pending in_transit arrived cancelled rejected not_received vessel clearing arrived_ghana off_loading pick_up"`
	CBM          *decimal.Decimal `json:"cbm,omitempty"`
	ShippingFee  *decimal.Decimal `json:"shipping_fee,omitempty"`
	GoodsType    *string          `json:"goods_type,omitempty" validate:"omitempty,oneof=normal special"`
	ETA          *time.Time       `json:"eta,omitempty"`
	OwnerID      *uint64          `json:"owner_id,omitempty"`
}

// Apply copies the non-nil patch fields onto t.
func (p TrackingPatch) Apply(t *Tracking) {
	if p.ShippingMark != nil {
		t.ShippingMark = *p.ShippingMark
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.CBM != nil {
		t.CBM = p.CBM
	}
	if p.ShippingFee != nil {
		t.ShippingFee = p.ShippingFee
	}
	if p.GoodsType != nil {
		t.GoodsType = p.GoodsType
	}
	if p.ETA != nil {
		t.ETA = p.ETA
	}
	if p.OwnerID != nil {
		t.OwnerID = p.OwnerID
	}
}
