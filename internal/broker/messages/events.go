package messages

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Event kinds published after a write has committed.
const (
	KindTrackingWritten     = "tracking.written"
	KindUserRegistered      = "user.registered"
	KindShippingMarkCreated = "shipping_mark.created"
)

// ActorSystem marks writes made by background jobs rather than a user.
const ActorSystem = "system"

// DomainEvent carries ids only; consumers reload the committed entity.
type DomainEvent struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	TrackingID uint64    `json:"tracking_id,omitempty"`
	UserID     uint64    `json:"user_id,omitempty"`
	MarkID     string    `json:"mark_id,omitempty"`
	Created    bool      `json:"created,omitempty"`
	ActorRole  string    `json:"actor_role,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func newEvent(kind string) DomainEvent {
	return DomainEvent{ID: uuid.NewString(), Kind: kind, OccurredAt: time.Now().UTC()}
}

func TrackingWritten(trackingID uint64, created bool, actorRole string) DomainEvent {
	ev := newEvent(KindTrackingWritten)
	ev.TrackingID, ev.Created, ev.ActorRole = trackingID, created, actorRole
	return ev
}

func UserRegistered(userID uint64) DomainEvent {
	ev := newEvent(KindUserRegistered)
	ev.UserID = userID
	return ev
}

func ShippingMarkCreated(userID uint64, markID string) DomainEvent {
	ev := newEvent(KindShippingMarkCreated)
	ev.UserID, ev.MarkID = userID, markID
	return ev
}

// Key partitions tracking events by tracking id and the rest by user id.
func (e DomainEvent) Key() []byte {
	if e.TrackingID != 0 {
		return []byte("tracking:" + strconv.FormatUint(e.TrackingID, 10))
	}
	return []byte("user:" + strconv.FormatUint(e.UserID, 10))
}

func (e DomainEvent) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	return b, errors.Wrap(err, "encode event")
}

func Decode(b []byte) (DomainEvent, error) {
	var e DomainEvent
	if err := json.Unmarshal(b, &e); err != nil {
		return e, errors.Wrap(err, "decode event")
	}
	if e.Kind == "" {
		return e, errors.New("event without kind")
	}
	return e, nil
}
