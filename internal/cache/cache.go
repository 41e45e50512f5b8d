package cache

import (
	"context"
	"time"
)

// BytesCache is a best-effort byte store; a miss is (nil, false, nil).
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// TrackingGroupKey is the key of the cached rows of one tracking number.
// Every writer of a group deletes it after committing.
func TrackingGroupKey(number string) string {
	return "tracking:" + number + ":group"
}
