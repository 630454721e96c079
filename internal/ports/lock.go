package ports

import (
	"context"
	"time"
)

// RunLocker serialises dispatch runs across processes.
type RunLocker interface {
	// TryLock acquires key for ttl. ok is false when another holder has it.
	// The returned release func must be called once the run is over.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}
