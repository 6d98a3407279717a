package audit

import "context"

// Store persists audit events. Implementations must tolerate concurrent
// appends; events are never updated or deleted.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
