package audit

import (
	"context"
	"time"
)

// Store is the durable append-only persistence for audit events. The logging
// layer owns it exclusively: append and read, never update or delete.
type Store interface {
	Append(ctx context.Context, event Event) error
	List(ctx context.Context, filter Filter) ([]Event, error)
}

// Filter narrows List results. Zero fields are ignored.
type Filter struct {
	Action  Action
	ActorID *int64
	Since   time.Time
	Until   time.Time
	Limit   int
}
