package audit

import (
	"context"
	"time"
)

// Operation measures a wrapped unit of work and writes exactly one audit
// event when it ends. Typical use:
//
//	op := svc.Begin(ctx, audit.ActionPanelMerge, "merge panels")
//	defer func() { op.End(err) }()
//
// End must run on every exit path, including failure; it never mutates or
// swallows the error passed to it.
type Operation struct {
	svc   *Service
	ctx   context.Context
	entry Entry
	start time.Time
	done  bool
}

// OpOption customizes the event an Operation will write.
type OpOption func(*Entry)

// WithResource attaches the affected entity to the operation's event.
func WithResource(resourceType, resourceID string) OpOption {
	return func(e *Entry) {
		e.ResourceType = resourceType
		e.ResourceID = resourceID
	}
}

// WithDetails attaches a structured details payload to the operation's event.
func WithDetails(details map[string]any) OpOption {
	return func(e *Entry) {
		e.Details = details
	}
}

// Begin starts a scoped audit operation. The returned Operation records the
// start time now; End computes the elapsed milliseconds.
func (s *Service) Begin(ctx context.Context, action Action, description string, opts ...OpOption) *Operation {
	entry := Entry{
		Action:      action,
		Description: description,
	}
	for _, opt := range opts {
		opt(&entry)
	}
	return &Operation{
		svc:   s,
		ctx:   ctx,
		entry: entry,
		start: s.now(),
	}
}

// End writes the operation's event with the measured duration. A nil err
// records success; otherwise the event is marked failed and carries the
// error text (truncated by the write path). End is idempotent so a deferred
// call after an explicit one writes nothing twice. It returns the written
// event, or nil if the operation already ended or the write was dropped.
func (op *Operation) End(err error) *Event {
	if op.done {
		return nil
	}
	op.done = true

	elapsed := op.svc.now().Sub(op.start).Milliseconds()
	op.entry.DurationMS = &elapsed
	if err != nil {
		op.entry.Failed = true
		op.entry.ErrorMessage = err.Error()
	}
	return op.svc.Log(op.ctx, op.entry)
}
