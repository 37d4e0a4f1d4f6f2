// Package reqctx implements the shared execution context that flows through
// an agent hierarchy: token budget, workspace, cancellation, and cycle
// detection.
package reqctx

import (
	"context"

	"github.com/google/uuid"
)

// RequestContext bundles the state shared across an agent tree. Budget,
// Workspace and CycleDetector are shared by reference across parent and
// child contexts (Workspace and CycleDetector hold internal pointers;
// Budget holds atomic pointers); Cancel is independently derived per child
// so cancelling a subtree never reaches back up to its parent.
type RequestContext struct {
	RequestID     uuid.UUID
	Budget        Budget
	Workspace     Workspace
	Cancel        *CancelTree
	CycleDetector *CycleDetector
	Depth         uint8
}

// New creates a root context (depth 0) with a fresh workspace and cycle
// detector, deriving cancellation from ctx.
func New(ctx context.Context, requestID uuid.UUID, budget Budget) RequestContext {
	return RequestContext{
		RequestID:     requestID,
		Budget:        budget,
		Workspace:     NewWorkspace(),
		Cancel:        NewCancelTree(ctx),
		CycleDetector: NewCycleDetector(),
		Depth:         0,
	}
}

// Child derives a context for sub-agent spawning. It shares budget,
// workspace and cycle detector but receives an independent child
// cancellation node and depth+1 (saturating at 255).
func (c RequestContext) Child() RequestContext {
	depth := c.Depth
	if depth < 255 {
		depth++
	}
	return RequestContext{
		RequestID:     c.RequestID,
		Budget:        c.Budget,
		Workspace:     c.Workspace,
		Cancel:        c.Cancel.Child(),
		CycleDetector: c.CycleDetector,
		Depth:         depth,
	}
}

// IsCancelled reports whether this context or any ancestor was cancelled.
func (c RequestContext) IsCancelled() bool { return c.Cancel.IsCancelled() }

// Context returns the context.Context derived for this node, for passing to
// APIs (HTTP clients, database drivers) that require one.
func (c RequestContext) Context() context.Context { return c.Cancel.Context() }
