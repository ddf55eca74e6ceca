package dispatch

import (
	"errors"
	"fmt"

	"github.com/BaSui01/agentrouter/types"
)

// WorkerFailure wraps an error returned by a worker with the routing
// context that led to it.
type WorkerFailure struct {
	Pool       string
	Worker     string
	RoutingKey RoutingKey
	Cause      error
}

func (e *WorkerFailure) Error() string {
	return fmt.Sprintf("[%s] worker %q in pool %q failed for route %q: %v",
		types.ErrWorkerFailure, e.Worker, e.Pool, e.RoutingKey, e.Cause)
}

func (e *WorkerFailure) Unwrap() error { return e.Cause }

// ErrorCode implements types.Coder.
func (e *WorkerFailure) ErrorCode() types.ErrorCode { return types.ErrWorkerFailure }

// Is matches a *types.Error carrying WORKER_FAILURE.
func (e *WorkerFailure) Is(target error) bool {
	t, ok := target.(*types.Error)
	return ok && t.Code == types.ErrWorkerFailure
}

// AsWorkerFailure extracts a *WorkerFailure from err's chain.
func AsWorkerFailure(err error) (*WorkerFailure, bool) {
	var wf *WorkerFailure
	if errors.As(err, &wf) {
		return wf, true
	}
	return nil, false
}
