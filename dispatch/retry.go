package dispatch

import (
	"context"

	"github.com/BaSui01/agentrouter/retry"
)

// Router is anything that dispatches a request. Both Dispatcher and
// RetryingDispatcher satisfy it.
type Router interface {
	Dispatch(ctx context.Context, req *Request) (*Result, error)
}

// RetryingDispatcher retries WORKER_FAILURE with backoff. Each attempt is a
// full dispatch and consumes a new rotation slot, so a retry usually lands on
// the next worker of the pool. Every other error returns immediately.
type RetryingDispatcher struct {
	inner   Router
	retryer retry.Retryer
}

// NewRetryingDispatcher wraps inner with retryer.
func NewRetryingDispatcher(inner Router, retryer retry.Retryer) *RetryingDispatcher {
	return &RetryingDispatcher{inner: inner, retryer: retryer}
}

// Dispatch implements Router.
func (r *RetryingDispatcher) Dispatch(ctx context.Context, req *Request) (*Result, error) {
	return retry.DoWithResultTyped(r.retryer, ctx, func() (*Result, error) {
		res, err := r.inner.Dispatch(ctx, req)
		if err != nil {
			if _, ok := AsWorkerFailure(err); ok {
				return nil, err
			}
			return nil, retry.Permanent(err)
		}
		return res, nil
	})
}
