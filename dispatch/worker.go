package dispatch

import "context"

// Request is one unit of work handed to the dispatcher.
type Request struct {
	Text string `json:"text"`
	// SessionID is opaque to the router and passed to the worker unchanged.
	SessionID string            `json:"session_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Response is what a worker produced for a request.
type Response struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Worker is an opaque capability that handles one request at a time.
// Name must be unique within the owning pool.
type Worker interface {
	Name() string
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// funcWorker adapts a function to Worker.
type funcWorker struct {
	name string
	fn   func(ctx context.Context, req *Request) (*Response, error)
}

// NewFuncWorker wraps fn as a named Worker. The returned value is a pointer
// so each call yields a distinct worker identity.
func NewFuncWorker(name string, fn func(ctx context.Context, req *Request) (*Response, error)) Worker {
	return &funcWorker{name: name, fn: fn}
}

func (w *funcWorker) Name() string { return w.name }

func (w *funcWorker) Handle(ctx context.Context, req *Request) (*Response, error) {
	return w.fn(ctx, req)
}
