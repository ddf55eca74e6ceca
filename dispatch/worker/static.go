// Package worker provides dispatch.Worker implementations: a static
// responder for tests and offline demos, and chat agents backed by the
// OpenAI and Anthropic APIs.
package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/agentrouter/dispatch"
)

// Static answers every request with a fixed prefix, its own name and the
// request text. It never fails unless the context is done.
type Static struct {
	name   string
	prefix string
}

// NewStatic creates a static worker.
func NewStatic(name, prefix string) *Static {
	return &Static{name: name, prefix: prefix}
}

// Name implements dispatch.Worker.
func (s *Static) Name() string { return s.name }

// Handle implements dispatch.Worker.
func (s *Static) Handle(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var b strings.Builder
	if s.prefix != "" {
		b.WriteString(s.prefix)
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%s received: %s", s.name, req.Text)

	resp := &dispatch.Response{
		Content:  b.String(),
		Metadata: map[string]string{"worker": s.name},
	}
	if req.SessionID != "" {
		resp.Metadata["session_id"] = req.SessionID
	}
	return resp, nil
}
