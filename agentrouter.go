// Package agentrouter provides a top-level convenience entry point for building
// a classification-driven router with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/agentrouter"
//
//	r, err := agentrouter.New()                                   // FinTechCorp defaults
//	r, err := agentrouter.New(agentrouter.WithConfigFile("router.yaml"))
//	res, err := r.Dispatch(ctx, &dispatch.Request{Text: "my card was stolen!"})
//
// This is a thin wrapper around config loading and internal/factory; the HTTP
// server in cmd/agentrouter builds its router the same way.
package agentrouter

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrouter/config"
	"github.com/BaSui01/agentrouter/dispatch"
	"github.com/BaSui01/agentrouter/internal/factory"
)

// Router is a ready-to-use dispatch entry point plus its pool registry.
type Router struct {
	dispatch.Router
	Registry *dispatch.Registry
}

type options struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	deps       factory.Deps
}

// Option configures the router created by [New].
type Option func(*options)

// WithConfig uses cfg as is; environment overrides are not applied.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithConfigFile loads YAML from path, then AGENTROUTER_* environment overrides.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithAuditSink receives one entry per finished dispatch.
func WithAuditSink(sink dispatch.AuditSink) Option {
	return func(o *options) { o.deps.AuditSink = sink }
}

// WithRecorder receives dispatch measurements.
func WithRecorder(rec dispatch.Recorder) Option {
	return func(o *options) { o.deps.Recorder = rec }
}

// New builds a router. Without options it uses the defaults plus environment
// overrides, which is the FinTechCorp keyword-classified topology.
func New(opts ...Option) (*Router, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.cfg
	if cfg == nil {
		loader := config.NewLoader()
		if o.configPath != "" {
			loader = loader.WithConfigPath(o.configPath)
		}
		var err error
		if cfg, err = loader.Load(); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o.deps.Logger = o.logger
	r, err := factory.Build(cfg, o.deps)
	if err != nil {
		return nil, err
	}
	return &Router{Router: r.Router, Registry: r.Registry()}, nil
}
