package dispatch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentrouter/types"
)

const instrumentationName = "github.com/BaSui01/agentrouter/dispatch"

// Result is the outcome of one successful dispatch.
type Result struct {
	RequestID  string           `json:"request_id"`
	Response   *Response        `json:"response"`
	RoutingKey RoutingKey       `json:"routing_key"`
	Labels     map[string]Label `json:"labels"`
	Pool       string           `json:"pool"`
	Worker     string           `json:"worker"`
	Duration   time.Duration    `json:"duration"`
}

// Recorder receives dispatch measurements. internal/metrics implements it.
type Recorder interface {
	RecordClassification(dimension, label, status string, d time.Duration)
	RecordSelection(pool, worker string)
	RecordDispatch(pool, status string, d time.Duration)
}

// AuditEntry describes one finished dispatch, successful or not.
type AuditEntry struct {
	RequestID  string
	SessionID  string
	TenantID   string
	RoutingKey string
	Pool       string
	Worker     string
	Status     string
	Error      string
	Duration   time.Duration
	Timestamp  time.Time
}

// AuditSink persists audit entries. Record must not block the caller for
// long; internal/audit buffers and writes asynchronously.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry)
}

// StatusOK is the status recorded for successful dispatches. Failures
// record their error code.
const StatusOK = "ok"

// Dispatcher composes classification, resolution, selection and delegation.
type Dispatcher struct {
	registry    *Registry
	classifiers []DimensionClassifier

	logger   *zap.Logger
	recorder Recorder
	tracer   trace.Tracer
	audit    AuditSink
	newID    func() string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(d *Dispatcher) { d.recorder = rec }
}

// WithTracer overrides the global OTel tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) {
		if tracer != nil {
			d.tracer = tracer
		}
	}
}

// WithAuditSink sets the audit sink.
func WithAuditSink(sink AuditSink) Option {
	return func(d *Dispatcher) { d.audit = sink }
}

// WithIDGenerator overrides request ID generation (uuid by default).
func WithIDGenerator(fn func() string) Option {
	return func(d *Dispatcher) {
		if fn != nil {
			d.newID = fn
		}
	}
}

// NewDispatcher creates a dispatcher over reg. classifiers run in the given
// order to build routing keys; if reg declares a schema, the dimensions must
// match it one to one.
func NewDispatcher(reg *Registry, classifiers []DimensionClassifier, opts ...Option) (*Dispatcher, error) {
	if reg == nil {
		return nil, types.NewError(types.ErrInvalidInput, "registry is nil")
	}
	if len(classifiers) == 0 {
		return nil, types.NewError(types.ErrInvalidInput, "at least one classifier dimension is required")
	}
	for i, c := range classifiers {
		if c.Classifier == nil {
			return nil, types.Errorf(types.ErrInvalidInput, "dimension %q has no classifier", c.Dimension.Name)
		}
		if len(c.Dimension.Labels) == 0 {
			return nil, types.Errorf(types.ErrInvalidInput, "dimension %q declares no labels", c.Dimension.Name)
		}
		if schema := reg.Schema(); len(schema) > 0 {
			if len(schema) != len(classifiers) || schema[i].Name != c.Dimension.Name {
				return nil, types.Errorf(types.ErrInvalidRoutingKey,
					"classifier dimension %d (%q) does not match registry schema", i, c.Dimension.Name)
			}
		}
	}

	d := &Dispatcher{
		registry:    reg,
		classifiers: append([]DimensionClassifier(nil), classifiers...),
		logger:      zap.NewNop(),
		tracer:      otel.Tracer(instrumentationName),
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(zap.String("component", "dispatcher"))
	return d, nil
}

// Registry returns the registry the dispatcher routes over.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dimensions returns the classification dimensions in key order.
func (d *Dispatcher) Dimensions() []Dimension {
	dims := make([]Dimension, len(d.classifiers))
	for i, c := range d.classifiers {
		dims[i] = c.Dimension
	}
	return dims
}

// Dispatch classifies req, routes it to a pool, selects the next worker and
// returns its response. It makes exactly one attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()
	res := &Result{RequestID: d.newID()}

	ctx, span := d.tracer.Start(ctx, "dispatch",
		trace.WithAttributes(attribute.String("dispatch.request_id", res.RequestID)))
	defer span.End()

	err := d.dispatch(ctx, req, res)
	res.Duration = time.Since(start)

	status := StatusOK
	if err != nil {
		status = statusOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
	}
	span.SetAttributes(
		attribute.String("dispatch.routing_key", res.RoutingKey.String()),
		attribute.String("dispatch.pool", res.Pool),
		attribute.String("dispatch.worker", res.Worker),
		attribute.String("dispatch.status", status),
	)
	d.finish(ctx, req, res, status, err)

	if err != nil {
		return nil, err
	}
	return res, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, req *Request, res *Result) error {
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return types.NewError(types.ErrInvalidInput, "request text is empty")
	}

	// 1. 分类：各维度并发执行，任一失败则整体失败
	labels, err := d.classify(ctx, req.Text)
	if err != nil {
		return err
	}
	res.RoutingKey = NewRoutingKey(labels...)
	res.Labels = make(map[string]Label, len(labels))
	for i, c := range d.classifiers {
		res.Labels[c.Dimension.Name] = labels[i]
	}

	// 2. 路由解析（纯查找，不改状态）
	poolName, err := d.registry.Resolve(res.RoutingKey)
	if err != nil {
		return err
	}
	res.Pool = poolName
	pool, err := d.registry.Pool(poolName)
	if err != nil {
		return err
	}

	// 取消发生在选择之前则不消耗轮询槽位
	if err := ctx.Err(); err != nil {
		return types.NewError(types.ErrCancelled, "dispatch cancelled before selection").WithCause(err)
	}

	// 3. 轮询选择
	worker, _ := pool.SelectNext()
	res.Worker = worker.Name()
	if d.recorder != nil {
		d.recorder.RecordSelection(poolName, res.Worker)
	}

	// 4. 委派给 worker，失败不换 worker 不换 pool
	wctx, wspan := d.tracer.Start(ctx, "dispatch.worker",
		trace.WithAttributes(
			attribute.String("dispatch.pool", poolName),
			attribute.String("dispatch.worker", res.Worker),
		))
	resp, err := worker.Handle(wctx, req)
	if err != nil {
		wspan.RecordError(err)
		wspan.SetStatus(codes.Error, "worker failed")
		wspan.End()
		return &WorkerFailure{
			Pool:       poolName,
			Worker:     res.Worker,
			RoutingKey: res.RoutingKey,
			Cause:      err,
		}
	}
	wspan.End()

	if resp == nil {
		resp = &Response{}
	}
	res.Response = resp
	return nil
}

func (d *Dispatcher) classify(ctx context.Context, text string) ([]Label, error) {
	labels := make([]Label, len(d.classifiers))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range d.classifiers {
		g.Go(func() error {
			cctx, span := d.tracer.Start(gctx, "dispatch.classify",
				trace.WithAttributes(attribute.String("dispatch.dimension", c.Dimension.Name)))
			defer span.End()

			start := time.Now()
			label, err := c.Classify(cctx, text)
			status := StatusOK
			if err != nil {
				status = statusOf(err)
				span.RecordError(err)
				span.SetStatus(codes.Error, status)
			}
			if d.recorder != nil {
				d.recorder.RecordClassification(c.Dimension.Name, string(label), status, time.Since(start))
			}
			if err != nil {
				return err
			}
			labels[i] = label
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !types.IsErrorCode(err, types.ErrUnrecognizedLabel) {
			return nil, types.NewError(types.ErrCancelled, "dispatch cancelled during classification").WithCause(err)
		}
		return nil, err
	}
	return labels, nil
}

func (d *Dispatcher) finish(ctx context.Context, req *Request, res *Result, status string, err error) {
	if d.recorder != nil {
		d.recorder.RecordDispatch(res.Pool, status, res.Duration)
	}

	fields := []zap.Field{
		zap.String("request_id", res.RequestID),
		zap.String("routing_key", res.RoutingKey.String()),
		zap.String("pool", res.Pool),
		zap.String("worker", res.Worker),
		zap.Duration("duration", res.Duration),
	}
	if err != nil {
		d.logger.Warn("dispatch failed", append(fields, zap.String("status", status), zap.Error(err))...)
	} else {
		d.logger.Debug("dispatched", fields...)
	}

	if d.audit == nil {
		return
	}
	entry := AuditEntry{
		RequestID:  res.RequestID,
		RoutingKey: res.RoutingKey.String(),
		Pool:       res.Pool,
		Worker:     res.Worker,
		Status:     status,
		Duration:   res.Duration,
		Timestamp:  time.Now(),
	}
	if req != nil {
		entry.SessionID = req.SessionID
	}
	if tenant, ok := types.TenantID(ctx); ok {
		entry.TenantID = tenant
	}
	if err != nil {
		entry.Error = err.Error()
	}
	d.audit.Record(context.WithoutCancel(ctx), entry)
}

// statusOf returns the error code for metrics and audit, lowercased.
func statusOf(err error) string {
	if code := types.GetErrorCode(err); code != "" {
		return strings.ToLower(string(code))
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "error"
}
