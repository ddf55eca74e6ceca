package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var (
	testUrgency = NewDimension("urgency", "urgent", "normal")
	testTopic   = NewDimension("topic", "credit_card", "account", "loan", "general")
)

// echoWorker answers with its own name.
type echoWorker struct {
	name string
	err  error

	mu       sync.Mutex
	sessions []string
}

func newEcho(name string) *echoWorker { return &echoWorker{name: name} }

func (w *echoWorker) Name() string { return w.name }

func (w *echoWorker) Handle(_ context.Context, req *Request) (*Response, error) {
	w.mu.Lock()
	w.sessions = append(w.sessions, req.SessionID)
	w.mu.Unlock()
	if w.err != nil {
		return nil, w.err
	}
	return &Response{Content: fmt.Sprintf("%s handled %q", w.name, req.Text)}, nil
}

func echoWorkers(prefix string, n int) []Worker {
	ws := make([]Worker, n)
	for i := range ws {
		ws[i] = newEcho(fmt.Sprintf("%s_%d", prefix, i+1))
	}
	return ws
}

// fixedClassifier returns a fixed raw label per dimension name.
func fixedClassifier(labels map[string]string) Classifier {
	return ClassifierFunc(func(_ context.Context, _ string, dim Dimension) (string, error) {
		return labels[dim.Name], nil
	})
}

func dims(c Classifier, ds ...Dimension) []DimensionClassifier {
	out := make([]DimensionClassifier, len(ds))
	for i, d := range ds {
		out[i] = DimensionClassifier{Dimension: d, Classifier: c}
	}
	return out
}

// captureRecorder is an in-memory Recorder.
type captureRecorder struct {
	mu              sync.Mutex
	classifications []string
	selections      []string
	dispatches      []string
}

func (r *captureRecorder) RecordClassification(dimension, label, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classifications = append(r.classifications, dimension+"="+label+":"+status)
}

func (r *captureRecorder) RecordSelection(pool, worker string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selections = append(r.selections, pool+"/"+worker)
}

func (r *captureRecorder) RecordDispatch(pool, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatches = append(r.dispatches, pool+":"+status)
}

// captureAudit is an in-memory AuditSink.
type captureAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (a *captureAudit) Record(_ context.Context, e AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}
