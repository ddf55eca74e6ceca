package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrouter/dispatch"
)

// Inserter 批量写入审计记录，*Store 实现此接口
type Inserter interface {
	Insert(ctx context.Context, records []Record) error
}

// Config Writer 配置
type Config struct {
	QueueSize     int           `yaml:"queue_size" json:"queue_size" env:"QUEUE_SIZE"`
	BatchSize     int           `yaml:"batch_size" json:"batch_size" env:"BATCH_SIZE"`
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval" env:"FLUSH_INTERVAL"`
	WriteTimeout  time.Duration `yaml:"write_timeout" json:"write_timeout" env:"WRITE_TIMEOUT"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		QueueSize:     10000,
		BatchSize:     100,
		FlushInterval: time.Second,
		WriteTimeout:  5 * time.Second,
	}
}

// Stats Writer 运行统计
type Stats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// Writer 异步批量写入审计记录，实现 dispatch.AuditSink
type Writer struct {
	store  Inserter
	cfg    Config
	logger *zap.Logger

	queue chan Record
	wg    sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

var _ dispatch.AuditSink = (*Writer)(nil)

// NewWriter 创建 Writer 并启动后台写入
func NewWriter(store Inserter, cfg Config, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	w := &Writer{
		store:  store,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "audit_writer")),
		queue:  make(chan Record, cfg.QueueSize),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// Record 实现 dispatch.AuditSink；队列已满或已关闭时丢弃
func (w *Writer) Record(_ context.Context, entry dispatch.AuditEntry) {
	w.closeMu.RLock()
	defer w.closeMu.RUnlock()

	if w.closed {
		w.dropped.Add(1)
		return
	}
	select {
	case w.queue <- FromEntry(entry):
	default:
		w.dropped.Add(1)
		w.logger.Warn("audit queue full, dropping entry", zap.String("request_id", entry.RequestID))
	}
}

func (w *Writer) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, w.cfg.BatchSize)
	for {
		select {
		case rec, ok := <-w.queue:
			if !ok {
				w.flush(batch)
				return
			}
			batch = append(batch, rec)
			if len(batch) >= w.cfg.BatchSize {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (w *Writer) flush(batch []Record) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.WriteTimeout)
	defer cancel()

	if err := w.store.Insert(ctx, batch); err != nil {
		w.failed.Add(uint64(len(batch)))
		w.logger.Error("audit flush failed", zap.Int("records", len(batch)), zap.Error(err))
		return
	}
	w.written.Add(uint64(len(batch)))
}

// Stats 返回写入统计
func (w *Writer) Stats() Stats {
	return Stats{
		Written: w.written.Load(),
		Dropped: w.dropped.Load(),
		Failed:  w.failed.Load(),
	}
}

// Close 停止接收新条目并写完队列中剩余的记录
func (w *Writer) Close() error {
	w.closeMu.Lock()
	if w.closed {
		w.closeMu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.closeMu.Unlock()

	w.wg.Wait()
	s := w.Stats()
	w.logger.Info("audit writer closed",
		zap.Uint64("written", s.Written),
		zap.Uint64("dropped", s.Dropped),
		zap.Uint64("failed", s.Failed),
	)
	return nil
}
