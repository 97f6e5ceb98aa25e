// Package audit writes a JSONL trail of analyze requests to a
// size-rotated file. Events buffer in memory and flush on a short timer,
// on buffer pressure, and on Close. Queries are stored as hashes, never as
// text.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/iron-birch/winnow/internal/config"
)

const (
	flushEvery  = time.Second
	bufferLimit = 64
)

// Event is one audited analyze request.
type Event struct {
	Time           time.Time
	ConversationID string
	QueryHash      string
	TotalRecords   int
	Surviving      int
	CostReduction  float64
	TokensUsed     int
	CostUSD        float64
	Duration       time.Duration
	Outcome        string // ok, no_match, too_large, bad_request, error
}

// HashQuery returns the hex SHA-256 of a query string.
func HashQuery(q string) string {
	sum := sha256.Sum256([]byte(q))
	return hex.EncodeToString(sum[:])
}

// Trail is the audit writer. A nil Trail is valid and discards everything,
// so callers carry no enabled checks.
type Trail struct {
	log       *zap.Logger
	mu        sync.Mutex
	buf       []Event
	ticker    *time.Ticker
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New opens the trail at cfg.Path with size-based rotation. Returns a nil
// Trail when auditing is disabled.
func New(cfg config.AuditConfig) (*Trail, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	enc := zapcore.EncoderConfig{
		TimeKey:        "ts",
		MessageKey:     "event",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(rotator), zapcore.InfoLevel)

	t := &Trail{
		log:    zap.New(core),
		buf:    make([]Event, 0, bufferLimit),
		ticker: time.NewTicker(flushEvery),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go t.flushLoop()
	return t, nil
}

// Record buffers one event, flushing when the buffer fills. The event time
// defaults to now.
func (t *Trail) Record(e Event) {
	if t == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, e)
	if len(t.buf) >= bufferLimit {
		t.flushLocked()
	}
}

// Sync drains the buffer to disk.
func (t *Trail) Sync() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	t.flushLocked()
	t.mu.Unlock()
	return t.log.Sync()
}

// Close stops the flush loop and drains the buffer. Safe to call twice.
func (t *Trail) Close() error {
	if t == nil {
		return nil
	}
	t.closeOnce.Do(func() {
		close(t.stop)
		<-t.done
		t.ticker.Stop()
	})
	return t.Sync()
}

func (t *Trail) flushLoop() {
	defer close(t.done)
	for {
		select {
		case <-t.ticker.C:
			t.mu.Lock()
			t.flushLocked()
			t.mu.Unlock()
		case <-t.stop:
			return
		}
	}
}

func (t *Trail) flushLocked() {
	for _, e := range t.buf {
		t.log.Info("analyze",
			zap.Time("time", e.Time),
			zap.String("conversation_id", e.ConversationID),
			zap.String("query_sha256", e.QueryHash),
			zap.Int("total_records", e.TotalRecords),
			zap.Int("surviving_records", e.Surviving),
			zap.Float64("cost_reduction", e.CostReduction),
			zap.Int("llm_tokens", e.TokensUsed),
			zap.Float64("llm_cost_usd", e.CostUSD),
			zap.Duration("duration", e.Duration),
			zap.String("outcome", e.Outcome),
		)
	}
	t.buf = t.buf[:0]
}
