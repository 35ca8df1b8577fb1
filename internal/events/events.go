// Package events delivers pool event records to one or more sinks.
package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"poolGuard/internal/model"
)

// Sink receives committed events in emission order.
type Sink interface {
	Emit(ctx context.Context, records ...model.EventRecord) error
}

// Multi fans records out to every sink, joining their errors.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, records ...model.EventRecord) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Emit(ctx, records...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes each record as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, records ...model.EventRecord) error {
	for _, r := range records {
		s.logger.Info("pool event",
			zap.String("pool", r.PoolID),
			zap.String("event", r.EventName),
			zap.Uint64("ts", r.Timestamp),
			zap.Any("data", r.Decoded),
		)
	}
	return nil
}

// Recorder keeps records in memory.
type Recorder struct {
	mu      sync.Mutex
	records []model.EventRecord
}

func (r *Recorder) Emit(_ context.Context, records ...model.EventRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, records...)
	return nil
}

// Records returns a copy of everything emitted so far.
func (r *Recorder) Records() []model.EventRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Names lists the event names emitted so far, in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.records))
	for i, rec := range r.records {
		names[i] = rec.EventName
	}
	return names
}
