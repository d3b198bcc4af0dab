// Package sinks delivers match decisions to downstream stores
package sinks

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Sink persists or forwards a batch of decisions
type Sink interface {
	Name() string
	Write(ctx context.Context, decisions []models.MatchDecision) error
	Close() error
}

// FanOut writes every batch to each sink in order. All sinks are attempted; the first
// error is returned after the rest have been tried.
type FanOut struct {
	sinks  []Sink
	logger ectologger.Logger
}

func NewFanOut(logger ectologger.Logger, sinks ...Sink) *FanOut {
	return &FanOut{sinks: sinks, logger: logger}
}

func (f *FanOut) Name() string {
	return "fanout"
}

// Add appends a sink
func (f *FanOut) Add(sink Sink) {
	f.sinks = append(f.sinks, sink)
}

// Len returns the number of wrapped sinks
func (f *FanOut) Len() int {
	return len(f.sinks)
}

func (f *FanOut) Write(ctx context.Context, decisions []models.MatchDecision) error {
	ctx, span := tracing.StartSpan(ctx, "sinks.FanOut.Write")
	defer span.End()

	if len(decisions) == 0 {
		return nil
	}

	var first error
	for _, sink := range f.sinks {
		start := time.Now()
		err := sink.Write(ctx, decisions)

		log := f.logger.WithContext(ctx).WithFields(map[string]any{
			"sink":      sink.Name(),
			"decisions": len(decisions),
			"duration":  time.Since(start).String(),
		})
		if err != nil {
			metrics.SinkWritesTotal.WithLabelValues(sink.Name(), "error").Inc()
			log.WithError(err).Error("Failed to write decisions to sink")
			if first == nil {
				first = errors.Wrapf(err, "sink %s", sink.Name())
			}
			continue
		}
		metrics.SinkWritesTotal.WithLabelValues(sink.Name(), "success").Inc()
		log.Debug("Wrote decisions to sink")
	}
	return first
}

func (f *FanOut) Close() error {
	var first error
	for _, sink := range f.sinks {
		if err := sink.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "failed to close sink %s", sink.Name())
		}
	}
	return first
}
