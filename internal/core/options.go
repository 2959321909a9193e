package core

import (
	"context"
	"time"

	"sceneselect/pkg/domain"
)

// Logger is the structured logging surface used by the engines. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock. A nil ClockFunc reads the wall clock.
type ClockFunc func() time.Time

// Now returns the current time in UTC.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f().UTC()
}

// DecisionSink receives every decision in evaluation order.
type DecisionSink interface {
	Record(ctx context.Context, d domain.Decision)
}

type discardSink struct{}

func (discardSink) Record(context.Context, domain.Decision) {}

// MetricsRecorder observes decisions and run totals.
type MetricsRecorder interface {
	ObserveDecision(d domain.Decision)
	ObserveRun(duration time.Duration, admitted int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveDecision(domain.Decision) {}
func (noopMetrics) ObserveRun(time.Duration, int)   {}

type options struct {
	logger  Logger
	clock   Clock
	sink    DecisionSink
	metrics MetricsRecorder
	policy  Policy
}

func defaultOptions() options {
	return options{
		logger:  noopLogger{},
		clock:   ClockFunc(nil),
		sink:    discardSink{},
		metrics: noopMetrics{},
		policy:  DefaultPolicy(),
	}
}

// Option configures an Engine or Resolver.
type Option func(*options)

// WithLogger sets the operational logger.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source used for interim wait computations.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithDecisionSink sets where decisions are recorded.
func WithDecisionSink(s DecisionSink) Option {
	return func(o *options) {
		if s != nil {
			o.sink = s
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithPolicy replaces the run policy.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
