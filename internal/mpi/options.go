package mpi

import (
	"log/slog"

	"github.com/roach88/mpisim/internal/trace"
)

// Option configures a World.
type Option func(*World)

// WithStrict makes the first reported diagnostic abort the whole World.
//
// Default: false (report and continue).
func WithStrict(strict bool) Option {
	return func(w *World) {
		w.strict = strict
	}
}

// WithReporter replaces the diagnostic sink. The default sink logs every
// diagnostic at error level on the World's logger.
//
// The reporter may be called while the World lock is held: it must not call
// back into the World.
func WithReporter(r Reporter) Option {
	return func(w *World) {
		w.reporter = r
	}
}

// WithLogger sets the structured logger used for lifecycle and debug output.
func WithLogger(l *slog.Logger) Option {
	return func(w *World) {
		w.logger = l
	}
}

// WithRecorder sets the recorder that receives every coordination event.
func WithRecorder(r trace.Recorder) Option {
	return func(w *World) {
		w.recorder = r
	}
}

// WithViewSink receives every frame a participant completes with EndScene.
func WithViewSink(s ViewSink) Option {
	return func(w *World) {
		w.views = s
	}
}

// Reporter is the diagnostic sink.
type Reporter interface {
	Report(*Error)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(*Error)

// Report calls f(e).
func (f ReporterFunc) Report(e *Error) { f(e) }

// logReporter is the default sink.
type logReporter struct {
	logger *slog.Logger
}

func (r logReporter) Report(e *Error) {
	attrs := []any{
		"code", string(e.Code),
		"rank", e.Rank,
	}
	if e.Caller != "" {
		attrs = append(attrs, "caller", e.Caller)
	}
	if len(e.Chain) > 0 {
		attrs = append(attrs, "chain", e.Chain)
	}
	r.logger.Error(e.Message, attrs...)
}
