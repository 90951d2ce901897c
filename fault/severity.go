package fault

import (
	"context"

	"github.com/jonwraymond/llmgate/observe"
)

// Severity grades how urgently a failure needs operator attention.
type Severity int

const (
	// SeverityInfo marks expected, recoverable events.
	SeverityInfo Severity = iota
	// SeverityWarning marks failures handled automatically (retries, fallbacks).
	SeverityWarning
	// SeverityError marks failures surfaced to the caller.
	SeverityError
	// SeverityCritical marks failures that need immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// SeverityOf maps a failure class to its default logging severity.
// Transient failures are warnings (the retry engine handles them);
// everything surfaced to the caller is at least an error.
func SeverityOf(err error) Severity {
	switch Classify(err) {
	case ClassTransient:
		return SeverityWarning
	case ClassRejected:
		return SeverityInfo
	case ClassUnavailable:
		return SeverityCritical
	default:
		return SeverityError
	}
}

// Reporter logs classified failures through a structured logger before they
// propagate. Components use it to honor the log-before-rethrow policy.
type Reporter struct {
	logger observe.Logger
}

// NewReporter creates a Reporter writing to the given logger.
func NewReporter(logger observe.Logger) *Reporter {
	return &Reporter{logger: logger}
}

// Report logs err at its mapped severity and returns it unchanged, so call
// sites can write `return rep.Report(ctx, err, "...")`.
func (r *Reporter) Report(ctx context.Context, err error, msg string, fields ...observe.Field) error {
	if err == nil {
		return nil
	}

	fields = append(fields,
		observe.Field{Key: "error", Value: err.Error()},
		observe.Field{Key: "class", Value: Classify(err).String()},
	)

	switch SeverityOf(err) {
	case SeverityInfo:
		r.logger.Info(ctx, msg, fields...)
	case SeverityWarning:
		r.logger.Warn(ctx, msg, fields...)
	case SeverityCritical:
		r.logger.Critical(ctx, msg, fields...)
	default:
		r.logger.Error(ctx, msg, fields...)
	}

	return err
}

// ReportAt logs err at an explicit severity, overriding the classified
// default, and returns it unchanged.
func (r *Reporter) ReportAt(ctx context.Context, sev Severity, err error, msg string, fields ...observe.Field) error {
	if err == nil {
		return nil
	}

	fields = append(fields, observe.Field{Key: "error", Value: err.Error()})

	switch sev {
	case SeverityInfo:
		r.logger.Info(ctx, msg, fields...)
	case SeverityWarning:
		r.logger.Warn(ctx, msg, fields...)
	case SeverityCritical:
		r.logger.Critical(ctx, msg, fields...)
	default:
		r.logger.Error(ctx, msg, fields...)
	}

	return err
}
