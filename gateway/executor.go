package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/llmgate/admission"
	"github.com/jonwraymond/llmgate/degrade"
	"github.com/jonwraymond/llmgate/fault"
	"github.com/jonwraymond/llmgate/observe"
	"github.com/jonwraymond/llmgate/resilience"
)

// Request is one metered downstream call.
type Request struct {
	// UserID keys the admission check.
	UserID string

	// Class is the operation class (chat, image, speech, transcription).
	Class admission.OperationClass

	// Quantity is the billable unit count (messages, images, minutes).
	// Default: 1
	Quantity int64

	// Call performs the downstream operation. The payload stays opaque to
	// this layer.
	Call func(ctx context.Context) (any, error)
}

// Executor is the composition root for the resilience and admission layer.
type Executor struct {
	config Config

	admission *admission.Controller
	degrade   *degrade.Manager
	bulkheads *resilience.BulkheadGroup
	pacers    *resilience.PacerGroup
	breakers  *resilience.BreakerRegistry
	retries   map[admission.OperationClass]*resilience.Retry
	timeouts  map[admission.OperationClass]*resilience.Timeout

	tracer  observe.Tracer
	metrics observe.Metrics
	logger  observe.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithObserver wires the executor's tracer, metrics, and logger from an
// Observer. Metric instrument creation errors fall back to no-op metrics.
func WithObserver(obs observe.Observer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = observe.NewTracer(obs.Tracer())
		e.logger = obs.Logger()
		if m, err := observe.NewMetrics(obs.Meter()); err == nil {
			e.metrics = m
		}
	}
}

// WithTelemetry wires explicit telemetry components.
func WithTelemetry(tracer observe.Tracer, metrics observe.Metrics, logger observe.Logger) ExecutorOption {
	return func(e *Executor) {
		if tracer != nil {
			e.tracer = tracer
		}
		if metrics != nil {
			e.metrics = metrics
		}
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor creates an Executor with per-class limiters built from config.
func NewExecutor(config Config, ctrl *admission.Controller, dm *degrade.Manager, opts ...ExecutorOption) *Executor {
	e := &Executor{
		config:    config,
		admission: ctrl,
		degrade:   dm,
		retries:   make(map[admission.OperationClass]*resilience.Retry),
		timeouts:  make(map[admission.OperationClass]*resilience.Timeout),
		tracer:    observe.NewNoopTracer(),
		metrics:   observe.NopMetrics(),
		logger:    observe.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}

	classes := []admission.OperationClass{
		admission.ClassChat,
		admission.ClassImage,
		admission.ClassSpeech,
		admission.ClassTranscription,
	}

	rates := make(map[string]int, len(classes))
	caps := make(map[string]int, len(classes))
	for _, class := range classes {
		cfg := config.classConfig(class)
		rates[string(class)] = cfg.RequestsPerMinute
		caps[string(class)] = cfg.MaxConcurrent
		e.retries[class] = resilience.NewRetry(cfg.Retry)
		e.timeouts[class] = resilience.NewTimeout(resilience.TimeoutConfig{Timeout: cfg.Timeout})
	}

	e.pacers = resilience.NewPacerGroup(rates)
	e.bulkheads = resilience.NewBulkheadGroup(caps)
	e.breakers = resilience.NewBreakerRegistry(config.Breaker,
		resilience.WithStateChangeHook(func(identifier string, from, to resilience.State) {
			ctx := context.Background()
			e.metrics.RecordBreakerTransition(ctx, identifier, from.String(), to.String())
			e.logger.Warn(ctx, "circuit breaker state changed",
				observe.Field{Key: "breaker.id", Value: identifier},
				observe.Field{Key: "breaker.from", Value: from.String()},
				observe.Field{Key: "breaker.to", Value: to.String()},
			)
		}),
	)

	return e
}

// Do runs one request through the full call path. On downstream failure it
// serves the class's registered mock when the degradation manager permits,
// otherwise the classified error propagates.
func (e *Executor) Do(ctx context.Context, req Request) (any, error) {
	if req.Call == nil {
		return nil, ErrNilCall
	}
	if !req.Class.Valid() {
		return nil, admission.ErrUnknownClass
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	cfg := e.config.classConfig(req.Class)

	meta := observe.OpMeta{
		Class:     string(req.Class),
		Service:   cfg.Service,
		RequestID: uuid.NewString(),
		UserID:    req.UserID,
	}

	ctx, span := e.tracer.StartSpan(ctx, meta)
	start := time.Now()
	opLogger := e.logger.WithOp(meta)

	// Credit check first: a denied user must not consume a concurrency
	// slot, a rate-limiter tick, or a downstream dispatch.
	decision, err := e.admission.Admit(ctx, req.UserID, req.Class, req.Quantity)
	if err != nil {
		if errors.Is(err, fault.ErrInsufficientCredits) {
			e.metrics.RecordDenied(ctx, meta)
		}
		e.metrics.RecordRequest(ctx, meta, time.Since(start), err)
		e.tracer.EndSpan(span, err)
		return nil, err
	}

	var (
		result      any
		realSuccess bool
	)

	guarded := func(ctx context.Context) (any, error) {
		err := e.bulkheads.WithSlot(ctx, string(req.Class), func(ctx context.Context) error {
			if err := e.pacers.Acquire(ctx, string(req.Class)); err != nil {
				return err
			}

			return e.breakers.Execute(ctx, cfg.Identifier, func(ctx context.Context) error {
				res := e.retries[req.Class].Do(ctx, func(ctx context.Context) error {
					// The attempt's value flows back through ExecuteValue,
					// which drops abandoned attempts, so only this goroutine
					// ever writes result. A call that outlives its deadline
					// can never clobber a later attempt's value.
					r, err := e.timeouts[req.Class].ExecuteValue(ctx, req.Call)
					if err == nil {
						result = r
					}
					return err
				})

				e.metrics.RecordRetry(ctx, meta, res.Attempts, res.Recovered())

				if res.Recovered() {
					opLogger.Info(ctx, "downstream recovered after retry",
						observe.Field{Key: "attempts", Value: res.Attempts},
						observe.Field{Key: "total_delay_ms", Value: res.TotalDelay.Milliseconds()},
					)
				}
				if !res.Success && res.Attempts > 1 {
					opLogger.Error(ctx, "retries exhausted",
						observe.Field{Key: "attempts", Value: res.Attempts},
						observe.Field{Key: "error", Value: res.Err.Error()},
					)
				}

				return res.Err
			})
		})
		if err != nil {
			return nil, err
		}

		realSuccess = true
		return result, nil
	}

	value, err := e.degrade.ExecuteWithFallback(ctx, cfg.Service, guarded)

	e.metrics.RecordRequest(ctx, meta, time.Since(start), err)
	e.tracer.EndSpan(span, err)

	if err != nil {
		return nil, fault.NewReporter(opLogger).Report(ctx, err, "request failed")
	}

	if realSuccess {
		// Bill only for real downstream output; a failure to record is
		// logged by the controller, never surfaced.
		e.admission.RecordUsage(req.UserID, req.Class, decision.Required)
	} else {
		e.metrics.RecordFallback(ctx, meta)
		opLogger.Warn(ctx, "served degraded response")
	}

	return value, nil
}

// ResetBreakers forces every circuit breaker back to closed. Operator
// control for manual recovery.
func (e *Executor) ResetBreakers() {
	e.breakers.ResetAll()
}

// BreakerStates reports the current state of every tracked identifier.
func (e *Executor) BreakerStates() map[string]resilience.State {
	return e.breakers.States()
}

// ConfigureDegradation applies a partial degradation-config update.
func (e *Executor) ConfigureDegradation(o degrade.Overrides) {
	e.degrade.Configure(o)
}

// BulkheadMetrics reports concurrency usage for a class.
func (e *Executor) BulkheadMetrics(class admission.OperationClass) resilience.BulkheadMetrics {
	return e.bulkheads.Metrics(string(class))
}
