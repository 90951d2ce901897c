package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonwraymond/llmgate/fault"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is blocking all requests.
	StateOpen
	// StateHalfOpen means the circuit is testing if the downstream recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening.
	// Default: 5
	MaxFailures int

	// ResetTimeout is the cooldown before a half-open probe is allowed.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// OnStateChange is called when the circuit state changes. It runs
	// outside the breaker's lock, so it may call back into the breaker.
	OnStateChange func(from, to State)

	// IsFailure determines if an error should count as a failure.
	// Default: all non-nil errors except cancellation and fast rejections.
	IsFailure func(err error) bool
}

// CircuitBreaker implements the circuit breaker pattern for one identifier.
//
// At most one half-open probe is in flight at a time: the probe slot is
// claimed under the breaker's lock before the trial call is dispatched.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probing     bool
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	// Apply defaults
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.IsFailure == nil {
		config.IsFailure = defaultIsFailure
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}
}

// defaultIsFailure counts downstream failures only. Caller cancellation and
// the layer's own fast rejections must not trip the breaker.
func defaultIsFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return fault.Classify(err) != fault.ClassRejected
}

// Execute runs the operation through the circuit breaker. When the circuit
// is open and the cooldown has not expired it returns fault.ErrCircuitOpen
// without dispatching the operation.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if op == nil {
		return ErrNilOperation
	}

	probe, t, err := cb.beforeRequest()
	cb.notify(t)
	if err != nil {
		return err
	}

	err = op(ctx)
	cb.notify(cb.afterRequest(probe, err))
	return err
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	state, t := cb.currentStateLocked()
	cb.mu.Unlock()

	cb.notify(t)
	return state
}

// Reset forces the breaker back to closed and clears its failure counter.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	oldState := cb.state
	cb.state = StateClosed
	cb.failures = 0
	cb.probing = false
	cb.mu.Unlock()

	if oldState != StateClosed {
		cb.notify(&transition{from: oldState, to: StateClosed})
	}
}

// transition is a state change observed under the lock and delivered to the
// OnStateChange hook after it is released.
type transition struct {
	from, to State
}

// notify delivers a transition to the hook. Must be called without cb.mu
// held so a reentrant hook cannot deadlock.
func (cb *CircuitBreaker) notify(t *transition) {
	if t != nil && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(t.from, t.to)
	}
}

// beforeRequest admits or rejects a call. The bool return marks the call as
// the half-open trial probe.
func (cb *CircuitBreaker) beforeRequest() (bool, *transition, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state, t := cb.currentStateLocked()
	switch state {
	case StateOpen:
		return false, t, fault.ErrCircuitOpen
	case StateHalfOpen:
		if cb.probing {
			// Another caller holds the probe slot
			return false, t, fault.ErrCircuitOpen
		}
		cb.probing = true
		return true, t, nil
	}

	return false, t, nil
}

func (cb *CircuitBreaker) afterRequest(probe bool, err error) *transition {
	isFailure := cb.config.IsFailure(err)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	oldState := cb.state

	switch cb.state {
	case StateClosed:
		if isFailure {
			cb.failures++
			cb.lastFailure = time.Now()
			if cb.failures >= cb.config.MaxFailures {
				cb.state = StateOpen
			}
		} else {
			// Consecutive counting: any success clears the streak
			cb.failures = 0
		}

	case StateHalfOpen:
		if !probe {
			break
		}
		cb.probing = false
		if isFailure {
			// Probe failed: reopen with a fresh cooldown window
			cb.lastFailure = time.Now()
			cb.state = StateOpen
		} else {
			cb.state = StateClosed
			cb.failures = 0
		}
	}

	if oldState != cb.state {
		return &transition{from: oldState, to: cb.state}
	}
	return nil
}

func (cb *CircuitBreaker) currentStateLocked() (State, *transition) {
	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.config.ResetTimeout {
		cb.state = StateHalfOpen
		cb.probing = false
		return cb.state, &transition{from: StateOpen, to: StateHalfOpen}
	}
	return cb.state, nil
}

// CircuitBreakerMetrics contains circuit breaker statistics.
type CircuitBreakerMetrics struct {
	State       State
	Failures    int
	LastFailure time.Time
}

// Metrics returns current circuit breaker metrics.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	state, t := cb.currentStateLocked()
	m := CircuitBreakerMetrics{
		State:       state,
		Failures:    cb.failures,
		LastFailure: cb.lastFailure,
	}
	cb.mu.Unlock()

	cb.notify(t)
	return m
}

// BreakerRegistry tracks one circuit breaker per downstream identifier
// (e.g. "chat.completions", "images.generate"). Breakers are created lazily
// on first use, each with its own lock so identifiers never contend.
type BreakerRegistry struct {
	config CircuitBreakerConfig

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker

	// OnStateChange, if set, receives transitions for every identifier.
	onStateChange func(identifier string, from, to State)
}

// BreakerRegistryOption configures a BreakerRegistry.
type BreakerRegistryOption func(*BreakerRegistry)

// WithStateChangeHook registers a hook receiving every identifier's
// state transitions.
func WithStateChangeHook(fn func(identifier string, from, to State)) BreakerRegistryOption {
	return func(r *BreakerRegistry) {
		r.onStateChange = fn
	}
}

// NewBreakerRegistry creates a registry whose breakers share one config.
func NewBreakerRegistry(config CircuitBreakerConfig, opts ...BreakerRegistryOption) *BreakerRegistry {
	r := &BreakerRegistry{
		config:   config,
		breakers: make(map[string]*CircuitBreaker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs the operation through the breaker for the given identifier.
func (r *BreakerRegistry) Execute(ctx context.Context, identifier string, op func(context.Context) error) error {
	return r.breaker(identifier).Execute(ctx, op)
}

// State returns the current state for an identifier. Unknown identifiers
// report closed, matching the state a lazily created breaker would start in.
func (r *BreakerRegistry) State(identifier string) State {
	r.mu.RLock()
	cb, ok := r.breakers[identifier]
	r.mu.RUnlock()

	if !ok {
		return StateClosed
	}
	return cb.State()
}

// Reset forces a single identifier back to closed.
func (r *BreakerRegistry) Reset(identifier string) {
	r.mu.RLock()
	cb, ok := r.breakers[identifier]
	r.mu.RUnlock()

	if ok {
		cb.Reset()
	}
}

// ResetAll forces every tracked identifier back to closed and clears the
// failure counters. Operator control for manual recovery.
func (r *BreakerRegistry) ResetAll() {
	r.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.RUnlock()

	for _, cb := range breakers {
		cb.Reset()
	}
}

// States reports the current state of every tracked identifier.
func (r *BreakerRegistry) States() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make(map[string]State, len(r.breakers))
	for id, cb := range r.breakers {
		states[id] = cb.State()
	}
	return states
}

func (r *BreakerRegistry) breaker(identifier string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[identifier]
	r.mu.RUnlock()

	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok = r.breakers[identifier]; ok {
		return cb
	}

	cfg := r.config
	if r.onStateChange != nil {
		id := identifier
		hook := r.onStateChange
		prev := cfg.OnStateChange
		cfg.OnStateChange = func(from, to State) {
			if prev != nil {
				prev(from, to)
			}
			hook(id, from, to)
		}
	}

	cb = NewCircuitBreaker(cfg)
	r.breakers[identifier] = cb
	return cb
}
