package degrade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/llmgate/fault"
	"github.com/jonwraymond/llmgate/observe"
)

// ServiceStatus describes the health of one downstream service. Created on
// first registration, updated for the process lifetime, never deleted.
type ServiceStatus struct {
	Available   bool
	LastChecked time.Time
	ErrorCount  int
	LastError   string
}

// Operation is a real downstream call producing a result.
type Operation func(ctx context.Context) (any, error)

// Generator synthesizes a degraded-mode result for a service.
type Generator func(ctx context.Context) (any, error)

// Prober checks whether a downstream has recovered. Probers are shareable
// health checks, not user requests, so concurrent probes are deduplicated.
type Prober func(ctx context.Context) error

// Config configures the Manager.
type Config struct {
	// MockDisabled turns off mock fallbacks: degraded calls fail with
	// fault.ErrNoFallback instead of serving a registered generator. The
	// zero value serves mocks, the documented default.
	MockDisabled bool

	// ProbeInterval is how often unavailable services with probers are
	// re-checked, and the minimum age of a degraded status before
	// ExecuteWithFallback re-attempts the primary. Default: 30 seconds.
	ProbeInterval time.Duration
}

// Overrides carries partial configuration updates for operator control.
// Nil fields are left unchanged.
type Overrides struct {
	MockEnabled   *bool
	ProbeInterval *time.Duration
}

// service bundles one downstream's status with its mock and prober. Each
// service has its own lock so unrelated services never contend.
type service struct {
	name string

	mu       sync.Mutex
	status   ServiceStatus
	trialing bool

	mock   Generator
	prober Prober
}

// Manager tracks per-service health and serves fallbacks.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	services map[string]*service

	probes singleflight.Group
	logger observe.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger used for degradation events.
func WithLogger(logger observe.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager.
func NewManager(cfg Config, opts ...ManagerOption) *Manager {
	// Apply defaults
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 30 * time.Second
	}

	m := &Manager{
		cfg:      cfg,
		services: make(map[string]*service),
		logger:   observe.NopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ServiceOption configures a registered service.
type ServiceOption func(*service)

// WithProber registers a recovery probe for the service.
func WithProber(p Prober) ServiceOption {
	return func(s *service) {
		s.prober = p
	}
}

// Register adds a service with its mock generator. Registering an existing
// name replaces the mock and prober but keeps the accumulated status.
func (m *Manager) Register(name string, mock Generator, opts ...ServiceOption) {
	m.mu.Lock()
	defer m.mu.Unlock()

	svc, ok := m.services[name]
	if !ok {
		svc = &service{
			name: name,
			status: ServiceStatus{
				Available:   true,
				LastChecked: time.Now(),
			},
		}
		m.services[name] = svc
	}

	svc.mu.Lock()
	svc.mock = mock
	svc.mu.Unlock()

	for _, opt := range opts {
		opt(svc)
	}
}

// Configure applies a partial configuration update. Operator control, not
// part of the hot request path.
func (m *Manager) Configure(o Overrides) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o.MockEnabled != nil {
		m.cfg.MockDisabled = !*o.MockEnabled
	}
	if o.ProbeInterval != nil && *o.ProbeInterval > 0 {
		m.cfg.ProbeInterval = *o.ProbeInterval
	}
}

// MockEnabled reports whether mock fallbacks are currently served.
func (m *Manager) MockEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.cfg.MockDisabled
}

func (m *Manager) probeInterval() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.ProbeInterval
}

// IsAvailable reports whether a service is believed healthy. Unregistered
// services report available so the first real call is always attempted.
func (m *Manager) IsAvailable(name string) bool {
	svc := m.lookup(name)
	if svc == nil {
		return true
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.status.Available
}

// Status returns the current status for a service.
func (m *Manager) Status(name string) (ServiceStatus, error) {
	svc := m.lookup(name)
	if svc == nil {
		return ServiceStatus{}, ErrServiceNotFound
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.status, nil
}

// MarkAvailable marks a service healthy, clearing its error streak.
func (m *Manager) MarkAvailable(name string) {
	svc := m.lookup(name)
	if svc == nil {
		return
	}
	svc.heal()
}

// MarkUnavailable marks a service unhealthy with the given reason.
func (m *Manager) MarkUnavailable(name string, reason string) {
	svc := m.lookup(name)
	if svc == nil {
		return
	}
	svc.fail(reason)
}

// ExecuteWithFallback runs the primary call when the service is believed
// healthy, updating its status from the outcome, and serves the registered
// mock generator when it is not. Once a degraded status is older than
// ProbeInterval, the next call re-attempts the primary; concurrent callers
// are not stacked onto the trial, they get the mock. A service failure with
// mock mode disabled or no registered mock surfaces fault.ErrNoFallback
// wrapping the cause.
func (m *Manager) ExecuteWithFallback(ctx context.Context, name string, primary Operation) (any, error) {
	svc := m.ensure(name)

	if !m.IsAvailable(name) {
		if svc.claimTrial(m.probeInterval()) {
			return m.trial(ctx, svc, primary)
		}
		// Short-circuit: don't add load to a downstream already failing
		return m.fallback(ctx, svc, fmt.Errorf("service %s is degraded: %s", name, svc.lastError()))
	}

	result, err := primary(ctx)
	if err == nil {
		// One success fully heals a previously degraded service
		svc.heal()
		return result, nil
	}

	// Caller cancellation says nothing about downstream health and must
	// not be answered with a mock.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	svc.fail(err.Error())
	m.logger.Warn(ctx, "downstream call failed, degrading service",
		observe.Field{Key: "service", Value: name},
		observe.Field{Key: "error", Value: err.Error()},
		observe.Field{Key: "error_count", Value: svc.errorCount()},
	)

	return m.fallback(ctx, svc, err)
}

// trial runs one recovery attempt against the primary on behalf of the
// caller that claimed it. Success heals the service; failure refreshes the
// degraded status so the next trial waits a full ProbeInterval again.
func (m *Manager) trial(ctx context.Context, svc *service, primary Operation) (any, error) {
	result, err := primary(ctx)
	svc.endTrial()

	if err == nil {
		svc.heal()
		m.logger.Info(ctx, "service recovered on retried call",
			observe.Field{Key: "service", Value: svc.name},
		)
		return result, nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	svc.fail(err.Error())
	return m.fallback(ctx, svc, err)
}

// Probe re-checks an unavailable service through its registered prober.
// Concurrent probes for the same service share a single downstream call.
// A successful probe marks the service available.
func (m *Manager) Probe(ctx context.Context, name string) error {
	svc := m.lookup(name)
	if svc == nil {
		return ErrServiceNotFound
	}
	if svc.prober == nil {
		return ErrNoProber
	}

	_, perr, _ := m.probes.Do(name, func() (any, error) {
		return nil, svc.prober(ctx)
	})

	if perr != nil {
		svc.fail(perr.Error())
		m.logger.Warn(ctx, "recovery probe failed",
			observe.Field{Key: "service", Value: name},
			observe.Field{Key: "error", Value: perr.Error()},
		)
		return perr
	}

	svc.heal()
	m.logger.Info(ctx, "service recovered via probe",
		observe.Field{Key: "service", Value: name},
	)
	return nil
}

// Start runs the recovery loop: every ProbeInterval, unavailable services
// with probers are re-checked. Blocks until ctx is cancelled; run it in its
// own goroutine.
func (m *Manager) Start(ctx context.Context) {
	for {
		m.mu.RLock()
		interval := m.cfg.ProbeInterval
		m.mu.RUnlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		for _, name := range m.unavailableWithProbers() {
			_ = m.Probe(ctx, name)
		}
	}
}

func (m *Manager) unavailableWithProbers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name, svc := range m.services {
		svc.mu.Lock()
		degraded := !svc.status.Available
		svc.mu.Unlock()
		if degraded && svc.prober != nil {
			names = append(names, name)
		}
	}
	return names
}

func (m *Manager) fallback(ctx context.Context, svc *service, cause error) (any, error) {
	svc.mu.Lock()
	mock := svc.mock
	svc.mu.Unlock()

	if !m.MockEnabled() || mock == nil {
		err := fmt.Errorf("%w: %s: %v", fault.ErrNoFallback, svc.name, cause)
		m.logger.Critical(ctx, "degraded service has no fallback",
			observe.Field{Key: "service", Value: svc.name},
			observe.Field{Key: "error", Value: cause.Error()},
		)
		return nil, err
	}

	result, err := mock(ctx)
	if err != nil {
		// Injected mock failure: surfaced so degraded mode stays realistic
		m.logger.Warn(ctx, "mock generator failed",
			observe.Field{Key: "service", Value: svc.name},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return nil, err
	}

	m.logger.Info(ctx, "serving degraded mock response",
		observe.Field{Key: "service", Value: svc.name},
	)
	return result, nil
}

func (m *Manager) lookup(name string) *service {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.services[name]
}

// ensure returns the service entry, creating a mockless one for names used
// before registration.
func (m *Manager) ensure(name string) *service {
	if svc := m.lookup(name); svc != nil {
		return svc
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if svc, ok := m.services[name]; ok {
		return svc
	}

	svc := &service{
		name: name,
		status: ServiceStatus{
			Available:   true,
			LastChecked: time.Now(),
		},
	}
	m.services[name] = svc
	return svc
}

func (s *service) heal() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.Available = true
	s.status.ErrorCount = 0
	s.status.LastError = ""
	s.status.LastChecked = time.Now()
}

func (s *service) fail(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.Available = false
	s.status.ErrorCount++
	s.status.LastError = reason
	s.status.LastChecked = time.Now()
}

// claimTrial reserves the single recovery attempt for a degraded status
// older than interval. At most one caller holds the claim at a time.
func (s *service) claimTrial(interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Available || s.trialing {
		return false
	}
	if time.Since(s.status.LastChecked) < interval {
		return false
	}
	s.trialing = true
	return true
}

func (s *service) endTrial() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trialing = false
}

func (s *service) lastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.LastError
}

func (s *service) errorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.ErrorCount
}
