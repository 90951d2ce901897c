package degrade

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/llmgate/fault"
	"github.com/jonwraymond/llmgate/observe"
)

// recordingLogger captures log levels and messages for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLogger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+": "+msg)
}

func (l *recordingLogger) Debug(ctx context.Context, msg string, fields ...observe.Field) {
	l.log("debug", msg)
}

func (l *recordingLogger) Info(ctx context.Context, msg string, fields ...observe.Field) {
	l.log("info", msg)
}

func (l *recordingLogger) Warn(ctx context.Context, msg string, fields ...observe.Field) {
	l.log("warn", msg)
}

func (l *recordingLogger) Error(ctx context.Context, msg string, fields ...observe.Field) {
	l.log("error", msg)
}

func (l *recordingLogger) Critical(ctx context.Context, msg string, fields ...observe.Field) {
	l.log("critical", msg)
}

func (l *recordingLogger) WithOp(meta observe.OpMeta) observe.Logger { return l }

func (l *recordingLogger) has(entry string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e == entry {
			return true
		}
	}
	return false
}

func TestManager_IsAvailable_Unregistered(t *testing.T) {
	m := NewManager(Config{})

	if !m.IsAvailable("llm") {
		t.Error("IsAvailable(unregistered) = false, want true")
	}
}

func TestManager_MarkUnavailable(t *testing.T) {
	m := NewManager(Config{})
	m.Register("llm", StaticGenerator("mock response"))

	m.MarkUnavailable("llm", "connection refused")

	if m.IsAvailable("llm") {
		t.Error("IsAvailable() = true after MarkUnavailable, want false")
	}

	st, err := m.Status("llm")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", st.ErrorCount)
	}
	if st.LastError != "connection refused" {
		t.Errorf("LastError = %q, want connection refused", st.LastError)
	}
}

func TestManager_MarkAvailableClearsErrors(t *testing.T) {
	m := NewManager(Config{})
	m.Register("llm", StaticGenerator("mock response"))

	m.MarkUnavailable("llm", "connection refused")
	m.MarkUnavailable("llm", "connection refused")
	m.MarkAvailable("llm")

	st, err := m.Status("llm")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !st.Available {
		t.Error("Available = false, want true")
	}
	if st.ErrorCount != 0 {
		t.Errorf("ErrorCount = %d, want 0 (cleared on recovery)", st.ErrorCount)
	}
	if st.LastError != "" {
		t.Errorf("LastError = %q, want empty", st.LastError)
	}
}

func TestManager_Status_Unknown(t *testing.T) {
	m := NewManager(Config{})

	if _, err := m.Status("missing"); !errors.Is(err, ErrServiceNotFound) {
		t.Errorf("Status() error = %v, want ErrServiceNotFound", err)
	}
}

func TestExecuteWithFallback_HealthyPrimary(t *testing.T) {
	m := NewManager(Config{})
	m.Register("llm", StaticGenerator("mock response"))

	got, err := m.ExecuteWithFallback(context.Background(), "llm", func(ctx context.Context) (any, error) {
		return "real response", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithFallback() error = %v", err)
	}
	if got != "real response" {
		t.Errorf("result = %v, want real response", got)
	}
}

func TestExecuteWithFallback_ShortCircuitsWhenDegraded(t *testing.T) {
	m := NewManager(Config{})
	m.Register("llm", StaticGenerator("mock response"))
	m.MarkUnavailable("llm", "connection refused")

	primaryCalled := false
	got, err := m.ExecuteWithFallback(context.Background(), "llm", func(ctx context.Context) (any, error) {
		primaryCalled = true
		return "real response", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithFallback() error = %v", err)
	}
	if primaryCalled {
		t.Error("primary was called for a degraded service")
	}
	if got != "mock response" {
		t.Errorf("result = %v, want mock response", got)
	}
}

func TestExecuteWithFallback_FailureDegradesAndFallsBack(t *testing.T) {
	m := NewManager(Config{})
	m.Register("llm", StaticGenerator("mock response"))

	got, err := m.ExecuteWithFallback(context.Background(), "llm", func(ctx context.Context) (any, error) {
		return nil, errors.New("downstream exploded")
	})
	if err != nil {
		t.Fatalf("ExecuteWithFallback() error = %v", err)
	}
	if got != "mock response" {
		t.Errorf("result = %v, want mock response", got)
	}
	if m.IsAvailable("llm") {
		t.Error("service still available after primary failure")
	}
}

func TestExecuteWithFallback_SuccessHeals(t *testing.T) {
	m := NewManager(Config{})
	m.Register("llm", StaticGenerator("mock response"))
	m.MarkUnavailable("llm", "connection refused")
	m.MarkAvailable("llm")

	_, err := m.ExecuteWithFallback(context.Background(), "llm", func(ctx context.Context) (any, error) {
		return "real response", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithFallback() error = %v", err)
	}

	st, _ := m.Status("llm")
	if !st.Available || st.ErrorCount != 0 {
		t.Errorf("status = %+v, want available with zero errors", st)
	}
}

func TestExecuteWithFallback_MockDisabled(t *testing.T) {
	m := NewManager(Config{MockDisabled: true})
	m.Register("llm", StaticGenerator("mock response"))

	cause := errors.New("downstream exploded")
	_, err := m.ExecuteWithFallback(context.Background(), "llm", func(ctx context.Context) (any, error) {
		return nil, cause
	})
	if !errors.Is(err, fault.ErrNoFallback) {
		t.Errorf("ExecuteWithFallback() error = %v, want ErrNoFallback", err)
	}
}

func TestExecuteWithFallback_NoMockRegistered(t *testing.T) {
	m := NewManager(Config{})

	_, err := m.ExecuteWithFallback(context.Background(), "llm", func(ctx context.Context) (any, error) {
		return nil, errors.New("downstream exploded")
	})
	if !errors.Is(err, fault.ErrNoFallback) {
		t.Errorf("ExecuteWithFallback() error = %v, want ErrNoFallback", err)
	}
}

func TestExecuteWithFallback_CancellationPassesThrough(t *testing.T) {
	m := NewManager(Config{})
	m.Register("llm", StaticGenerator("mock response"))

	_, err := m.ExecuteWithFallback(context.Background(), "llm", func(ctx context.Context) (any, error) {
		return nil, context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ExecuteWithFallback() error = %v, want context.Canceled", err)
	}
	if !m.IsAvailable("llm") {
		t.Error("caller cancellation marked the service unavailable")
	}
}

func TestManager_Configure(t *testing.T) {
	m := NewManager(Config{})
	m.Register("llm", StaticGenerator("mock response"))
	m.MarkUnavailable("llm", "connection refused")

	disabled := false
	m.Configure(Overrides{MockEnabled: &disabled})

	if m.MockEnabled() {
		t.Error("MockEnabled() = true after disabling")
	}

	_, err := m.ExecuteWithFallback(context.Background(), "llm", func(ctx context.Context) (any, error) {
		return nil, errors.New("downstream exploded")
	})
	if !errors.Is(err, fault.ErrNoFallback) {
		t.Errorf("ExecuteWithFallback() error = %v, want ErrNoFallback", err)
	}
}

func TestNewManager_ZeroConfigServesMocks(t *testing.T) {
	m := NewManager(Config{})

	if !m.MockEnabled() {
		t.Fatal("MockEnabled() = false for zero-value config, want true")
	}

	m.Register("llm", StaticGenerator("mock response"))
	m.MarkUnavailable("llm", "connection refused")

	got, err := m.ExecuteWithFallback(context.Background(), "llm", func(ctx context.Context) (any, error) {
		return "real response", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithFallback() error = %v", err)
	}
	if got != "mock response" {
		t.Errorf("result = %v, want mock response", got)
	}
}

func TestExecuteWithFallback_RetriesPrimaryAfterInterval(t *testing.T) {
	m := NewManager(Config{ProbeInterval: 15 * time.Millisecond})
	m.Register("llm", StaticGenerator("mock response"))
	m.MarkUnavailable("llm", "connection refused")

	var calls atomic.Int32
	primary := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return "real response", nil
	}

	// Fresh degraded status: primary skipped
	got, err := m.ExecuteWithFallback(context.Background(), "llm", primary)
	if err != nil {
		t.Fatalf("ExecuteWithFallback() error = %v", err)
	}
	if got != "mock response" || calls.Load() != 0 {
		t.Fatalf("result = %v, primary calls = %d, want mock and no calls", got, calls.Load())
	}

	time.Sleep(30 * time.Millisecond)

	// Status is now older than the interval: the call retries the primary
	got, err = m.ExecuteWithFallback(context.Background(), "llm", primary)
	if err != nil {
		t.Fatalf("ExecuteWithFallback() error = %v", err)
	}
	if got != "real response" || calls.Load() != 1 {
		t.Errorf("result = %v, primary calls = %d, want real response after one call", got, calls.Load())
	}
	if !m.IsAvailable("llm") {
		t.Error("successful recovery attempt left the service unavailable")
	}
}

func TestExecuteWithFallback_FailedRecoveryRestartsWindow(t *testing.T) {
	m := NewManager(Config{ProbeInterval: 50 * time.Millisecond})
	m.Register("llm", StaticGenerator("mock response"))
	m.MarkUnavailable("llm", "connection refused")

	time.Sleep(60 * time.Millisecond)

	var calls atomic.Int32
	primary := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return nil, errors.New("still down")
	}

	got, err := m.ExecuteWithFallback(context.Background(), "llm", primary)
	if err != nil {
		t.Fatalf("ExecuteWithFallback() error = %v", err)
	}
	if got != "mock response" || calls.Load() != 1 {
		t.Fatalf("result = %v, primary calls = %d, want mock after one attempt", got, calls.Load())
	}

	// The failed attempt refreshed the status, so the next call inside the
	// window must not hit the primary again.
	got, err = m.ExecuteWithFallback(context.Background(), "llm", primary)
	if err != nil {
		t.Fatalf("ExecuteWithFallback() error = %v", err)
	}
	if got != "mock response" || calls.Load() != 1 {
		t.Errorf("result = %v, primary calls = %d, want mock with no new attempt", got, calls.Load())
	}
}

func TestExecuteWithFallback_SingleRecoveryAttempt(t *testing.T) {
	m := NewManager(Config{ProbeInterval: 10 * time.Millisecond})
	m.Register("llm", StaticGenerator("mock response"))
	m.MarkUnavailable("llm", "connection refused")

	time.Sleep(20 * time.Millisecond)

	var calls atomic.Int32
	release := make(chan struct{})
	primary := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "real response", nil
	}

	results := make(chan any, 5)
	for i := 0; i < 5; i++ {
		go func() {
			got, err := m.ExecuteWithFallback(context.Background(), "llm", primary)
			if err != nil {
				t.Errorf("ExecuteWithFallback() error = %v", err)
			}
			results <- got
		}()
	}

	// While one caller holds the recovery attempt, the rest get the mock.
	for i := 0; i < 4; i++ {
		if got := <-results; got != "mock response" {
			t.Errorf("concurrent result = %v, want mock response", got)
		}
	}

	close(release)
	if got := <-results; got != "real response" {
		t.Errorf("recovery caller result = %v, want real response", got)
	}
	if calls.Load() != 1 {
		t.Errorf("primary calls = %d, want 1", calls.Load())
	}
	if !m.IsAvailable("llm") {
		t.Error("service not healed by the recovery attempt")
	}
}

func TestManager_Probe(t *testing.T) {
	m := NewManager(Config{})

	var recovered atomic.Bool

	m.Register("llm", StaticGenerator("mock response"), WithProber(func(ctx context.Context) error {
		if !recovered.Load() {
			return errors.New("still down")
		}
		return nil
	}))
	m.MarkUnavailable("llm", "connection refused")

	if err := m.Probe(context.Background(), "llm"); err == nil {
		t.Error("Probe() = nil while downstream is down, want error")
	}
	if m.IsAvailable("llm") {
		t.Error("failed probe marked the service available")
	}

	recovered.Store(true)
	if err := m.Probe(context.Background(), "llm"); err != nil {
		t.Errorf("Probe() = %v after recovery, want nil", err)
	}
	if !m.IsAvailable("llm") {
		t.Error("successful probe left the service unavailable")
	}
}

func TestManager_ProbeFailureLogged(t *testing.T) {
	logs := &recordingLogger{}
	m := NewManager(Config{}, WithLogger(logs))

	m.Register("llm", StaticGenerator("mock response"), WithProber(func(ctx context.Context) error {
		return errors.New("still down")
	}))
	m.MarkUnavailable("llm", "connection refused")

	if err := m.Probe(context.Background(), "llm"); err == nil {
		t.Fatal("Probe() = nil while downstream is down, want error")
	}
	if !logs.has("warn: recovery probe failed") {
		t.Error("failed probe produced no warn log")
	}
}

func TestManager_Probe_NoProber(t *testing.T) {
	m := NewManager(Config{})
	m.Register("llm", StaticGenerator("mock response"))

	if err := m.Probe(context.Background(), "llm"); !errors.Is(err, ErrNoProber) {
		t.Errorf("Probe() = %v, want ErrNoProber", err)
	}
	if err := m.Probe(context.Background(), "missing"); !errors.Is(err, ErrServiceNotFound) {
		t.Errorf("Probe(missing) = %v, want ErrServiceNotFound", err)
	}
}

func TestManager_ProbeDeduplicated(t *testing.T) {
	m := NewManager(Config{})

	var calls atomic.Int32
	release := make(chan struct{})

	m.Register("llm", StaticGenerator("mock response"), WithProber(func(ctx context.Context) error {
		calls.Add(1)
		<-release
		return nil
	}))
	m.MarkUnavailable("llm", "connection refused")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Probe(context.Background(), "llm")
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("prober calls = %d, want 1 (concurrent probes share one check)", got)
	}
}

func TestManager_StartProbesUnavailableServices(t *testing.T) {
	m := NewManager(Config{ProbeInterval: 10 * time.Millisecond})

	var probed atomic.Int32
	m.Register("llm", StaticGenerator("mock response"), WithProber(func(ctx context.Context) error {
		probed.Add(1)
		return nil
	}))
	m.MarkUnavailable("llm", "connection refused")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Start(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for probed.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("recovery loop never probed the degraded service")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancellation")
	}

	if !m.IsAvailable("llm") {
		t.Error("service not healed by the recovery loop")
	}
}

func TestMockGenerator_InjectedFailure(t *testing.T) {
	gen := NewGenerator(GeneratorConfig{SuccessRate: 0.000001}, func(ctx context.Context) (any, error) {
		return "ok", nil
	})

	failed := false
	for i := 0; i < 50; i++ {
		if _, err := gen(context.Background()); errors.Is(err, ErrMockFailure) {
			failed = true
			break
		}
	}
	if !failed {
		t.Error("near-zero success rate never produced ErrMockFailure")
	}
}

func TestStaticGenerator(t *testing.T) {
	gen := StaticGenerator(map[string]string{"text": "canned"})

	got, err := gen(context.Background())
	if err != nil {
		t.Fatalf("generator error = %v", err)
	}
	if got.(map[string]string)["text"] != "canned" {
		t.Errorf("result = %v", got)
	}
}
