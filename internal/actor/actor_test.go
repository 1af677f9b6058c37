package actor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	restartGrace = time.Millisecond
	m.Run()
}

// =============================================================================
// Stubs
// =============================================================================

type stubTransport struct {
	mu        sync.Mutex
	connected bool
	updates   []StateUpdate
}

func (t *stubTransport) BroadcastState(ctx context.Context, update StateUpdate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updates = append(t.updates, update)
	return nil
}

func (t *stubTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *stubTransport) recorded() []StateUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]StateUpdate, len(t.updates))
	copy(out, t.updates)
	return out
}

type stubChecker struct {
	mu       sync.Mutex
	checkErr error
	tsOK     bool
	tsErr    error

	checkCalls int
	tsCalls    int
	tsCode     ErrorData
}

func (c *stubChecker) Check(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkCalls++
	return c.checkErr
}

func (c *stubChecker) Troubleshoot(ctx context.Context, data ErrorData, cause error) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tsCalls++
	c.tsCode = data
	return c.tsOK, c.tsErr
}

func (c *stubChecker) snapshot() (checks, troubleshoots int, code ErrorData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkCalls, c.tsCalls, c.tsCode
}

type stubLifecycle struct {
	mu         sync.Mutex
	stopErr    error
	startCalls int
	stopCalls  int
	order      []string
}

func (l *stubLifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.startCalls++
	l.order = append(l.order, "start")
	return nil
}

func (l *stubLifecycle) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopCalls++
	l.order = append(l.order, "stop")
	return l.stopErr
}

func newTestSupervisor(t *testing.T, checker Checker, cfg Config, opts ...Option) (*Supervisor, *stubTransport) {
	t.Helper()
	transport := &stubTransport{connected: true}
	opts = append([]Option{WithTransport(transport)}, opts...)
	return NewSupervisor("test", cfg, checker, opts...), transport
}

// =============================================================================
// UpdateState
// =============================================================================

func TestUpdateStateExclusivity(t *testing.T) {
	s, _ := newTestSupervisor(t, &stubChecker{}, Config{})

	sequences := [][]State{
		{StateReady, StateTroubleshooting, StateReady},
		{StateTroubleshootFailed, StateReady | StateTroubleshooting},
		{StateRestarting, StateReady, StateReady | StateRestarting},
	}

	for _, seq := range sequences {
		for _, flags := range seq {
			st := s.UpdateState(flags, nil)
			if st.Has(StateReady) && st.Any(StateNotReady) {
				t.Fatalf("state %v has READY and a NOT_READY flag", st)
			}
		}
	}
}

func TestUpdateStateForcesRunningWhenConnected(t *testing.T) {
	s, _ := newTestSupervisor(t, &stubChecker{}, Config{})

	if st := s.UpdateState(StateReady, nil); !st.Has(StateRunning) {
		t.Errorf("expected RUNNING to be forced on, got %v", st)
	}
}

func TestUpdateStateBroadcastsOnlyOnChange(t *testing.T) {
	s, transport := newTestSupervisor(t, &stubChecker{}, Config{})

	s.UpdateState(StateReady, nil)
	s.UpdateState(StateReady, nil)
	s.UpdateState(StateReady, nil)

	updates := transport.recorded()
	if len(updates) != 1 {
		t.Fatalf("expected a single broadcast, got %d", len(updates))
	}

	want := int(StateRunning | StateReady)
	if updates[0].Code != want {
		t.Errorf("expected code %d, got %d", want, updates[0].Code)
	}
	if len(updates[0].Flags) != 2 || updates[0].Flags[0] != "RUNNING" || updates[0].Flags[1] != "READY" {
		t.Errorf("unexpected flags: %v", updates[0].Flags)
	}
}

func TestNotReadyTimerLifetime(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	s, _ := newTestSupervisor(t, &stubChecker{}, Config{}, WithClock(clock))

	s.UpdateState(StateTroubleshooting, nil)
	if s.lastNotReady.IsZero() {
		t.Fatal("expected not-ready timer to start")
	}
	started := s.lastNotReady

	// A second not-ready transition must not reset the running timer.
	now = now.Add(time.Minute)
	s.UpdateState(StateTroubleshootFailed, nil)
	if !s.lastNotReady.Equal(started) {
		t.Error("not-ready timer restarted mid-episode")
	}

	// READY clears it; the next episode starts a fresh timer.
	s.UpdateState(StateReady, nil)
	if !s.lastNotReady.IsZero() {
		t.Error("expected not-ready timer to clear on READY")
	}

	now = now.Add(time.Minute)
	s.UpdateState(StateTroubleshooting, nil)
	if !s.lastNotReady.Equal(now) {
		t.Error("expected a fresh not-ready timer")
	}
}

// =============================================================================
// Check loop
// =============================================================================

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestCheckSuccessMarksReady(t *testing.T) {
	checker := &stubChecker{}
	s, _ := newTestSupervisor(t, checker, Config{CheckInterval: 10 * time.Millisecond})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer s.Stop(context.Background())

	waitFor(t, time.Second, s.IsReady)

	if _, ts, _ := checker.snapshot(); ts != 0 {
		t.Errorf("troubleshoot should not have been called, got %d calls", ts)
	}
}

func TestClassifiedCheckFailure(t *testing.T) {
	code1 := ErrorData{Code: 1, Critical: true, Description: "desc"}
	checker := &stubChecker{
		checkErr: NewCheckError(code1, "sensor offline", nil),
		tsOK:     true,
	}

	s, transport := newTestSupervisor(t, checker, Config{CheckInterval: 10 * time.Millisecond})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer s.Stop(context.Background())

	waitFor(t, time.Second, func() bool {
		_, ts, _ := checker.snapshot()
		return ts >= 1
	})
	waitFor(t, time.Second, s.IsReady)

	_, _, got := checker.snapshot()
	if got.Code != 1 || !got.Critical {
		t.Errorf("troubleshoot received wrong code: %+v", got)
	}

	// Broadcast order: RUNNING (start), TROUBLESHOOTING with the error
	// payload, then READY after successful troubleshooting.
	updates := transport.recorded()
	if len(updates) < 3 {
		t.Fatalf("expected at least 3 broadcasts, got %d", len(updates))
	}
	if State(updates[0].Code) != StateRunning {
		t.Errorf("first broadcast should be RUNNING, got %v", State(updates[0].Code))
	}
	if !State(updates[1].Code).Has(StateTroubleshooting) {
		t.Errorf("second broadcast should include TROUBLESHOOTING, got %v", State(updates[1].Code))
	}
	if updates[1].Error == nil || updates[1].Error.Code != 1 || !updates[1].Error.Critical {
		t.Errorf("unexpected error payload: %+v", updates[1].Error)
	}
	if !State(updates[2].Code).Has(StateReady) {
		t.Errorf("third broadcast should include READY, got %v", State(updates[2].Code))
	}
}

func TestUnclassifiedFailureUsesUnknownCode(t *testing.T) {
	checker := &stubChecker{checkErr: errors.New("boom"), tsOK: true}

	s, _ := newTestSupervisor(t, checker, Config{CheckInterval: 10 * time.Millisecond})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer s.Stop(context.Background())

	waitFor(t, time.Second, func() bool {
		_, ts, _ := checker.snapshot()
		return ts >= 1
	})

	if _, _, got := checker.snapshot(); got.Code != UnknownErrorCode {
		t.Errorf("expected fallback code %d, got %d", UnknownErrorCode, got.Code)
	}
}

func TestTroubleshootErrorStopsLoop(t *testing.T) {
	checker := &stubChecker{
		checkErr: errors.New("boom"),
		tsErr:    errors.New("troubleshoot bug"),
	}

	s, _ := newTestSupervisor(t, checker, Config{CheckInterval: 10 * time.Millisecond})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer s.Stop(context.Background())

	waitFor(t, time.Second, func() bool {
		_, ts, _ := checker.snapshot()
		return ts >= 1
	})

	// Give the loop a few intervals: it must not check again.
	time.Sleep(50 * time.Millisecond)
	if checks, _, _ := checker.snapshot(); checks != 1 {
		t.Errorf("expected the loop to stop after 1 check, got %d", checks)
	}
}

func TestRestartAfterProlongedNotReady(t *testing.T) {
	checker := &stubChecker{checkErr: errors.New("boom"), tsOK: false}
	lifecycle := &stubLifecycle{}

	cfg := Config{
		CheckInterval: 5 * time.Millisecond,
		RestartAfter:  30 * time.Millisecond,
		RestartMode:   RestartModeReload,
	}
	s, _ := newTestSupervisor(t, checker, cfg, WithLifecycle(lifecycle))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer s.Stop(context.Background())

	waitFor(t, 2*time.Second, func() bool {
		lifecycle.mu.Lock()
		defer lifecycle.mu.Unlock()
		return lifecycle.startCalls >= 2
	})
}

// =============================================================================
// Restart
// =============================================================================

func TestRestartReloadStopsThenStarts(t *testing.T) {
	lifecycle := &stubLifecycle{stopErr: errors.New("stop failed")}
	s, _ := newTestSupervisor(t, &stubChecker{}, Config{CheckInterval: time.Hour},
		WithLifecycle(lifecycle))

	if err := s.Restart(context.Background(), RestartModeReload); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	defer s.Stop(context.Background())

	lifecycle.mu.Lock()
	defer lifecycle.mu.Unlock()
	if lifecycle.stopCalls != 1 || lifecycle.startCalls != 1 {
		t.Fatalf("expected 1 stop and 1 start, got %d/%d",
			lifecycle.stopCalls, lifecycle.startCalls)
	}
	if lifecycle.order[0] != "stop" || lifecycle.order[1] != "start" {
		t.Errorf("expected stop before start, got %v", lifecycle.order)
	}
}

func TestRestartExit(t *testing.T) {
	var exitCode int
	s, _ := newTestSupervisor(t, &stubChecker{}, Config{},
		WithExitFunc(func(code int) { exitCode = code }))

	if err := s.Restart(context.Background(), RestartModeExit); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if exitCode != 1 {
		t.Errorf("expected exit status 1, got %d", exitCode)
	}

	if !s.CurrentState().Has(StateRestarting) {
		t.Error("expected RESTARTING to be set")
	}
}

func TestRestartInvalidMode(t *testing.T) {
	s, transport := newTestSupervisor(t, &stubChecker{}, Config{})
	s.UpdateState(StateReady, nil)
	before := s.CurrentState()
	broadcasts := len(transport.recorded())

	err := s.Restart(context.Background(), "bogus")
	if !errors.Is(err, ErrInvalidRestartMode) {
		t.Fatalf("expected ErrInvalidRestartMode, got %v", err)
	}

	if s.CurrentState() != before {
		t.Error("invalid mode must not mutate state")
	}
	if len(transport.recorded()) != broadcasts {
		t.Error("invalid mode must not broadcast")
	}
}

func TestRestartDefaultsToConfiguredMode(t *testing.T) {
	var exitCode int
	cfg := Config{RestartMode: RestartModeExit}
	s, _ := newTestSupervisor(t, &stubChecker{}, cfg,
		WithExitFunc(func(code int) { exitCode = code }))

	if err := s.Restart(context.Background(), ""); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if exitCode != 1 {
		t.Errorf("expected configured exit mode to run, got code %d", exitCode)
	}
}
