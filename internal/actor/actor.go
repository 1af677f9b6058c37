// Package actor implements health supervision for long-lived workers: a
// bit-flag actor state, a periodic self-check loop, troubleshooting
// escalation, and forced restart after prolonged failure.
package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sidereal-labs/opskit/internal/metrics"
)

const (
	RestartModeExit   = "exit"
	RestartModeReload = "reload"

	stopTimeout      = 5 * time.Second
	broadcastTimeout = 5 * time.Second
)

// restartGrace is the fixed pre-restart delay that lets in-flight
// messages drain. Deliberately not configurable or cancellable.
var restartGrace = time.Second

// ErrInvalidRestartMode is returned by Restart for unrecognized modes.
var ErrInvalidRestartMode = errors.New("invalid restart mode")

// Checker is the capability a supervised worker must provide. Check
// reports the worker's health; a *CheckError carries a classified error
// code, any other error is routed with the UNKNOWN fallback code.
// Troubleshoot attempts recovery and reports whether the worker is ready
// to continue. A non-nil Troubleshoot error is not absorbed by the
// supervisor: it terminates the check loop.
type Checker interface {
	Check(ctx context.Context) error
	Troubleshoot(ctx context.Context, data ErrorData, cause error) (bool, error)
}

// Transport broadcasts state changes to external observers and reports
// broker connectivity.
type Transport interface {
	BroadcastState(ctx context.Context, update StateUpdate) error
	Connected() bool
}

// Lifecycle is an optional collaborator started and stopped with the
// supervisor; the reload restart path cycles it.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// StateUpdate is the payload broadcast on every state change.
type StateUpdate struct {
	Code  int           `json:"code"`
	Flags []string      `json:"flags"`
	Error *ErrorPayload `json:"error"`
}

// ErrorPayload is the structured error attached to a troubleshooting
// state change.
type ErrorPayload struct {
	Code        int            `json:"code"`
	Critical    bool           `json:"critical"`
	Description string         `json:"description"`
	Exception   *ExceptionInfo `json:"exception"`
}

// ExceptionInfo carries best-effort diagnostics about the causing error.
type ExceptionInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func exceptionInfo(err error) *ExceptionInfo {
	if err == nil {
		return nil
	}
	return &ExceptionInfo{Type: fmt.Sprintf("%T", err), Message: err.Error()}
}

// Config holds the supervision settings consumed by a Supervisor.
type Config struct {
	// CheckInterval is the time between health checks.
	CheckInterval time.Duration `yaml:"check_interval"`

	// RestartAfter is how long the actor may stay continuously
	// not-ready before a restart is forced. Zero disables the restart.
	RestartAfter time.Duration `yaml:"restart_after"`

	// RestartMode is the default restart strategy, "exit" or "reload".
	RestartMode string `yaml:"restart_mode"`
}

// DefaultConfig mirrors the historical defaults: check every 30s,
// restart after 5m not-ready, reload in place.
func DefaultConfig() Config {
	return Config{
		CheckInterval: 30 * time.Second,
		RestartAfter:  5 * time.Minute,
		RestartMode:   RestartModeReload,
	}
}

// Supervisor runs the health state machine for a single worker. It owns
// exactly one State and the not-ready timer; both are mutated only
// through UpdateState.
type Supervisor struct {
	name      string
	cfg       Config
	checker   Checker
	transport Transport
	lifecycle Lifecycle
	catalog   *Catalog
	log       *slog.Logger

	now  func() time.Time
	exit func(code int)

	mu           sync.Mutex
	state        State
	lastNotReady time.Time
	loopCancel   context.CancelFunc
	loopDone     chan struct{}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithTransport sets the state-change transport.
func WithTransport(t Transport) Option {
	return func(s *Supervisor) { s.transport = t }
}

// WithLifecycle sets the collaborator cycled by the reload restart path.
func WithLifecycle(l Lifecycle) Option {
	return func(s *Supervisor) { s.lifecycle = l }
}

// WithCatalog sets the error-code catalog used to classify failures.
func WithCatalog(c *Catalog) Option {
	return func(s *Supervisor) { s.catalog = c }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithClock overrides the time source. For tests.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// WithExitFunc overrides the process-exit primitive used by the exit
// restart path. For tests.
func WithExitFunc(exit func(int)) Option {
	return func(s *Supervisor) { s.exit = exit }
}

// NewSupervisor creates a supervisor for the named worker.
func NewSupervisor(name string, cfg Config, checker Checker, opts ...Option) *Supervisor {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultConfig().CheckInterval
	}
	if cfg.RestartMode == "" {
		cfg.RestartMode = RestartModeReload
	}

	s := &Supervisor{
		name:    name,
		cfg:     cfg,
		checker: checker,
		log:     slog.Default(),
		now:     time.Now,
		exit:    os.Exit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.catalog == nil {
		s.catalog = MustCatalog(nil)
	}
	s.log = s.log.With("actor", name)
	return s
}

// Name returns the worker name.
func (s *Supervisor) Name() string {
	return s.name
}

// CurrentState returns the current state flags.
func (s *Supervisor) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsReady reports whether the READY flag is set.
func (s *Supervisor) IsReady() bool {
	return s.CurrentState().Has(StateReady)
}

// Start starts the lifecycle collaborator (if any), marks the actor
// RUNNING and launches the background check loop.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.loopCancel != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if s.lifecycle != nil {
		if err := s.lifecycle.Start(ctx); err != nil {
			return fmt.Errorf("starting lifecycle: %w", err)
		}
	}

	s.UpdateState(StateRunning, nil)

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.loopCancel = cancel
	s.loopDone = done
	s.mu.Unlock()

	go s.checkLoop(loopCtx, done)
	return nil
}

// Stop cancels the check loop, waits for it to finish (bounded) and
// stops the lifecycle collaborator. A pending sleep or in-progress check
// is abandoned, not drained.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.loopCancel
	done := s.loopDone
	s.loopCancel = nil
	s.loopDone = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
		case <-time.After(stopTimeout):
			s.log.Warn("check loop did not stop in time")
		}
	}

	if s.lifecycle != nil {
		return s.lifecycle.Stop(ctx)
	}
	return nil
}

func (s *Supervisor) checkLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}

		if s.CurrentState().Any(StateSkipCheck) {
			if !s.sleep(ctx) {
				return
			}
			continue
		}

		if due, elapsed := s.restartDue(); due {
			s.log.Warn("actor has been not-ready for too long, restarting",
				"elapsed", elapsed.Round(time.Second))
			// The restart tears down this loop, so hand off and exit.
			go func() {
				if err := s.Restart(context.Background(), ""); err != nil {
					s.log.Error("forced restart failed", "error", err)
				}
			}()
			return
		}

		s.markChecking()

		err := s.checker.Check(ctx)

		var checkErr *CheckError
		switch {
		case err == nil:
			s.UpdateState(StateReady, nil)
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return
		case errors.As(err, &checkErr):
			if terr := s.Troubleshoot(ctx, checkErr.Data, err); terr != nil {
				s.log.Error("troubleshooting raised an error, stopping check loop", "error", terr)
				return
			}
		default:
			if terr := s.Troubleshoot(ctx, s.catalog.Unknown(), err); terr != nil {
				s.log.Error("troubleshooting raised an error, stopping check loop", "error", terr)
				return
			}
		}

		if !s.sleep(ctx) {
			return
		}
	}
}

// sleep waits one check interval. Returns false if the loop context was
// cancelled during the wait.
func (s *Supervisor) sleep(ctx context.Context) bool {
	timer := time.NewTimer(s.cfg.CheckInterval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Supervisor) restartDue() (bool, time.Duration) {
	if s.cfg.RestartAfter <= 0 {
		return false, 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Has(StateReady) || s.lastNotReady.IsZero() {
		return false, 0
	}

	elapsed := s.now().Sub(s.lastNotReady)
	return elapsed > s.cfg.RestartAfter, elapsed
}

// markChecking sets the CHECKING flag without going through UpdateState.
// The flag is a transient marker for the duration of a single check and
// is not broadcast; the next UpdateState replaces the full state and
// clears it.
func (s *Supervisor) markChecking() {
	s.mu.Lock()
	s.state |= StateChecking
	s.mu.Unlock()
}

// UpdateState is the sole state mutator. It replaces the full state with
// the given flags, enforces the READY/NOT_READY exclusivity invariant,
// maintains the not-ready timer, forces RUNNING while the transport is
// connected, and broadcasts the change if the resulting state differs
// from the previous one.
func (s *Supervisor) UpdateState(flags State, errData *ErrorPayload) State {
	s.mu.Lock()

	old := s.state
	next := flags

	if next.Any(StateNotReady) {
		next = next.Difference(StateReady)
		if s.lastNotReady.IsZero() {
			s.lastNotReady = s.now()
		}
	} else {
		s.lastNotReady = time.Time{}
	}

	if s.transport != nil && s.transport.Connected() {
		next |= StateRunning
	}

	s.state = next
	s.mu.Unlock()

	if old == next {
		return next
	}

	metrics.ActorState.WithLabelValues(s.name).Set(float64(next))

	if s.transport != nil {
		ctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
		defer cancel()

		update := StateUpdate{Code: int(next), Flags: next.Names(), Error: errData}
		if err := s.transport.BroadcastState(ctx, update); err != nil {
			s.log.Warn("failed to broadcast state change", "error", err)
		}
	}

	return next
}

// Troubleshoot runs the escalation procedure for a classified failure:
// it broadcasts TROUBLESHOOTING with the structured error, invokes the
// worker's troubleshooting operation, and transitions to READY or
// TROUBLESHOOT_FAILED based on its verdict. An error from the operation
// itself is returned unhandled; guarding it is the implementer's job.
func (s *Supervisor) Troubleshoot(ctx context.Context, data ErrorData, cause error) error {
	metrics.ActorCheckFailures.WithLabelValues(s.name, strconv.Itoa(data.Code)).Inc()

	payload := &ErrorPayload{
		Code:        data.Code,
		Critical:    data.Critical,
		Description: data.Description,
		Exception:   exceptionInfo(cause),
	}
	s.UpdateState(StateTroubleshooting, payload)

	ok, err := s.checker.Troubleshoot(ctx, data, cause)
	if err != nil {
		return err
	}

	if ok {
		s.UpdateState(StateReady, nil)
	} else {
		s.UpdateState(StateTroubleshootFailed, nil)
	}
	return nil
}

// Restart restarts the actor. Mode "exit" terminates the process with a
// non-zero status so an external supervisor restarts it; "reload" stops
// and restarts the actor in place without killing the process (a stop
// failure does not block the subsequent start). An empty mode uses the
// configured default; any other value is a configuration error and
// causes no state change.
func (s *Supervisor) Restart(ctx context.Context, mode string) error {
	if mode == "" {
		mode = s.cfg.RestartMode
	}
	if mode != RestartModeExit && mode != RestartModeReload {
		return fmt.Errorf("%w: %q", ErrInvalidRestartMode, mode)
	}

	s.log.Warn("restarting actor", "mode", mode)
	metrics.ActorRestarts.WithLabelValues(s.name, mode).Inc()

	s.UpdateState(StateRestarting, nil)

	// Grace period for in-flight messages.
	time.Sleep(restartGrace)

	if mode == RestartModeExit {
		s.exit(1)
		return nil
	}

	if err := s.Stop(ctx); err != nil {
		s.log.Error("stop failed during reload, starting anyway", "error", err)
	}
	return s.Start(ctx)
}
