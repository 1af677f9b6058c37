// Package health provides system health monitoring and status
// reporting for the supervised actors.
package health

import (
	"sync"

	"github.com/sidereal-labs/opskit/internal/actor"
)

// SystemStatus represents the overall health state of the system or a
// component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ActorHealth contains the health snapshot of one supervised actor.
type ActorHealth struct {
	Name    string       `json:"name"`
	Status  SystemStatus `json:"status"`
	Running bool         `json:"running"`
	Ready   bool         `json:"ready"`
	Code    int          `json:"code"`
	Flags   []string     `json:"flags"`
}

// Registry tracks the supervisors exposed through the health
// endpoints.
type Registry struct {
	mu     sync.RWMutex
	actors []*actor.Supervisor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a supervisor to the registry.
func (r *Registry) Register(s *actor.Supervisor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actors = append(r.actors, s)
}

// Report snapshots the health of every registered actor.
func (r *Registry) Report() map[string]ActorHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report := make(map[string]ActorHealth, len(r.actors))
	for _, s := range r.actors {
		state := s.CurrentState()

		status := StatusHealthy
		switch {
		case !state.Has(actor.StateRunning):
			status = StatusCritical
		case state.Has(actor.StateTroubleshootFailed):
			status = StatusCritical
		case state.Any(actor.StateNotReady) || !state.Has(actor.StateReady):
			status = StatusDegraded
		}

		report[s.Name()] = ActorHealth{
			Name:    s.Name(),
			Status:  status,
			Running: state.Has(actor.StateRunning),
			Ready:   state.Has(actor.StateReady),
			Code:    int(state),
			Flags:   state.Names(),
		}
	}
	return report
}
