package actor

import "strings"

// State is a bit set describing the condition of a supervised actor.
// Flags are not mutually exclusive except that Ready and any NotReady
// flag never coexist; UpdateState enforces that invariant.
type State uint32

const (
	StateRunning State = 1 << iota
	StateReady
	StateTroubleshooting
	StateTroubleshootFailed
	StateRestarting
	StateChecking
)

const (
	// StateNotReady groups the flags that mark the actor as unable to
	// perform its duties.
	StateNotReady = StateTroubleshooting | StateTroubleshootFailed | StateRestarting

	// StateSkipCheck groups the flags during which the check loop must
	// not start a new check.
	StateSkipCheck = StateChecking | StateTroubleshooting | StateRestarting
)

var stateNames = []struct {
	flag State
	name string
}{
	{StateRunning, "RUNNING"},
	{StateReady, "READY"},
	{StateTroubleshooting, "TROUBLESHOOTING"},
	{StateTroubleshootFailed, "TROUBLESHOOT_FAILED"},
	{StateRestarting, "RESTARTING"},
	{StateChecking, "CHECKING"},
}

// Has reports whether all bits in flag are set.
func (s State) Has(flag State) bool {
	return s&flag == flag
}

// Any reports whether any bit in flags is set.
func (s State) Any(flags State) bool {
	return s&flags != 0
}

// Union returns the state with flags added.
func (s State) Union(flags State) State {
	return s | flags
}

// Difference returns the state with flags cleared.
func (s State) Difference(flags State) State {
	return s &^ flags
}

// Names returns the names of the individual flags that are set, in
// declaration order.
func (s State) Names() []string {
	names := []string{}
	for _, sn := range stateNames {
		if s.Has(sn.flag) {
			names = append(names, sn.name)
		}
	}
	return names
}

func (s State) String() string {
	if s == 0 {
		return "NONE"
	}
	return strings.Join(s.Names(), "|")
}
