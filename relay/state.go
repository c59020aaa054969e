package relay

// State is a step of the per-request relay state machine.
type State int

const (
	StateIdle State = iota
	StateAugmenting
	StateCallingUpstream
	StateStreaming
	StateDone
	StateAborted
	StateFailed
)

var stateNames = [...]string{
	StateIdle:            "idle",
	StateAugmenting:      "augmenting",
	StateCallingUpstream: "calling_upstream",
	StateStreaming:       "streaming",
	StateDone:            "done",
	StateAborted:         "aborted",
	StateFailed:          "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted || s == StateFailed
}
