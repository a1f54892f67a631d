package congestion

import "time"

// StateData is the careful resume state at the time of a phase change.
type StateData struct {
	Pipesize            int
	FirstUnvalidatedPkt int64
	LastUnvalidatedPkt  int64
	CongestionWindow    int
	// 0 if not set by careful resume
	Ssthresh int
}

// PhaseUpdate describes a careful resume phase change.
// Old is nil for the initial phase.
type PhaseUpdate struct {
	Time     time.Time
	Old      *Phase
	New      Phase
	State    StateData
	Restored SavedParameters
	Trigger  Trigger
}

// Recorder receives careful resume diagnostics, e.g. to write them to a qlog.
type Recorder interface {
	PhaseUpdated(update PhaseUpdate)
	SeedRejected(saved SavedParameters, reason error)
}
