package models

import "time"

// SpikeStatus is the state of the regional load-spike machine
type SpikeStatus string

const (
	SpikeNormal SpikeStatus = "normal"
	SpikeActive SpikeStatus = "spike"
)

// GlobalRegion matches every cluster profile
const GlobalRegion = "global"

// SpikeState is a value copy of the load-spike machine.
// Invariant: Status == SpikeNormal implies Multiplier == 1.0 and TicksRemaining == 0.
type SpikeState struct {
	Status         SpikeStatus `json:"status"`
	Multiplier     float64     `json:"multiplier"`
	AffectedRegion string      `json:"affectedRegion"`
	TicksRemaining int         `json:"ticksRemaining"`
}

// Active reports whether a spike is in progress
func (s SpikeState) Active() bool {
	return s.Status == SpikeActive
}

// SpikeProfile is one row of the spike table
type SpikeProfile struct {
	Region        string  `json:"region" yaml:"region"`
	Multiplier    float64 `json:"multiplier" yaml:"multiplier"`
	DurationTicks int     `json:"durationTicks" yaml:"duration_ticks"`
}

// SpikeTransition names a state change of the spike machine
type SpikeTransition string

const (
	TransitionStarted   SpikeTransition = "STARTED"
	TransitionEnded     SpikeTransition = "ENDED"
	TransitionTriggered SpikeTransition = "TRIGGERED"
)

// SpikeEvent records one transition of the spike machine
type SpikeEvent struct {
	ID            string
	Transition    SpikeTransition
	Region        string
	Multiplier    float64
	DurationTicks int
	OccurredAt    time.Time
}
