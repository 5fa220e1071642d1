package flow

import (
	"time"

	"github.com/flowlabs/flowd/internal/domain"
)

// Flow-entry stages by depth.
const (
	StageWarming  = "warming"
	StageEntering = "entering"
	StageDeep     = "deep"
)

const (
	deepDepthThreshold     = 60.0
	sustainedFocusDuration = 15 * time.Minute
)

// FlowEntry is the result of a flow-entry detection check.
type FlowEntry struct {
	InFlow         bool    `json:"in_flow"`
	Stage          string  `json:"stage"`
	Depth          float64 `json:"depth"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
}

// DetectFlowEntry decides whether the user has likely entered flow: either
// the depth gauge has crossed the deep threshold, or focus has been
// sustained for fifteen uninterrupted minutes.
func DetectFlowEntry(depth float64, elapsed time.Duration) (FlowEntry, error) {
	if depth < 0 || depth > 100 {
		return FlowEntry{}, domain.ErrInvalidArgument
	}
	if elapsed < 0 {
		elapsed = 0
	}

	entry := FlowEntry{
		Depth:          depth,
		ElapsedSeconds: int(elapsed.Seconds()),
	}
	switch {
	case depth < 30:
		entry.Stage = StageWarming
	case depth < deepDepthThreshold:
		entry.Stage = StageEntering
	default:
		entry.Stage = StageDeep
	}
	entry.InFlow = depth >= deepDepthThreshold || elapsed >= sustainedFocusDuration
	return entry, nil
}
