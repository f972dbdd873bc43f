package workflow

import "slices"

// Stage is a workflow lifecycle state.
type Stage string

const (
	StageCreated    Stage = "created"
	StageFetching   Stage = "fetching"
	StageAnalyzing  Stage = "analyzing"
	StageRanking    Stage = "ranking"
	StageAllocating Stage = "allocating"
	StageSettling   Stage = "settling"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// Pipeline lists the non-terminal stages in execution order.
var Pipeline = []Stage{
	StageCreated,
	StageFetching,
	StageAnalyzing,
	StageRanking,
	StageAllocating,
	StageSettling,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return slices.Contains(Pipeline, s) || s.Terminal()
}

// Terminal reports whether no transition leaves s.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Next returns the stage that follows s on success, or "" for terminal stages.
func (s Stage) Next() Stage {
	for i, st := range Pipeline {
		if st != s {
			continue
		}
		if i+1 < len(Pipeline) {
			return Pipeline[i+1]
		}
		return StageCompleted
	}
	return ""
}

// CanTransition reports whether a workflow may move from one stage to
// another: one step forward, or into Failed from any non-terminal stage.
func CanTransition(from, to Stage) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	if to == StageFailed {
		return true
	}
	return from.Next() == to
}
