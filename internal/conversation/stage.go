package conversation

// Stage is one discrete step of the guided intake conversation.
type Stage string

const (
	StageInit        Stage = "init"
	StageDescription Stage = "description"
	StageDetails     Stage = "details"
	StageAttachments Stage = "attachments"
	StageSummary     Stage = "summary"
	StageSubmit      Stage = "submit"
)

// stageOrder fixes the forward-only walk through the intake flow.
var stageOrder = []Stage{
	StageInit,
	StageDescription,
	StageDetails,
	StageAttachments,
	StageSummary,
	StageSubmit,
}

// Index returns the stage's position in the flow, or -1 for an unknown stage.
func (s Stage) Index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Successor returns the next stage in the flow. The terminal stage is its
// own successor.
func (s Stage) Successor() Stage {
	i := s.Index()
	if i < 0 || i >= len(stageOrder)-1 {
		return StageSubmit
	}
	return stageOrder[i+1]
}

// Terminal reports whether no further transitions exist from s.
func (s Stage) Terminal() bool {
	return s == StageSubmit
}

// legacyStages maps stage names written by earlier deployments to the
// current enum. Unknown names fall back to init.
var legacyStages = map[string]Stage{
	"welcome":      StageInit,
	"collect":      StageDescription,
	"collecting":   StageDetails,
	"confirmation": StageSummary,
	"confirm":      StageSummary,
	"done":         StageSubmit,
}

// MigrateStage normalizes a stored stage name. Current names pass through
// unchanged; legacy names are mapped; anything else restarts at init.
func MigrateStage(raw string) Stage {
	s := Stage(raw)
	if s.Index() >= 0 {
		return s
	}
	if mapped, ok := legacyStages[raw]; ok {
		return mapped
	}
	return StageInit
}
