package pipeline

// State is the lifecycle position of a run.
type State string

const (
	StateIdle          State = "idle"
	StateStaged        State = "staged"
	StateDenoising     State = "denoising"
	StatePreprocessing State = "preprocessing"
	StatePublished     State = "published"
	StateTerminated    State = "terminated"
	StateFailed        State = "failed"
)

// Stage names used in logs, invocations, and error context.
const (
	StageDenoise    = "denoise"
	StagePreprocess = "preprocess"
)

var allowedTransitions = map[State][]State{
	StateIdle:          {StateStaged},
	StateStaged:        {StateDenoising, StatePreprocessing},
	StateDenoising:     {StateDenoising, StatePreprocessing},
	StatePreprocessing: {StatePublished},
	StatePublished:     {StateTerminated},
}

// CanTransition reports whether from -> to is a legal move. Any non-terminal
// state may move to failed.
func CanTransition(from, to State) bool {
	if to == StateFailed {
		return !from.Terminal()
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateTerminated || s == StateFailed
}

func (s State) String() string {
	return string(s)
}
