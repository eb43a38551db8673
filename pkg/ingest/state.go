package ingest

// State is a step of the per-window pipeline
type State int

const (
	StateIdle State = iota
	StateWindowSelected
	StatePaginating
	StateFiltering
	StateFetchingComments
	StateWriting
	StateDone
)

var stateNames = map[State]string{
	StateIdle:             "idle",
	StateWindowSelected:   "window_selected",
	StatePaginating:       "paginating",
	StateFiltering:        "filtering",
	StateFetchingComments: "fetching_comments",
	StateWriting:          "writing",
	StateDone:             "done",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// transitions lists the legal successors of each state.
// WindowSelected may skip Paginating when a checkpoint says pagination already finished,
// and may repeat when a resumed run skips a window that is already written.
var transitions = map[State][]State{
	StateIdle:             {StateWindowSelected, StateDone},
	StateWindowSelected:   {StatePaginating, StateFiltering, StateWindowSelected, StateDone},
	StatePaginating:       {StateFiltering},
	StateFiltering:        {StateFetchingComments},
	StateFetchingComments: {StateWriting},
	StateWriting:          {StateWindowSelected, StateDone},
	StateDone:             {},
}

// CanTransition reports whether moving from s to next is legal
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
