package compose

// State is a step of a composition run
type State int

const (
	StateStart State = iota
	StateDimensionsRead
	StateResized
	StateMarked
	StateDescribed
	StateComposed
	StateCropped
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateStart:          "start",
	StateDimensionsRead: "dimensions_read",
	StateResized:        "resized",
	StateMarked:         "marked",
	StateDescribed:      "described",
	StateComposed:       "composed",
	StateCropped:        "cropped",
	StateDone:           "done",
	StateFailed:         "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanFail reports whether a run may fail while in s. The fatal steps
// (dimensions, resize, compose, crop) fail from their own state. Marked may
// fail only when the caller cancels the description call; Described never
// fails.
func (s State) CanFail() bool {
	switch s {
	case StateDimensionsRead, StateResized, StateMarked, StateComposed, StateCropped:
		return true
	}
	return false
}

// CanTransition reports whether next directly follows s. Runs move strictly
// forward one step at a time.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return s.CanFail()
	}
	return next == s+1
}
