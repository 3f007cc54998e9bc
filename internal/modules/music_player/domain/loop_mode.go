package domain

// LoopMode controls what happens to a track once it finished.
type LoopMode int

const (
	LoopModeNone  LoopMode = iota // Finished tracks are dropped
	LoopModeTrack                 // The finished track plays again
	LoopModeQueue                 // The finished track goes to the back of the queue
)

// String returns a human-readable representation of the loop mode.
func (m LoopMode) String() string {
	switch m {
	case LoopModeTrack:
		return "track"
	case LoopModeQueue:
		return "queue"
	default:
		return "none"
	}
}

// Next cycles none -> track -> queue -> none.
func (m LoopMode) Next() LoopMode {
	switch m {
	case LoopModeNone:
		return LoopModeTrack
	case LoopModeTrack:
		return LoopModeQueue
	default:
		return LoopModeNone
	}
}

// ParseLoopMode converts a string to a LoopMode. Unknown values map to LoopModeNone.
func ParseLoopMode(s string) LoopMode {
	switch s {
	case "track":
		return LoopModeTrack
	case "queue":
		return LoopModeQueue
	default:
		return LoopModeNone
	}
}
