package polling

import "github.com/yoockh/sagecreek/internal/models"

type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateReady      State = "ready"
	StateFailed     State = "failed"
	StateTimedOut   State = "timed_out"
)

func (s State) Terminal() bool {
	switch s {
	case StateReady, StateFailed, StateTimedOut:
		return true
	default:
		return false
	}
}

// Classify maps an observed vendor state onto the wait states. Only PROCESSING
// keeps the wait going; states the vendor may add later are treated as ready
// and left for the model call to reject.
func Classify(fs models.FileState) State {
	switch fs {
	case models.FileStateProcessing:
		return StateProcessing
	case models.FileStateFailed:
		return StateFailed
	default:
		return StateReady
	}
}
