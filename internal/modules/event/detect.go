// README: Stop/move transition detection from a single speed sample.
package event

type State string

const (
	StateMoving  State = "moving"
	StateStopped State = "stopped"
)

type Transition string

const (
	TransitionNone        Transition = "none"
	TransitionStopStarted Transition = "stop_started"
	TransitionMoveStarted Transition = "move_started"
)

// Detect classifies a speed sample against the previous state.
// A speed equal to the threshold counts as moving.
func Detect(speed float64, prev State, threshold float64) Transition {
	stopped := speed < threshold
	switch {
	case prev == StateMoving && stopped:
		return TransitionStopStarted
	case prev == StateStopped && !stopped:
		return TransitionMoveStarted
	default:
		return TransitionNone
	}
}

// StateFrom derives the vehicle state from its most recent event.
// The open event is returned when the vehicle is stopped.
func StateFrom(latest *Event) (State, *Event) {
	if latest != nil && latest.Open() {
		return StateStopped, latest
	}
	return StateMoving, nil
}
