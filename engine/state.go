package engine

// State is the position of the engine in its loop
type State int32

const (
	StateStopped State = iota
	StatePolling
	StateEvaluating
	StateExecuting
	StateCooling
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePolling:
		return "polling"
	case StateEvaluating:
		return "evaluating"
	case StateExecuting:
		return "executing"
	case StateCooling:
		return "cooling"
	default:
		return "unknown"
	}
}
