package pipeline

type State uint8

const (
	StateUnbuilt State = iota
	StateBuilt
	StateActive
	StateResizing
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateUnbuilt:
		return "unbuilt"
	case StateBuilt:
		return "built"
	case StateActive:
		return "active"
	case StateResizing:
		return "resizing"
	case StateShutDown:
		return "shut down"
	}
	return "unknown"
}
