package behavior

import "fmt"

// Status is the result of ticking a node.
type Status int

const (
	// Invalid is the status of a node that has never been ticked.
	Invalid Status = iota
	// Running means the node will be ticked again.
	Running
	// Success means the node finished and achieved its goal.
	Success
	// Failure means the node finished without achieving its goal.
	Failure
	// Aborted means the node was cancelled while running.
	Aborted
)

func (s Status) String() string {
	switch s {
	case Invalid:
		return "INVALID"
	case Running:
		return "RUNNING"
	case Success:
		return "SUCCESS"
	case Failure:
		return "FAILURE"
	case Aborted:
		return "ABORTED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Valid reports whether s may be returned from an update.
func (s Status) Valid() bool {
	return s >= Running && s <= Aborted
}

// MarshalText encodes s by name, as in "RUNNING".
func (s Status) MarshalText() ([]byte, error) {
	if s < Invalid || s > Aborted {
		return nil, fmt.Errorf("behavior: cannot marshal %v", s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a name written by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "INVALID":
		*s = Invalid
	case "RUNNING":
		*s = Running
	case "SUCCESS":
		*s = Success
	case "FAILURE":
		*s = Failure
	case "ABORTED":
		*s = Aborted
	default:
		return fmt.Errorf("behavior: unknown status %q", text)
	}
	return nil
}
