package domain

// Status is the lifecycle state of a Call.
type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// String returns the string representation of Status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks if the status is a valid value.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusExpired || s == StatusCancelled
}

// CanTransition reports whether a call may move from s to next.
// Only active calls change state; expired and cancelled are terminal.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	return s == StatusActive && (next == StatusExpired || next == StatusCancelled)
}
