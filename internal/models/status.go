package models

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusClaimed   Status = "CLAIMED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

var statusTransitions = map[Status][]Status{
	StatusPending: {StatusClaimed},
	StatusClaimed: {StatusCompleted, StatusFailed},
}

func CanTransition(from Status, to Status) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
