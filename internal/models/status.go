package models

type HandoverStatus string

const (
	StatusProcessing  HandoverStatus = "processing"
	StatusTranscribed HandoverStatus = "transcribed"
	StatusComplete    HandoverStatus = "complete"
	StatusError       HandoverStatus = "error"
)

var transitions = map[HandoverStatus][]HandoverStatus{
	StatusProcessing:  {StatusTranscribed, StatusError},
	StatusTranscribed: {StatusComplete, StatusError},
}

// CanTransition reports whether a handover may move from one status to
// another. complete and error are terminal.
func CanTransition(from, to HandoverStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s HandoverStatus) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

func (s HandoverStatus) Valid() bool {
	switch s {
	case StatusProcessing, StatusTranscribed, StatusComplete, StatusError:
		return true
	}
	return false
}

func StatusPtr(s HandoverStatus) *HandoverStatus {
	return &s
}
