package matching

// Status is the lifecycle state of a match.
type Status string

const (
	StatusNew       Status = "new"
	StatusReviewed  Status = "reviewed"
	StatusApproved  Status = "approved"
	StatusPursuing  Status = "pursuing"
	StatusConverted Status = "converted"
	StatusDeclined  Status = "declined"
	StatusExpired   Status = "expired"
)

var transitions = map[Status][]Status{
	StatusNew:       {StatusReviewed, StatusApproved, StatusDeclined, StatusExpired},
	StatusReviewed:  {StatusApproved, StatusDeclined, StatusExpired},
	StatusApproved:  {StatusPursuing, StatusDeclined},
	StatusPursuing:  {StatusConverted, StatusDeclined},
	StatusExpired:   {StatusNew},
	StatusConverted: nil,
	StatusDeclined:  nil,
}

// Protected reports whether the status records a human decision that
// automation must never overwrite.
func (s Status) Protected() bool {
	switch s {
	case StatusApproved, StatusPursuing, StatusConverted, StatusDeclined:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransition reports whether a match may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ProtectedStatuses returns the protected set as strings for SQL guards.
func ProtectedStatuses() []string {
	return []string{string(StatusApproved), string(StatusPursuing), string(StatusConverted), string(StatusDeclined)}
}

// expirableStatuses are the automated states that may time out.
func expirableStatuses() []string {
	return []string{string(StatusNew), string(StatusReviewed)}
}
