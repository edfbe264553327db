package domain

// ActionKind tags a user action taken on an active session.
type ActionKind int

const (
	// ActionAnswer resolves the current question with a chosen option value.
	ActionAnswer ActionKind = iota
	// ActionSkip advances past the current question without recording it.
	ActionSkip
	// ActionSkipAll abandons the rest of the session.
	ActionSkipAll
)

// Action is a tagged user action on a session, parsed from transport input.
type Action struct {
	Kind       ActionKind
	QuestionID int    // Answer, Skip
	Value      string // Answer
}
