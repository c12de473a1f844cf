package domain

import "strings"

// Action is the interpreted purpose of a user turn.
type Action string

const (
	ActionAnalyze        Action = "ANALYZE"
	ActionPractice       Action = "PRACTICE"
	ActionHistory        Action = "HISTORY"
	ActionConversational Action = "CONVERSATIONAL"
	ActionUnknown        Action = "UNKNOWN"
)

// ParseAction maps classifier output to an Action. Unrecognized values map to ActionUnknown.
func ParseAction(raw string) Action {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case strings.Contains(upper, "PRACTICE"), strings.Contains(upper, "QUESTION"):
		return ActionPractice
	case strings.Contains(upper, "ANALY"):
		return ActionAnalyze
	case strings.Contains(upper, "HISTORY"):
		return ActionHistory
	case strings.Contains(upper, "CONVERSATION"), strings.Contains(upper, "TUTORIAL"):
		return ActionConversational
	default:
		return ActionUnknown
	}
}

// Difficulty of generated practice material.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// ParseDifficulty maps a loose difficulty label to a Difficulty.
func ParseDifficulty(raw string) (Difficulty, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "easy", "beginner", "simple":
		return DifficultyEasy, true
	case "medium", "moderate", "intermediate":
		return DifficultyMedium, true
	case "hard", "difficult", "advanced", "challenging":
		return DifficultyHard, true
	default:
		return "", false
	}
}

const (
	DefaultSubject    = "General"
	DefaultDifficulty = DifficultyMedium
	DefaultQuantity   = 5
	MaxQuantity       = 20
)

// IntentRecord is the structured interpretation of one user turn.
// It deliberately carries no free-form narrative.
type IntentRecord struct {
	Action     Action     `json:"action"`
	Subject    string     `json:"subject"`
	Topic      string     `json:"topic"`
	Difficulty Difficulty `json:"difficulty"`
	Quantity   int        `json:"quantity"`
}

// DefaultIntentRecord returns the record used when classification yields nothing usable.
func DefaultIntentRecord() IntentRecord {
	return IntentRecord{
		Action:     ActionUnknown,
		Subject:    DefaultSubject,
		Difficulty: DefaultDifficulty,
		Quantity:   DefaultQuantity,
	}
}

// WithDefaults fills missing or out-of-range fields.
func (r IntentRecord) WithDefaults() IntentRecord {
	if r.Action == "" {
		r.Action = ActionUnknown
	}
	r.Subject = strings.TrimSpace(r.Subject)
	if r.Subject == "" {
		r.Subject = DefaultSubject
	}
	r.Topic = strings.TrimSpace(r.Topic)
	if d, ok := ParseDifficulty(string(r.Difficulty)); ok {
		r.Difficulty = d
	} else {
		r.Difficulty = DefaultDifficulty
	}
	if r.Quantity < 1 {
		r.Quantity = DefaultQuantity
	}
	if r.Quantity > MaxQuantity {
		r.Quantity = MaxQuantity
	}
	return r
}

// Intent is the coarse intent reported across the reasoning boundary.
type Intent string

const (
	IntentAnalysis           Intent = "ANALYSIS"
	IntentQuestionGeneration Intent = "QUESTION_GENERATION"
	IntentConversational     Intent = "CONVERSATIONAL"
)

// BoundaryIntent maps an Action to the boundary intent.
func (a Action) BoundaryIntent() Intent {
	switch a {
	case ActionAnalyze:
		return IntentAnalysis
	case ActionPractice:
		return IntentQuestionGeneration
	default:
		return IntentConversational
	}
}

// IntentResult is returned by classification-only requests.
type IntentResult struct {
	Intent Intent       `json:"intent"`
	Role   Role         `json:"role"`
	Record IntentRecord `json:"record"`
}
