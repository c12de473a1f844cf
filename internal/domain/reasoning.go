package domain

// HandwritingFeedback describes the legibility of an uploaded sample.
type HandwritingFeedback struct {
	Legibility       string   `json:"legibility"`
	LineConsistency  string   `json:"lineConsistency"`
	CharacterSpacing string   `json:"characterSpacing"`
	MeaningImpact    string   `json:"meaningImpact"`
	Suggestions      []string `json:"suggestions"`
}

// ReasoningOutput is the canonical, deterministic result of the reasoning stage.
// Score is nil when no grading authority was available.
type ReasoningOutput struct {
	Score               *int
	NarrativeText       string
	FollowUpSuggestion  string
	GrowthSteps         []string
	GeneratedQuestions  []string
	HandwritingFeedback *HandwritingFeedback
	Degraded            bool
}

// ReasoningRequest is the shaped request sent across the reasoning boundary.
type ReasoningRequest struct {
	UserID    string             `json:"userId"`
	Role      Role               `json:"role"`
	SessionID string             `json:"sessionId"`
	Message   string             `json:"message"`
	Uploads   []Upload           `json:"uploads"`
	History   []ConversationTurn `json:"history"`
}

// ReasoningResponse is returned across the reasoning boundary.
type ReasoningResponse struct {
	SessionID           string               `json:"sessionId"`
	Intent              Intent               `json:"intent"`
	Role                Role                 `json:"role"`
	ResponseText        string               `json:"responseText"`
	FollowUpSuggestion  string               `json:"followUpSuggestion,omitempty"`
	GeneratedQuestions  []string             `json:"generatedQuestions,omitempty"`
	HandwritingFeedback *HandwritingFeedback `json:"handwritingFeedback,omitempty"`
	Score               *int                 `json:"score,omitempty"`
	GrowthSteps         []string             `json:"growthSteps,omitempty"`
}
