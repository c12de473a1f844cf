package domain

// RealizationRequest asks the realization guard to rephrase a reasoning narrative.
type RealizationRequest struct {
	SessionID              string
	Intent                 Intent
	Role                   Role
	UserMessage            string
	BaseResponseText       string
	BaseFollowUpSuggestion string
	// RecentOutputs holds recent assistant narratives, most recent last.
	RecentOutputs []string
}

// FallbackReason explains why a rewrite was not applied.
type FallbackReason string

const (
	FallbackDisabled        FallbackReason = "disabled"
	FallbackMissingConfig   FallbackReason = "missing_config"
	FallbackTimeout         FallbackReason = "timeout"
	FallbackProviderError   FallbackReason = "provider_error"
	FallbackInvalidOutput   FallbackReason = "invalid_output"
	FallbackDuplicateOutput FallbackReason = "duplicate_output"
)

// RealizationResult is the outcome of a realization attempt.
// When Applied is false, ResponseText equals the base text byte for byte.
type RealizationResult struct {
	ResponseText       string         `json:"responseText"`
	FollowUpSuggestion string         `json:"followUpSuggestion,omitempty"`
	Applied            bool           `json:"applied"`
	FallbackReason     FallbackReason `json:"fallbackReason,omitempty"`
}
