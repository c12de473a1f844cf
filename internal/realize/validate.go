package realize

import (
	"strings"
	"unicode/utf8"

	"github.com/ashureev/eduvane/internal/domain"
)

// maxLengthDrift is the largest accepted relative length change.
const maxLengthDrift = 0.2

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func normalizedSet(outputs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(outputs))
	for _, o := range outputs {
		if n := normalize(o); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func lengthWithinBounds(original, rewritten string) bool {
	n := utf8.RuneCountInString(original)
	delta := utf8.RuneCountInString(rewritten) - n
	if delta < 0 {
		delta = -delta
	}
	return float64(delta)/float64(max(1, n)) <= maxLengthDrift
}

func roleConsistent(role domain.Role, rewritten string) bool {
	n := normalize(rewritten)
	switch role {
	case domain.RoleStudent:
		return !strings.Contains(n, "the student")
	case domain.RoleTeacher:
		return !strings.HasPrefix(n, "you ")
	default:
		return true
	}
}

func isDuplicate(text string, recent map[string]struct{}) bool {
	_, ok := recent[normalize(text)]
	return ok
}

func acceptable(role domain.Role, original, rewritten string, recent map[string]struct{}) bool {
	return lengthWithinBounds(original, rewritten) &&
		roleConsistent(role, rewritten) &&
		!isDuplicate(rewritten, recent)
}

// accept validates a candidate rewrite. The follow-up is checked only when
// both the base and the candidate carry one.
func accept(req domain.RealizationRequest, c candidate, recent map[string]struct{}) bool {
	if !acceptable(req.Role, req.BaseResponseText, c.ResponseText, recent) {
		return false
	}
	if c.FollowUpSuggestion != "" && req.BaseFollowUpSuggestion != "" {
		return acceptable(req.Role, req.BaseFollowUpSuggestion, c.FollowUpSuggestion, recent)
	}
	return true
}
