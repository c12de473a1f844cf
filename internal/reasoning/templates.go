package reasoning

import (
	"fmt"
	"strings"

	"github.com/ashureev/eduvane/internal/domain"
)

const (
	followUpAnalysis = "Upload the next attempt when ready, and I will compare progress."
	followUpPractice = "Attempt these questions first, then upload your responses for feedback."
	followUpHistory  = "Upload new work or request practice to keep building progress."
)

var gapKeywords = []string{
	"fractions",
	"decimals",
	"algebra",
	"linear equations",
	"geometry",
	"grammar",
	"reading comprehension",
	"chemistry",
	"physics",
	"photosynthesis",
}

// ExtractLearningGaps returns up to three learning gaps named in text.
// When no known gap matches, the first 42 characters of text stand in.
func ExtractLearningGaps(text string) []string {
	lower := strings.ToLower(text)
	var gaps []string
	for _, kw := range gapKeywords {
		if strings.Contains(lower, kw) {
			gaps = append(gaps, kw)
		}
	}
	if len(gaps) == 0 {
		if clean := strings.TrimSpace(text); clean != "" {
			gaps = append(gaps, strings.TrimSpace(domain.TruncateRunes(clean, 42)))
		}
	}
	if len(gaps) > 3 {
		gaps = gaps[:3]
	}
	return gaps
}

func rolePrefix(role domain.Role) string {
	switch role {
	case domain.RoleTeacher:
		return "The student"
	case domain.RoleStudent:
		return "You"
	default:
		return "This work"
	}
}

func analysisNarrative(role domain.Role, gaps []string) string {
	focus := "core concepts in this submission"
	if len(gaps) > 0 {
		n := min(2, len(gaps))
		focus = strings.Join(gaps[:n], ", ")
	}
	switch role {
	case domain.RoleTeacher:
		return fmt.Sprintf("The student shows partial understanding in %s. "+
			"Reasoning steps are present, but there are consistency gaps in execution. "+
			"Targeted reteaching with one worked example and one independent check should improve retention.", focus)
	case domain.RoleStudent:
		return fmt.Sprintf("You show partial understanding in %s. "+
			"Your reasoning steps are visible, and a few checkpoints need tighter consistency. "+
			"One guided example followed by one independent retry will strengthen this skill.", focus)
	default:
		return fmt.Sprintf("This work shows partial understanding in %s. "+
			"Reasoning is visible with a few consistency gaps that can be addressed through guided practice.", focus)
	}
}

func ungradedNotice(role domain.Role) string {
	switch role {
	case domain.RoleTeacher:
		return "No grade was assigned because automated grading is unavailable right now; please review the score manually."
	case domain.RoleStudent:
		return "No grade was assigned because automated grading is unavailable right now, so focus on the steps above."
	default:
		return "No grade was assigned because automated grading is unavailable right now."
	}
}

func unreadableNotice(role domain.Role) string {
	if role == domain.RoleStudent {
		return "I could not read text from your upload, so a clearer photo will help the next review."
	}
	return "No text could be read from the upload, so a clearer photo will help the next review."
}

func defaultGrowthSteps(gaps []string) []string {
	focus := "the target skill"
	if len(gaps) > 0 {
		focus = gaps[0]
	}
	return []string{
		fmt.Sprintf("Review one worked example on %s and note each step.", focus),
		fmt.Sprintf("Retry one %s problem independently without notes.", focus),
		"Check each step of the retry against the worked example.",
	}
}

func practiceNarrative(role domain.Role, questions []string) string {
	lines := make([]string, len(questions))
	for i, q := range questions {
		lines[i] = fmt.Sprintf("%d. %s", i+1, q)
	}
	joined := strings.Join(lines, "\n")
	switch role {
	case domain.RoleTeacher:
		return "Generated practice set aligned to observed gaps:\n" + joined +
			"\nPlease ask the student to attempt these and upload the response for feedback."
	case domain.RoleStudent:
		return "Here are focused practice questions linked to your current gaps:\n" + joined +
			"\nTry these first, then upload your work and I will review it."
	default:
		return "Here are focused practice questions linked to this conversation:\n" + joined +
			"\nAttempt them and upload the results for feedback."
	}
}

var questionTemplates = []string{
	"Solve two problems that apply %s in different contexts.",
	"Explain each step you used to solve a %s problem in plain text.",
	"Create one new %s question and solve it completely.",
	"Identify a common mistake in %s and show how to correct it.",
	"Describe a real-world situation where %s is used.",
	"Compare two different methods for working with %s.",
	"Write a short summary of the key rules of %s.",
	"Solve a %s problem and check your answer a second way.",
	"List the vocabulary needed for %s and define each term.",
	"Teach %s to a classmate in three short steps.",
}

// templateQuestion returns the deterministic question at index i.
func templateQuestion(topic string, difficulty domain.Difficulty, i int) string {
	q := fmt.Sprintf(questionTemplates[i%len(questionTemplates)], topic)
	if i >= len(questionTemplates) {
		q = fmt.Sprintf("(%s challenge) %s", difficulty, q)
	}
	return q
}

func conversationalNarrative(role domain.Role, message string) string {
	if strings.TrimSpace(message) == "" {
		if role == domain.RoleTeacher {
			return "Please share the student task or upload work, and I will provide targeted feedback."
		}
		return "Share your question or upload your work, and I will guide the next step."
	}
	if role == domain.RoleTeacher {
		return "The request is understood. Please share the student work artifact or target skill, " +
			"and I will return analysis or question generation aligned to that need."
	}
	return "I can help with feedback or guided practice. Share your work or ask for focused questions on a topic."
}

func handwritingFor(uploads []domain.Upload) *domain.HandwritingFeedback {
	if len(uploads) == 0 {
		return nil
	}
	for _, u := range uploads {
		if u.IsPDF() {
			return &domain.HandwritingFeedback{
				Legibility:       "Readable in most sections.",
				LineConsistency:  "Mostly aligned with occasional baseline shifts.",
				CharacterSpacing: "Spacing is generally clear between words.",
				MeaningImpact:    "The current handwriting quality should not block meaning.",
				Suggestions: []string{
					"Keep letter heights consistent in multi-line answers.",
					"Leave a little more space between dense equations and annotations.",
				},
			}
		}
	}
	return &domain.HandwritingFeedback{
		Legibility:       "Moderate clarity with a few ambiguous characters.",
		LineConsistency:  "Lines vary in tilt across the page.",
		CharacterSpacing: "Word spacing is inconsistent in several areas.",
		MeaningImpact:    "Some symbols may be interpreted incorrectly due to spacing and tilt.",
		Suggestions: []string{
			"Use a slower first pass to stabilize letter and symbol shapes.",
			"Keep one finger-width between words and between math steps.",
			"Rewrite final answers on a fresh line to improve readability.",
		},
	}
}

func historyNarrative(role domain.Role, history []domain.ConversationTurn) string {
	var userTurns, assistantTurns int
	for _, t := range history {
		switch t.Role {
		case domain.TurnUser:
			userTurns++
		case domain.TurnAssistant:
			assistantTurns++
		}
	}
	if userTurns == 0 {
		switch role {
		case domain.RoleTeacher:
			return "No progress is recorded for the student in this session yet. Upload student work or request practice to start a record."
		case domain.RoleStudent:
			return "You have no recorded progress in this session yet. Upload your work or ask for practice to get started."
		default:
			return "There is no recorded progress in this session yet. Upload work or request practice to get started."
		}
	}
	gaps := ExtractLearningGaps(joinUserTurns(history))
	focus := "the topics discussed so far"
	if len(gaps) > 0 {
		focus = strings.Join(gaps, ", ")
	}
	return fmt.Sprintf("%s %s worked through %d requests in this session with %d responses, focusing on %s.",
		rolePrefix(role), historyVerb(role), userTurns, assistantTurns, focus)
}

func historyVerb(role domain.Role) string {
	if role == domain.RoleStudent {
		return "have"
	}
	return "has"
}

func joinUserTurns(history []domain.ConversationTurn) string {
	var parts []string
	for _, t := range history {
		if t.Role == domain.TurnUser {
			parts = append(parts, t.Content)
		}
	}
	return strings.Join(parts, " ")
}
