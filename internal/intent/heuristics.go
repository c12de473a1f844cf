package intent

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/ashureev/eduvane/internal/domain"
)

var (
	practiceHints = []string{"practice", "question", "quiz", "worksheet", "generate", "exercise"}
	analyzeHints  = []string{"analyze", "analyse", "analysis", "review", "feedback", "check", "evaluate", "grade", "marking"}
	historyHints  = []string{"history", "progress", "past results", "my results"}
	greetings     = []string{"hi", "hello", "hey", "good morning", "good afternoon", "good evening", "thanks", "thank you"}
)

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7,
	"eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12, "fifteen": 15, "twenty": 20,
	"a couple of": 2, "a few": 3, "several": 4,
}

// subjectKeywords maps topic keywords to a subject. Order matters for overlaps.
var subjectKeywords = []struct {
	keyword string
	subject string
}{
	{"photosynthesis", "Biology"},
	{"cell", "Biology"},
	{"genetics", "Biology"},
	{"ecosystem", "Biology"},
	{"evolution", "Biology"},
	{"fraction", "Mathematics"},
	{"decimal", "Mathematics"},
	{"algebra", "Mathematics"},
	{"equation", "Mathematics"},
	{"geometry", "Mathematics"},
	{"calculus", "Mathematics"},
	{"percentage", "Mathematics"},
	{"trigonometry", "Mathematics"},
	{"math", "Mathematics"},
	{"chemistry", "Chemistry"},
	{"chemical", "Chemistry"},
	{"molecule", "Chemistry"},
	{"periodic table", "Chemistry"},
	{"physics", "Physics"},
	{"force", "Physics"},
	{"motion", "Physics"},
	{"electricity", "Physics"},
	{"grammar", "English"},
	{"reading comprehension", "English"},
	{"essay", "English"},
	{"poetry", "English"},
	{"history of", "History"},
	{"world war", "History"},
	{"geography", "Geography"},
	{"climate", "Geography"},
}

var (
	countRe    = regexp.MustCompile(`\b(\d{1,3}|` + numberWordAlternation() + `)\s+(?:[a-z-]+\s+){0,2}(?:questions?|problems?|items?|exercises?)\b`)
	levelWords = []string{"grade", "year", "class", "level", "chapter", "unit", "page", "form", "standard"}
	topicRe    = regexp.MustCompile(`\b(?:on|about|covering)\s+([a-z0-9][a-z0-9 '\-]{1,60})`)
	topicForRe = regexp.MustCompile(`\bfor\s+([a-z][a-z0-9 '\-]{1,60})`)
)

// Heuristic builds an IntentRecord from keywords only.
func Heuristic(text string, hasUploads bool) domain.IntentRecord {
	lower := strings.ToLower(strings.TrimSpace(text))
	rec := domain.IntentRecord{Action: heuristicAction(lower, hasUploads)}

	rec.Quantity = extractQuantity(lower)
	if d, ok := extractDifficulty(lower); ok {
		rec.Difficulty = d
	}
	rec.Topic = extractTopic(text)
	rec.Subject = SubjectFor(rec.Topic + " " + lower)
	return rec.WithDefaults()
}

func heuristicAction(lower string, hasUploads bool) domain.Action {
	switch {
	case hasUploads:
		return domain.ActionAnalyze
	case containsAny(lower, practiceHints):
		return domain.ActionPractice
	case containsAny(lower, analyzeHints):
		return domain.ActionAnalyze
	case containsAny(lower, historyHints):
		return domain.ActionHistory
	case isGreeting(lower):
		return domain.ActionConversational
	default:
		return domain.ActionUnknown
	}
}

// SubjectFor returns the subject implied by text, or the default subject.
func SubjectFor(text string) string {
	lower := strings.ToLower(text)
	for _, kw := range subjectKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.subject
		}
	}
	return domain.DefaultSubject
}

// extractQuantity reads a count only when it directly qualifies a practice
// noun, so "grade 7 questions" does not ask for seven.
func extractQuantity(lower string) int {
	for _, m := range countRe.FindAllStringSubmatchIndex(lower, -1) {
		if prev := lastWord(lower[:m[0]]); slices.Contains(levelWords, prev) {
			continue
		}
		raw := lower[m[2]:m[3]]
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
		if n, ok := numberWords[strings.Join(strings.Fields(raw), " ")]; ok {
			return n
		}
	}
	return 0
}

func lastWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[len(fields)-1], ".,!?;:")
}

func numberWordAlternation() string {
	words := make([]string, 0, len(numberWords))
	for w := range numberWords {
		words = append(words, strings.ReplaceAll(w, " ", `\s+`))
	}
	// Longest first so multi-word counts such as "a couple of" match whole.
	slices.SortFunc(words, func(a, b string) int { return len(b) - len(a) })
	return strings.Join(words, "|")
}

func extractDifficulty(lower string) (domain.Difficulty, bool) {
	for _, w := range strings.Fields(lower) {
		if d, ok := domain.ParseDifficulty(strings.Trim(w, ".,!?;:")); ok {
			return d, true
		}
	}
	return "", false
}

func extractTopic(text string) string {
	lower := strings.ToLower(text)
	m := topicRe.FindStringSubmatch(lower)
	if m == nil {
		m = topicForRe.FindStringSubmatch(lower)
	}
	if m == nil {
		return ""
	}
	topic := " " + strings.TrimSpace(m[1]) + " "
	// Stop at trailing qualifiers such as "for grade 7" or "at medium difficulty".
	for _, stop := range []string{" for ", " at ", " with ", " in ", " please "} {
		if i := strings.Index(topic, stop); i >= 0 {
			topic = topic[:i]
		}
	}
	topic = strings.TrimSpace(topic)
	for _, suffix := range []string{" questions", " question", " problems", " exercises"} {
		topic = strings.TrimSuffix(topic, suffix)
	}
	return strings.TrimSpace(strings.Trim(topic, ".,!?"))
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func isGreeting(lower string) bool {
	clean := strings.Trim(lower, ".,!? ")
	for _, g := range greetings {
		if clean == g || strings.HasPrefix(clean, g+" ") || strings.HasPrefix(clean, g+",") {
			return true
		}
	}
	return false
}
