package provider

import "strings"

// ExtractJSONObject returns the first balanced {...} span in raw.
// Braces inside JSON strings are ignored.
func ExtractJSONObject(raw string) (string, bool) {
	return extractSpan(raw, '{', '}')
}

// ExtractJSONArray returns the first balanced [...] span in raw.
func ExtractJSONArray(raw string) (string, bool) {
	return extractSpan(raw, '[', ']')
}

func extractSpan(raw string, open, closing byte) (string, bool) {
	start := strings.IndexByte(raw, open)
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}
