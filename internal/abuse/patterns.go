package abuse

import "regexp"

// Known dangerous SQL syntax. Matching any pattern flags the message.
var sqlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bUNION\b.*\bSELECT\b`),
	regexp.MustCompile(`(?i)\bDROP\b.*\bTABLE\b`),
	regexp.MustCompile(`(?i)\bDELETE\b.*\bFROM\b`),
	regexp.MustCompile(`(?i)'.*OR.*'.*=.*'`),
	regexp.MustCompile(`--\s*$`),
	regexp.MustCompile(`(?i)\bEXEC\b.*\(`),
	regexp.MustCompile(`(?i)\bINSERT\b.*\bINTO\b`),
}

// Script injection vectors: script tags, javascript: URIs, inline event
// handlers, embedded frames and objects.
var xssPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>.*</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?i)<iframe`),
	regexp.MustCompile(`(?i)<object`),
	regexp.MustCompile(`(?i)<embed`),
}

// A long run of percent-encoded bytes suggests an obfuscated payload.
var encodedRunPattern = regexp.MustCompile(`(?i)(%[0-9a-f]{2}){10,}`)

const (
	maxMessageLength      = 5000
	specialCharRatioLimit = 0.5
)

func isSpecialChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case r == ' ', r == '\t', r == '\n', r == '\r':
		return false
	case r == '.', r == ',', r == '!', r == '?':
		return false
	}
	return true
}

// detectSQLInjection reports whether message matches a known SQL injection
// pattern, and which one.
func detectSQLInjection(message string) (bool, string) {
	for _, p := range sqlPatterns {
		if p.MatchString(message) {
			return true, p.String()
		}
	}
	return false, ""
}

// detectXSS reports whether message matches a known XSS pattern.
func detectXSS(message string) (bool, string) {
	for _, p := range xssPatterns {
		if p.MatchString(message) {
			return true, p.String()
		}
	}
	return false, ""
}

// detectSuspicious flags oversized messages, payloads that are mostly
// non-alphanumeric, and long percent-encoded runs.
func detectSuspicious(message string) (bool, string) {
	if len(message) > maxMessageLength {
		return true, "message too long"
	}

	special := 0
	total := 0
	for _, r := range message {
		total++
		if isSpecialChar(r) {
			special++
		}
	}
	if total > 0 && float64(special) > float64(total)*specialCharRatioLimit {
		return true, "excessive special characters"
	}

	if encodedRunPattern.MatchString(message) {
		return true, "url-encoded payload"
	}

	return false, ""
}

// countIdentical counts occurrences of message in history.
func countIdentical(history []string, message string) int {
	n := 0
	for _, m := range history {
		if m == message {
			n++
		}
	}
	return n
}
