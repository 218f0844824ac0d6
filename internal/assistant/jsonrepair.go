package assistant

import (
	"regexp"
	"strings"
)

var (
	thinkBlockPattern     = regexp.MustCompile(`(?s)<think>.*?</think>`)
	reasoningBlockPattern = regexp.MustCompile(`(?s)<reasoning>.*?</reasoning>`)
	codeFencePattern      = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
)

// sanitizeModelJSON strips reasoning-model decoration and extracts the JSON
// payload from a raw completion. Applied before every structured parse:
//  1. drop <think> blocks, including a truncated unclosed trailing tag
//  2. drop <reasoning> blocks
//  3. unwrap markdown code fences
//  4. take the largest {...} span
//  5. if brace balance is short by 1 to 3 closers, append them
//
// Returns the best-effort JSON candidate; the caller decides whether it
// parses.
func sanitizeModelJSON(raw string) string {
	s := thinkBlockPattern.ReplaceAllString(raw, "")
	// A stream cut off mid-thought leaves an unclosed <think>; everything
	// from the last unclosed tag onward is model reasoning, not answer.
	if idx := strings.LastIndex(s, "<think>"); idx >= 0 && !strings.Contains(s[idx:], "</think>") {
		s = s[:idx]
	}
	s = reasoningBlockPattern.ReplaceAllString(s, "")
	if m := codeFencePattern.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = largestBraceSpan(s)
	s = repairBraces(s)
	return strings.TrimSpace(s)
}

// largestBraceSpan returns the widest substring starting at the first '{'
// and ending at the last '}'. When no closing brace follows the opener the
// tail from the opener is returned so brace repair can try to finish it.
func largestBraceSpan(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return s
	}
	end := strings.LastIndex(s, "}")
	if end <= start {
		return s[start:]
	}
	return s[start : end+1]
}

// repairBraces appends up to three missing closing braces. Anything more
// unbalanced than that is not worth guessing at.
func repairBraces(s string) string {
	depth := 0
	inString := false
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && inString:
			escaped = true
		case r == '"':
			inString = !inString
		case !inString && r == '{':
			depth++
		case !inString && r == '}':
			depth--
		}
	}
	if depth >= 1 && depth <= 3 {
		return s + strings.Repeat("}", depth)
	}
	return s
}
