package langchain

import "strings"

// cleanCompletion removes reasoning blocks and surrounding whitespace from model output.
func cleanCompletion(s string) string {
	for {
		start := strings.Index(s, "<think>")
		if start < 0 {
			break
		}
		end := strings.Index(s[start:], "</think>")
		if end < 0 {
			// Unterminated block: drop everything after the opening tag
			s = s[:start]
			break
		}
		s = s[:start] + s[start+end+len("</think>"):]
	}
	// Trim leading and trailing whitespace
	return strings.TrimSpace(s)
}
