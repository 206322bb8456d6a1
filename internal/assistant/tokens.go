package assistant

import "strings"

// EstimateTokens gives a rough token count from the word count.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	// Roughly 0.75 tokens per word for English text; LaTeX runs denser but
	// the budget only needs to be in the right range.
	tokens := int(float64(len(strings.Fields(text))) * 1.33)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// TruncateToTokens keeps whole lines from the start of text until the token
// budget is reached. It reports whether anything was dropped.
func TruncateToTokens(text string, budget int) (string, bool) {
	if budget <= 0 || EstimateTokens(text) <= budget {
		return text, false
	}
	var b strings.Builder
	used := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		n := EstimateTokens(line)
		if used+n > budget {
			break
		}
		b.WriteString(line)
		used += n
	}
	return b.String(), true
}
