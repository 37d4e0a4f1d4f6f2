package llmcore

import "strings"

// EstimateTokens returns a rough token estimate for text using the common
// chars/4 heuristic, used as a fallback when no provider-native tokenizer
// is attached.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// EstimateTokensForMessages sums the heuristic token estimate across a
// message history, adding a small per-message overhead for role/formatting.
func EstimateTokensForMessages(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateTokens(m.Content) + 4
		for _, tc := range m.ToolCalls {
			total += EstimateTokens(string(tc.Args)) + EstimateTokens(tc.Name) + 4
		}
	}
	return total
}

// contextWindows holds known context window sizes (in tokens) for models
// commonly routed through the fallback chain. Unknown models report ok=false
// so callers fall back to a conservative default.
var contextWindows = map[string]int{
	"claude-opus-4":      200_000,
	"claude-sonnet-4":    200_000,
	"claude-3-5-sonnet":  200_000,
	"claude-3-5-haiku":   200_000,
	"gpt-4o":             128_000,
	"gpt-4o-mini":        128_000,
	"gpt-4.1":            1_047_576,
	"gpt-4.1-mini":       1_047_576,
	"o3":                 200_000,
	"o4-mini":            200_000,
	"gemini-2.5-pro":     1_048_576,
	"gemini-2.5-flash":   1_048_576,
	"gemini-3-pro":       1_048_576,
}

// ContextSize returns the known context window size for model, matching on
// a case-insensitive prefix since provider model identifiers are frequently
// versioned or dated (e.g. "claude-sonnet-4-20250514").
func ContextSize(model string) (int, bool) {
	lower := strings.ToLower(model)
	for prefix, size := range contextWindows {
		if strings.HasPrefix(lower, prefix) {
			return size, true
		}
	}
	return 0, false
}
