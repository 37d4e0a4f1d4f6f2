package agent

import (
	"fmt"
	"strings"

	"boternity/internal/llmcore"
)

// BuildInitialLLMMessages composes the initial message list from system,
// optional prior history, and the current user input. When history is
// present, the first history message (when it is a user message) is annotated with a
// [CONVERSATION HISTORY] marker and the new user input with
// [CURRENT REQUEST], so the model can distinguish prior turns (which may
// have been summarized or reordered) from what it must answer now. Without
// history neither annotation is added.
func BuildInitialLLMMessages(system, user string, history []llmcore.Message) []llmcore.Message {
	msgs := make([]llmcore.Message, 0, 2+len(history))
	if system != "" {
		msgs = append(msgs, llmcore.Message{Role: "system", Content: system})
	}

	hasHistory := len(history) > 0
	for i, h := range history {
		if i == 0 && h.Role == "user" {
			h.Content = "[CONVERSATION HISTORY]\n" + h.Content
		}
		msgs = append(msgs, h)
	}

	if user != "" {
		content := user
		if hasHistory {
			content = "[CURRENT REQUEST]\n" + user
		}
		msgs = append(msgs, llmcore.Message{Role: "user", Content: content})
	}
	return msgs
}

// FormatHistorySummary renders a short human-readable description of a
// message history, used in logs and delegation trace payloads.
func FormatHistorySummary(history []llmcore.Message) string {
	if len(history) == 0 {
		return "(no history)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d messages: ", len(history))
	for i, h := range history {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(h.Role)
	}
	return b.String()
}
