package llmcore

import (
	"context"
	"fmt"
	"strings"
)

// summarySystemPrompt is the fixed instruction set sent to the LLM when
// condensing older conversation turns. Kept verbatim across callers so
// summary quality doesn't drift with prompt tweaks in one call site.
const summarySystemPrompt = `Summarize the following conversation segment concisely. Preserve:
1. Key decisions and conclusions
2. Important facts mentioned
3. The user's current goals and context
4. Any unresolved questions

Keep the summary under 500 words. Write in third person (e.g., "The user asked about..." "The assistant recommended...").`

// ContextSummarizer condenses older conversation messages into a single
// summary string when a conversation approaches its token budget, freeing
// room for new messages without losing earlier context.
type ContextSummarizer struct{}

// Summarize sends messages to provider with the fixed summarization system
// prompt and returns the trimmed response text. An empty messages slice
// short-circuits to an empty summary without a provider round trip.
func (ContextSummarizer) Summarize(ctx context.Context, provider Provider, messages []Message, model string) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s: %s", m.Role, m.Content)
	}

	req := []Message{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Please summarize this conversation:\n\n<conversation>\n%s\n</conversation>", b.String())},
	}

	resp, err := provider.Chat(ctx, req, nil, model)
	if err != nil {
		return "", fmt.Errorf("summarize context: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// SelectMessagesToSummarize splits messages into (toSummarize, toKeep), where
// toKeep holds the most recent keepRecent messages and toSummarize holds
// everything before them. If messages has keepRecent or fewer entries,
// toSummarize is empty and toKeep is all of messages.
func (ContextSummarizer) SelectMessagesToSummarize(messages []Message, keepRecent int) (toSummarize, toKeep []Message) {
	if len(messages) <= keepRecent {
		return nil, messages
	}
	split := len(messages) - keepRecent
	return messages[:split], messages[split:]
}
