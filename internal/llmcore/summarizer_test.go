package llmcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	reply Message
	err   error
	seen  []Message
}

func (f *fakeProvider) Chat(_ context.Context, msgs []Message, _ []ToolSchema, _ string) (Message, error) {
	f.seen = msgs
	if f.err != nil {
		return Message{}, f.err
	}
	return f.reply, nil
}

func (f *fakeProvider) ChatStream(context.Context, []Message, []ToolSchema, string, StreamHandler) error {
	return nil
}

func TestContextSummarizerSummarize(t *testing.T) {
	provider := &fakeProvider{reply: Message{Role: "assistant", Content: "  the user asked about X  "}}
	var s ContextSummarizer

	out, err := s.Summarize(context.Background(), provider, []Message{
		{Role: "user", Content: "what is X?"},
		{Role: "assistant", Content: "X is a thing"},
	}, "claude-opus-4")
	require.NoError(t, err)
	require.Equal(t, "the user asked about X", out)
	require.Len(t, provider.seen, 2)
	require.Equal(t, "system", provider.seen[0].Role)
	require.Contains(t, provider.seen[0].Content, "third person")
}

func TestContextSummarizerSummarizeEmpty(t *testing.T) {
	provider := &fakeProvider{}
	var s ContextSummarizer

	out, err := s.Summarize(context.Background(), provider, nil, "m")
	require.NoError(t, err)
	require.Empty(t, out)
	require.Nil(t, provider.seen)
}

func TestSelectMessagesToSummarizeFewerThanKeep(t *testing.T) {
	var s ContextSummarizer
	msgs := []Message{{Content: "Hello"}, {Content: "Hi!"}}

	toSummarize, toKeep := s.SelectMessagesToSummarize(msgs, 5)
	require.Empty(t, toSummarize)
	require.Len(t, toKeep, 2)
}

func TestSelectMessagesToSummarizeSplits(t *testing.T) {
	var s ContextSummarizer
	msgs := []Message{
		{Content: "Oldest"}, {Content: "Old reply"},
		{Content: "Middle"}, {Content: "Middle reply"},
		{Content: "Recent"}, {Content: "Recent reply"},
	}

	toSummarize, toKeep := s.SelectMessagesToSummarize(msgs, 2)
	require.Len(t, toSummarize, 4)
	require.Len(t, toKeep, 2)
	require.Equal(t, "Recent", toKeep[0].Content)
	require.Equal(t, "Recent reply", toKeep[1].Content)
	require.Equal(t, "Oldest", toSummarize[0].Content)
	require.Equal(t, "Middle reply", toSummarize[3].Content)
}
