package llmcore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	deltas []string
	calls  []ToolCall
}

func (r *recordingHandler) OnDelta(text string)       { r.deltas = append(r.deltas, text) }
func (r *recordingHandler) OnToolCall(call ToolCall)  { r.calls = append(r.calls, call) }
func (r *recordingHandler) OnThoughtSummary(string)   {}
func (r *recordingHandler) OnThoughtSignature(string) {}

func TestStreamingDecoderTextOnly(t *testing.T) {
	d := NewStreamingDecoder()
	h := &recordingHandler{}

	require.NoError(t, d.Feed(StreamEvent{Kind: EventMessageStart, ResponseID: "resp-1", InputTokens: 10}, h))
	require.NoError(t, d.Feed(StreamEvent{Kind: EventTextDelta, TextDelta: "Hello, "}, h))
	require.NoError(t, d.Feed(StreamEvent{Kind: EventTextDelta, TextDelta: "world"}, h))
	require.NoError(t, d.Feed(StreamEvent{Kind: EventMessageDelta, OutputTokens: 5, StopReason: StopEndTurn}, h))
	require.NoError(t, d.Feed(StreamEvent{Kind: EventMessageStop}, h))

	msg := d.Message()
	require.Equal(t, "Hello, world", msg.Content)
	require.Equal(t, StopEndTurn, d.StopReason())
	require.Equal(t, 10, d.Usage().PromptTokens)
	require.Equal(t, 5, d.Usage().CompletionTokens)
	require.Equal(t, []string{"Hello, ", "world"}, h.deltas)
}

func TestStreamingDecoderToolCallAccumulatesFragments(t *testing.T) {
	d := NewStreamingDecoder()
	h := &recordingHandler{}

	require.NoError(t, d.Feed(StreamEvent{Kind: EventMessageStart}, h))
	require.NoError(t, d.Feed(StreamEvent{Kind: EventToolUseStart, BlockIndex: 0, ToolCallID: "call-1", ToolName: "search"}, h))
	require.NoError(t, d.Feed(StreamEvent{Kind: EventToolInputDelta, BlockIndex: 0, ToolInputFragment: `{"q":`}, h))
	require.NoError(t, d.Feed(StreamEvent{Kind: EventToolInputDelta, BlockIndex: 0, ToolInputFragment: `"cats"}`}, h))
	require.NoError(t, d.Feed(StreamEvent{Kind: EventToolUseStop, BlockIndex: 0}, h))
	require.NoError(t, d.Feed(StreamEvent{Kind: EventMessageDelta, StopReason: StopToolUse}, h))

	require.Len(t, h.calls, 1)
	require.Equal(t, "search", h.calls[0].Name)
	require.JSONEq(t, `{"q":"cats"}`, string(h.calls[0].Args))
	require.Equal(t, StopToolUse, d.StopReason())
}

func TestStreamingDecoderRejectsInvalidToolJSON(t *testing.T) {
	d := NewStreamingDecoder()
	require.NoError(t, d.Feed(StreamEvent{Kind: EventToolUseStart, BlockIndex: 0, ToolName: "bad"}, nil))
	require.NoError(t, d.Feed(StreamEvent{Kind: EventToolInputDelta, BlockIndex: 0, ToolInputFragment: `{not json`}, nil))
	err := d.Feed(StreamEvent{Kind: EventToolUseStop, BlockIndex: 0}, nil)
	require.Error(t, err)
}

func TestStreamingDecoderKeepaliveIsNoop(t *testing.T) {
	d := NewStreamingDecoder()
	require.NoError(t, d.Feed(StreamEvent{Kind: EventKeepalive}, nil))
	require.Empty(t, d.Message().Content)
}

func TestStreamingDecoderErrorTerminates(t *testing.T) {
	d := NewStreamingDecoder()
	boom := errors.New("upstream closed")
	err := d.Feed(StreamEvent{Kind: EventError, Err: boom}, nil)
	require.ErrorIs(t, err, boom)
}
