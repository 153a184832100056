package llm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToAnthropicMessagesLiftsSystemAndCollapsesToolResults(t *testing.T) {
	system, msgs := toAnthropicMessages([]Message{
		{Role: "system", Content: "be terse"},
		{Role: "system", Content: "never apologize"},
		{Role: "user", Content: "list files"},
		{Role: "assistant", ToolCalls: []ToolCall{{ID: "t1", Type: "function", Function: FunctionCall{Name: "list_directory", Arguments: `{}`}}}},
		{Role: "tool", ToolCallID: "t1", Content: "a.txt\nb.txt"},
	})

	require.Equal(t, "be terse\n\nnever apologize", system)
	require.Len(t, msgs, 3)
	require.Equal(t, "user", msgs[2].Role)
	require.Equal(t, "tool_result", msgs[2].Content[0].Type)
	require.Equal(t, "t1", msgs[2].Content[0].ToolUseID)
}

func TestNormalizeAnthropicFinishReason(t *testing.T) {
	require.Equal(t, FinishStop, normalizeAnthropicFinish("end_turn"))
	require.Equal(t, FinishToolCalls, normalizeAnthropicFinish("tool_use"))
	require.Equal(t, FinishLength, normalizeAnthropicFinish("max_tokens"))
}

func TestAnthropicResultToResponseCollectsToolUseBlocks(t *testing.T) {
	resp := anthropicResultToResponse([]anthropicContent{
		{Type: "text", Text: "looking"},
		{Type: "tool_use", ID: "t1", Name: "read_file", Input: []byte(`{"path":"a.txt"}`)},
	}, "tool_use", Usage{PromptTokens: 10, CompletionTokens: 5})

	require.Equal(t, "looking", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, "read_file", resp.ToolCalls[0].Function.Name)
	require.Equal(t, FinishToolCalls, resp.FinishReason)
}
