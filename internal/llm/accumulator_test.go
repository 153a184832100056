package llm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamAccumulatorMergesToolCallDeltasByIndex(t *testing.T) {
	acc := NewStreamAccumulator()
	acc.AddToolCallDelta(ToolCallDelta{Index: 0, ID: "call_1", Type: "function", Function: &FunctionCallDelta{Name: "read_file"}})
	acc.AddToolCallDelta(ToolCallDelta{Index: 0, Function: &FunctionCallDelta{Arguments: `{"path":`}})
	acc.AddToolCallDelta(ToolCallDelta{Index: 0, Function: &FunctionCallDelta{Arguments: `"a.txt"}`}})

	resp := acc.Result()
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, "call_1", resp.ToolCalls[0].ID)
	require.Equal(t, "read_file", resp.ToolCalls[0].Function.Name)
	require.Equal(t, `{"path":"a.txt"}`, resp.ToolCalls[0].Function.Arguments)
	require.Equal(t, FinishToolCalls, resp.FinishReason)
}

func TestStreamAccumulatorContentOnlyFinishesStop(t *testing.T) {
	acc := NewStreamAccumulator()
	acc.AddContent("hello ")
	acc.AddContent("world")
	resp := acc.Result()
	require.Equal(t, "hello world", resp.Content)
	require.Equal(t, FinishStop, resp.FinishReason)
}

func TestStreamAccumulatorDropsEmptyToolCallSlots(t *testing.T) {
	acc := NewStreamAccumulator()
	acc.AddToolCallDelta(ToolCallDelta{Index: 2, Function: &FunctionCallDelta{Name: "x"}})
	resp := acc.Result()
	require.Len(t, resp.ToolCalls, 1)
}

func TestEstimateTokensIsPositiveForNonEmptyText(t *testing.T) {
	require.Greater(t, EstimateTokens("the quick brown fox jumps over the lazy dog"), 0)
	require.Equal(t, 0, EstimateTokens(""))
}
