package llm

// StreamAccumulator merges a sequence of per-chunk deltas into one final
// Response. Tool-call fragments arrive split across chunks and are keyed
// by Index; text content simply concatenates in arrival order.
type StreamAccumulator struct {
	content      []byte
	toolCalls    []ToolCall
	finishReason FinishReason
	usage        Usage
}

// NewStreamAccumulator returns an empty accumulator.
func NewStreamAccumulator() *StreamAccumulator {
	return &StreamAccumulator{}
}

// AddContent appends a text-only delta.
func (a *StreamAccumulator) AddContent(delta string) {
	if delta == "" {
		return
	}
	a.content = append(a.content, delta...)
}

// AddToolCallDelta merges one tool-call delta fragment by index, growing
// the slice as needed, string-concatenating the ID/Name/Arguments fields
// already accumulated at that slot and overwriting Type when one is given.
func (a *StreamAccumulator) AddToolCallDelta(d ToolCallDelta) {
	for len(a.toolCalls) <= d.Index {
		a.toolCalls = append(a.toolCalls, ToolCall{Type: "function"})
	}
	tc := &a.toolCalls[d.Index]
	if d.ID != "" {
		tc.ID += d.ID
	}
	if d.Type != "" {
		tc.Type = d.Type
	}
	if d.Function != nil {
		if d.Function.Name != "" {
			tc.Function.Name += d.Function.Name
		}
		if d.Function.Arguments != "" {
			tc.Function.Arguments += d.Function.Arguments
		}
	}
}

// SetFinishReason records the terminal finish reason of the stream.
func (a *StreamAccumulator) SetFinishReason(r FinishReason) {
	if r != "" {
		a.finishReason = r
	}
}

// SetUsage records token usage, typically sent in the final chunk.
func (a *StreamAccumulator) SetUsage(u Usage) {
	a.usage = u
}

// Result assembles the final Response from everything accumulated so
// far. Tool calls with an empty Function.Name are dropped — they're
// index slots that were allocated but never actually populated, which
// can happen if a provider skips an index.
func (a *StreamAccumulator) Result() Response {
	calls := make([]ToolCall, 0, len(a.toolCalls))
	for _, tc := range a.toolCalls {
		if tc.Function.Name == "" {
			continue
		}
		calls = append(calls, tc)
	}
	reason := a.finishReason
	if reason == "" {
		if len(calls) > 0 {
			reason = FinishToolCalls
		} else {
			reason = FinishStop
		}
	}
	return Response{
		Content:      string(a.content),
		ToolCalls:    calls,
		FinishReason: reason,
		Usage:        a.usage,
	}
}
