package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/skilllite/skilllite/internal/llm"
)

func TestHandleLongResultPassesShortOutputThrough(t *testing.T) {
	out := handleLongResult(context.Background(), "run_command", "ok", nil)
	if out != "ok" {
		t.Fatalf("expected short output untouched, got %q", out)
	}
}

func TestHandleLongResultTruncatesBetweenThresholds(t *testing.T) {
	input := strings.Repeat("x", longResultTruncateThreshold+500)
	out := handleLongResult(context.Background(), "run_command", input, nil)
	if !strings.Contains(out, "truncated") {
		t.Fatalf("expected truncation marker, got length %d", len(out))
	}
}

func TestHandleLongResultSummarizesAboveThreshold(t *testing.T) {
	input := strings.Repeat("x", longResultSummarizeThreshold+500)
	called := false
	summarize := func(ctx context.Context, text string) (string, error) {
		called = true
		return "short summary", nil
	}
	out := handleLongResult(context.Background(), "run_command", input, summarize)
	if !called {
		t.Fatal("expected summarizer to be invoked")
	}
	if !strings.Contains(out, "short summary") {
		t.Fatalf("expected summary text in output, got %q", out)
	}
}

func TestHandleLongResultPreservesContentForReadFile(t *testing.T) {
	input := strings.Repeat("x", longResultSummarizeThreshold+500)
	out := handleLongResult(context.Background(), "read_file", input, func(ctx context.Context, text string) (string, error) {
		t.Fatal("summarizer should not be called for content-preserving tools")
		return "", nil
	})
	if !strings.Contains(out, "elided") {
		t.Fatalf("expected head+tail truncation marker, got length %d", len(out))
	}
}

func TestWithContextOverflowRecoveryTruncatesAndRetries(t *testing.T) {
	history := NewHistory("system")
	history.Append(llm.Message{Role: "tool", Content: strings.Repeat("y", 10000), ToolCallID: "1"})

	attempts := 0
	call := func() (llm.Response, error) {
		attempts++
		if attempts < 2 {
			return llm.Response{}, &contextOverflowErr{}
		}
		return llm.Response{Content: "ok"}, nil
	}
	resp, err := withContextOverflowRecovery(history, 100, 3, call)
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if resp.Content != "ok" {
		t.Fatalf("expected final response content, got %q", resp.Content)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
}

type contextOverflowErr struct{}

func (e *contextOverflowErr) Error() string { return "context_length_exceeded" }
