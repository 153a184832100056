package agent

import (
	"context"

	"github.com/skilllite/skilllite/internal/llm"
)

// Long-result thresholds: below truncateThreshold a result passes through
// untouched; between truncate and summarize it is hard-truncated with a
// marker; above summarizeThreshold an LLM summarization pass replaces it,
// except for the content-preserving tool set, per spec.md §4.D.4.
const (
	longResultTruncateThreshold  = 4000
	longResultSummarizeThreshold = 16000
	longResultHeadTailKeep       = 2000
)

// contentPreservingTools never get summarized — their whole value to the
// LLM is exact content, so they're head+tail truncated instead.
var contentPreservingTools = map[string]bool{
	"read_file":    true,
	"chat_history": true,
}

// summarizer abstracts the LLM call used to compress an oversized tool
// result, so longresult.go doesn't depend on loop.go's concrete Transport
// wiring.
type summarizer func(ctx context.Context, text string) (string, error)

// handleLongResult applies spec.md §4.D.4's long-result policy to a
// tool's raw output before it is appended to history.
func handleLongResult(ctx context.Context, toolName, output string, summarize summarizer) string {
	if len(output) <= longResultTruncateThreshold {
		return output
	}
	if contentPreservingTools[toolName] {
		return headTailTruncate(output, longResultHeadTailKeep)
	}
	if len(output) <= longResultSummarizeThreshold || summarize == nil {
		return output[:longResultTruncateThreshold] + "\n...[truncated, original length: " + itoa(len(output)) + " chars]"
	}
	summary, err := summarize(ctx, output)
	if err != nil || summary == "" {
		return output[:longResultTruncateThreshold] + "\n...[truncated, summarization failed, original length: " + itoa(len(output)) + " chars]"
	}
	return "[summarized tool result]\n" + summary
}

func headTailTruncate(s string, keep int) string {
	if len(s) <= keep*2 {
		return s
	}
	return s[:keep] + "\n...[middle elided, original length: " + itoa(len(s)) + " chars]...\n" + s[len(s)-keep:]
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// withContextOverflowRecovery wraps a Complete/CompleteStream call, and on
// a context-overflow error truncates tool-role messages in history and
// retries up to maxRetries times before propagating the error, per
// spec.md §4.D.4.
func withContextOverflowRecovery(history *History, maxChars, maxRetries int, call func() (llm.Response, error)) (llm.Response, error) {
	var resp llm.Response
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err = call()
		if err == nil || !llm.IsContextOverflow(err) {
			return resp, err
		}
		history.TruncateToolMessages(maxChars)
	}
	return resp, err
}
