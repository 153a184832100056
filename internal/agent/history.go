package agent

import (
	"strings"

	"github.com/skilllite/skilllite/internal/llm"
)

// History holds the conversation's message list plus the bookkeeping
// progressive disclosure and context-overflow recovery need. Generalizes
// pkg/agent/history.go's persistence-backed history down to the
// in-session Append/PopLast primitives the control loop actually uses.
type History struct {
	messages        []llm.Message
	documentedSkills map[string]bool
}

// NewHistory returns an empty history seeded with a system message.
func NewHistory(systemPrompt string) *History {
	h := &History{documentedSkills: make(map[string]bool)}
	if systemPrompt != "" {
		h.messages = append(h.messages, llm.Message{Role: "system", Content: systemPrompt})
	}
	return h
}

// Append adds one message to the end of the history.
func (h *History) Append(m llm.Message) {
	h.messages = append(h.messages, m)
}

// PopLast removes and returns the last message, used by progressive
// disclosure to retract an assistant tool_call whose result was never
// produced because documentation needed to be injected first.
func (h *History) PopLast() (llm.Message, bool) {
	if len(h.messages) == 0 {
		return llm.Message{}, false
	}
	last := h.messages[len(h.messages)-1]
	h.messages = h.messages[:len(h.messages)-1]
	return last, true
}

// Messages returns the current message slice. Callers must not mutate it.
func (h *History) Messages() []llm.Message {
	return h.messages
}

// Len reports the number of messages currently held.
func (h *History) Len() int {
	return len(h.messages)
}

// normalizeSkillName collapses '-'/'_' so "my-skill" and "my_skill"
// dedup as the same entry in documentedSkills, per spec.md §4.D.4.
func normalizeSkillName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "-", "_")
}

// HasDocumented reports whether a skill's SKILL.md has already been
// injected into this session.
func (h *History) HasDocumented(skillName string) bool {
	return h.documentedSkills[normalizeSkillName(skillName)]
}

// MarkDocumented records that a skill's documentation was injected.
func (h *History) MarkDocumented(skillName string) {
	h.documentedSkills[normalizeSkillName(skillName)] = true
}

// TruncateToolMessages truncates every tool-role message's content to
// maxChars, used by context-overflow recovery (spec.md §4.D.4).
func (h *History) TruncateToolMessages(maxChars int) {
	for i := range h.messages {
		if h.messages[i].Role != "tool" {
			continue
		}
		if s, ok := h.messages[i].Content.(string); ok && len(s) > maxChars {
			h.messages[i].Content = s[:maxChars] + "\n...[truncated for context recovery]"
		}
	}
}
