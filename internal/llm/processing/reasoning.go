package processing

import "strings"

const (
	ThinkStart = "<think>"
	ThinkEnd   = "</think>"
)

// SplitReasoning separates <think>...</think> blocks emitted by reasoning
// models from the answer. An unclosed block runs to the end of the text.
func SplitReasoning(text string) (content string, reasoning string) {
	if !strings.Contains(text, ThinkStart) {
		return text, ""
	}

	var answer, thoughts strings.Builder
	rest := text
	for rest != "" {
		before, after, found := strings.Cut(rest, ThinkStart)
		answer.WriteString(before)
		if !found {
			break
		}

		inside, tail, closed := strings.Cut(after, ThinkEnd)
		thoughts.WriteString(inside)
		if !closed {
			break
		}
		rest = tail
	}

	return strings.TrimSpace(answer.String()), strings.TrimSpace(thoughts.String())
}
