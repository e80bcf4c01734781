package llm

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// ProbePrompt is the fixed prompt used by connection tests.
const ProbePrompt = "Hello"

// fence markers with an optional language tag, e.g. ```json
var fenceRegex = regexp.MustCompile("```[A-Za-z0-9_+-]*")

// StripCodeFences removes Markdown code-fence markers so the text can be
// parsed as structured data by the caller.
func StripCodeFences(text string) string {
	return strings.TrimSpace(fenceRegex.ReplaceAllString(text, ""))
}

// ResolveModel picks the task's model preference or falls back to def.
func ResolveModel(task Task, def string) string {
	if task.ModelPreference != "" {
		return task.ModelPreference
	}
	return def
}

// Probe sends the fixed probe task through p and reports success.
func Probe(ctx context.Context, p Provider, log *zap.Logger) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Connection test panicked", zap.String("provider", p.ID()), zap.Any("panic", r))
			ok = false
		}
	}()

	if _, err := p.GenerateContent(ctx, Task{Kind: KindText, Prompt: ProbePrompt}); err != nil {
		log.Warn("Connection test failed", zap.String("provider", p.ID()), zap.Error(err))
		return false
	}
	return true
}
