package llm

import "encoding/json"

type TaskKind string

const (
	KindText        TaskKind = "TEXT"
	KindJSON        TaskKind = "JSON"
	KindImageToText TaskKind = "IMAGE_TO_TEXT"
)

// Task is a single content-generation request.
type Task struct {
	Kind              TaskKind `json:"type" binding:"omitempty,oneof=TEXT JSON IMAGE_TO_TEXT"`
	Prompt            string   `json:"prompt" binding:"required"`
	SystemInstruction string   `json:"systemInstruction,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty" binding:"omitempty,gte=0,lte=2"`
	// ModelPreference is an engine category, a provider id, or a model id.
	ModelPreference string `json:"modelPreference,omitempty"`
	JSONSchema      any    `json:"jsonSchema,omitempty"`
	ImageURL        string `json:"imageUrl,omitempty" binding:"omitempty,url"`
}

// Response is the normalized result of a successful vendor call.
type Response struct {
	Text         string          `json:"text"`
	Reasoning    string          `json:"reasoning,omitempty"`
	ModelUsed    string          `json:"modelUsed"`
	ProviderUsed string          `json:"providerUsed"`
	InputTokens  int             `json:"inputTokens,omitempty"`
	OutputTokens int             `json:"outputTokens,omitempty"`
	Cost         *float64        `json:"cost,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}
