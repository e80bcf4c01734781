// Package compat implements every vendor that speaks the OpenAI chat-completion
// protocol. Vendors differ only in base URL and default model.
package compat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fghsg9075-lab/aios/internal/llm"
	"github.com/fghsg9075-lab/aios/internal/llm/processing"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DefaultTemperature applies when a task does not set one.
const DefaultTemperature = 0.7

// Preset is the only vendor-specific knowledge an OpenAI-compatible adapter needs.
type Preset struct {
	Type         string
	BaseURL      string
	DefaultModel string
}

var Presets = []Preset{
	{Type: "openai", BaseURL: "https://api.openai.com/v1", DefaultModel: "gpt-4o"},
	{Type: "groq", BaseURL: "https://api.groq.com/openai/v1", DefaultModel: "llama-3.1-70b-versatile"},
	{Type: "deepseek", BaseURL: "https://api.deepseek.com", DefaultModel: "deepseek-chat"},
}

func init() {
	for _, p := range Presets {
		llm.Register(p.Type, p.Factory())
	}
}

// Factory returns the llm.Factory for this preset.
func (p Preset) Factory() llm.Factory {
	return func(cfg llm.ProviderConfig, opts llm.Options) (llm.Provider, error) {
		return NewAdapter(cfg, p, opts), nil
	}
}

type Adapter struct {
	llm.Base
	baseURL      string
	defaultModel string
	client       *http.Client
}

// NewAdapter builds an adapter for cfg; cfg.BaseURL overrides the preset URL.
func NewAdapter(cfg llm.ProviderConfig, preset Preset, opts llm.Options) *Adapter {
	baseURL := preset.BaseURL
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	return &Adapter{
		Base:         llm.NewBase(cfg, opts.Logger),
		baseURL:      baseURL,
		defaultModel: preset.DefaultModel,
		client:       opts.HTTPClient,
	}
}

func (a *Adapter) DefaultModel() string { return a.defaultModel }
func (a *Adapter) BaseURL() string      { return a.baseURL }

func (a *Adapter) TestConnection(ctx context.Context) bool {
	return llm.Probe(ctx, a, a.Logger())
}

// buildParams shapes a task into a chat-completion request.
func buildParams(task llm.Task, model string) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if task.SystemInstruction != "" {
		messages = append(messages, openai.SystemMessage(task.SystemInstruction))
	}
	if task.Kind == llm.KindImageToText && task.ImageURL != "" {
		messages = append(messages, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(task.Prompt),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: task.ImageURL}),
		}))
	} else {
		messages = append(messages, openai.UserMessage(task.Prompt))
	}

	temperature := DefaultTemperature
	if task.Temperature != nil {
		temperature = *task.Temperature
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(temperature),
	}
	if task.Kind == llm.KindJSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

func (a *Adapter) GenerateContent(ctx context.Context, task llm.Task) (*llm.Response, error) {
	key, ok := a.Pool().Select()
	if !ok {
		return nil, a.NoCredential()
	}

	model := llm.ResolveModel(task, a.defaultModel)

	client := openai.NewClient(
		option.WithAPIKey(key),
		option.WithBaseURL(a.baseURL),
		option.WithHTTPClient(a.client),
		option.WithMaxRetries(0),
	)

	resp, err := client.Chat.Completions.New(ctx, buildParams(task, model))
	if err != nil {
		return nil, a.HandleFailure(key, a.classify(err))
	}
	if len(resp.Choices) == 0 {
		return nil, a.HandleFailure(key, &llm.ProviderError{
			Provider: a.ID(),
			Kind:     llm.FailureTransient,
			Err:      errors.New("response contained no choices"),
		})
	}

	text, reasoning := processing.SplitReasoning(resp.Choices[0].Message.Content)
	if task.Kind == llm.KindJSON {
		text = llm.StripCodeFences(text)
	}

	tokensIn, tokensOut := int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens)
	out := &llm.Response{
		Text:         text,
		Reasoning:    reasoning,
		ModelUsed:    model,
		ProviderUsed: a.ID(),
		InputTokens:  tokensIn,
		OutputTokens: tokensOut,
		Cost:         a.EstimateCost(model, tokensIn, tokensOut),
	}
	if raw := resp.RawJSON(); raw != "" && json.Valid([]byte(raw)) {
		out.Raw = json.RawMessage(raw)
	}
	return out, nil
}

// classify separates rejected credentials from failures worth retrying later.
func (a *Adapter) classify(err error) *llm.ProviderError {
	pe := &llm.ProviderError{Provider: a.ID(), Kind: llm.FailureTransient, Err: err}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		pe.Status = apiErr.StatusCode
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized,
			apiErr.StatusCode == http.StatusForbidden,
			apiErr.Code == "invalid_api_key":
			pe.Kind = llm.FailureAuth
		}
	}
	return pe
}
