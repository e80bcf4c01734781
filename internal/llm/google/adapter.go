// Package google adapts the Gemini API, which does not speak the OpenAI
// chat-completion protocol.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fghsg9075-lab/aios/internal/llm"
	"github.com/fghsg9075-lab/aios/internal/llm/processing"
	"google.golang.org/genai"
)

const (
	Type         = "gemini"
	DefaultModel = "gemini-1.5-flash"
)

func init() {
	llm.Register(Type, func(cfg llm.ProviderConfig, opts llm.Options) (llm.Provider, error) {
		return NewAdapter(cfg, opts), nil
	})
}

type Adapter struct {
	llm.Base
	baseURL string
	client  *http.Client
}

// NewAdapter builds a Gemini adapter. An empty cfg.BaseURL means the public endpoint.
func NewAdapter(cfg llm.ProviderConfig, opts llm.Options) *Adapter {
	return &Adapter{
		Base:    llm.NewBase(cfg, opts.Logger),
		baseURL: cfg.BaseURL,
		client:  opts.HTTPClient,
	}
}

func (a *Adapter) DefaultModel() string { return DefaultModel }

func (a *Adapter) TestConnection(ctx context.Context) bool {
	return llm.Probe(ctx, a, a.Logger())
}

func buildConfig(task llm.Task) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if task.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(task.SystemInstruction, genai.RoleUser)
	}
	if task.Temperature != nil {
		t := float32(*task.Temperature)
		cfg.Temperature = &t
	}
	if task.Kind == llm.KindJSON {
		cfg.ResponseMIMEType = "application/json"
		if task.JSONSchema != nil {
			cfg.ResponseJsonSchema = task.JSONSchema
		}
	}
	return cfg
}

// buildContents inlines the image because Gemini only dereferences its own
// file URIs.
func (a *Adapter) buildContents(ctx context.Context, task llm.Task) ([]*genai.Content, error) {
	if task.Kind != llm.KindImageToText || task.ImageURL == "" {
		return genai.Text(task.Prompt), nil
	}

	img, err := processing.LoadImage(ctx, a.client, task.ImageURL)
	if err != nil {
		return nil, err
	}
	return []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(task.Prompt),
		genai.NewPartFromBytes(img.Data, img.MIMEType),
	}, genai.RoleUser)}, nil
}

func (a *Adapter) GenerateContent(ctx context.Context, task llm.Task) (*llm.Response, error) {
	if a.Pool().UsableCount() == 0 {
		return nil, a.NoCredential()
	}

	// an unreadable image is the caller's fault, so no credential is drawn for it
	contents, err := a.buildContents(ctx, task)
	if err != nil {
		return nil, &llm.ProviderError{Provider: a.ID(), Kind: llm.FailureTransient, Err: err}
	}

	key, ok := a.Pool().Select()
	if !ok {
		return nil, a.NoCredential()
	}

	model := llm.ResolveModel(task, DefaultModel)

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      key,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  a.client,
		HTTPOptions: genai.HTTPOptions{BaseURL: a.baseURL},
	})
	if err != nil {
		return nil, a.HandleFailure(key, &llm.ProviderError{Provider: a.ID(), Kind: llm.FailureTransient, Err: err})
	}

	resp, err := client.Models.GenerateContent(ctx, model, contents, buildConfig(task))
	if err != nil {
		return nil, a.HandleFailure(key, a.classify(err))
	}

	text := resp.Text()
	if text == "" {
		return nil, a.HandleFailure(key, &llm.ProviderError{
			Provider: a.ID(),
			Kind:     llm.FailureTransient,
			Err:      errors.New("response contained no text"),
		})
	}
	if task.Kind == llm.KindJSON {
		text = llm.StripCodeFences(text)
	}

	out := &llm.Response{
		Text:         text,
		ModelUsed:    model,
		ProviderUsed: a.ID(),
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	out.Cost = a.EstimateCost(model, out.InputTokens, out.OutputTokens)
	if raw, err := json.Marshal(resp); err == nil {
		out.Raw = raw
	}
	return out, nil
}

func (a *Adapter) classify(err error) *llm.ProviderError {
	pe := &llm.ProviderError{Provider: a.ID(), Kind: llm.FailureTransient, Err: err}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		pe.Status = apiErr.Code
		if apiErr.Code == http.StatusUnauthorized ||
			apiErr.Code == http.StatusForbidden ||
			strings.Contains(apiErr.Error(), "API_KEY_INVALID") {
			pe.Kind = llm.FailureAuth
		}
	}
	return pe
}
