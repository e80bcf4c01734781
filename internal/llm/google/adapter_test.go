package google_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fghsg9075-lab/aios/internal/credential"
	"github.com/fghsg9075-lab/aios/internal/llm"
	"github.com/fghsg9075-lab/aios/internal/llm/google"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(text string) map[string]any {
	return map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{
				"role":  "model",
				"parts": []any{map[string]any{"text": text}},
			},
			"finishReason": "STOP",
		}},
		"usageMetadata": map[string]any{
			"promptTokenCount":     4,
			"candidatesTokenCount": 7,
			"totalTokenCount":      11,
		},
	}
}

func newAdapter(url string, keys ...string) *google.Adapter {
	var creds []credential.Credential
	for _, k := range keys {
		creds = append(creds, credential.Credential{Key: k, IsActive: true})
	}
	return google.NewAdapter(llm.ProviderConfig{
		ID:      "gemini",
		Enabled: true,
		BaseURL: url,
		APIKeys: creds,
	}, llm.Options{HTTPClient: http.DefaultClient})
}

func TestGenerateContent_RequestShape(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "gemini-key-1", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(candidate("Photosynthesis converts light."))
	}))
	defer server.Close()

	temp := 0.3
	a := newAdapter(server.URL, "gemini-key-1")
	resp, err := a.GenerateContent(context.Background(), llm.Task{
		Kind:              llm.KindText,
		Prompt:            "Explain photosynthesis",
		SystemInstruction: "You are a tutor",
		Temperature:       &temp,
	})
	require.NoError(t, err)

	assert.Equal(t, "Photosynthesis converts light.", resp.Text)
	assert.Equal(t, google.DefaultModel, resp.ModelUsed)
	assert.Equal(t, "gemini", resp.ProviderUsed)
	assert.Equal(t, 4, resp.InputTokens)
	assert.Equal(t, 7, resp.OutputTokens)
	assert.NotEmpty(t, resp.Raw)

	system := body["systemInstruction"].(map[string]any)
	parts := system["parts"].([]any)
	assert.Equal(t, "You are a tutor", parts[0].(map[string]any)["text"])

	gen := body["generationConfig"].(map[string]any)
	assert.InDelta(t, 0.3, gen["temperature"], 1e-6)
	assert.NotContains(t, gen, "responseMimeType")
}

func TestGenerateContent_JSONTask(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-1.5-pro:generateContent", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(candidate("```json\n[{\"q\": \"2+2\", \"a\": \"4\"}]\n```"))
	}))
	defer server.Close()

	schema := map[string]any{"type": "array"}
	a := newAdapter(server.URL, "gemini-key-1")
	resp, err := a.GenerateContent(context.Background(), llm.Task{
		Kind:            llm.KindJSON,
		Prompt:          "One MCQ",
		ModelPreference: "gemini-1.5-pro",
		JSONSchema:      schema,
	})
	require.NoError(t, err)

	assert.Equal(t, `[{"q": "2+2", "a": "4"}]`, resp.Text)
	assert.Equal(t, "gemini-1.5-pro", resp.ModelUsed)

	gen := body["generationConfig"].(map[string]any)
	assert.Equal(t, "application/json", gen["responseMimeType"])
	assert.Equal(t, schema, gen["responseJsonSchema"])
}

func TestGenerateContent_InlinesImage(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(candidate("A cat."))
	}))
	defer server.Close()

	a := newAdapter(server.URL, "gemini-key-1")
	resp, err := a.GenerateContent(context.Background(), llm.Task{
		Kind:     llm.KindImageToText,
		Prompt:   "Describe",
		ImageURL: "data:image/png;base64,aGVsbG8=",
	})
	require.NoError(t, err)
	assert.Equal(t, "A cat.", resp.Text)

	contents := body["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "Describe", parts[0].(map[string]any)["text"])
	inline := parts[1].(map[string]any)["inlineData"].(map[string]any)
	assert.Equal(t, "image/png", inline["mimeType"])
	assert.Equal(t, "aGVsbG8=", inline["data"])
}

func TestGenerateContent_BadImageSparesCredential(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	a := newAdapter(server.URL, "gemini-key-1")
	_, err := a.GenerateContent(context.Background(), llm.Task{
		Kind:     llm.KindImageToText,
		Prompt:   "Describe",
		ImageURL: "data:image/png;base64,!!!",
	})
	require.Error(t, err)
	assert.True(t, llm.IsTransient(err))
	assert.Zero(t, calls)
	snap := a.Pool().Snapshot()
	assert.Equal(t, int64(0), snap[0].ErrorCount)
	assert.Equal(t, int64(0), snap[0].UsageCount)
	assert.Nil(t, snap[0].LastUsed)
}

func TestGenerateContent_InvalidKeyExhausts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"code": 400, "message": "API key not valid. Please pass a valid API key.", "status": "INVALID_ARGUMENT", "details": [{"@type": "type.googleapis.com/google.rpc.ErrorInfo", "reason": "API_KEY_INVALID"}]}}`))
	}))
	defer server.Close()

	a := newAdapter(server.URL, "bad-gemini-key")
	_, err := a.GenerateContent(context.Background(), llm.Task{Prompt: "Hi"})
	require.Error(t, err)
	assert.True(t, llm.IsAuthFailure(err))
	assert.Equal(t, 0, a.Pool().UsableCount())
}

func TestGenerateContent_QuotaIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"code": 429, "message": "Resource has been exhausted", "status": "RESOURCE_EXHAUSTED"}}`))
	}))
	defer server.Close()

	a := newAdapter(server.URL, "busy-gemini-key")
	_, err := a.GenerateContent(context.Background(), llm.Task{Prompt: "Hi"})
	require.Error(t, err)
	assert.True(t, llm.IsTransient(err))

	snap := a.Pool().Snapshot()
	assert.False(t, snap[0].IsExhausted)
	assert.Equal(t, int64(1), snap[0].ErrorCount)
}

func TestGenerateContent_NoCredentials(t *testing.T) {
	a := newAdapter("http://127.0.0.1:1")
	_, err := a.GenerateContent(context.Background(), llm.Task{Prompt: "Hi"})
	assert.ErrorIs(t, err, llm.ErrNoUsableCredential)
}

func TestRegisteredAsGemini(t *testing.T) {
	p, err := llm.NewProvider(llm.ProviderConfig{ID: "gemini"}, llm.Options{})
	require.NoError(t, err)
	assert.Equal(t, google.DefaultModel, p.DefaultModel())
	assert.Equal(t, "gemini", p.Type())
}
