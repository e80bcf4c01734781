package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/fghsg9075-lab/aios/internal/credential"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubProvider struct {
	Base
	err   error
	calls []Task
}

func (s *stubProvider) DefaultModel() string { return "stub-default" }

func (s *stubProvider) GenerateContent(_ context.Context, task Task) (*Response, error) {
	s.calls = append(s.calls, task)
	if s.err != nil {
		return nil, s.err
	}
	return &Response{Text: "ok", ModelUsed: ResolveModel(task, s.DefaultModel()), ProviderUsed: s.ID()}, nil
}

func (s *stubProvider) TestConnection(ctx context.Context) bool {
	return Probe(ctx, s, s.Logger())
}

func init() {
	Register("stub", func(cfg ProviderConfig, opts Options) (Provider, error) {
		return &stubProvider{Base: NewBase(cfg, opts.Logger)}, nil
	})
}

func TestStripCodeFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```":  `{"a":1}`,
		"```\n[1,2]\n```":          "[1,2]",
		"  {\"plain\":true}  ":      `{"plain":true}`,
		"prefix ```JSON{}``` tail": "prefix {} tail",
	}
	for in, want := range cases {
		got := StripCodeFences(in)
		assert.Equal(t, want, got)
		assert.NotContains(t, got, "```")
	}
}

func TestResolveModel(t *testing.T) {
	assert.Equal(t, "fallback", ResolveModel(Task{}, "fallback"))
	assert.Equal(t, "chosen", ResolveModel(Task{ModelPreference: "chosen"}, "fallback"))
}

func TestNewProvider_UsesTypeThenID(t *testing.T) {
	p, err := NewProvider(ProviderConfig{ID: "my-stub", Type: "stub"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "my-stub", p.ID())
	assert.Equal(t, "stub", p.Type())

	p, err = NewProvider(ProviderConfig{ID: "stub"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "stub", p.Type())

	_, err = NewProvider(ProviderConfig{ID: "unknown-vendor"}, Options{})
	assert.Error(t, err)
	assert.Contains(t, Types(), "stub")
}

func TestRegister_PanicsOnDuplicate(t *testing.T) {
	assert.Panics(t, func() {
		Register("stub", nil)
	})
}

func TestBaseConfig_ReflectsLiveCredentials(t *testing.T) {
	b := NewBase(ProviderConfig{
		ID:      "p1",
		APIKeys: []credential.Credential{{Key: "secret-one", IsActive: true}},
	}, zap.NewNop())

	_, ok := b.Pool().Select()
	require.True(t, ok)

	cfg := b.Config()
	require.Len(t, cfg.APIKeys, 1)
	assert.Equal(t, int64(1), cfg.APIKeys[0].UsageCount)
}

func TestHandleFailure(t *testing.T) {
	b := NewBase(ProviderConfig{
		ID: "p1",
		APIKeys: []credential.Credential{
			{Key: "auth-fail-key", IsActive: true},
			{Key: "rate-limited-key", IsActive: true},
		},
	}, zap.NewNop())

	authErr := &ProviderError{Provider: "p1", Kind: FailureAuth, Status: 401, Err: errors.New("invalid key")}
	err := b.HandleFailure("auth-fail-key", authErr)
	assert.True(t, IsAuthFailure(err))

	transientErr := &ProviderError{Provider: "p1", Kind: FailureTransient, Status: 429, Err: errors.New("slow down")}
	err = b.HandleFailure("rate-limited-key", transientErr)
	assert.True(t, IsTransient(err))

	snap := b.Pool().Snapshot()
	assert.True(t, snap[0].IsExhausted)
	assert.Equal(t, int64(1), snap[0].ErrorCount)
	assert.False(t, snap[1].IsExhausted)
	assert.Equal(t, int64(1), snap[1].ErrorCount)
}

func TestHandleFailure_CancelledCallDoesNotCount(t *testing.T) {
	b := NewBase(ProviderConfig{
		ID:      "p1",
		APIKeys: []credential.Credential{{Key: "innocent-key", IsActive: true}},
	}, zap.NewNop())

	err := b.HandleFailure("innocent-key", &ProviderError{Provider: "p1", Kind: FailureTransient, Err: context.Canceled})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, b.Pool().Snapshot()[0].ErrorCount)
}

func TestNoCredential(t *testing.T) {
	b := NewBase(ProviderConfig{ID: "empty"}, zap.NewNop())
	assert.ErrorIs(t, b.NoCredential(), ErrNoUsableCredential)
}

func TestEstimateCost(t *testing.T) {
	price := 0.5
	b := NewBase(ProviderConfig{ID: "p1", Models: []Model{{ID: "m1", CostPer1kToken: &price}}}, zap.NewNop())

	cost := b.EstimateCost("m1", 500, 1500)
	require.NotNil(t, cost)
	assert.InDelta(t, 1.0, *cost, 1e-9)
	assert.Nil(t, b.EstimateCost("m2", 500, 1500))

	// unconfigured but catalogued
	cost = b.EstimateCost("gpt-4o-mini", 1000, 1000)
	require.NotNil(t, cost)
	assert.InDelta(t, 0.00075, *cost, 1e-12)
}

func TestProbe(t *testing.T) {
	ok := &stubProvider{Base: NewBase(ProviderConfig{ID: "ok"}, zap.NewNop())}
	assert.True(t, ok.TestConnection(context.Background()))
	require.Len(t, ok.calls, 1)
	assert.Equal(t, ProbePrompt, ok.calls[0].Prompt)
	assert.Equal(t, KindText, ok.calls[0].Kind)

	failing := &stubProvider{Base: NewBase(ProviderConfig{ID: "bad"}, zap.NewNop()), err: errors.New("boom")}
	assert.False(t, failing.TestConnection(context.Background()))
}
