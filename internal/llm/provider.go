package llm

import (
	"context"
	"net/http"

	"github.com/fghsg9075-lab/aios/internal/credential"
	"github.com/fghsg9075-lab/aios/internal/modeldata"
	"go.uber.org/zap"
)

// Model describes one model a provider offers.
type Model struct {
	ID             string   `json:"id" validate:"required"`
	Name           string   `json:"name"`
	ProviderID     string   `json:"providerId,omitempty"`
	Enabled        bool     `json:"enabled"`
	CostPer1kToken *float64 `json:"costPer1kToken,omitempty"`
	ContextWindow  int      `json:"contextWindow,omitempty"`
	IsImageCapable bool     `json:"isImageCapable,omitempty"`
}

// ProviderConfig is the persisted description of a provider. ID is the
// routing key and must be unique within a registry.
type ProviderConfig struct {
	ID      string                  `json:"id" mapstructure:"id" validate:"required"`
	Name    string                  `json:"name" mapstructure:"name"`
	Type    string                  `json:"type,omitempty" mapstructure:"type"`
	Enabled bool                    `json:"enabled" mapstructure:"enabled"`
	BaseURL string                  `json:"baseUrl,omitempty" mapstructure:"base_url" validate:"omitempty,url"`
	Icon    string                  `json:"icon,omitempty" mapstructure:"icon"`
	Models  []Model                 `json:"models" mapstructure:"models" validate:"dive"`
	APIKeys []credential.Credential `json:"apiKeys" mapstructure:"api_keys"`
}

// AdapterType returns the adapter family, which defaults to the provider id.
func (c ProviderConfig) AdapterType() string {
	if c.Type != "" {
		return c.Type
	}
	return c.ID
}

// Options are the shared collaborators handed to every adapter.
type Options struct {
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Provider sends tasks to a single vendor.
type Provider interface {
	ID() string
	Type() string
	Enabled() bool
	DefaultModel() string

	// Config returns the configuration with the live credential state.
	Config() ProviderConfig
	Pool() *credential.Pool

	// GenerateContent performs exactly one vendor call with a credential from Pool.
	GenerateContent(ctx context.Context, task Task) (*Response, error)
	// TestConnection sends a fixed probe and never returns an error.
	TestConnection(ctx context.Context) bool
}

// Base carries the state every adapter shares: its configuration and credential pool.
type Base struct {
	cfg  ProviderConfig
	pool *credential.Pool
	log  *zap.Logger
}

func NewBase(cfg ProviderConfig, log *zap.Logger) Base {
	pool := credential.NewPool(cfg.APIKeys)
	cfg.APIKeys = nil
	return Base{
		cfg:  cfg,
		pool: pool,
		log:  log.With(zap.String("provider", cfg.ID)),
	}
}

func (b *Base) ID() string             { return b.cfg.ID }
func (b *Base) Type() string           { return b.cfg.AdapterType() }
func (b *Base) Enabled() bool          { return b.cfg.Enabled }
func (b *Base) Pool() *credential.Pool { return b.pool }
func (b *Base) Logger() *zap.Logger    { return b.log }

func (b *Base) Config() ProviderConfig {
	cfg := b.cfg
	cfg.Models = append([]Model(nil), b.cfg.Models...)
	cfg.APIKeys = b.pool.Snapshot()
	return cfg
}

// EstimateCost prices a call from the configured per-1k-token cost of model,
// falling back to the built-in catalog. It returns nil when neither knows the model.
func (b *Base) EstimateCost(model string, tokensIn, tokensOut int) *float64 {
	for _, m := range b.cfg.Models {
		if m.ID == model && m.CostPer1kToken != nil {
			cost := float64(tokensIn+tokensOut) / 1000 * *m.CostPer1kToken
			return &cost
		}
	}
	if cost, ok := modeldata.Cost(model, tokensIn, tokensOut); ok {
		return &cost
	}
	return nil
}
