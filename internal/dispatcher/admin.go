package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/fghsg9075-lab/aios/internal/credential"
	"github.com/fghsg9075-lab/aios/internal/llm"
	"github.com/fghsg9075-lab/aios/internal/routing"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var (
	ErrProviderNotFound   = errors.New("provider not found")
	ErrCredentialNotFound = errors.New("credential not found")
)

var validate = validator.New()

// GetProviders returns every provider configuration, with live credential
// state, in registration order.
func (d *Dispatcher) GetProviders() []llm.ProviderConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]llm.ProviderConfig, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.providers[id].Config())
	}
	return out
}

func (d *Dispatcher) GetProvider(id string) (llm.ProviderConfig, bool) {
	p, ok := d.provider(id)
	if !ok {
		return llm.ProviderConfig{}, false
	}
	return p.Config(), true
}

func (d *Dispatcher) GetRoutingTable() routing.Table {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.table.Clone()
}

// BreakerStates reports circuit breaker states by provider id. It is nil when breakers are disabled.
func (d *Dispatcher) BreakerStates() map[string]string {
	return d.breakers.states()
}

func (d *Dispatcher) provider(id string) (llm.Provider, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.providers[id]
	return p, ok
}

func (d *Dispatcher) build(cfg llm.ProviderConfig) (llm.Provider, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid provider %q: %w", cfg.ID, err)
	}
	return llm.NewProvider(cfg, llm.Options{HTTPClient: d.httpClient, Logger: d.logger})
}

// UpdateProvider adds or replaces a provider. When cfg carries no credentials
// (nil APIKeys) the existing provider's credentials are kept.
func (d *Dispatcher) UpdateProvider(cfg llm.ProviderConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	old, exists := d.providers[cfg.ID]
	if exists && cfg.APIKeys == nil {
		cfg.APIKeys = old.Pool().Snapshot()
	}

	p, err := d.build(cfg)
	if err != nil {
		return err
	}

	d.providers[cfg.ID] = p
	if !exists {
		d.order = append(d.order, cfg.ID)
	}
	d.breakers.forget(cfg.ID)

	d.logger.Info("Provider updated",
		zap.String("provider", cfg.ID),
		zap.String("type", p.Type()),
		zap.Bool("enabled", p.Enabled()),
		zap.Int("credentials", p.Pool().Len()),
	)
	return nil
}

// RemoveProvider unregisters a provider. Routing entries that name it are
// left alone and simply skip it as unknown.
func (d *Dispatcher) RemoveProvider(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.providers[id]; !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	delete(d.providers, id)
	d.order = slices.DeleteFunc(d.order, func(s string) bool { return s == id })
	d.breakers.forget(id)

	d.logger.Info("Provider removed", zap.String("provider", id))
	return nil
}

func (d *Dispatcher) UpdateRoutingTable(t routing.Table) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid routing table: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.table = t.Clone()

	d.logger.Info("Routing table updated",
		zap.String("default", t.DefaultProviderID),
		zap.Strings("fallback", t.FallbackOrder),
		zap.Int("mappings", len(t.Mapping)),
	)
	return nil
}

func (d *Dispatcher) pool(providerID string) (*credential.Pool, error) {
	p, ok := d.provider(providerID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerID)
	}
	return p.Pool(), nil
}

// AddKey appends a credential to a provider's pool.
func (d *Dispatcher) AddKey(providerID, secret string) error {
	pool, err := d.pool(providerID)
	if err != nil {
		return err
	}
	if err := pool.Add(secret); err != nil {
		return err
	}
	d.logger.Info("Credential added", zap.String("provider", providerID), zap.String("credential", credential.Mask(secret)))
	return nil
}

// withKey runs fn on the credential whose secret ends with suffix.
func (d *Dispatcher) withKey(providerID, suffix string, fn func(pool *credential.Pool, secret string) bool) error {
	pool, err := d.pool(providerID)
	if err != nil {
		return err
	}
	secret, err := pool.FindBySuffix(suffix)
	if errors.Is(err, credential.ErrAmbiguousSuffix) {
		return fmt.Errorf("%s/...%s: %w", providerID, suffix, err)
	}
	if err != nil || !fn(pool, secret) {
		return fmt.Errorf("%w: %s/...%s", ErrCredentialNotFound, providerID, suffix)
	}
	return nil
}

func (d *Dispatcher) RemoveKey(providerID, suffix string) error {
	return d.withKey(providerID, suffix, func(pool *credential.Pool, secret string) bool {
		return pool.Remove(secret)
	})
}

// ResetKey clears exhaustion and the error count of a credential.
func (d *Dispatcher) ResetKey(providerID, suffix string) error {
	return d.withKey(providerID, suffix, func(pool *credential.Pool, secret string) bool {
		return pool.Reset(secret)
	})
}

func (d *Dispatcher) SetKeyActive(providerID, suffix string, active bool) error {
	return d.withKey(providerID, suffix, func(pool *credential.Pool, secret string) bool {
		return pool.SetActive(secret, active)
	})
}

// TestConnection probes one provider. Unknown providers report false.
func (d *Dispatcher) TestConnection(ctx context.Context, providerID string) bool {
	p, ok := d.provider(providerID)
	if !ok {
		return false
	}
	ok = p.TestConnection(ctx)
	d.logger.Info("Connection test", zap.String("provider", providerID), zap.Bool("ok", ok))
	return ok
}

// Seed is startup-provided provider configuration.
type Seed struct {
	ID      string
	Type    string
	Name    string
	BaseURL string
	Keys    []string
}

// ApplySeeds creates missing providers and adds seeded credentials that are
// not yet present. Invalid seed keys are logged and ignored.
func (d *Dispatcher) ApplySeeds(seeds []Seed) error {
	for _, s := range seeds {
		if _, ok := d.provider(s.ID); !ok {
			name := s.Name
			if name == "" {
				name = s.ID
			}
			err := d.UpdateProvider(llm.ProviderConfig{
				ID:      s.ID,
				Name:    name,
				Type:    s.Type,
				Enabled: true,
				BaseURL: s.BaseURL,
				APIKeys: []credential.Credential{},
			})
			if err != nil {
				return fmt.Errorf("seed %s: %w", s.ID, err)
			}
		}
		for _, key := range s.Keys {
			err := d.AddKey(s.ID, key)
			switch {
			case err == nil, errors.Is(err, credential.ErrDuplicateKey):
			default:
				d.logger.Warn("Ignoring seeded credential", zap.String("provider", s.ID), zap.Error(err))
			}
		}
	}
	return nil
}
