package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fghsg9075-lab/aios/internal/credential"
	"github.com/fghsg9075-lab/aios/internal/llm"
	"github.com/fghsg9075-lab/aios/internal/routing"
	"github.com/fghsg9075-lab/aios/internal/store"
	"go.uber.org/zap"
)

// Field names inside the persisted settings blob. The blob is shared with
// other consumers, so fields not listed here are preserved on save.
const (
	fieldProviders       = "aiProviders"
	fieldMapping         = "aiCanonicalMapping"
	fieldDefaultProvider = "aiDefaultProviderId"
	fieldFallbackOrder   = "aiFallbackOrder"
	fieldLegacyKeys      = "apiKeys"
)

// legacyKeyProvider receives the flat key list of the legacy blob shape.
const legacyKeyProvider = "gemini"

// DefaultProviders is the registry used when nothing has been persisted yet.
func DefaultProviders() []llm.ProviderConfig {
	return []llm.ProviderConfig{
		{
			ID: "gemini", Name: "Google Gemini", Type: "gemini", Enabled: true,
			Models: []llm.Model{
				{ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash", ProviderID: "gemini", Enabled: true, IsImageCapable: true},
				{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", ProviderID: "gemini", Enabled: true, IsImageCapable: true},
			},
			APIKeys: []credential.Credential{},
		},
		{
			ID: "groq", Name: "Groq", Type: "groq", Enabled: true,
			Models: []llm.Model{
				{ID: "llama-3.1-70b-versatile", Name: "Llama 3.1 70B", ProviderID: "groq", Enabled: true},
				{ID: "llama3-8b-8192", Name: "Llama 3 8B", ProviderID: "groq", Enabled: true},
			},
			APIKeys: []credential.Credential{},
		},
		{
			ID: "openai", Name: "OpenAI", Type: "openai", Enabled: true,
			Models: []llm.Model{
				{ID: "gpt-4o", Name: "GPT-4o", ProviderID: "openai", Enabled: true, IsImageCapable: true},
				{ID: "gpt-4o-mini", Name: "GPT-4o mini", ProviderID: "openai", Enabled: true, IsImageCapable: true},
			},
			APIKeys: []credential.Credential{},
		},
		{
			ID: "deepseek", Name: "DeepSeek", Type: "deepseek", Enabled: true,
			Models: []llm.Model{
				{ID: "deepseek-chat", Name: "DeepSeek Chat", ProviderID: "deepseek", Enabled: true},
			},
			APIKeys: []credential.Credential{},
		},
	}
}

// Load restores the registry and routing table from the config store. It
// never fails: a missing or unreadable blob yields the defaults.
func (d *Dispatcher) Load(ctx context.Context) error {
	blob := d.readBlob(ctx)

	configs, legacy := decodeProviders(blob, d.logger)
	if legacy {
		d.logger.Info("Using default providers", zap.String("reason", "no persisted provider list"))
	}
	table := decodeTable(blob, d.logger)

	providers := make(map[string]llm.Provider, len(configs))
	order := make([]string, 0, len(configs))
	for _, cfg := range configs {
		if _, dup := providers[cfg.ID]; dup {
			d.logger.Warn("Skipping duplicate provider", zap.String("provider", cfg.ID))
			continue
		}
		p, err := d.build(cfg)
		if err != nil {
			d.logger.Warn("Skipping provider", zap.String("provider", cfg.ID), zap.Error(err))
			continue
		}
		providers[cfg.ID] = p
		order = append(order, cfg.ID)
	}

	d.mu.Lock()
	d.providers = providers
	d.order = order
	d.table = table
	d.mu.Unlock()

	d.logger.Info("Dispatcher configuration loaded",
		zap.Strings("providers", order),
		zap.String("default", table.DefaultProviderID),
		zap.Strings("fallback", table.FallbackOrder),
	)
	return nil
}

func (d *Dispatcher) readBlob(ctx context.Context) map[string]json.RawMessage {
	raw, err := d.store.Get(ctx, store.SettingsKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			d.logger.Error("Failed to read settings, using defaults", zap.Error(err))
		}
		return map[string]json.RawMessage{}
	}

	var blob map[string]json.RawMessage
	if err := json.Unmarshal(raw, &blob); err != nil || blob == nil {
		d.logger.Warn("Settings blob is not a JSON object, using defaults", zap.Error(err))
		return map[string]json.RawMessage{}
	}
	return blob
}

// currentBlob reads the blob Save merges into. A failed read aborts the save,
// since writing over it would drop fields owned by other components.
// Missing or non-object blobs start empty.
func (d *Dispatcher) currentBlob(ctx context.Context) (map[string]json.RawMessage, error) {
	raw, err := d.store.Get(ctx, store.SettingsKey)
	if errors.Is(err, store.ErrNotFound) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings before save: %w", err)
	}

	var blob map[string]json.RawMessage
	if err := json.Unmarshal(raw, &blob); err != nil || blob == nil {
		d.logger.Warn("Replacing settings blob that is not a JSON object", zap.Error(err))
		return map[string]json.RawMessage{}, nil
	}
	return blob, nil
}

// decodeProviders returns the persisted provider list, or the defaults when
// there is none. Legacy blobs carry a flat key list that belongs to gemini.
func decodeProviders(blob map[string]json.RawMessage, log *zap.Logger) ([]llm.ProviderConfig, bool) {
	if raw, ok := blob[fieldProviders]; ok {
		var configs []llm.ProviderConfig
		if err := json.Unmarshal(raw, &configs); err == nil && len(configs) > 0 {
			return configs, false
		} else if err != nil {
			log.Warn("Malformed provider list, using defaults", zap.Error(err))
		}
	}

	configs := DefaultProviders()
	raw, ok := blob[fieldLegacyKeys]
	if !ok {
		return configs, true
	}
	var keys []string
	if err := json.Unmarshal(raw, &keys); err != nil {
		log.Warn("Malformed legacy key list, ignoring", zap.Error(err))
		return configs, true
	}

	for i := range configs {
		if configs[i].ID != legacyKeyProvider {
			continue
		}
		seen := map[string]bool{}
		for _, k := range keys {
			if len(k) < credential.MinKeyLength || seen[k] {
				continue
			}
			seen[k] = true
			configs[i].APIKeys = append(configs[i].APIKeys, credential.Credential{Key: k, IsActive: true})
		}
		log.Info("Migrated legacy credentials", zap.String("provider", legacyKeyProvider), zap.Int("count", len(configs[i].APIKeys)))
	}
	return configs, true
}

// decodeTable starts from the default table and overrides each part that is
// present. A present but null mapping or order is kept as empty.
func decodeTable(blob map[string]json.RawMessage, log *zap.Logger) routing.Table {
	table := routing.Default()

	if raw, ok := blob[fieldMapping]; ok {
		var mapping map[string]routing.Assignment
		if err := json.Unmarshal(raw, &mapping); err != nil {
			log.Warn("Malformed canonical mapping, using defaults", zap.Error(err))
		} else {
			table.Mapping = mapping
		}
	}
	if raw, ok := blob[fieldDefaultProvider]; ok {
		var id string
		if err := json.Unmarshal(raw, &id); err == nil && id != "" {
			table.DefaultProviderID = id
		}
	}
	if raw, ok := blob[fieldFallbackOrder]; ok {
		var order []string
		if err := json.Unmarshal(raw, &order); err != nil {
			log.Warn("Malformed fallback order, using defaults", zap.Error(err))
		} else {
			table.FallbackOrder = order
		}
	}
	return table
}

// Save persists the registry, with credential counters, and the routing
// table. Unrelated fields of the existing blob are kept.
func (d *Dispatcher) Save(ctx context.Context) error {
	blob, err := d.currentBlob(ctx)
	if err != nil {
		return err
	}

	table := d.GetRoutingTable()
	fields := map[string]any{
		fieldProviders:       d.GetProviders(),
		fieldMapping:         table.Mapping,
		fieldDefaultProvider: table.DefaultProviderID,
		fieldFallbackOrder:   table.FallbackOrder,
	}
	for name, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		blob[name] = raw
	}

	data, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := d.store.Set(ctx, store.SettingsKey, data); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	d.logger.Debug("Dispatcher configuration saved", zap.Int("bytes", len(data)))
	return nil
}
