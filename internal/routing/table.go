package routing

import (
	"maps"

	"github.com/go-playground/validator/v10"
)

// Well-known engine categories a task may ask for instead of a provider.
const (
	NotesEngine = "NOTES_ENGINE"
	MCQEngine   = "MCQ_ENGINE"
	ChatEngine  = "CHAT_ENGINE"
)

// Assignment binds an engine category to a concrete provider and model.
type Assignment struct {
	ProviderID string `json:"providerId" validate:"required"`
	ModelID    string `json:"modelId"`
}

// Table is the mutable routing configuration.
type Table struct {
	DefaultProviderID string                `json:"defaultProviderId" validate:"required"`
	FallbackOrder     []string              `json:"fallbackOrder" validate:"dive,required"`
	Mapping           map[string]Assignment `json:"mapping" validate:"dive"`
}

// Source records which resolution rule produced a Target.
type Source string

const (
	SourceMapping  Source = "mapping"
	SourceProvider Source = "provider"
	SourceDefault  Source = "default"
)

// Target is the first provider to try. An empty ModelID means the provider's own default.
type Target struct {
	ProviderID string `json:"providerId"`
	ModelID    string `json:"modelId,omitempty"`
	Source     Source `json:"source"`
}

func Default() Table {
	flash := Assignment{ProviderID: "gemini", ModelID: "gemini-1.5-flash"}
	return Table{
		DefaultProviderID: "gemini",
		FallbackOrder:     []string{"gemini", "groq", "openai", "deepseek"},
		Mapping: map[string]Assignment{
			NotesEngine: flash,
			MCQEngine:   flash,
			ChatEngine:  flash,
		},
	}
}

// Resolve turns a task's model preference into a target. It never fails:
// a mapping hit wins, then a known provider id, then the default provider.
func (t Table) Resolve(pref string, knownProvider func(id string) bool) Target {
	if pref != "" {
		if a, ok := t.Mapping[pref]; ok {
			return Target{ProviderID: a.ProviderID, ModelID: a.ModelID, Source: SourceMapping}
		}
		if knownProvider != nil && knownProvider(pref) {
			return Target{ProviderID: pref, Source: SourceProvider}
		}
	}
	return Target{ProviderID: t.DefaultProviderID, Source: SourceDefault}
}

// Plan is the ordered attempt list: the target first, then the fallback
// order, each provider at most once.
func (t Table) Plan(target Target) []string {
	seen := make(map[string]struct{}, len(t.FallbackOrder)+1)
	plan := make([]string, 0, len(t.FallbackOrder)+1)

	for _, id := range append([]string{target.ProviderID}, t.FallbackOrder...) {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		plan = append(plan, id)
	}
	return plan
}

func (t Table) Clone() Table {
	return Table{
		DefaultProviderID: t.DefaultProviderID,
		FallbackOrder:     append([]string(nil), t.FallbackOrder...),
		Mapping:           maps.Clone(t.Mapping),
	}
}

var validate = validator.New()

func (t Table) Validate() error {
	return validate.Struct(t)
}
