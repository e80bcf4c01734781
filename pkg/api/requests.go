package api

// ModelSpec describes one model a provider serves.
type ModelSpec struct {
	ID             string   `json:"id" binding:"required"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	CostPer1kToken *float64 `json:"costPer1kToken,omitempty" binding:"omitempty,gte=0"`
	ContextWindow  int      `json:"contextWindow,omitempty" binding:"omitempty,gte=0"`
	IsImageCapable bool     `json:"isImageCapable,omitempty"`
}

// ProviderRequest creates or replaces a provider. Credentials are managed
// through the key endpoints and are left untouched.
type ProviderRequest struct {
	Name string `json:"name"`
	// Type selects the adapter family and defaults to the provider id.
	Type    string      `json:"type,omitempty"`
	Enabled *bool       `json:"enabled,omitempty"`
	BaseURL string      `json:"baseUrl,omitempty" binding:"omitempty,url"`
	Icon    string      `json:"icon,omitempty"`
	Models  []ModelSpec `json:"models,omitempty" binding:"dive"`
}

type AddKeyRequest struct {
	Key string `json:"key" binding:"required,min=5"`
}

type SetKeyActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type Assignment struct {
	ProviderID string `json:"providerId" binding:"required"`
	ModelID    string `json:"modelId,omitempty"`
}

type RoutingTable struct {
	DefaultProviderID string                `json:"defaultProviderId" binding:"required"`
	FallbackOrder     []string              `json:"fallbackOrder" binding:"dive,required"`
	Mapping           map[string]Assignment `json:"mapping" binding:"dive"`
}
