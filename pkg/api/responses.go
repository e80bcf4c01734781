package api

import "time"

// AttemptView is one entry of the attempt log returned with a failed dispatch.
type AttemptView struct {
	Provider  string `json:"provider"`
	Model     string `json:"model,omitempty"`
	Skipped   bool   `json:"skipped"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latencyMs"`
}

// CredentialView never carries the full secret.
type CredentialView struct {
	Key         string     `json:"key"`
	Label       string     `json:"label,omitempty"`
	IsActive    bool       `json:"isActive"`
	IsExhausted bool       `json:"isExhausted"`
	UsageCount  int64      `json:"usageCount"`
	ErrorCount  int64      `json:"errorCount"`
	LastUsed    *time.Time `json:"lastUsed,omitempty"`
}

type ProviderView struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Type        string           `json:"type"`
	Enabled     bool             `json:"enabled"`
	BaseURL     string           `json:"baseUrl,omitempty"`
	Icon        string           `json:"icon,omitempty"`
	Models      []ModelSpec      `json:"models"`
	Credentials []CredentialView `json:"credentials"`
	// Usable counts credentials that are active and not exhausted.
	Usable  int    `json:"usableCredentials"`
	Breaker string `json:"breaker,omitempty"`
}

type TestConnectionResponse struct {
	Provider string `json:"provider"`
	OK       bool   `json:"ok"`
}
