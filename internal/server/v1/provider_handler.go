package v1

import (
	"net/http"

	"github.com/fghsg9075-lab/aios/internal/credential"
	"github.com/fghsg9075-lab/aios/internal/llm"
	"github.com/fghsg9075-lab/aios/internal/server/validator"
	"github.com/fghsg9075-lab/aios/pkg/api"
	"github.com/gin-gonic/gin"
)

type ProviderHandler struct {
	dispatcher Dispatcher
	validator  *validator.Validator
}

func NewProviderHandler(d Dispatcher, v *validator.Validator) *ProviderHandler {
	return &ProviderHandler{
		dispatcher: d,
		validator:  v,
	}
}

// List returns every provider with masked credentials.
//
// GET /v1/providers
func (h *ProviderHandler) List(c *gin.Context) {
	states := h.dispatcher.BreakerStates()
	configs := h.dispatcher.GetProviders()

	views := make([]api.ProviderView, 0, len(configs))
	for _, cfg := range configs {
		views = append(views, providerView(cfg, states[cfg.ID]))
	}

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   views,
	})
}

// GET /v1/providers/:id
func (h *ProviderHandler) Get(c *gin.Context) {
	id := c.Param("id")
	cfg, ok := h.dispatcher.GetProvider(id)
	if !ok {
		_ = c.Error(api.NotFoundError("provider not found: " + id))
		return
	}
	c.JSON(http.StatusOK, providerView(cfg, h.dispatcher.BreakerStates()[id]))
}

// Put creates or replaces a provider. Omitted fields keep their current
// values; credentials are never touched here.
//
// PUT /v1/providers/:id
func (h *ProviderHandler) Put(c *gin.Context) {
	var req api.ProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(h.validator.ParseError(err)))
		return
	}

	id := c.Param("id")
	cfg, exists := h.dispatcher.GetProvider(id)
	if !exists {
		cfg = llm.ProviderConfig{ID: id, Name: id, Enabled: true}
	}
	// nil keeps the current credentials
	cfg.APIKeys = nil

	if req.Name != "" {
		cfg.Name = req.Name
	}
	if req.Type != "" {
		cfg.Type = req.Type
	}
	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
	}
	if req.BaseURL != "" {
		cfg.BaseURL = req.BaseURL
	}
	if req.Icon != "" {
		cfg.Icon = req.Icon
	}
	if req.Models != nil {
		cfg.Models = modelsFromSpecs(id, req.Models)
	}
	if !exists {
		cfg.APIKeys = []credential.Credential{}
	}

	if err := h.dispatcher.UpdateProvider(cfg); err != nil {
		_ = c.Error(adminProblem(err))
		return
	}
	if p := persist(c.Request.Context(), h.dispatcher); p != nil {
		_ = c.Error(p)
		return
	}

	saved, _ := h.dispatcher.GetProvider(id)
	status := http.StatusOK
	if !exists {
		status = http.StatusCreated
	}
	c.JSON(status, providerView(saved, h.dispatcher.BreakerStates()[id]))
}

// DELETE /v1/providers/:id
func (h *ProviderHandler) Delete(c *gin.Context) {
	if err := h.dispatcher.RemoveProvider(c.Param("id")); err != nil {
		_ = c.Error(adminProblem(err))
		return
	}
	if p := persist(c.Request.Context(), h.dispatcher); p != nil {
		_ = c.Error(p)
		return
	}
	c.Status(http.StatusNoContent)
}

// Test probes the provider with a tiny prompt.
//
// POST /v1/providers/:id/test
func (h *ProviderHandler) Test(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.dispatcher.GetProvider(id); !ok {
		_ = c.Error(api.NotFoundError("provider not found: " + id))
		return
	}

	ok := h.dispatcher.TestConnection(c.Request.Context(), id)
	// the probe may have changed credential counters
	if p := persist(c.Request.Context(), h.dispatcher); p != nil {
		_ = c.Error(p)
		return
	}
	c.JSON(http.StatusOK, api.TestConnectionResponse{Provider: id, OK: ok})
}

// POST /v1/providers/:id/keys
func (h *ProviderHandler) AddKey(c *gin.Context) {
	var req api.AddKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(h.validator.ParseError(err)))
		return
	}

	h.mutate(c, http.StatusCreated, func(id string) error {
		return h.dispatcher.AddKey(id, req.Key)
	})
}

// DELETE /v1/providers/:id/keys/:suffix
func (h *ProviderHandler) RemoveKey(c *gin.Context) {
	h.mutate(c, http.StatusOK, func(id string) error {
		return h.dispatcher.RemoveKey(id, c.Param("suffix"))
	})
}

// POST /v1/providers/:id/keys/:suffix/reset
func (h *ProviderHandler) ResetKey(c *gin.Context) {
	h.mutate(c, http.StatusOK, func(id string) error {
		return h.dispatcher.ResetKey(id, c.Param("suffix"))
	})
}

// PATCH /v1/providers/:id/keys/:suffix
func (h *ProviderHandler) SetKeyActive(c *gin.Context) {
	var req api.SetKeyActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(h.validator.ParseError(err)))
		return
	}

	h.mutate(c, http.StatusOK, func(id string) error {
		return h.dispatcher.SetKeyActive(id, c.Param("suffix"), *req.Active)
	})
}

// mutate applies a credential change, persists it and answers with the provider.
func (h *ProviderHandler) mutate(c *gin.Context, status int, fn func(id string) error) {
	id := c.Param("id")
	if err := fn(id); err != nil {
		_ = c.Error(adminProblem(err))
		return
	}
	if p := persist(c.Request.Context(), h.dispatcher); p != nil {
		_ = c.Error(p)
		return
	}

	cfg, _ := h.dispatcher.GetProvider(id)
	c.JSON(status, providerView(cfg, h.dispatcher.BreakerStates()[id]))
}

func providerView(cfg llm.ProviderConfig, breaker string) api.ProviderView {
	v := api.ProviderView{
		ID:          cfg.ID,
		Name:        cfg.Name,
		Type:        cfg.AdapterType(),
		Enabled:     cfg.Enabled,
		BaseURL:     cfg.BaseURL,
		Icon:        cfg.Icon,
		Models:      make([]api.ModelSpec, 0, len(cfg.Models)),
		Credentials: make([]api.CredentialView, 0, len(cfg.APIKeys)),
		Breaker:     breaker,
	}
	for _, m := range cfg.Models {
		v.Models = append(v.Models, api.ModelSpec{
			ID:             m.ID,
			Name:           m.Name,
			Enabled:        m.Enabled,
			CostPer1kToken: m.CostPer1kToken,
			ContextWindow:  m.ContextWindow,
			IsImageCapable: m.IsImageCapable,
		})
	}
	for _, k := range cfg.APIKeys {
		v.Credentials = append(v.Credentials, api.CredentialView{
			Key:         credential.Mask(k.Key),
			Label:       k.Label,
			IsActive:    k.IsActive,
			IsExhausted: k.IsExhausted,
			UsageCount:  k.UsageCount,
			ErrorCount:  k.ErrorCount,
			LastUsed:    k.LastUsed,
		})
		if k.Usable() {
			v.Usable++
		}
	}
	return v
}

func modelsFromSpecs(providerID string, specs []api.ModelSpec) []llm.Model {
	models := make([]llm.Model, 0, len(specs))
	for _, s := range specs {
		models = append(models, llm.Model{
			ID:             s.ID,
			Name:           s.Name,
			ProviderID:     providerID,
			Enabled:        s.Enabled,
			CostPer1kToken: s.CostPer1kToken,
			ContextWindow:  s.ContextWindow,
			IsImageCapable: s.IsImageCapable,
		})
	}
	return models
}
