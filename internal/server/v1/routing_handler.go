package v1

import (
	"net/http"

	"github.com/fghsg9075-lab/aios/internal/routing"
	"github.com/fghsg9075-lab/aios/internal/server/validator"
	"github.com/fghsg9075-lab/aios/pkg/api"
	"github.com/gin-gonic/gin"
)

type RoutingHandler struct {
	dispatcher Dispatcher
	validator  *validator.Validator
}

func NewRoutingHandler(d Dispatcher, v *validator.Validator) *RoutingHandler {
	return &RoutingHandler{
		dispatcher: d,
		validator:  v,
	}
}

// GET /v1/routing
func (h *RoutingHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, tableView(h.dispatcher.GetRoutingTable()))
}

// Put replaces the whole routing table. Ids that name no provider are
// accepted and skipped at dispatch time.
//
// PUT /v1/routing
func (h *RoutingHandler) Put(c *gin.Context) {
	var req api.RoutingTable
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(h.validator.ParseError(err)))
		return
	}

	table := routing.Table{
		DefaultProviderID: req.DefaultProviderID,
		FallbackOrder:     req.FallbackOrder,
		Mapping:           make(map[string]routing.Assignment, len(req.Mapping)),
	}
	for category, a := range req.Mapping {
		table.Mapping[category] = routing.Assignment{ProviderID: a.ProviderID, ModelID: a.ModelID}
	}

	if err := h.dispatcher.UpdateRoutingTable(table); err != nil {
		_ = c.Error(api.BadRequestError(err.Error()))
		return
	}
	if p := persist(c.Request.Context(), h.dispatcher); p != nil {
		_ = c.Error(p)
		return
	}
	c.JSON(http.StatusOK, tableView(h.dispatcher.GetRoutingTable()))
}

func tableView(t routing.Table) api.RoutingTable {
	v := api.RoutingTable{
		DefaultProviderID: t.DefaultProviderID,
		FallbackOrder:     t.FallbackOrder,
		Mapping:           make(map[string]api.Assignment, len(t.Mapping)),
	}
	if v.FallbackOrder == nil {
		v.FallbackOrder = []string{}
	}
	for category, a := range t.Mapping {
		v.Mapping[category] = api.Assignment{ProviderID: a.ProviderID, ModelID: a.ModelID}
	}
	return v
}
