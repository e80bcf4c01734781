package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/fghsg9075-lab/aios/internal/credential"
	"github.com/fghsg9075-lab/aios/internal/dispatcher"
	"github.com/fghsg9075-lab/aios/internal/llm"
	"github.com/fghsg9075-lab/aios/internal/routing"
	"github.com/fghsg9075-lab/aios/pkg/api"
)

// Dispatcher is the part of *dispatcher.Dispatcher the HTTP surface uses.
type Dispatcher interface {
	Execute(ctx context.Context, task llm.Task) (*llm.Response, error)

	GetProviders() []llm.ProviderConfig
	GetProvider(id string) (llm.ProviderConfig, bool)
	UpdateProvider(cfg llm.ProviderConfig) error
	RemoveProvider(id string) error
	TestConnection(ctx context.Context, providerID string) bool
	BreakerStates() map[string]string

	AddKey(providerID, secret string) error
	RemoveKey(providerID, suffix string) error
	ResetKey(providerID, suffix string) error
	SetKeyActive(providerID, suffix string, active bool) error

	GetRoutingTable() routing.Table
	UpdateRoutingTable(t routing.Table) error

	Save(ctx context.Context) error
}

var _ Dispatcher = (*dispatcher.Dispatcher)(nil)

// adminProblem maps registry errors onto problem responses.
func adminProblem(err error) *api.Problem {
	switch {
	case errors.Is(err, dispatcher.ErrProviderNotFound), errors.Is(err, dispatcher.ErrCredentialNotFound):
		return api.NotFoundError(err.Error())
	case errors.Is(err, credential.ErrDuplicateKey), errors.Is(err, credential.ErrAmbiguousSuffix):
		return api.NewError(http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, credential.ErrKeyTooShort):
		return api.BadRequestError(err.Error())
	default:
		return api.BadRequestError(err.Error(), api.WithLog(err))
	}
}

// persist saves the configuration after a successful mutation.
func persist(ctx context.Context, d Dispatcher) *api.Problem {
	if err := d.Save(ctx); err != nil {
		return api.InternalError("Change applied but could not be persisted", err)
	}
	return nil
}
