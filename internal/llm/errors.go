package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/fghsg9075-lab/aios/internal/credential"
	"go.uber.org/zap"
)

// ErrNoUsableCredential means the provider has no active, non-exhausted credential.
var ErrNoUsableCredential = errors.New("no usable credential")

type FailureKind string

const (
	// FailureAuth means the vendor rejected the credential itself.
	FailureAuth FailureKind = "auth"
	// FailureTransient covers rate limits, server errors and network errors.
	FailureTransient FailureKind = "transient"
)

// ProviderError is a classified vendor failure.
type ProviderError struct {
	Provider string
	Kind     FailureKind
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s failure (status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsAuthFailure reports whether err is a credential rejection.
func IsAuthFailure(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == FailureAuth
}

// IsTransient reports whether err is a failure that does not condemn the credential.
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == FailureTransient
}

// HandleFailure applies the credential health policy for a failed call: every
// failure counts as an error, auth failures also exhaust the credential.
func (b *Base) HandleFailure(secret string, err *ProviderError) error {
	// the caller gave up, the credential did nothing wrong
	if errors.Is(err.Err, context.Canceled) {
		return err
	}

	exhausted := b.pool.MarkError(secret)
	if err.Kind == FailureAuth {
		b.pool.MarkExhausted(secret)
		exhausted = true
	}

	b.log.Warn("Provider call failed",
		zap.String("kind", string(err.Kind)),
		zap.Int("status", err.Status),
		zap.String("credential", credential.Mask(secret)),
		zap.Bool("exhausted", exhausted),
		zap.Error(err.Err),
	)
	return err
}

// NoCredential returns the error for a provider whose pool is empty.
func (b *Base) NoCredential() error {
	return fmt.Errorf("%s: %w", b.cfg.ID, ErrNoUsableCredential)
}
