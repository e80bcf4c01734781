// Package dispatcher owns the provider registry and the routing table, and
// executes tasks against providers in plan order until one succeeds.
package dispatcher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fghsg9075-lab/aios/internal/llm"
	"github.com/fghsg9075-lab/aios/internal/routing"
	"github.com/fghsg9075-lab/aios/internal/store"
	"github.com/fghsg9075-lab/aios/internal/store/model"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/fghsg9075-lab/aios/internal/dispatcher"

// SkipReason explains why a plan candidate was not called.
type SkipReason string

const (
	SkipUnknown      SkipReason = "unknown_provider"
	SkipDisabled     SkipReason = "disabled"
	SkipNoCredential SkipReason = "no_credential"
	SkipCircuitOpen  SkipReason = "circuit_open"
)

// ErrAllProvidersFailed matches every *AggregateError via errors.Is.
var ErrAllProvidersFailed = errors.New("all providers failed")

// Attempt is the outcome for one plan candidate.
type Attempt struct {
	ProviderID string        `json:"providerId"`
	ModelID    string        `json:"modelId,omitempty"`
	Skipped    bool          `json:"skipped"`
	Reason     SkipReason    `json:"reason,omitempty"`
	Err        error         `json:"-"`
	Latency    time.Duration `json:"latency"`
}

// AggregateError is returned by Execute when no candidate succeeded. It has
// one entry per plan candidate that was considered, skipped or called.
type AggregateError struct {
	Attempts []Attempt
}

func (e *AggregateError) Error() string {
	if len(e.Attempts) == 0 {
		return "all providers failed: dispatch plan is empty"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Skipped {
			parts = append(parts, fmt.Sprintf("%s: skipped (%s)", a.ProviderID, a.Reason))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %v", a.ProviderID, a.Err))
		}
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

func (e *AggregateError) Is(target error) bool {
	return target == ErrAllProvidersFailed
}

// Unwrap exposes the errors of the calls that were actually made.
func (e *AggregateError) Unwrap() []error {
	var errs []error
	for _, a := range e.Failures() {
		errs = append(errs, a.Err)
	}
	return errs
}

// Failures returns only the attempts where a provider was called and failed.
func (e *AggregateError) Failures() []Attempt {
	var out []Attempt
	for _, a := range e.Attempts {
		if !a.Skipped {
			out = append(out, a)
		}
	}
	return out
}

// AttemptRecorder receives every attempt for asynchronous persistence.
type AttemptRecorder interface {
	Log(attempt *model.Attempt)
}

type Option func(*Dispatcher)

func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithHTTPClient sets the client handed to every adapter.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = c }
}

func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithRecorder(r AttemptRecorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

func WithBreaker(s BreakerSettings) Option {
	return func(d *Dispatcher) { d.breakers = newBreakerSet(s, d.logger) }
}

// Dispatcher is safe for concurrent use. Execute works on a snapshot of the
// registry, so administration never blocks in-flight dispatches.
type Dispatcher struct {
	mu        sync.RWMutex
	providers map[string]llm.Provider
	order     []string
	table     routing.Table

	store      store.ConfigStore
	logger     *zap.Logger
	httpClient *http.Client
	tracer     trace.Tracer
	metrics    *Metrics
	recorder   AttemptRecorder
	breakers   *breakerSet
}

// New returns a dispatcher with an empty registry and the default routing
// table. Call Load to restore persisted configuration.
func New(cs store.ConfigStore, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		providers:  make(map[string]llm.Provider),
		table:      routing.Default(),
		store:      cs,
		logger:     zap.NewNop(),
		httpClient: http.DefaultClient,
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.breakers != nil {
		d.breakers.logger = d.logger
	}
	return d
}

func (d *Dispatcher) snapshot() (routing.Table, map[string]llm.Provider) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.table.Clone(), maps.Clone(d.providers)
}

// Execute resolves the task to a target, then tries the target and the
// fallback order until a provider succeeds. Skipped candidates are never
// called. On total failure the error is an *AggregateError.
func (d *Dispatcher) Execute(ctx context.Context, task llm.Task) (*llm.Response, error) {
	requestID := uuid.NewString()
	table, providers := d.snapshot()

	target := table.Resolve(task.ModelPreference, func(id string) bool {
		_, ok := providers[id]
		return ok
	})
	plan := table.Plan(target)

	ctx, span := d.tracer.Start(ctx, "dispatcher.Execute", trace.WithAttributes(
		attribute.String("request.id", requestID),
		attribute.String("task.kind", string(task.Kind)),
		attribute.String("target.provider", target.ProviderID),
		attribute.String("target.source", string(target.Source)),
		attribute.StringSlice("plan", plan),
	))
	defer span.End()

	log := d.logger.With(zap.String("request_id", requestID))
	log.Debug("Dispatch planned",
		zap.String("preference", task.ModelPreference),
		zap.String("target", target.ProviderID),
		zap.String("target_model", target.ModelID),
		zap.String("source", string(target.Source)),
		zap.Strings("plan", plan),
	)

	attempts := make([]Attempt, 0, len(plan))
	for _, id := range plan {
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, Attempt{ProviderID: id, Err: err})
			break
		}

		sub := task
		sub.ModelPreference = ""
		if id == target.ProviderID {
			sub.ModelPreference = target.ModelID
		}

		p, ok := providers[id]
		var reason SkipReason
		switch {
		case !ok:
			reason = SkipUnknown
		case !p.Enabled():
			reason = SkipDisabled
		case p.Pool().UsableCount() == 0:
			reason = SkipNoCredential
		case d.breakers.open(id):
			reason = SkipCircuitOpen
		}
		if reason != "" {
			a := Attempt{ProviderID: id, ModelID: sub.ModelPreference, Skipped: true, Reason: reason}
			attempts = append(attempts, a)
			d.observe(log, requestID, task, a, nil)
			continue
		}

		resp, a := d.attempt(ctx, p, sub)
		d.observe(log, requestID, task, a, resp)
		if a.Err == nil {
			span.SetAttributes(attribute.String("provider.used", id))
			d.metrics.dispatched(true)
			return resp, nil
		}
		attempts = append(attempts, a)
		if ctx.Err() != nil {
			break
		}
	}

	err := &AggregateError{Attempts: attempts}
	span.RecordError(err)
	span.SetStatus(codes.Error, "all providers failed")
	d.metrics.dispatched(false)
	log.Error("Dispatch failed", zap.Int("candidates", len(plan)), zap.Error(err))
	return nil, err
}

// attempt makes exactly one GenerateContent call, through the provider's
// circuit breaker when breakers are enabled.
func (d *Dispatcher) attempt(ctx context.Context, p llm.Provider, task llm.Task) (*llm.Response, Attempt) {
	ctx, span := d.tracer.Start(ctx, "dispatcher.attempt", trace.WithAttributes(
		attribute.String("provider.id", p.ID()),
		attribute.String("provider.type", p.Type()),
	))
	defer span.End()

	a := Attempt{ProviderID: p.ID(), ModelID: llm.ResolveModel(task, p.DefaultModel())}
	start := time.Now()
	resp, err := d.breakers.execute(p.ID(), func() (*llm.Response, error) {
		return p.GenerateContent(ctx, task)
	})
	a.Latency = time.Since(start)

	if isBreakerRejection(err) {
		a.Skipped, a.Reason = true, SkipCircuitOpen
		span.SetAttributes(attribute.String("skip.reason", string(a.Reason)))
		return nil, a
	}
	if err != nil {
		a.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider call failed")
		return nil, a
	}

	if resp.ProviderUsed == "" {
		resp.ProviderUsed = p.ID()
	}
	a.ModelID = resp.ModelUsed
	span.SetAttributes(
		attribute.String("model.used", resp.ModelUsed),
		attribute.Int("tokens.input", resp.InputTokens),
		attribute.Int("tokens.output", resp.OutputTokens),
	)
	return resp, a
}

// observe logs, counts and records one attempt.
func (d *Dispatcher) observe(log *zap.Logger, requestID string, task llm.Task, a Attempt, resp *llm.Response) {
	rec := &model.Attempt{
		ID:         uuid.NewString(),
		RequestID:  requestID,
		ProviderID: a.ProviderID,
		ModelID:    a.ModelID,
		TaskKind:   string(task.Kind),
		LatencyMs:  a.Latency.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}

	switch {
	case a.Skipped:
		rec.Outcome = model.OutcomeSkipped
		rec.Reason = sql.NullString{String: string(a.Reason), Valid: true}
		log.Info("Provider skipped", zap.String("provider", a.ProviderID), zap.String("reason", string(a.Reason)))
	case a.Err != nil:
		rec.Outcome = model.OutcomeFailure
		rec.ErrorMessage = sql.NullString{String: a.Err.Error(), Valid: true}
		if llm.IsAuthFailure(a.Err) {
			rec.Reason = sql.NullString{String: string(llm.FailureAuth), Valid: true}
		}
		log.Warn("Provider attempt failed",
			zap.String("provider", a.ProviderID),
			zap.String("model", a.ModelID),
			zap.Duration("latency", a.Latency),
			zap.Error(a.Err),
		)
	default:
		rec.Outcome = model.OutcomeSuccess
		rec.InputTokens, rec.OutputTokens = resp.InputTokens, resp.OutputTokens
		log.Info("Provider attempt succeeded",
			zap.String("provider", a.ProviderID),
			zap.String("model", a.ModelID),
			zap.Duration("latency", a.Latency),
			zap.Int("input_tokens", resp.InputTokens),
			zap.Int("output_tokens", resp.OutputTokens),
		)
	}

	d.metrics.attempt(rec)
	if d.recorder != nil {
		d.recorder.Log(rec)
	}
}
