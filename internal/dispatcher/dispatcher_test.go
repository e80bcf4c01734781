package dispatcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fghsg9075-lab/aios/internal/credential"
	"github.com/fghsg9075-lab/aios/internal/llm"
	"github.com/fghsg9075-lab/aios/internal/routing"
	"github.com/fghsg9075-lab/aios/internal/store/memory"
	"github.com/fghsg9075-lab/aios/internal/store/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	_ "github.com/fghsg9075-lab/aios/internal/llm/compat"
	_ "github.com/fghsg9075-lab/aios/internal/llm/google"
)

type mockProvider struct {
	mock.Mock
	id      string
	enabled bool
	pool    *credential.Pool
}

func newMock(id string, enabled bool, keys ...string) *mockProvider {
	var creds []credential.Credential
	for _, k := range keys {
		creds = append(creds, credential.Credential{Key: k, IsActive: true})
	}
	return &mockProvider{id: id, enabled: enabled, pool: credential.NewPool(creds)}
}

func (m *mockProvider) ID() string             { return m.id }
func (m *mockProvider) Type() string           { return "mock" }
func (m *mockProvider) Enabled() bool          { return m.enabled }
func (m *mockProvider) DefaultModel() string   { return m.id + "-default" }
func (m *mockProvider) Pool() *credential.Pool { return m.pool }

func (m *mockProvider) Config() llm.ProviderConfig {
	return llm.ProviderConfig{ID: m.id, Type: "mock", Enabled: m.enabled, APIKeys: m.pool.Snapshot()}
}

func (m *mockProvider) GenerateContent(ctx context.Context, task llm.Task) (*llm.Response, error) {
	args := m.Called(ctx, task)
	resp, _ := args.Get(0).(*llm.Response)
	return resp, args.Error(1)
}

func (m *mockProvider) TestConnection(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

// put registers providers directly, bypassing the factory.
func (d *Dispatcher) put(ps ...llm.Provider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range ps {
		d.providers[p.ID()] = p
		d.order = append(d.order, p.ID())
	}
}

type recorder struct {
	mu       sync.Mutex
	attempts []model.Attempt
}

func (r *recorder) Log(a *model.Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, *a)
}

func withModel(id string) any {
	return mock.MatchedBy(func(task llm.Task) bool { return task.ModelPreference == id })
}

func success(provider, modelID string) *llm.Response {
	return &llm.Response{Text: "ok", ProviderUsed: provider, ModelUsed: modelID}
}

func transient(provider string) error {
	return &llm.ProviderError{Provider: provider, Kind: llm.FailureTransient, Status: 503, Err: errors.New("unavailable")}
}

func newDispatcher(t *testing.T, table routing.Table, opts ...Option) *Dispatcher {
	t.Helper()
	d := New(memory.New(), opts...)
	require.NoError(t, d.UpdateRoutingTable(table))
	return d
}

func TestExecute_CategoryPreferenceUsesMappedProviderAndModel(t *testing.T) {
	a := newMock("A", true, "key-a-1")
	a.On("GenerateContent", mock.Anything, withModel("M1")).Return(success("A", "M1"), nil).Once()

	d := newDispatcher(t, routing.Table{
		DefaultProviderID: "B",
		FallbackOrder:     []string{"B"},
		Mapping:           map[string]routing.Assignment{routing.NotesEngine: {ProviderID: "A", ModelID: "M1"}},
	})
	d.put(a, newMock("B", true, "key-b-1"))

	resp, err := d.Execute(context.Background(), llm.Task{Prompt: "notes", ModelPreference: routing.NotesEngine})
	require.NoError(t, err)
	assert.Equal(t, "A", resp.ProviderUsed)
	assert.Equal(t, "M1", resp.ModelUsed)
	a.AssertExpectations(t)
}

func TestExecute_UnresolvedPreferenceUsesDefaultProviderModel(t *testing.T) {
	b := newMock("B", true, "key-b-1")
	b.On("GenerateContent", mock.Anything, withModel("")).Return(success("B", "B-default"), nil).Twice()

	d := newDispatcher(t, routing.Table{DefaultProviderID: "B"})
	d.put(b)

	for _, pref := range []string{"", "some-model-nobody-maps"} {
		resp, err := d.Execute(context.Background(), llm.Task{Prompt: "hi", ModelPreference: pref})
		require.NoError(t, err)
		assert.Equal(t, "B", resp.ProviderUsed)
	}
	b.AssertExpectations(t)
}

func TestExecute_LiteralProviderPreference(t *testing.T) {
	c := newMock("C", true, "key-c-1")
	c.On("GenerateContent", mock.Anything, withModel("")).Return(success("C", "C-default"), nil).Once()

	d := newDispatcher(t, routing.Table{DefaultProviderID: "B"})
	d.put(newMock("B", true, "key-b-1"), c)

	resp, err := d.Execute(context.Background(), llm.Task{Prompt: "hi", ModelPreference: "C"})
	require.NoError(t, err)
	assert.Equal(t, "C", resp.ProviderUsed)
}

func TestExecute_TargetInFallbackOrderIsAttemptedOnce(t *testing.T) {
	a := newMock("A", true, "key-a-1")
	a.On("GenerateContent", mock.Anything, mock.Anything).Return(nil, transient("A")).Once()
	b := newMock("B", true, "key-b-1")
	b.On("GenerateContent", mock.Anything, mock.Anything).Return(nil, transient("B")).Once()

	d := newDispatcher(t, routing.Table{DefaultProviderID: "A", FallbackOrder: []string{"B", "A", "B"}})
	d.put(a, b)

	_, err := d.Execute(context.Background(), llm.Task{Prompt: "hi"})

	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Attempts, 2)
	assert.Equal(t, "A", agg.Attempts[0].ProviderID)
	assert.Equal(t, "B", agg.Attempts[1].ProviderID)
	a.AssertNumberOfCalls(t, "GenerateContent", 1)
	b.AssertNumberOfCalls(t, "GenerateContent", 1)
}

func TestExecute_ProviderWithoutCredentialsIsNeverCalled(t *testing.T) {
	empty := newMock("A", true)
	b := newMock("B", true, "key-b-1")
	b.On("GenerateContent", mock.Anything, mock.Anything).Return(nil, transient("B")).Once()

	d := newDispatcher(t, routing.Table{DefaultProviderID: "A", FallbackOrder: []string{"B"}})
	d.put(empty, b)

	_, err := d.Execute(context.Background(), llm.Task{Prompt: "hi"})
	empty.AssertNotCalled(t, "GenerateContent", mock.Anything, mock.Anything)

	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Attempts, 2)
	assert.True(t, agg.Attempts[0].Skipped)
	assert.Equal(t, SkipNoCredential, agg.Attempts[0].Reason)

	failures := agg.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "B", failures[0].ProviderID)
}

func TestExecute_FallbackScenario(t *testing.T) {
	rec := &recorder{}
	a := newMock("A", true, "key-a-1")
	a.On("GenerateContent", mock.Anything, withModel("M1")).Return(nil, transient("A")).Once()
	b := newMock("B", true, "key-b-1")
	b.On("GenerateContent", mock.Anything, withModel("")).Return(success("B", "B-default"), nil).Once()
	c := newMock("C", true, "key-c-1")

	d := newDispatcher(t, routing.Table{
		DefaultProviderID: "A",
		FallbackOrder:     []string{"B", "C"},
		Mapping:           map[string]routing.Assignment{"notes": {ProviderID: "A", ModelID: "M1"}},
	}, WithRecorder(rec))
	d.put(a, b, c)

	resp, err := d.Execute(context.Background(), llm.Task{Prompt: "photosynthesis", ModelPreference: "notes"})
	require.NoError(t, err)

	assert.Equal(t, "B", resp.ProviderUsed)
	assert.Equal(t, "B-default", resp.ModelUsed)
	a.AssertExpectations(t)
	b.AssertExpectations(t)
	c.AssertNotCalled(t, "GenerateContent", mock.Anything, mock.Anything)

	require.Len(t, rec.attempts, 2)
	assert.Equal(t, "A", rec.attempts[0].ProviderID)
	assert.Equal(t, model.OutcomeFailure, rec.attempts[0].Outcome)
	assert.Equal(t, "M1", rec.attempts[0].ModelID)
	assert.Equal(t, "B", rec.attempts[1].ProviderID)
	assert.Equal(t, model.OutcomeSuccess, rec.attempts[1].Outcome)
	assert.Equal(t, rec.attempts[0].RequestID, rec.attempts[1].RequestID)
}

func TestExecute_AllSkippedListsEveryCandidate(t *testing.T) {
	d := newDispatcher(t, routing.Table{DefaultProviderID: "A", FallbackOrder: []string{"B", "C", "ghost"}})
	a := newMock("A", false, "key-a-1")
	b := newMock("B", true)
	c := newMock("C", true, "key-c-1")
	c.pool.MarkExhausted("key-c-1")
	d.put(a, b, c)

	resp, err := d.Execute(context.Background(), llm.Task{Prompt: "hi"})
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrAllProvidersFailed)

	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, []Attempt{
		{ProviderID: "A", Skipped: true, Reason: SkipDisabled},
		{ProviderID: "B", Skipped: true, Reason: SkipNoCredential},
		{ProviderID: "C", Skipped: true, Reason: SkipNoCredential},
		{ProviderID: "ghost", Skipped: true, Reason: SkipUnknown},
	}, agg.Attempts)
	assert.Empty(t, agg.Failures())
	assert.Contains(t, err.Error(), "A: skipped (disabled)")

	for _, p := range []*mockProvider{a, b, c} {
		p.AssertNotCalled(t, "GenerateContent", mock.Anything, mock.Anything)
	}
}

func TestExecute_EmptyPlan(t *testing.T) {
	d := New(memory.New())
	d.mu.Lock()
	d.table = routing.Table{}
	d.mu.Unlock()

	_, err := d.Execute(context.Background(), llm.Task{Prompt: "hi"})
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Empty(t, agg.Attempts)
}

func TestExecute_CancelledContextStopsTheLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	a := newMock("A", true, "key-a-1")
	a.On("GenerateContent", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, &llm.ProviderError{Provider: "A", Kind: llm.FailureTransient, Err: context.Canceled}).Once()
	b := newMock("B", true, "key-b-1")

	d := newDispatcher(t, routing.Table{DefaultProviderID: "A", FallbackOrder: []string{"B"}})
	d.put(a, b)

	_, err := d.Execute(ctx, llm.Task{Prompt: "hi"})
	assert.ErrorIs(t, err, context.Canceled)
	b.AssertNotCalled(t, "GenerateContent", mock.Anything, mock.Anything)
}

func TestExecute_OpenBreakerSkipsProvider(t *testing.T) {
	a := newMock("A", true, "key-a-1")
	a.On("GenerateContent", mock.Anything, mock.Anything).Return(nil, transient("A")).Times(2)
	b := newMock("B", true, "key-b-1")
	b.On("GenerateContent", mock.Anything, mock.Anything).Return(success("B", "B-default"), nil)

	d := newDispatcher(t, routing.Table{DefaultProviderID: "A", FallbackOrder: []string{"B"}},
		WithBreaker(BreakerSettings{MaxFailures: 2, Timeout: time.Hour}))
	d.put(a, b)

	for i := 0; i < 3; i++ {
		resp, err := d.Execute(context.Background(), llm.Task{Prompt: "hi"})
		require.NoError(t, err)
		assert.Equal(t, "B", resp.ProviderUsed)
	}
	a.AssertNumberOfCalls(t, "GenerateContent", 2)
	assert.Equal(t, "open", d.BreakerStates()["A"])
}

func TestExecute_MetricsAndTraces(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	a := newMock("A", true, "key-a-1")
	a.On("GenerateContent", mock.Anything, mock.Anything).Return(nil, transient("A")).Once()
	b := newMock("B", true, "key-b-1")
	b.On("GenerateContent", mock.Anything, mock.Anything).
		Return(&llm.Response{Text: "ok", ProviderUsed: "B", ModelUsed: "B-default", InputTokens: 3, OutputTokens: 5}, nil).Once()

	d := newDispatcher(t, routing.Table{DefaultProviderID: "A", FallbackOrder: []string{"ghost", "B"}},
		WithMetrics(metrics), WithTracer(tp.Tracer("test")))
	d.put(a, b)

	_, err := d.Execute(context.Background(), llm.Task{Prompt: "hi"})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Attempts.WithLabelValues("A", model.OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Attempts.WithLabelValues("ghost", model.OutcomeSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Attempts.WithLabelValues("B", model.OutcomeSuccess)))
	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.Tokens.WithLabelValues("B", "output")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Dispatches.WithLabelValues("success")))

	var names []string
	for _, s := range exporter.GetSpans() {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"dispatcher.attempt", "dispatcher.attempt", "dispatcher.Execute"}, names)
}

// A credential that keeps failing is exhausted after the threshold and the
// provider is skipped from then on without another network call.
func TestExecute_RepeatedFailuresExhaustCredential(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "boom", "type": "server_error", "param": null, "code": null}}`))
	}))
	defer server.Close()

	d := newDispatcher(t, routing.Table{DefaultProviderID: "groq"})
	require.NoError(t, d.UpdateProvider(llm.ProviderConfig{
		ID: "groq", Type: "groq", Enabled: true, BaseURL: server.URL,
		APIKeys: []credential.Credential{{Key: "flaky-groq-key", IsActive: true}},
	}))

	for i := 0; i <= credential.ErrorThreshold; i++ {
		_, err := d.Execute(context.Background(), llm.Task{Prompt: "hi"})
		require.Error(t, err)
	}
	assert.Equal(t, int32(credential.ErrorThreshold+1), calls.Load())

	_, err := d.Execute(context.Background(), llm.Task{Prompt: "hi"})
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, SkipNoCredential, agg.Attempts[0].Reason)
	assert.Equal(t, int32(credential.ErrorThreshold+1), calls.Load())
}

func TestExecute_ConcurrentDispatchAndAdministration(t *testing.T) {
	b := newMock("B", true, "key-b-1")
	b.On("GenerateContent", mock.Anything, mock.Anything).Return(success("B", "B-default"), nil)

	d := newDispatcher(t, routing.Table{DefaultProviderID: "B"})
	d.put(b)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = d.Execute(context.Background(), llm.Task{Prompt: "hi"})
		}()
		go func() {
			defer wg.Done()
			_ = d.UpdateRoutingTable(routing.Table{DefaultProviderID: "B", FallbackOrder: []string{"B"}})
			_ = d.GetProviders()
		}()
	}
	wg.Wait()
	b.AssertNumberOfCalls(t, "GenerateContent", 20)
}
