package orchestrator

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandforge/suggest-engine/internal/config"
	"github.com/brandforge/suggest-engine/internal/cost"
	"github.com/brandforge/suggest-engine/internal/model"
	"github.com/brandforge/suggest-engine/internal/provider"
	"github.com/brandforge/suggest-engine/internal/store"
)

type fakeAdapter struct {
	name  string
	text  string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Call(ctx context.Context, _ string) (string, model.TokenUsage, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", model.TokenUsage{}, ctx.Err()
		}
	}
	if f.err != nil {
		return "", model.TokenUsage{}, f.err
	}
	return f.text, model.TokenUsage{InputTokens: 10, OutputTokens: 5}, nil
}

func newTestDispatcher(t *testing.T, adapters ...provider.Adapter) (*Dispatcher, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	reg := provider.NewRegistry()
	for _, a := range adapters {
		reg.Register(a)
	}

	d := New(context.Background(), st, reg, cost.NewCalculator(cost.DefaultRates()),
		config.OrchestratorConfig{DeadlineSecs: 30, MaxConcurrent: 4},
		config.AggregateConfig{MaxPrompts: 25, DefaultRelevance: 50},
	)
	return d, st
}

func testTarget() model.Target {
	return model.Target{BrandID: "brand-1", Name: "Acme", URL: "https://acme.com"}
}

func TestDispatcher_PromptsFanOut(t *testing.T) {
	a := &fakeAdapter{name: "openai", text: `["best crm", "crm pricing"]`}
	b := &fakeAdapter{name: "gemini", text: `["best crm", "crm reviews"]`}
	d, st := newTestDispatcher(t, a, b)
	ctx := context.Background()

	h, err := d.Dispatch(ctx, testTarget(), model.KindPrompts, "us", DispatchOptions{})
	require.NoError(t, err)
	assert.False(t, h.Cached)

	agg, err := h.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, agg)

	texts := make([]string, len(agg.Prompts))
	for i, p := range agg.Prompts {
		texts[i] = p.Text
	}
	assert.ElementsMatch(t, []string{"best crm", "crm pricing", "crm reviews"}, texts)
	assert.Empty(t, agg.Failures)
	assert.Greater(t, agg.CostUSD, 0.0)

	req, err := st.GetRequest(ctx, h.RequestID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestCompleted, req.Status)

	results, err := st.ListProviderResults(ctx, h.RequestID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, model.ResultCompleted, r.Status)
	}
}

func TestDispatcher_CachedFingerprintShortCircuits(t *testing.T) {
	a := &fakeAdapter{name: "openai", text: `["best crm"]`}
	d, _ := newTestDispatcher(t, a)
	ctx := context.Background()

	h1, err := d.Dispatch(ctx, testTarget(), model.KindPrompts, "us", DispatchOptions{})
	require.NoError(t, err)
	_, err = h1.Wait(ctx)
	require.NoError(t, err)
	callsAfterFirst := a.calls.Load()

	h2, err := d.Dispatch(ctx, testTarget(), model.KindPrompts, "us", DispatchOptions{})
	require.NoError(t, err)
	assert.True(t, h2.Cached)

	agg, err := h2.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, agg.Prompts, 1)
	assert.Equal(t, callsAfterFirst, a.calls.Load())
}

func TestDispatcher_ForceRegenerates(t *testing.T) {
	a := &fakeAdapter{name: "openai", text: `["best crm"]`}
	d, _ := newTestDispatcher(t, a)
	ctx := context.Background()

	h1, err := d.Dispatch(ctx, testTarget(), model.KindPrompts, "us", DispatchOptions{})
	require.NoError(t, err)
	_, err = h1.Wait(ctx)
	require.NoError(t, err)

	h2, err := d.Dispatch(ctx, testTarget(), model.KindPrompts, "us", DispatchOptions{Force: true})
	require.NoError(t, err)
	assert.False(t, h2.Cached)

	_, err = h2.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), a.calls.Load())
}

func TestDispatcher_AllProvidersFailed(t *testing.T) {
	a := &fakeAdapter{name: "openai", err: eris.New("connection refused")}
	b := &fakeAdapter{name: "gemini", err: eris.New("quota exceeded")}
	d, st := newTestDispatcher(t, a, b)
	ctx := context.Background()

	h, err := d.Dispatch(ctx, testTarget(), model.KindPrompts, "us", DispatchOptions{})
	require.NoError(t, err)

	agg, err := h.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.True(t, agg.Empty())
	assert.Len(t, agg.Failures, 2)

	req, err := st.GetRequest(ctx, h.RequestID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestFailed, req.Status)
}

func TestDispatcher_PartialFailureStillCompletes(t *testing.T) {
	a := &fakeAdapter{name: "openai", text: `["best crm"]`}
	b := &fakeAdapter{name: "gemini", err: eris.New("timeout")}
	d, st := newTestDispatcher(t, a, b)
	ctx := context.Background()

	h, err := d.Dispatch(ctx, testTarget(), model.KindPrompts, "us", DispatchOptions{})
	require.NoError(t, err)

	agg, err := h.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, agg.Prompts, 1)
	require.Len(t, agg.Failures, 1)
	assert.Equal(t, "gemini", agg.Failures[0].Provider)

	req, err := st.GetRequest(ctx, h.RequestID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestCompleted, req.Status)
}

func TestDispatcher_UnparsableResponseIsProviderError(t *testing.T) {
	a := &fakeAdapter{name: "openai", text: "I cannot help with that request."}
	b := &fakeAdapter{name: "gemini", text: `["best crm"]`}
	d, st := newTestDispatcher(t, a, b)
	ctx := context.Background()

	h, err := d.Dispatch(ctx, testTarget(), model.KindPrompts, "us", DispatchOptions{})
	require.NoError(t, err)

	agg, err := h.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, agg.Prompts, 1)
	require.Len(t, agg.Failures, 1)

	results, err := st.ListProviderResults(ctx, h.RequestID)
	require.NoError(t, err)
	for _, r := range results {
		if r.Provider == "openai" {
			assert.Equal(t, model.ResultError, r.Status)
			assert.Contains(t, r.ErrorMessage, "cannot help")
		}
	}
}

func TestDispatcher_JoinsInflightFingerprint(t *testing.T) {
	a := &fakeAdapter{name: "openai", text: `["best crm"]`, delay: 300 * time.Millisecond}
	d, _ := newTestDispatcher(t, a)
	ctx := context.Background()

	h1, err := d.Dispatch(ctx, testTarget(), model.KindPrompts, "us", DispatchOptions{})
	require.NoError(t, err)
	h2, err := d.Dispatch(ctx, testTarget(), model.KindPrompts, "us", DispatchOptions{})
	require.NoError(t, err)
	assert.Same(t, h1, h2)

	_, err = h1.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), a.calls.Load())
}

func TestDispatcher_NoProviders(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), testTarget(), model.KindPrompts, "us", DispatchOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrNoProviders)
}

func TestDispatcher_DeadlineForceFinalizes(t *testing.T) {
	fast := &fakeAdapter{name: "openai", text: `["best crm"]`}
	slow := &fakeAdapter{name: "gemini", text: `["never arrives"]`, delay: 10 * time.Second}
	d, st := newTestDispatcher(t, fast, slow)
	d.orch.DeadlineSecs = 1
	ctx := context.Background()

	h, err := d.Dispatch(ctx, testTarget(), model.KindPrompts, "us", DispatchOptions{})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	agg, err := h.Wait(waitCtx)
	require.NoError(t, err)

	// The fast provider's output survives, the slow one is settled as
	// errored.
	require.Len(t, agg.Prompts, 1)
	require.Len(t, agg.Failures, 1)
	assert.Equal(t, "gemini", agg.Failures[0].Provider)
	assert.Contains(t, agg.Failures[0].Message, "deadline")

	req, err := st.GetRequest(ctx, h.RequestID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestCompleted, req.Status)
}

func TestDispatcher_LateProviderKeepsSettledOutcome(t *testing.T) {
	fast := &fakeAdapter{name: "openai", text: `["best crm"]`}
	slow := &fakeAdapter{name: "gemini", text: `["arrives after the deadline"]`, delay: 2 * time.Second}
	d, st := newTestDispatcher(t, fast, slow)
	d.orch.DeadlineSecs = 1
	ctx := context.Background()

	h, err := d.Dispatch(ctx, testTarget(), model.KindPrompts, "us", DispatchOptions{})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = h.Wait(waitCtx)
	require.NoError(t, err)

	// Let the slow provider finish and attempt its persist; the settled
	// row must not flip back to completed.
	d.Shutdown()
	assert.Equal(t, int32(1), slow.calls.Load())

	results, err := st.ListProviderResults(ctx, h.RequestID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		if r.Provider == "gemini" {
			assert.Equal(t, model.ResultError, r.Status)
			assert.Contains(t, r.ErrorMessage, "deadline")
			assert.Empty(t, r.RawText)
		}
	}
}

// failingCreateStore fails provider-result row creation for one provider.
type failingCreateStore struct {
	store.Store
	failProvider string
}

func (f *failingCreateStore) CreateProviderResult(ctx context.Context, res *model.ProviderResult) error {
	if res.Provider == f.failProvider {
		return eris.New("disk full")
	}
	return f.Store.CreateProviderResult(ctx, res)
}

func TestDispatcher_AbortsCleanlyWhenResultRowCreationFails(t *testing.T) {
	a := &fakeAdapter{name: "openai", text: `["best crm"]`}
	b := &fakeAdapter{name: "gemini", text: `["best crm"]`}
	d, st := newTestDispatcher(t, a, b)
	fs := &failingCreateStore{Store: st, failProvider: "gemini"}
	d.store = fs
	ctx := context.Background()

	_, err := d.Dispatch(ctx, testTarget(), model.KindPrompts, "us", DispatchOptions{})
	require.Error(t, err)

	// Rows are created for every provider before any unit is enqueued,
	// so an abort means no provider ran at all.
	d.Shutdown()
	assert.Equal(t, int32(0), a.calls.Load())
	assert.Equal(t, int32(0), b.calls.Load())

	reqs, err := st.ListRequests(ctx, store.RequestFilter{})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, model.RequestFailed, reqs[0].Status)

	// The fingerprint reservation was released; a retry starts fresh.
	fs.failProvider = ""
	h, err := d.Dispatch(ctx, testTarget(), model.KindPrompts, "us", DispatchOptions{})
	require.NoError(t, err)
	agg, err := h.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, agg)
	require.Len(t, agg.Prompts, 1)
}

func TestDispatcher_ConcurrentDispatchesShareOneRequest(t *testing.T) {
	a := &fakeAdapter{name: "openai", text: `["best crm"]`, delay: 200 * time.Millisecond}
	d, st := newTestDispatcher(t, a)
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	start := make(chan struct{})
	handles := make([]*Handle, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			h, err := d.Dispatch(ctx, testTarget(), model.KindPrompts, "us", DispatchOptions{})
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	close(start)
	wg.Wait()

	for _, h := range handles {
		require.NotNil(t, h)
		_, err := h.Wait(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), a.calls.Load())
	reqs, err := st.ListRequests(ctx, store.RequestFilter{})
	require.NoError(t, err)
	assert.Len(t, reqs, 1)
}

func TestDispatcher_CompetitorRosterPersistsAndRanks(t *testing.T) {
	a := &fakeAdapter{name: "openai", text: `[{"name":"Alpha","domain":"alpha.com","mentions":5,"relevance":90},{"name":"Beta","domain":"beta.com","mentions":3,"relevance":70}]`}
	d, st := newTestDispatcher(t, a)
	ctx := context.Background()

	h, err := d.Dispatch(ctx, testTarget(), model.KindCompetitors, "us", DispatchOptions{})
	require.NoError(t, err)
	agg, err := h.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, agg.Competitors, 2)

	roster, err := st.ListCompetitors(ctx, "brand-1")
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, 1, roster[0].Rank)
	assert.Equal(t, 2, roster[1].Rank)

	// Regeneration keeps known domains in place and continues ranks.
	a.text = `[{"name":"Alpha","domain":"https://www.alpha.com/","mentions":8,"relevance":95},{"name":"Gamma","domain":"gamma.com","mentions":1,"relevance":40}]`
	h2, err := d.Dispatch(ctx, testTarget(), model.KindCompetitors, "us", DispatchOptions{Force: true})
	require.NoError(t, err)
	_, err = h2.Wait(ctx)
	require.NoError(t, err)

	roster, err = st.ListCompetitors(ctx, "brand-1")
	require.NoError(t, err)
	require.Len(t, roster, 3)
	byDomain := map[string]model.Competitor{}
	for _, c := range roster {
		byDomain[c.Domain] = c
	}
	assert.Equal(t, 8, byDomain["alpha.com"].Mentions)
	assert.Equal(t, 1, byDomain["alpha.com"].Rank)
	assert.Equal(t, 3, byDomain["gamma.com"].Rank)
}

func TestTracker_SingleFinalizer(t *testing.T) {
	tr := newTracker(3)
	assert.False(t, tr.record(true))
	assert.False(t, tr.record(false))
	assert.True(t, tr.record(true))
	assert.True(t, tr.complete())
	assert.Equal(t, 2, tr.successes())
	assert.False(t, tr.forceFinalize())
}

func TestTracker_ForceFinalizeWins(t *testing.T) {
	tr := newTracker(2)
	assert.True(t, tr.forceFinalize())
	assert.False(t, tr.record(true))
	assert.False(t, tr.record(true))
}
