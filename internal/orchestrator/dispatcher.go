// Package orchestrator fans one suggestion request out to every enabled
// provider, tracks completion, and aggregates terminal results into the
// canonical fingerprint-keyed outcome.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brandforge/suggest-engine/internal/aggregate"
	"github.com/brandforge/suggest-engine/internal/config"
	"github.com/brandforge/suggest-engine/internal/cost"
	"github.com/brandforge/suggest-engine/internal/model"
	"github.com/brandforge/suggest-engine/internal/parser"
	"github.com/brandforge/suggest-engine/internal/provider"
	"github.com/brandforge/suggest-engine/internal/scheduler"
	"github.com/brandforge/suggest-engine/internal/store"
)

const deadlineMessage = "request deadline exceeded before provider finished"

// Handle follows one dispatched request. Dispatch returns immediately;
// callers that need the outcome block on Wait.
type Handle struct {
	RequestID   string
	Fingerprint string
	// Cached is set when an aggregated result already existed for the
	// fingerprint and no providers were called.
	Cached bool

	done   chan struct{}
	result *model.AggregatedResult
	err    error
}

// Wait blocks until the request finalizes or ctx expires.
func (h *Handle) Wait(ctx context.Context) (*model.AggregatedResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return h.result, h.err
	}
}

// DispatchOptions tunes a single dispatch.
type DispatchOptions struct {
	// Force regenerates even when a cached aggregated result exists.
	Force bool
	// ExcludeDomains are competitor domains the caller does not want
	// suggested again, merged with the brand's stored roster.
	ExcludeDomains []string
}

// Dispatcher owns the fan-out worker pool and the in-flight request
// table. One Dispatcher serves the whole process.
type Dispatcher struct {
	ctx      context.Context
	store    store.Store
	registry *provider.Registry
	pool     *scheduler.Pool
	calc     *cost.Calculator
	orch     config.OrchestratorConfig
	agg      config.AggregateConfig

	mu       sync.Mutex
	inflight map[string]*Handle
}

// New creates a Dispatcher. ctx bounds the lifetime of all background
// work; canceling it drops queued provider calls.
func New(ctx context.Context, st store.Store, reg *provider.Registry, calc *cost.Calculator, orch config.OrchestratorConfig, agg config.AggregateConfig) *Dispatcher {
	return &Dispatcher{
		ctx:      ctx,
		store:    st,
		registry: reg,
		pool:     scheduler.NewPool(ctx, int64(orch.MaxConcurrent)),
		calc:     calc,
		orch:     orch,
		agg:      agg,
		inflight: make(map[string]*Handle),
	}
}

// Shutdown waits for in-flight provider calls to drain.
func (d *Dispatcher) Shutdown() {
	d.pool.Wait()
}

// Dispatch starts (or joins) the fan-out for a target and kind. It never
// blocks on provider calls: a cached fingerprint returns a completed
// Handle, a fingerprint already in flight returns the existing Handle,
// and anything else creates the request and enqueues every enabled
// provider.
func (d *Dispatcher) Dispatch(ctx context.Context, target model.Target, kind model.OutputKind, country string, opts DispatchOptions) (*Handle, error) {
	fingerprint := model.Fingerprint(target, kind, country)

	if !opts.Force {
		cached, err := d.store.GetAggregated(ctx, fingerprint)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			h := &Handle{
				RequestID:   cached.RequestID,
				Fingerprint: fingerprint,
				Cached:      true,
				done:        make(chan struct{}),
				result:      cached,
			}
			close(h.done)
			zap.L().Info("serving cached result",
				zap.String("fingerprint", fingerprint),
				zap.String("kind", string(kind)))
			return h, nil
		}
	}

	adapters := d.registry.List()
	if len(adapters) == 0 {
		return nil, provider.ErrNoProviders
	}

	providerNames := make([]string, len(adapters))
	for i, a := range adapters {
		providerNames[i] = a.Name()
	}

	req := &model.Request{
		ID:          uuid.New().String(),
		Target:      target,
		Kind:        kind,
		Country:     country,
		Fingerprint: fingerprint,
		Providers:   providerNames,
	}
	h := &Handle{
		RequestID:   req.ID,
		Fingerprint: fingerprint,
		done:        make(chan struct{}),
	}

	// Miss check and reservation happen under one lock so concurrent
	// dispatches for the same fingerprint all join a single fan-out.
	d.mu.Lock()
	if existing, ok := d.inflight[fingerprint]; ok {
		d.mu.Unlock()
		return existing, nil
	}
	d.inflight[fingerprint] = h
	d.mu.Unlock()

	// fail releases the reservation and settles the handle so joiners
	// that already hold it are not left blocked on Wait.
	fail := func(err error) (*Handle, error) {
		d.mu.Lock()
		delete(d.inflight, fingerprint)
		d.mu.Unlock()
		h.err = err
		close(h.done)
		return nil, err
	}

	if err := d.store.CreateRequest(ctx, req); err != nil {
		return fail(err)
	}
	if err := d.store.UpdateRequestStatus(ctx, req.ID, model.RequestInProgress); err != nil {
		return fail(err)
	}
	req.Status = model.RequestInProgress

	if opts.Force {
		if err := d.store.DeleteAggregated(ctx, fingerprint); err != nil {
			return fail(err)
		}
	}

	exclusions := opts.ExcludeDomains
	if kind == model.KindCompetitors {
		stored, err := d.store.ListCompetitors(ctx, target.BrandID)
		if err != nil {
			return fail(err)
		}
		exclusions = mergeExclusions(opts.ExcludeDomains, stored)
	}
	prompt := buildPrompt(req, d.promptCount(), exclusions)

	// All provider rows are created before any unit is enqueued: a
	// failure here can still abort the whole request cleanly, with no
	// units already running against it.
	rows := make([]*model.ProviderResult, len(adapters))
	for i, adapter := range adapters {
		res := &model.ProviderResult{RequestID: req.ID, Provider: adapter.Name()}
		if err := d.store.CreateProviderResult(ctx, res); err != nil {
			if serr := d.store.UpdateRequestStatus(ctx, req.ID, model.RequestFailed); serr != nil {
				zap.L().Error("mark aborted request failed",
					zap.String("request_id", req.ID),
					zap.Error(serr))
			}
			return fail(err)
		}
		rows[i] = res
	}

	tr := newTracker(len(adapters))
	timer := time.AfterFunc(d.deadline(), func() {
		if tr.forceFinalize() {
			zap.L().Warn("request deadline expired, force-finalizing",
				zap.String("request_id", req.ID),
				zap.String("fingerprint", fingerprint))
			d.finalize(req, h, tr, nil)
		}
	})

	zap.L().Info("dispatching request",
		zap.String("request_id", req.ID),
		zap.String("kind", string(kind)),
		zap.String("fingerprint", fingerprint),
		zap.Strings("providers", providerNames))

	for i, adapter := range adapters {
		d.pool.Enqueue(d.providerUnit(req, adapter, rows[i], prompt, tr, h, timer))
	}
	return h, nil
}

// providerUnit is the unit of work for one provider call: call, parse,
// persist, and finalize when this provider is the last one standing.
func (d *Dispatcher) providerUnit(req *model.Request, adapter provider.Adapter, res *model.ProviderResult, prompt string, tr *tracker, h *Handle, timer *time.Timer) scheduler.UnitOfWork {
	return func(ctx context.Context) {
		start := time.Now()
		text, usage, err := adapter.Call(ctx, prompt)
		res.LatencyMS = time.Since(start).Milliseconds()
		res.Usage = usage
		res.CostUSD = d.calc.Cost(adapter.Name(), usage)

		switch {
		case err != nil:
			res.Status = model.ResultError
			res.ErrorMessage = err.Error()
			zap.L().Warn("provider call failed",
				zap.String("request_id", req.ID),
				zap.String("provider", adapter.Name()),
				zap.String("class", string(provider.ClassOf(err))),
				zap.Error(err))
		default:
			res.RawText = text
			payload, perr := parser.Parse(req.Kind, text, d.defaultRelevance())
			if perr != nil {
				res.Status = model.ResultError
				res.ErrorMessage = perr.Error()
				zap.L().Warn("provider response unparsable",
					zap.String("request_id", req.ID),
					zap.String("provider", adapter.Name()),
					zap.Error(perr))
			} else {
				res.Status = model.ResultCompleted
				res.Payload = payload
			}
		}

		d.calc.LogCost(adapter.Name(), string(req.Kind), usage)
		switch uerr := d.store.UpdateProviderResult(d.ctx, res); {
		case errors.Is(uerr, store.ErrResultSettled):
			// The deadline finalizer settled this row first; its
			// recorded outcome stands and the late one is dropped.
			zap.L().Debug("provider finished after result was settled",
				zap.String("request_id", req.ID),
				zap.String("provider", adapter.Name()))
		case uerr != nil:
			zap.L().Error("persist provider result",
				zap.String("request_id", req.ID),
				zap.String("provider", adapter.Name()),
				zap.Error(uerr))
		}

		if tr.record(res.Status == model.ResultCompleted) {
			d.finalize(req, h, tr, timer)
		}
	}
}

// finalize aggregates whatever is terminal, persists the canonical
// result, and settles the handle. The tracker guarantees a single caller.
func (d *Dispatcher) finalize(req *model.Request, h *Handle, tr *tracker, timer *time.Timer) {
	if timer != nil {
		timer.Stop()
	}
	defer func() {
		d.mu.Lock()
		delete(d.inflight, h.Fingerprint)
		d.mu.Unlock()
		close(h.done)
	}()

	ctx := d.ctx

	results, err := d.store.ListProviderResults(ctx, req.ID)
	if err != nil {
		h.err = err
		return
	}

	// A deadline finalize can leave providers mid-call; their rows are
	// settled as errored so the outcome is reproducible from the store.
	for i := range results {
		if results[i].Status.Terminal() {
			continue
		}
		results[i].Status = model.ResultError
		results[i].ErrorMessage = deadlineMessage
		if uerr := d.store.UpdateProviderResult(ctx, &results[i]); uerr != nil {
			zap.L().Error("settle expired provider result",
				zap.String("request_id", req.ID),
				zap.Error(uerr))
		}
	}

	var existing []model.Competitor
	if req.Kind == model.KindCompetitors {
		existing, err = d.store.ListCompetitors(ctx, req.Target.BrandID)
		if err != nil {
			h.err = err
			return
		}
	}

	agg := aggregate.Build(req, results, existing, aggregate.Options{
		MaxPrompts: d.agg.MaxPrompts,
		StripPaths: d.agg.StripPaths,
	})

	if err := d.store.UpsertAggregated(ctx, agg); err != nil {
		h.err = err
		return
	}
	if req.Kind == model.KindCompetitors && len(agg.Competitors) > 0 {
		if err := d.store.UpsertCompetitors(ctx, req.Target.BrandID, agg.Competitors); err != nil {
			h.err = err
			return
		}
	}

	status := model.RequestCompleted
	if tr.successes() == 0 {
		status = model.RequestFailed
	}
	if err := d.store.UpdateRequestStatus(ctx, req.ID, status); err != nil {
		h.err = err
		return
	}

	h.result = agg
	zap.L().Info("request finalized",
		zap.String("request_id", req.ID),
		zap.String("status", string(status)),
		zap.Int("providers_succeeded", tr.successes()),
		zap.Float64("cost_usd", agg.CostUSD))
}

func (d *Dispatcher) deadline() time.Duration {
	if d.orch.DeadlineSecs <= 0 {
		return 120 * time.Second
	}
	return time.Duration(d.orch.DeadlineSecs) * time.Second
}

func (d *Dispatcher) promptCount() int {
	if d.orch.PromptCount <= 0 {
		return 10
	}
	return d.orch.PromptCount
}

func (d *Dispatcher) defaultRelevance() int {
	if d.agg.DefaultRelevance <= 0 {
		return 50
	}
	return d.agg.DefaultRelevance
}
