// Package app wires every substrate subsystem — graph storage, the write
// gate, embedding generation, TRACE parsing and formation routing, weight
// learning, the membership and co-activation fabric, stimulus injection,
// and the health monitor — into one running engine.
//
// New creates and connects all subsystems from a [config.Config]; for
// testing, inject doubles via functional options (WithGraphStore,
// WithEmbeddingProvider, WithEventSink). Run starts the engine's background
// tickers and blocks until its context is cancelled. Shutdown tears
// everything down in order.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/hearthgraph/substrate/internal/config"
	"github.com/hearthgraph/substrate/internal/embedding"
	"github.com/hearthgraph/substrate/internal/entitycontext"
	"github.com/hearthgraph/substrate/internal/formation"
	"github.com/hearthgraph/substrate/internal/health"
	"github.com/hearthgraph/substrate/internal/membership"
	"github.com/hearthgraph/substrate/internal/namespace"
	"github.com/hearthgraph/substrate/internal/observe"
	"github.com/hearthgraph/substrate/internal/resilience"
	"github.com/hearthgraph/substrate/internal/stimulus"
	"github.com/hearthgraph/substrate/internal/telemetry"
	"github.com/hearthgraph/substrate/internal/trace"
	"github.com/hearthgraph/substrate/internal/weightlearn"
	"github.com/hearthgraph/substrate/pkg/graph"
	"github.com/hearthgraph/substrate/pkg/graph/postgres"
	"github.com/hearthgraph/substrate/pkg/graph/writegate"
	"github.com/hearthgraph/substrate/pkg/provider/embeddings"
	embeddingsmock "github.com/hearthgraph/substrate/pkg/provider/embeddings/mock"
	"github.com/hearthgraph/substrate/pkg/provider/embeddings/ollama"
	"github.com/hearthgraph/substrate/pkg/provider/embeddings/openai"
)

// stimulusLabels are the content node labels searched when a free-form
// stimulus is injected. Structural/bookkeeping labels (SubEntity) are
// deliberately excluded; stimulus deposits energy onto content, not onto
// the entities that claim it.
var stimulusLabels = []string{
	"Realization", "Personal_Pattern", "Struggle", "Goal", "Memory", "Habit",
	"Value", "Fear", "Aspiration", "Relationship",
	"Principle", "Process", "Decision", "Role", "Collaboration", "Policy",
	"Initiative", "Milestone", "Team", "Ritual",
	"Mechanism", "Convention", "Trend", "Standard", "Institution", "Market",
	"Protocol", "Movement",
	"Concept", "Entity", "Event", "Artifact", "Source", "Location",
	"Question", "Risk", "Opportunity",
}

// App owns every subsystem's lifetime and exposes the substrate's two
// write paths (TRACE processing, stimulus injection) plus its background
// health-monitoring and heartbeat loops.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	rawStore        graph.Store
	store           graph.Store
	membershipGraph graph.MembershipBackend

	embedProvider embeddings.Provider
	embedGen      *embedding.Generator

	scopes   *formation.ScopeRegistry
	router   *formation.Router
	learner  *weightlearn.Learner
	resolver *entitycontext.Resolver
	members  *membership.Store
	coact    *membership.CoactivationUpdater
	stimulus *stimulus.Injector

	healthHandler *health.Handler
	healthMonitor *health.Monitor

	reinforce trace.ReinforcementAggregator

	sink      telemetry.Sink
	events    *telemetry.ChannelSink
	heartbeat *telemetry.HeartbeatWriter
	metrics   *observe.Metrics

	runner *Runner

	// hotMu guards learner, members, coact, and healthMonitor, which
	// ApplyConfig may swap for freshly built instances while ProcessTrace,
	// InjectStimulus, and the health ticker are reading them concurrently.
	hotMu sync.RWMutex

	touched sync.Map // graph name -> struct{}; scopes seen so far this run.

	activeGraphs    atomic.Int64
	cohortsUpdated  atomic.Int64
	itemsReinforced atomic.Int64

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New, used to inject test doubles.
type Option func(*App)

// WithGraphStore injects the raw (pre-writegate) graph backend instead of
// connecting to cfg.Graph.PostgresDSN.
func WithGraphStore(s graph.Store) Option {
	return func(a *App) { a.rawStore = s }
}

// WithEmbeddingProvider injects an embeddings provider instead of building
// one from cfg.Embeddings via the provider registry.
func WithEmbeddingProvider(p embeddings.Provider) Option {
	return func(a *App) { a.embedProvider = p }
}

// WithEventSink injects a channel sink instead of creating one from
// cfg.Telemetry, letting tests subscribe to emitted events directly.
func WithEventSink(events *telemetry.ChannelSink) Option {
	return func(a *App) { a.events = events }
}

// New wires every subsystem together and returns a ready-to-run App.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, logger: slog.Default(), runner: NewRunner()}
	for _, o := range opts {
		o(a)
	}

	a.initTelemetry()

	if err := a.initMetrics(); err != nil {
		return nil, fmt.Errorf("app: init metrics: %w", err)
	}
	if err := a.initGraphStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init graph store: %w", err)
	}
	if err := a.initEmbeddings(); err != nil {
		return nil, fmt.Errorf("app: init embeddings: %w", err)
	}

	a.initFormation()
	a.initWeightLearning()
	a.initMembership()
	a.initStimulus()
	a.initHealth()
	a.initReinforcement()

	if err := a.initHeartbeat(); err != nil {
		return nil, fmt.Errorf("app: init heartbeat: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────

func (a *App) initTelemetry() {
	if a.events == nil {
		a.events = telemetry.NewChannelSink(a.logger)
	}
	a.sink = a.events
}

func (a *App) initMetrics() error {
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.metrics = metrics
	return nil
}

func (a *App) initGraphStore(ctx context.Context) error {
	if a.rawStore == nil {
		dsn := a.cfg.Graph.PostgresDSN
		if dsn == "" {
			return errors.New("graph.postgres_dsn is required when no graph store is injected")
		}
		store, err := postgres.NewStore(ctx, dsn, a.cfg.Graph.EmbeddingDimensions, a.cfg.Graph.WriteRetries)
		if err != nil {
			return err
		}
		a.rawStore = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	}

	if _, ok := a.rawStore.(graph.MembershipBackend); !ok {
		return fmt.Errorf("app: graph store %T does not implement graph.MembershipBackend", a.rawStore)
	}

	gate := writegate.New(a.rawStore, a.sink)
	a.store = gate
	a.membershipGraph = gate
	return nil
}

// defaultEmbeddingRegistry builds a [config.Registry] with factories for
// every embeddings provider this deployment knows about.
func defaultEmbeddingRegistry() *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterEmbeddings("ollama", func(e config.ProviderEntry) (embeddings.Provider, error) {
		return ollama.New(e.BaseURL, e.Model)
	})
	reg.RegisterEmbeddings("openai", func(e config.ProviderEntry) (embeddings.Provider, error) {
		var opts []openai.Option
		if e.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(e.BaseURL))
		}
		return openai.New(e.APIKey, e.Model, opts...)
	})
	reg.RegisterEmbeddings("mock", func(e config.ProviderEntry) (embeddings.Provider, error) {
		dims := e.Dimensions
		if dims == 0 {
			dims = embedding.Dimensions
		}
		return &embeddingsmock.Provider{
			EmbedResult:     make([]float32, dims),
			DimensionsValue: dims,
			ModelIDValue:    "mock",
		}, nil
	})
	return reg
}

func (a *App) initEmbeddings() error {
	if a.embedProvider == nil {
		reg := defaultEmbeddingRegistry()
		provider, err := reg.CreateEmbeddings(a.cfg.Embeddings)
		if err != nil {
			return err
		}

		resilient := embedding.NewResilientProvider(provider, a.cfg.Embeddings.Name, resilience.FallbackConfig{
			CircuitBreaker: resilience.CircuitBreakerConfig{Name: a.cfg.Embeddings.Name},
		})
		dims := a.cfg.Embeddings.Dimensions
		if dims == 0 {
			dims = embedding.Dimensions
		}
		resilient.AddFallback("zero-vector", &embeddingsmock.Provider{
			EmbedResult:     make([]float32, dims),
			DimensionsValue: dims,
			ModelIDValue:    "zero-vector-fallback",
		})
		a.embedProvider = resilient
	}
	a.embedGen = embedding.New(a.embedProvider)
	return nil
}

func (a *App) initFormation() {
	a.scopes = formation.NewScopeRegistry(a.cfg.Namespaces)
	a.resolver = entitycontext.New(a.store)
	a.router = formation.NewRouter(a.store, a.scopes, a.embedGen, a.resolver, a.sink)
}

func (a *App) initWeightLearning() {
	a.learner = a.buildLearner(a.cfg)
}

// buildLearner constructs a Learner from cfg's weights block, layered over
// weightlearn.DefaultConfig so a zero-valued field falls back to the
// default rather than disabling that term.
func (a *App) buildLearner(cfg *config.Config) *weightlearn.Learner {
	lcfg := weightlearn.DefaultConfig
	if cfg.Weights.AlphaGlobal != 0 {
		lcfg.AlphaGlobal = cfg.Weights.AlphaGlobal
	}
	if cfg.Weights.AlphaLocal != 0 {
		lcfg.AlphaLocal = cfg.Weights.AlphaLocal
	}
	if cfg.Weights.OverlayClamp != 0 {
		lcfg.OverlayCap = cfg.Weights.OverlayClamp
	}
	if cfg.Weights.AdaptiveTauHours != 0 {
		lcfg.AdaptiveTau = time.Duration(cfg.Weights.AdaptiveTauHours * float64(time.Hour))
	}
	return weightlearn.New(a.store, lcfg, a.sink)
}

// membershipAlpha derives a fixed EMA rate from the configured time
// constant via the classic EMA-span relation alpha = 2/(span+1), shared by
// both the MEMBER_OF activation fabric and the COACTIVATES_WITH pair
// fabric since both decay on the same configured time constant.
func membershipAlpha(tauHours float64) float64 {
	if tauHours <= 0 {
		return 0.3
	}
	return 2.0 / (tauHours + 1)
}

func (a *App) initMembership() {
	a.members, a.coact = a.buildMembership(a.cfg)
}

func (a *App) buildMembership(cfg *config.Config) (*membership.Store, *membership.CoactivationUpdater) {
	alpha := membershipAlpha(cfg.Membership.CoactivationTauHours)
	members := membership.New(a.membershipGraph, a.store, alpha, cfg.Membership.TopK, a.sink)
	coact := membership.NewCoactivationUpdater(a.membershipGraph, alpha, a.sink)
	return members, coact
}

func (a *App) initStimulus() {
	a.stimulus = a.buildStimulus(a.cfg)
}

func (a *App) buildStimulus(cfg *config.Config) *stimulus.Injector {
	return stimulus.New(a.store, a.embedGen, stimulus.Config{
		Labels:          stimulusLabels,
		BaseBudget:      cfg.Stimulus.BaseBudget,
		MatchesPerLabel: cfg.Stimulus.MatchesPerLabel,
	}, a.sink)
}

func (a *App) initHealth() {
	checkers := []health.Checker{
		{Name: "graph", Check: func(ctx context.Context) error {
			scope := a.anyConfiguredGraph()
			if scope == "" {
				return nil
			}
			_, err := a.store.FindNodes(ctx, graph.NodeFilter{Scope: scope, Limit: 1})
			return err
		}},
	}
	a.healthHandler = health.New(checkers...)
	a.healthMonitor = a.buildHealthMonitor(a.cfg)
}

// buildHealthMonitor constructs a Monitor from cfg's health block. Interval
// is read once by Run's ticker at startup and is not itself hot-reloadable
// — only the scoring thresholds baked into health.Config are.
func (a *App) buildHealthMonitor(cfg *config.Config) *health.Monitor {
	hcfg := health.Config{
		Interval:              time.Duration(cfg.Health.IntervalSeconds) * time.Second,
		HistoryRetention:      time.Duration(cfg.Health.HistoryDays) * 24 * time.Hour,
		OrphanWeightThreshold: cfg.Health.OrphanWeightThreshold,
		CoherenceSampleSize:   cfg.Health.CoherenceSampleSize,
		HighwayTopN:           cfg.Health.HighwayTopN,
	}
	return health.NewMonitor(a.store, a.membershipGraph, hcfg, a.sink, a.metrics, a.events)
}

func (a *App) anyConfiguredGraph() string {
	ns := a.currentConfig().Namespaces
	for _, g := range []string{ns.ProtocolGraph, ns.OrgGraph, ns.EcosystemGraph} {
		if g != "" {
			return g
		}
	}
	return ""
}

func (a *App) initReinforcement() {
	a.reinforce = trace.ReinforcementAggregator{Quotas: a.gradeQuotas(), MaxSeats: a.cfg.Reinforce.MaxSeats}
}

func (a *App) gradeQuotas() map[trace.Grade]float64 {
	if len(a.cfg.Reinforce.GradeQuotas) == 0 {
		return nil // ReinforcementAggregator falls back to trace.DefaultGradeQuotas.
	}
	quotas := make(map[trace.Grade]float64, len(a.cfg.Reinforce.GradeQuotas))
	for grade, quota := range a.cfg.Reinforce.GradeQuotas {
		quotas[trace.Grade(grade)] = quota
	}
	return quotas
}

func (a *App) initHeartbeat() error {
	if a.cfg.Telemetry.HeartbeatDir == "" {
		return nil
	}
	hb, err := telemetry.NewHeartbeatWriter(a.cfg.Telemetry.HeartbeatDir)
	if err != nil {
		return err
	}
	a.heartbeat = hb
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────

// GraphStore returns the namespace-enforced graph store.
func (a *App) GraphStore() graph.Store { return a.store }

// HealthHandler returns the liveness/readiness HTTP handler.
func (a *App) HealthHandler() *health.Handler { return a.healthHandler }

// Metrics returns the OpenTelemetry metrics instrument set.
func (a *App) Metrics() *observe.Metrics { return a.metrics }

// ApplyConfig hot-reloads the subset of configuration [config.Diff] marks
// safe to change without a restart — weight-learning rates, the
// membership/co-activation EMA alpha and top-K, stimulus injection budgets,
// and the health monitor's scoring thresholds — by rebuilding just those
// subsystems against newCfg. Fields Diff omits (graph.postgres_dsn,
// embeddings.name) are left untouched even if newCfg differs, and the
// health interval is read only once by Run's ticker; changing any of those
// still requires a process restart.
func (a *App) ApplyConfig(newCfg *config.Config) config.ConfigDiff {
	diff := config.Diff(a.cfg, newCfg)

	a.hotMu.Lock()
	if diff.WeightsChanged {
		a.learner = a.buildLearner(newCfg)
	}
	if diff.MembershipChanged {
		a.members, a.coact = a.buildMembership(newCfg)
	}
	if diff.StimulusChanged {
		a.stimulus = a.buildStimulus(newCfg)
	}
	if diff.HealthChanged {
		a.healthMonitor = a.buildHealthMonitor(newCfg)
	}
	a.cfg = newCfg
	a.hotMu.Unlock()

	return diff
}

// Events returns the event bus other subsystems (or test code) can
// subscribe to.
func (a *App) Events() *telemetry.ChannelSink { return a.events }

// ─── TraceOutcome ────────────────────────────────────────────────────────

// TraceOutcome is everything one ProcessTrace call produced.
type TraceOutcome struct {
	Parsed          trace.Parsed
	Seats           map[string]int
	ActiveEntities  []string
	Formation       formation.Result
	CohortSummaries []weightlearn.CohortSummary
}

// ProcessTrace runs the full per-TRACE procedure against scope (a
// formation scope string like "personal:alice", not a physical graph
// name): tokenize, apportion reinforcement seats, resolve active entities,
// update weights, route formations, fold membership activations, and
// observe co-activation. Work against the same physical graph serializes;
// different graphs proceed concurrently.
func (a *App) ProcessTrace(ctx context.Context, scope, text string, currentWM []string) (*TraceOutcome, error) {
	graphName, err := a.scopes.GraphName(scope)
	if err != nil {
		return nil, fmt.Errorf("app: process trace: %w", err)
	}

	var out *TraceOutcome
	err = a.runner.Run(ctx, graphName, func(ctx context.Context) error {
		start := time.Now()
		outcome, rerr := a.processTraceLocked(ctx, graphName, text, currentWM)
		a.metrics.TraceDuration.Record(ctx, time.Since(start).Seconds())
		out = outcome
		return rerr
	})
	if err != nil {
		return nil, err
	}
	a.noteGraphTouched(graphName)
	return out, nil
}

func (a *App) processTraceLocked(ctx context.Context, graphName, text string, currentWM []string) (*TraceOutcome, error) {
	writeCtx := namespace.WithNamespace(ctx, namespace.ForGraph(graphName))

	parsed := trace.Parse(text)
	seats := a.reinforce.Apportion(parsed.ReinforcementGrades)

	entities, err := a.resolver.Resolve(writeCtx, graphName, parsed, currentWM)
	if err != nil {
		return nil, fmt.Errorf("app: resolve active entities: %w", err)
	}

	items := a.buildWeightItems(writeCtx, graphName, seats)
	var summaries []weightlearn.CohortSummary
	if len(items) > 0 {
		summaries = a.currentLearner().Learn(writeCtx, items, entities)
		a.cohortsUpdated.Add(int64(len(summaries)))
		a.itemsReinforced.Add(int64(len(items)))
	}

	result := a.router.ProcessTrace(writeCtx, parsed, currentWM)
	for _, n := range result.Nodes {
		a.metrics.RecordFormationWrite(ctx, n.Label, "written")
	}
	for _, qa := range result.QATasks {
		a.metrics.RecordFormationWrite(ctx, qa.FormationType, "qa_task")
	}

	a.foldMembership(writeCtx, graphName, result, entities)

	_, coact := a.currentMembership()
	if err := coact.Observe(writeCtx, graphName, entities); err != nil {
		a.logger.Warn("coactivation observe failed", "scope", graphName, "err", err)
	}

	return &TraceOutcome{
		Parsed:          parsed,
		Seats:           seats,
		ActiveEntities:  entities,
		Formation:       result,
		CohortSummaries: summaries,
	}, nil
}

// buildWeightItems constructs one weightlearn.Item per node that received a
// reinforcement seat this TRACE.
func (a *App) buildWeightItems(ctx context.Context, scope string, seats map[string]int) []weightlearn.Item {
	items := make([]weightlearn.Item, 0, len(seats))
	for nodeID, seatCount := range seats {
		node, err := a.store.GetNode(ctx, scope, nodeID)
		if err != nil {
			if !errors.Is(err, graph.ErrNotFound) {
				a.logger.Warn("weightlearn: read node failed", "node_id", nodeID, "err", err)
			}
			continue
		}
		items = append(items, itemFromNode(node, seatCount))
	}
	return items
}

// itemFromNode converts a persisted node into a weightlearn.Item, reading
// back the EMA state the learner previously wrote into its properties. The
// three EMA properties are jsonb-embedded (not first-class columns), so a
// postgres round trip turns LastUpdateTimestamp into a string while the
// in-memory mock store preserves it as time.Time directly; asFloat/asTime
// below handle both.
func itemFromNode(node graph.Node, seats int) weightlearn.Item {
	props := node.Properties
	if props == nil {
		props = map[string]any{}
	}
	return weightlearn.Item{
		NodeID:              node.ID,
		Label:               node.Label,
		Scope:               node.Scope,
		Seats:               seats,
		EmaTraceSeats:       asFloat(props["ema_trace_seats"]),
		EmaFormationQuality: asFloat(props["ema_formation_quality"]),
		LogWeight:           node.LogWeight,
		LogWeightOverlays:   node.LogWeightOverlays,
		LastUpdateTimestamp: asTime(props["last_update_timestamp"]),
	}
}

// foldMembership folds the active entities' claim onto every node written
// by this TRACE's formations into the membership activation fabric, and
// rebuilds each touched node's top-K cache.
func (a *App) foldMembership(ctx context.Context, scope string, result formation.Result, entities []string) {
	if len(entities) == 0 || len(result.Nodes) == 0 {
		return
	}
	activations := make([]membership.Activation, 0, len(result.Nodes)*len(entities))
	for _, n := range result.Nodes {
		for _, e := range entities {
			activations = append(activations, membership.Activation{NodeID: n.ID, EntityID: e, Scope: scope})
		}
	}
	members, _ := a.currentMembership()
	if err := members.FlushMemberships(ctx, activations); err != nil {
		a.logger.Warn("membership flush failed", "scope", scope, "err", err)
		return
	}
	for _, n := range result.Nodes {
		if err := members.RebuildCache(ctx, scope, n.ID); err != nil {
			a.logger.Warn("membership cache rebuild failed", "node_id", n.ID, "err", err)
		}
	}
}

// currentConfig returns the Config currently in effect, safe to call
// concurrently with ApplyConfig.
func (a *App) currentConfig() *config.Config {
	a.hotMu.RLock()
	defer a.hotMu.RUnlock()
	return a.cfg
}

// currentLearner returns the Learner currently in effect, safe to call
// concurrently with ApplyConfig.
func (a *App) currentLearner() *weightlearn.Learner {
	a.hotMu.RLock()
	defer a.hotMu.RUnlock()
	return a.learner
}

// currentMembership returns the membership Store and CoactivationUpdater
// currently in effect, safe to call concurrently with ApplyConfig.
func (a *App) currentMembership() (*membership.Store, *membership.CoactivationUpdater) {
	a.hotMu.RLock()
	defer a.hotMu.RUnlock()
	return a.members, a.coact
}

// currentStimulus returns the Injector currently in effect, safe to call
// concurrently with ApplyConfig.
func (a *App) currentStimulus() *stimulus.Injector {
	a.hotMu.RLock()
	defer a.hotMu.RUnlock()
	return a.stimulus
}

// currentHealthMonitor returns the Monitor currently in effect, safe to
// call concurrently with ApplyConfig.
func (a *App) currentHealthMonitor() *health.Monitor {
	a.hotMu.RLock()
	defer a.hotMu.RUnlock()
	return a.healthMonitor
}

// InjectStimulus runs one stimulus-injection frame against scope (a
// formation scope string, resolved to its physical graph the same way
// ProcessTrace resolves one).
func (a *App) InjectStimulus(ctx context.Context, scope, text string) ([]stimulus.InjectionMatch, error) {
	graphName, err := a.scopes.GraphName(scope)
	if err != nil {
		return nil, fmt.Errorf("app: inject stimulus: %w", err)
	}
	var matches []stimulus.InjectionMatch
	err = a.runner.Run(ctx, graphName, func(ctx context.Context) error {
		writeCtx := namespace.WithNamespace(ctx, namespace.ForGraph(graphName))
		start := time.Now()
		m, ierr := a.currentStimulus().Inject(writeCtx, graphName, text)
		a.metrics.StimulusDuration.Record(ctx, time.Since(start).Seconds())
		a.metrics.StimulusMatches.Record(ctx, int64(len(m)))
		matches = m
		return ierr
	})
	if err != nil {
		return nil, err
	}
	a.noteGraphTouched(graphName)
	return matches, nil
}

func (a *App) noteGraphTouched(graphName string) {
	if _, loaded := a.touched.LoadOrStore(graphName, struct{}{}); !loaded {
		a.activeGraphs.Add(1)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────

// Run starts the health monitor's periodic tick and (if configured) the
// heartbeat writer, blocking until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	interval := time.Duration(a.currentConfig().Health.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.runHealthLoop(ctx, interval)
	}()

	if a.heartbeat != nil {
		hbInterval := time.Duration(a.currentConfig().Telemetry.HeartbeatIntervalSeconds) * time.Second
		if hbInterval <= 0 {
			hbInterval = time.Minute
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.runHeartbeatLoop(ctx, hbInterval)
		}()
	}

	a.logger.Info("substrate engine running")
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (a *App) runHealthLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tickHealth(ctx)
		}
	}
}

func (a *App) tickHealth(ctx context.Context) {
	monitor := a.currentHealthMonitor()
	for _, scope := range a.knownGraphs() {
		start := time.Now()
		if _, err := monitor.Tick(ctx, scope); err != nil {
			a.logger.Warn("health tick failed", "scope", scope, "err", err)
			continue
		}
		a.metrics.HealthTickDuration.Record(ctx, time.Since(start).Seconds())
	}
	a.metrics.ActiveGraphs.Add(ctx, a.activeGraphs.Swap(0))
}

// knownGraphs returns every physical graph name the engine should health
// check: the configured shared graphs plus every personal graph touched by
// a TRACE or stimulus injection so far this run.
func (a *App) knownGraphs() []string {
	var graphs []string
	ns := a.currentConfig().Namespaces
	for _, g := range []string{ns.OrgGraph, ns.EcosystemGraph, ns.ProtocolGraph} {
		if g != "" {
			graphs = append(graphs, g)
		}
	}
	a.touched.Range(func(key, _ any) bool {
		graphs = append(graphs, key.(string))
		return true
	})
	return graphs
}

func (a *App) runHeartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rec := telemetry.HeartbeatRecord{
				Timestamp:       time.Now().UTC(),
				CohortsUpdated:  a.cohortsUpdated.Load(),
				ItemsReinforced: a.itemsReinforced.Load(),
			}
			if err := a.heartbeat.Write(rec); err != nil {
				a.logger.Warn("heartbeat write failed", "err", err)
			}
		}
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in registration order, respecting
// ctx's deadline. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.logger.Warn("closer error", "index", i, "err", err)
			}
		}
		a.logger.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Property coercion helpers ──────────────────────────────────────────

// asFloat reads a jsonb-round-tripped numeric property, which surfaces as
// float64 on both the mock store (native Go value) and after a real JSON
// unmarshal; anything else yields 0.
func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// asTime reads a jsonb-round-tripped timestamp property, which surfaces as
// time.Time on the mock store (native Go value, no serialization) or as an
// RFC3339 string after the postgres backend's JSON round trip.
func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}
		}
		return parsed
	default:
		return time.Time{}
	}
}
