// Package service composes the triage subsystems (graph, capabilities,
// executor, store, notifiers) into one long-lived value that the HTTP, RPC,
// and CLI surfaces share.
//
// The service initializes from configuration via New, creating every
// subsystem internally. Functional options override subsystems in tests.
//
//	svc, err := service.New(ctx, cfg)
//	final, err := svc.Submit(ctx, workflows.Submission{Input: map[string]any{"text": "..."}})
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/backlog/analysis"
	"github.com/tailored-agentic-units/backlog/notify"
	"github.com/tailored-agentic-units/backlog/observability"
	"github.com/tailored-agentic-units/backlog/orchestrate/aggregate"
	"github.com/tailored-agentic-units/backlog/orchestrate/capability"
	"github.com/tailored-agentic-units/backlog/orchestrate/graph"
	"github.com/tailored-agentic-units/backlog/orchestrate/pipeline"
	"github.com/tailored-agentic-units/backlog/orchestrate/state"
	"github.com/tailored-agentic-units/backlog/orchestrate/workflows"
	"github.com/tailored-agentic-units/backlog/store"
)

const source = "service"

// Option overrides a config-created subsystem.
type Option func(*options)

type options struct {
	store        store.Store
	definition   *graph.Definition
	capabilities map[string]capability.Capability
	notifiers    []pipeline.Notifier
	observer     observability.Observer
	logger       *slog.Logger
	executorOpts []pipeline.Option
}

// WithStore overrides the config-created task store.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithDefinition builds the graph from def instead of the configured file.
func WithDefinition(def graph.Definition) Option {
	return func(o *options) { o.definition = &def }
}

// WithCapability registers c under name, replacing a built-in of the same
// name.
func WithCapability(name string, c capability.Capability) Option {
	return func(o *options) {
		if o.capabilities == nil {
			o.capabilities = make(map[string]capability.Capability)
		}
		o.capabilities[name] = c
	}
}

// WithNotifier adds a completion notifier alongside the configured ones.
func WithNotifier(n pipeline.Notifier) Option {
	return func(o *options) { o.notifiers = append(o.notifiers, n) }
}

// WithObserver overrides the observer named in the executor config.
func WithObserver(obs observability.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithLogger sets the logger used by the store and notifiers.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithExecutorOptions passes options through to pipeline.New.
func WithExecutorOptions(opts ...pipeline.Option) Option {
	return func(o *options) { o.executorOpts = append(o.executorOpts, opts...) }
}

type running struct {
	input   map[string]any
	started time.Time
}

// Service owns one executor and the collaborators around it.
type Service struct {
	cfg      Config
	graph    *graph.Graph
	catalog  *capability.Catalog
	executor *pipeline.Executor
	store    store.Store
	notifier *notify.Multi
	observer observability.Observer
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	closed   bool
	inflight map[string]running
}

// New creates a Service from configuration. ctx bounds only startup work
// such as connecting notifiers.
func New(ctx context.Context, cfg *Config, opts ...Option) (svc *Service, err error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	observability.RegisterObserver("metrics", observability.NewMetricsObserver())

	observer := o.observer
	if observer == nil {
		observer = observability.NoOpObserver{}
		if cfg.Executor.Observer != "" {
			if observer, err = observability.GetObserver(cfg.Executor.Observer); err != nil {
				return nil, fmt.Errorf("failed to resolve observer: %w", err)
			}
		}
	}

	s := o.store
	if s == nil {
		if s, err = store.New(&cfg.Store, logger); err != nil {
			return nil, fmt.Errorf("failed to create store: %w", err)
		}
	}
	var closers []func() error
	closers = append(closers, s.Close)
	defer func() {
		if err != nil {
			for _, c := range slices.Backward(closers) {
				c()
			}
		}
	}()

	cat, err := newCatalog(cfg, s, o.capabilities)
	if err != nil {
		return nil, err
	}

	var g *graph.Graph
	if o.definition != nil {
		g, err = graph.Build(*o.definition)
	} else {
		g, err = graph.BuildFile(cfg.Graph)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}

	registry, err := graph.Bind(g, cat, cfg.Executor.NodeTimeout.Std())
	if err != nil {
		return nil, fmt.Errorf("failed to bind graph: %w", err)
	}

	notifiers := []pipeline.Notifier{notify.NewLogNotifier(observer)}
	if cfg.Notify.SocketIO.Enabled() {
		sio, err := notify.DialSocketIO(ctx, cfg.Notify.SocketIO, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect notifier: %w", err)
		}
		notifiers = append(notifiers, sio)
	}
	notifiers = append(notifiers, o.notifiers...)
	multi := notify.NewMulti(notifiers...)
	closers = append(closers, multi.Close)

	execOpts := []pipeline.Option{
		pipeline.WithPersister(store.Persister(s)),
		pipeline.WithNotifier(multi),
	}
	if o.observer != nil {
		execOpts = append(execOpts, pipeline.WithObserver(o.observer))
	}
	execOpts = append(execOpts, o.executorOpts...)

	executor, err := pipeline.New(g, registry, cfg.Executor, execOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	base, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:      *cfg,
		graph:    g,
		catalog:  cat,
		executor: executor,
		store:    s,
		notifier: multi,
		observer: observer,
		logger:   logger,
		ctx:      base,
		cancel:   cancel,
		inflight: make(map[string]running),
	}, nil
}

func newCatalog(cfg *Config, s store.Store, overrides map[string]capability.Capability) (*capability.Catalog, error) {
	cat := capability.NewCatalog()
	if err := aggregate.Register(cat); err != nil {
		return nil, err
	}

	var llm *analysis.LLM
	if cfg.LLM.Enabled() {
		llm = analysis.NewLLM(cfg.LLM)
	}
	err := analysis.Register(cat, analysis.Options{
		Store:              s,
		DuplicateThreshold: cfg.Duplicates.Threshold,
		DuplicateWindow:    cfg.Duplicates.Window,
		LLM:                llm,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register capabilities: %w", err)
	}

	for name, c := range overrides {
		if _, exists := cat.Lookup(name); exists {
			err = cat.Replace(name, c)
		} else {
			err = cat.Register(name, c)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to register capability %q: %w", name, err)
		}
	}
	return cat, nil
}

// Graph returns the graph every run executes.
func (s *Service) Graph() *graph.Graph { return s.graph }

// Capabilities returns the names of every registered capability.
func (s *Service) Capabilities() []string { return s.catalog.Names() }

// Executor returns the shared executor.
func (s *Service) Executor() *pipeline.Executor { return s.executor }

// prepare validates sub and assigns a task id when it has none.
func (s *Service) prepare(sub *workflows.Submission) error {
	if err := validate.Struct(sub); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}
	if sub.TaskID == "" {
		sub.TaskID = uuid.NewString()
	}
	return nil
}

// reserve registers subs as running, all or none. Under one lock it rejects a
// closed service and any id repeated in subs, already running, or already
// stored. Each reserved id holds one wait group slot until release.
func (s *Service) reserve(ctx context.Context, subs []workflows.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	seen := make(map[string]bool, len(subs))
	for _, sub := range subs {
		if _, active := s.inflight[sub.TaskID]; active || seen[sub.TaskID] {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, sub.TaskID)
		}
		seen[sub.TaskID] = true

		_, err := s.store.Load(ctx, sub.TaskID)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s", ErrDuplicateTask, sub.TaskID)
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("check task %s: %w", sub.TaskID, err)
		}
	}

	now := time.Now()
	for _, sub := range subs {
		s.inflight[sub.TaskID] = running{input: maps.Clone(sub.Input), started: now}
	}
	s.wg.Add(len(subs))
	return nil
}

// release ends a reservation. Releasing an id twice is a no-op.
func (s *Service) release(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[taskID]; ok {
		delete(s.inflight, taskID)
		s.wg.Done()
	}
}

// bind derives a run context that also ends when the service is closed.
func (s *Service) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Submit runs sub to completion and returns the sealed state.
func (s *Service) Submit(ctx context.Context, sub workflows.Submission) (*state.PipelineState, error) {
	if err := s.prepare(&sub); err != nil {
		return nil, err
	}
	if err := s.reserve(ctx, []workflows.Submission{sub}); err != nil {
		return nil, err
	}
	defer s.release(sub.TaskID)

	ctx, cancel := s.bind(ctx)
	defer cancel()

	s.emitSubmit(ctx, sub, false)
	return s.executor.Run(ctx, state.New(sub.TaskID, sub.Input))
}

// SubmitAsync starts sub in the background and returns its task id. The run
// is bound to the service lifetime, not to ctx.
func (s *Service) SubmitAsync(ctx context.Context, sub workflows.Submission) (string, error) {
	if err := s.prepare(&sub); err != nil {
		return "", err
	}
	if err := s.reserve(ctx, []workflows.Submission{sub}); err != nil {
		return "", err
	}

	s.emitSubmit(ctx, sub, true)
	go func() {
		defer s.release(sub.TaskID)
		if _, err := s.executor.Run(s.ctx, state.New(sub.TaskID, sub.Input)); err != nil {
			s.observer.OnEvent(s.ctx, observability.NewEvent(EventRunError, observability.LevelError, source, map[string]any{
				"task_id": sub.TaskID,
				"error":   err.Error(),
			}))
		}
	}()
	return sub.TaskID, nil
}

func (s *Service) emitSubmit(ctx context.Context, sub workflows.Submission, async bool) {
	s.observer.OnEvent(ctx, observability.NewEvent(EventSubmit, observability.LevelVerbose, source, map[string]any{
		"task_id": sub.TaskID,
		"async":   async,
		"fields":  len(sub.Input),
	}))
}

// Batch runs every submission through the executor on a worker pool. The
// items are reserved together, so a duplicate id anywhere rejects the whole
// batch, and each item is visible to Get while it runs.
func (s *Service) Batch(
	ctx context.Context,
	subs []workflows.Submission,
	progress workflows.ProgressFunc[*state.PipelineState],
) (workflows.BatchResult[workflows.Submission, *state.PipelineState], error) {
	var none workflows.BatchResult[workflows.Submission, *state.PipelineState]

	items := slices.Clone(subs)
	for i := range items {
		if err := s.prepare(&items[i]); err != nil {
			return none, fmt.Errorf("item %d: %w", i, err)
		}
	}
	if err := s.reserve(ctx, items); err != nil {
		return none, err
	}
	defer func() {
		for _, item := range items {
			s.release(item.TaskID)
		}
	}()

	ctx, cancel := s.bind(ctx)
	defer cancel()

	return workflows.RunPipelines(ctx, s.cfg.Batch, releasingRunner{s}, items, progress)
}

// releasingRunner ends a batch item's reservation as soon as its run returns.
type releasingRunner struct {
	s *Service
}

func (r releasingRunner) Run(ctx context.Context, ps *state.PipelineState) (*state.PipelineState, error) {
	defer r.s.release(ps.TaskID())
	return r.s.executor.Run(ctx, ps)
}

// Get returns the record of a task. A running task is reported with status
// Executing and its input only.
func (s *Service) Get(ctx context.Context, taskID string) (store.Record, error) {
	s.mu.RLock()
	r, ok := s.inflight[taskID]
	s.mu.RUnlock()
	if ok {
		return runningRecord(taskID, r), nil
	}
	return s.store.Load(ctx, taskID)
}

// List returns up to limit records, newest first, running tasks included.
// limit <= 0 returns everything.
func (s *Service) List(ctx context.Context, limit int) ([]store.Record, error) {
	s.mu.RLock()
	out := make([]store.Record, 0, len(s.inflight))
	for id, r := range s.inflight {
		out = append(out, runningRecord(id, r))
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b store.Record) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	stored, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	for _, rec := range stored {
		if !slices.ContainsFunc(out, func(r store.Record) bool { return r.TaskID == rec.TaskID }) {
			out = append(out, rec)
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func runningRecord(taskID string, r running) store.Record {
	return store.Record{
		Snapshot: state.Snapshot{
			TaskID:   taskID,
			Status:   state.StatusExecuting,
			Input:    maps.Clone(r.input),
			Outputs:  map[string]state.PartialOutput{},
			Warnings: []state.Warning{},
		},
		CreatedAt: r.started,
		UpdatedAt: r.started,
	}
}

// Close stops accepting work and waits for every running task. When ctx ends
// first, remaining runs are cancelled and end Aborted. Notifiers and the
// store are closed last.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	pending := len(s.inflight)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.cancel()
		<-done
	}
	s.cancel()

	s.observer.OnEvent(ctx, observability.NewEvent(EventClose, observability.LevelInfo, source, map[string]any{
		"pending": pending,
	}))

	return errors.Join(s.notifier.Close(), s.store.Close())
}
