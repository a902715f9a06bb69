package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"jentic/internal/domain"
)

// Options configures a Broker. Zero durations and capacities fall back to the
// package defaults; negative values disable the corresponding limit.
type Options struct {
	Transport      domain.Transport
	Policy         domain.LoadPolicy
	CacheTTL       time.Duration
	CacheCapacity  int
	SearchTimeout  time.Duration
	LoadTimeout    time.Duration
	ExecuteTimeout time.Duration
	Metrics        domain.Metrics
	Logger         *zap.Logger
	Now            func() time.Time
}

// LoadListener observes metadata fetched from the platform.
type LoadListener func(loaded []domain.ExecutionMetadata)

// Broker sequences Search, Load and Execute against a transport and owns the
// execution metadata cache.
type Broker struct {
	transport domain.Transport
	cache     *domain.MetadataCache
	policy    domain.LoadPolicy
	metrics   domain.Metrics
	logger    *zap.Logger
	now       func() time.Time

	searchTimeout  time.Duration
	loadTimeout    time.Duration
	executeTimeout time.Duration

	mu       sync.Mutex
	inflight map[domain.OperationID]*loadCall

	listenersMu sync.RWMutex
	listeners   []LoadListener
}

// New constructs a broker.
func New(opts Options) (*Broker, error) {
	if opts.Transport == nil {
		return nil, errors.New("broker: transport is required")
	}
	policy := opts.Policy
	if policy == "" {
		policy = domain.DefaultLoadPolicy
	}
	if policy != domain.LoadPolicyImplicit && policy != domain.LoadPolicyExplicit {
		return nil, fmt.Errorf("broker: unknown load policy %q", policy)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	b := &Broker{
		transport:      opts.Transport,
		policy:         policy,
		metrics:        metrics,
		logger:         logger.Named("broker"),
		now:            now,
		searchTimeout:  orDefault(opts.SearchTimeout, domain.DefaultSearchTimeout),
		loadTimeout:    orDefault(opts.LoadTimeout, domain.DefaultLoadTimeout),
		executeTimeout: orDefault(opts.ExecuteTimeout, domain.DefaultExecuteTimeout),
		inflight:       make(map[domain.OperationID]*loadCall),
	}
	b.cache = domain.NewMetadataCache(domain.MetadataCacheOptions{
		Capacity: orDefaultInt(opts.CacheCapacity, domain.DefaultCacheCapacity),
		TTL:      orDefault(opts.CacheTTL, domain.DefaultCacheTTL),
		Now:      now,
		OnEvict: func(id domain.OperationID, reason domain.EvictionReason) {
			metrics.ObserveEviction(reason)
			b.logger.Debug("metadata evicted", zap.String("id", id.String()), zap.String("reason", string(reason)))
		},
	})
	return b, nil
}

// Policy returns the configured load policy.
func (b *Broker) Policy() domain.LoadPolicy {
	return b.policy
}

// OnLoad registers a listener called after every successful remote fetch.
func (b *Broker) OnLoad(listener LoadListener) {
	if listener == nil {
		return
	}
	b.listenersMu.Lock()
	b.listeners = append(b.listeners, listener)
	b.listenersMu.Unlock()
}

// Search forwards a query to the platform. Results are never cached because
// the remote corpus and its ranking can change between calls.
func (b *Broker) Search(ctx context.Context, query domain.SearchQuery) (domain.SearchResult, error) {
	query = query.Normalized()
	if err := query.Validate(); err != nil {
		return domain.SearchResult{}, err
	}

	callCtx, cancel := withTimeout(ctx, b.searchTimeout)
	defer cancel()

	start := time.Now()
	result, err := b.transport.Search(callCtx, query)
	b.metrics.ObserveRemoteCall(domain.RemoteOpSearch, time.Since(start), err)
	if err != nil {
		return domain.SearchResult{}, remoteError("search", err)
	}
	if result.Query == "" {
		result.Query = query.Text
	}
	if result.TotalCount < len(result.Hits) {
		result.TotalCount = len(result.Hits)
	}
	b.logger.Debug("search completed", zap.String("query", query.Text), zap.Int("hits", len(result.Hits)))
	return result, nil
}

// ListAPIs returns the APIs the agent key has access to.
func (b *Broker) ListAPIs(ctx context.Context) ([]domain.APIIdentifier, error) {
	callCtx, cancel := withTimeout(ctx, b.searchTimeout)
	defer cancel()

	start := time.Now()
	apis, err := b.transport.ListAPIs(callCtx)
	b.metrics.ObserveRemoteCall(domain.RemoteOpListAPIs, time.Since(start), err)
	if err != nil {
		return nil, remoteError("list apis", err)
	}
	return apis, nil
}

// Load returns execution metadata for every identifier. Cached, unexpired
// entries are served locally. The rest are fetched in one batched remote
// call, except identifiers another caller is already fetching, which are
// awaited instead. Per-identifier failures are reported in the result; the
// returned error is reserved for invalid input and cancellation.
func (b *Broker) Load(ctx context.Context, ids []domain.OperationID) (domain.LoadResult, error) {
	unique, err := dedupeIDs(ids)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, cancellationError("load", err)
	}

	result := make(domain.LoadResult, len(unique))
	var (
		owned   []domain.OperationID
		waiting []domain.OperationID
		calls   = make(map[domain.OperationID]*loadCall)
		joined  int
	)

	b.mu.Lock()
	batch := &loadBatch{}
	for _, id := range unique {
		if meta, ok := b.cache.Get(id); ok {
			b.metrics.ObserveCacheLookup(true)
			result[id] = domain.LoadOutcome{Metadata: &meta, Cached: true}
			continue
		}
		b.metrics.ObserveCacheLookup(false)
		if call, ok := b.inflight[id]; ok && call.joinableLocked() {
			call.joinLocked()
			calls[id] = call
			waiting = append(waiting, id)
			joined++
			continue
		}
		call := newLoadCall(batch)
		call.joinLocked()
		b.inflight[id] = call
		calls[id] = call
		owned = append(owned, id)
		waiting = append(waiting, id)
	}
	if len(owned) > 0 {
		batch.ctx, batch.cancel = withTimeout(context.WithoutCancel(ctx), b.loadTimeout)
	}
	b.mu.Unlock()

	if joined > 0 {
		b.metrics.ObserveLoadCollapsed(joined)
	}
	if len(owned) > 0 {
		go b.fetch(batch, owned, calls)
	}

	for i, id := range waiting {
		call := calls[id]
		select {
		case <-call.done:
			result[id] = call.result()
		case <-ctx.Done():
			b.abandon(waiting[i:], calls)
			return nil, cancellationError("load", ctx.Err())
		}
	}
	return result, nil
}

// abandon drops the caller from every call it was still waiting on.
func (b *Broker) abandon(ids []domain.OperationID, calls map[domain.OperationID]*loadCall) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		call := calls[id]
		select {
		case <-call.done:
		default:
			call.leaveLocked()
		}
	}
}

func (b *Broker) fetch(batch *loadBatch, ids []domain.OperationID, calls map[domain.OperationID]*loadCall) {
	defer batch.cancel()

	start := time.Now()
	resp, err := b.transport.Load(batch.ctx, ids)
	b.metrics.ObserveRemoteCall(domain.RemoteOpLoad, time.Since(start), err)

	outcomes := make(map[domain.OperationID]domain.LoadOutcome, len(ids))
	var loaded []domain.ExecutionMetadata
	if err != nil {
		failure := remoteError("load", err)
		for _, id := range ids {
			outcomes[id] = domain.LoadOutcome{Err: failure}
		}
		b.logger.Warn("load failed", zap.Int("ids", len(ids)), zap.Error(err))
	} else {
		loadedAt := b.now()
		for _, id := range ids {
			meta, ok := resp.Metadata[id]
			if !ok {
				outcomes[id] = domain.LoadOutcome{Err: domain.E(domain.CodeNotFound, "load", fmt.Sprintf("identifier %s not found", id), nil)}
				continue
			}
			meta = meta.Clone()
			meta.ID = id
			meta.LoadedAt = loadedAt
			loaded = append(loaded, meta)
			stored := meta
			outcomes[id] = domain.LoadOutcome{Metadata: &stored}
		}
		b.cache.SetAll(loaded)
		b.metrics.SetCachedEntries(b.cache.Len())
		b.logger.Debug("load completed", zap.Int("requested", len(ids)), zap.Int("loaded", len(loaded)))
	}

	b.mu.Lock()
	for _, id := range ids {
		if b.inflight[id] == calls[id] {
			delete(b.inflight, id)
		}
	}
	b.mu.Unlock()

	for _, id := range ids {
		calls[id].finish(outcomes[id])
	}
	if len(loaded) > 0 {
		b.notifyLoaded(loaded)
	}
}

func (b *Broker) notifyLoaded(loaded []domain.ExecutionMetadata) {
	b.listenersMu.RLock()
	listeners := append([]LoadListener(nil), b.listeners...)
	b.listenersMu.RUnlock()
	for _, listener := range listeners {
		copied := make([]domain.ExecutionMetadata, len(loaded))
		for i, meta := range loaded {
			copied[i] = meta.Clone()
		}
		listener(copied)
	}
}

// Execute runs one operation or workflow. Inputs are validated against the
// cached input schema before anything is sent. Execute is never retried: a
// canceled context after dispatch discards the result locally but does not
// retract the remote action.
func (b *Broker) Execute(ctx context.Context, req domain.ExecutionRequest) domain.ExecutionResult {
	result := b.execute(ctx, req)
	b.metrics.ObserveExecution(req.ID.Kind, outcomeOf(result))
	return result
}

func (b *Broker) execute(ctx context.Context, req domain.ExecutionRequest) domain.ExecutionResult {
	if err := req.ID.Validate(); err != nil {
		return domain.FailedFrom(err, domain.CodeInvalidArgument)
	}

	meta, ok := b.cache.Get(req.ID)
	b.metrics.ObserveCacheLookup(ok)
	if !ok {
		if b.policy == domain.LoadPolicyExplicit {
			return domain.Failed(domain.CodeNotLoaded, fmt.Sprintf("execution metadata for %s is not loaded; call load first", req.ID))
		}
		loaded, err := b.Load(ctx, []domain.OperationID{req.ID})
		if err != nil {
			return domain.FailedFrom(err, domain.CodeUnavailable)
		}
		outcome := loaded[req.ID]
		if outcome.Err != nil {
			return domain.FailedFrom(outcome.Err, domain.CodeUnavailable)
		}
		meta = *outcome.Metadata
	}

	inputs := req.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}
	if violations := domain.ValidateInputs(meta.InputSchema, inputs); len(violations) > 0 {
		return domain.FailedFrom(domain.ViolationsError("execute", violations), domain.CodeInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return domain.FailedFrom(cancellationError("execute", err), domain.CodeCanceled)
	}

	callCtx, cancel := withTimeout(ctx, b.executeTimeout)
	defer cancel()

	dispatch := domain.ExecutionRequest{ID: req.ID, Inputs: domain.CloneJSONValue(inputs).(map[string]any)}
	start := time.Now()
	result, err := b.transport.Execute(callCtx, dispatch)
	b.metrics.ObserveRemoteCall(domain.RemoteOpExecute, time.Since(start), err)
	if err != nil {
		b.logger.Warn("execute dispatch failed", zap.String("id", req.ID.String()), zap.Error(err))
		return domain.FailedFrom(remoteError("execute", err), domain.CodeUnavailable)
	}
	if err := ctx.Err(); err != nil {
		b.logger.Warn("execute result discarded after cancellation", zap.String("id", req.ID.String()), zap.Error(err))
		return domain.FailedFrom(cancellationError("execute", err), domain.CodeCanceled)
	}
	return normalizeResult(result)
}

// Forget drops cached metadata so the next Load fetches it again.
func (b *Broker) Forget(ids ...domain.OperationID) {
	b.cache.Delete(ids...)
	b.metrics.SetCachedEntries(b.cache.Len())
}

// Cached returns the cached metadata for an identifier without loading it.
func (b *Broker) Cached(id domain.OperationID) (domain.ExecutionMetadata, bool) {
	return b.cache.Get(id)
}

// Snapshot returns every unexpired cached entry sorted by identifier.
func (b *Broker) Snapshot() []domain.ExecutionMetadata {
	return b.cache.Snapshot()
}

// Stats reports cache occupancy.
func (b *Broker) Stats() domain.MetadataCacheStats {
	return b.cache.Stats()
}

// Import seeds the cache with previously loaded metadata, keeping each
// entry's original load time. Entries that are already expired or carry an
// invalid identifier are skipped. It returns the number of entries stored.
func (b *Broker) Import(metas []domain.ExecutionMetadata) int {
	accepted := make([]domain.ExecutionMetadata, 0, len(metas))
	for _, meta := range metas {
		if err := meta.ID.Validate(); err != nil {
			b.logger.Warn("skipping persisted metadata", zap.String("id", meta.ID.String()), zap.Error(err))
			continue
		}
		if meta.LoadedAt.IsZero() || b.cache.Expired(meta.LoadedAt) {
			continue
		}
		accepted = append(accepted, meta)
	}
	b.cache.SetAll(accepted)
	b.metrics.SetCachedEntries(b.cache.Len())
	return len(accepted)
}

func normalizeResult(result domain.ExecutionResult) domain.ExecutionResult {
	if result.Success {
		result.Error = nil
		return result
	}
	if result.Error == nil {
		return domain.Failed(domain.CodeExecutionFailed, "execution failed without an error message")
	}
	if result.Error.Code == "" {
		result.Error.Code = domain.CodeExecutionFailed
	}
	result.Output = nil
	return result
}

func outcomeOf(result domain.ExecutionResult) domain.ExecutionOutcome {
	if result.Success {
		return domain.ExecutionOutcomeSuccess
	}
	code := domain.CodeExecutionFailed
	if result.Error != nil {
		code = result.Error.Code
	}
	switch {
	case code == domain.CodeInvalidArgument || code == domain.CodeNotLoaded || code == domain.CodeNotFound:
		return domain.ExecutionOutcomeRejected
	case domain.IsTransportCode(code):
		return domain.ExecutionOutcomeTransport
	default:
		return domain.ExecutionOutcomeRemoteFail
	}
}

func dedupeIDs(ids []domain.OperationID) ([]domain.OperationID, error) {
	if len(ids) == 0 {
		return nil, domain.E(domain.CodeInvalidArgument, "load", "at least one identifier is required", nil)
	}
	seen := make(map[domain.OperationID]struct{}, len(ids))
	out := make([]domain.OperationID, 0, len(ids))
	for _, id := range ids {
		if err := id.Validate(); err != nil {
			return nil, domain.Wrap(domain.CodeInvalidArgument, "load", err)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// remoteError classifies a transport failure. Errors already carrying a
// domain code keep it; everything else becomes a transport error.
func remoteError(op string, err error) error {
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		return domain.Wrap(domainErr.Code, op, err)
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.E(domain.CodeDeadlineExceeded, op, "platform call timed out", err)
	case errors.Is(err, context.Canceled):
		return domain.E(domain.CodeCanceled, op, "platform call canceled", err)
	default:
		return domain.E(domain.CodeUnavailable, op, "", err)
	}
}

func cancellationError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.E(domain.CodeDeadlineExceeded, op, "deadline exceeded", err)
	}
	return domain.E(domain.CodeCanceled, op, "canceled", err)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func orDefault(value, fallback time.Duration) time.Duration {
	if value == 0 {
		return fallback
	}
	return value
}

func orDefaultInt(value, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}
