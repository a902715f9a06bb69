package domain

import "time"

// RemoteOp labels a call that crosses the transport boundary.
type RemoteOp string

const (
	RemoteOpSearch   RemoteOp = "search"
	RemoteOpLoad     RemoteOp = "load"
	RemoteOpExecute  RemoteOp = "execute"
	RemoteOpListAPIs RemoteOp = "list_apis"
)

// EvictionReason describes why a cache entry left the cache.
type EvictionReason string

const (
	// EvictionCapacity indicates the least-recently-loaded entry was dropped.
	EvictionCapacity EvictionReason = "capacity"
	// EvictionExpired indicates the entry outlived its TTL.
	EvictionExpired EvictionReason = "expired"
	// EvictionForgotten indicates an explicit removal.
	EvictionForgotten EvictionReason = "forgotten"
)

// ExecutionOutcome labels how a broker execute ended.
type ExecutionOutcome string

const (
	ExecutionOutcomeSuccess    ExecutionOutcome = "success"
	ExecutionOutcomeRejected   ExecutionOutcome = "rejected"
	ExecutionOutcomeRemoteFail ExecutionOutcome = "remote_error"
	ExecutionOutcomeTransport  ExecutionOutcome = "transport_error"
)

// Metrics records broker activity.
type Metrics interface {
	ObserveRemoteCall(op RemoteOp, duration time.Duration, err error)
	ObserveCacheLookup(hit bool)
	ObserveLoadCollapsed(count int)
	ObserveEviction(reason EvictionReason)
	ObserveExecution(kind IDKind, outcome ExecutionOutcome)
	SetCachedEntries(count int)
	ObserveToolCall(surface string, tool string, duration time.Duration, success bool)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) ObserveRemoteCall(RemoteOp, time.Duration, error)    {}
func (NoopMetrics) ObserveCacheLookup(bool)                             {}
func (NoopMetrics) ObserveLoadCollapsed(int)                            {}
func (NoopMetrics) ObserveEviction(EvictionReason)                      {}
func (NoopMetrics) ObserveExecution(IDKind, ExecutionOutcome)           {}
func (NoopMetrics) SetCachedEntries(int)                                {}
func (NoopMetrics) ObserveToolCall(string, string, time.Duration, bool) {}

var _ Metrics = NoopMetrics{}
