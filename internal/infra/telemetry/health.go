package telemetry

import (
	"sort"
	"sync"
	"time"
)

const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
)

// HealthCheck reports the last heartbeat of one background loop.
type HealthCheck struct {
	Name     string    `json:"name"`
	Status   string    `json:"status"`
	LastBeat time.Time `json:"lastBeat,omitempty"`
	TTL      string    `json:"ttl"`
}

type HealthReport struct {
	Status string        `json:"status"`
	Checks []HealthCheck `json:"checks,omitempty"`
}

// HealthTracker aggregates heartbeats from long-running loops such as the
// artifact watcher and the serving transports.
type HealthTracker struct {
	mu     sync.Mutex
	checks map[string]*heartbeat
	now    func() time.Time
}

type heartbeat struct {
	tracker *HealthTracker
	ttl     time.Duration
	last    time.Time
}

// Beat is handed to a loop so it can report liveness.
type Beat interface {
	Beat()
}

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{
		checks: make(map[string]*heartbeat),
		now:    time.Now,
	}
}

// Register adds a named check that turns unhealthy when no beat arrives
// within ttl. A ttl of zero never expires once the first beat arrived.
func (t *HealthTracker) Register(name string, ttl time.Duration) Beat {
	t.mu.Lock()
	defer t.mu.Unlock()

	hb, ok := t.checks[name]
	if !ok {
		hb = &heartbeat{tracker: t}
		t.checks[name] = hb
	}
	hb.ttl = ttl
	return hb
}

func (t *HealthTracker) Unregister(name string) {
	t.mu.Lock()
	delete(t.checks, name)
	t.mu.Unlock()
}

func (h *heartbeat) Beat() {
	h.tracker.mu.Lock()
	h.last = h.tracker.now()
	h.tracker.mu.Unlock()
}

func (t *HealthTracker) Report() HealthReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	report := HealthReport{Status: HealthStatusOK}
	names := make([]string, 0, len(t.checks))
	for name := range t.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		hb := t.checks[name]
		check := HealthCheck{Name: name, Status: HealthStatusOK, LastBeat: hb.last, TTL: hb.ttl.String()}
		switch {
		case hb.last.IsZero():
			check.Status = HealthStatusDegraded
		case hb.ttl > 0 && now.Sub(hb.last) > hb.ttl:
			check.Status = HealthStatusDegraded
		}
		if check.Status != HealthStatusOK {
			report.Status = HealthStatusDegraded
		}
		report.Checks = append(report.Checks, check)
	}
	return report
}
