package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"jentic/internal/domain"
)

const shutdownTimeout = 5 * time.Second

// HTTPServerOptions selects what the observability listener exposes.
// /cachez is served alongside /healthz when CacheStats is set.
type HTTPServerOptions struct {
	Addr          string
	EnableMetrics bool
	EnableHealthz bool
	Health        *HealthTracker
	Registry      prometheus.Gatherer
	CacheStats    func() domain.MetadataCacheStats
}

type cacheReport struct {
	Entries    int    `json:"entries"`
	Operations int    `json:"operations"`
	Workflows  int    `json:"workflows"`
	Capacity   int    `json:"capacity"`
	TTL        string `json:"ttl"`
}

// NewObservabilityHandler returns the mux served by StartHTTPServer.
func NewObservabilityHandler(opts HTTPServerOptions) http.Handler {
	mux := http.NewServeMux()
	if opts.EnableMetrics {
		gatherer := opts.Registry
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	if opts.EnableHealthz {
		mux.Handle("/healthz", healthHandler(opts.Health))
		if opts.CacheStats != nil {
			mux.Handle("/cachez", cacheHandler(opts.CacheStats))
		}
	}
	return mux
}

// StartHTTPServer serves the observability endpoints until ctx is done. It
// returns nil right away when metrics and health are both disabled.
func StartHTTPServer(ctx context.Context, opts HTTPServerOptions, logger *zap.Logger) error {
	if !opts.EnableMetrics && !opts.EnableHealthz {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("observability")

	addr := opts.Addr
	if addr == "" {
		addr = domain.DefaultObservabilityAddr
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           NewObservabilityHandler(opts),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("observability server listening",
			zap.String("addr", addr),
			zap.Bool("metrics", opts.EnableMetrics),
			zap.Bool("healthz", opts.EnableHealthz),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("observability server on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("observability server shutdown error", zap.Error(err))
		return err
	}
	logger.Info("observability server stopped")
	return nil
}

func healthHandler(tracker *HealthTracker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		report := HealthReport{Status: HealthStatusOK}
		if tracker != nil {
			report = tracker.Report()
		}
		status := http.StatusOK
		if report.Status != HealthStatusOK {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	})
}

func cacheHandler(stats func() domain.MetadataCacheStats) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s := stats()
		writeJSON(w, http.StatusOK, cacheReport{
			Entries:    s.Entries,
			Operations: s.Operations,
			Workflows:  s.Workflows,
			Capacity:   s.Capacity,
			TTL:        s.TTL.String(),
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
