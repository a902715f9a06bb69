package restapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"jentic/internal/agenttools"
	"jentic/internal/domain"
	"jentic/internal/infra/telemetry"
)

const DefaultBaseURL = "http://localhost:8000"

type Options struct {
	Tools   *agenttools.Service
	BaseURL string
	Version string
	Logger  *zap.Logger
}

type handler struct {
	tools   *agenttools.Service
	baseURL string
	version string
	logger  *zap.Logger
}

// NewHandler builds the REST surface: POST /api/<tool>, the OpenAPI
// document and the plugin manifest.
func NewHandler(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	h := &handler{
		tools:   opts.Tools,
		baseURL: baseURL,
		version: version,
		logger:  logger.Named("rest"),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), h.requestContext())
	engine.GET("/openapi.json", h.openAPI)
	engine.GET("/.well-known/ai-plugin.json", h.manifest)
	api := engine.Group("/api")
	{
		api.POST("/:tool", h.callTool)
	}
	return engine
}

func (h *handler) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx, meta := telemetry.FromHTTPRequest(c.Request)
		c.Request = c.Request.WithContext(ctx)
		c.Header(telemetry.RequestIDHeader, meta.RequestID)
		c.Next()
		telemetry.LoggerWithRequest(ctx, h.logger).Debug("request served",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			telemetry.StatusField(c.Writer.Status()),
			telemetry.DurationField(time.Since(start)),
		)
	}
}

func (h *handler) openAPI(c *gin.Context) {
	c.JSON(http.StatusOK, OpenAPIDocument(h.baseURL, h.version))
}

func (h *handler) manifest(c *gin.Context) {
	c.JSON(http.StatusOK, PluginManifest(h.baseURL, h.version))
}

func (h *handler) callTool(c *gin.Context) {
	name := c.Param("tool")
	args := map[string]any{}
	if err := c.ShouldBindJSON(&args); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if args == nil {
		args = map[string]any{}
	}

	env, err := h.tools.Call(c.Request.Context(), name, args)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, env)
}

func statusFor(err error) int {
	code, ok := domain.CodeFrom(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch code {
	case domain.CodeInvalidArgument:
		return http.StatusBadRequest
	case domain.CodeUnknownTool, domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeUnauthenticated:
		return http.StatusUnauthorized
	case domain.CodePermissionDenied:
		return http.StatusForbidden
	case domain.CodeDeadlineExceeded:
		return http.StatusGatewayTimeout
	case domain.CodeUnavailable, domain.CodeRejected, domain.CodeCanceled:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Serve runs the REST surface on addr until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("rest server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("rest server shutdown failed", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		return err
	}
}
