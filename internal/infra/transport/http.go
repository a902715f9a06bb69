package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"jentic/internal/domain"
	"jentic/internal/infra/telemetry"
)

const (
	pathListAPIs = "agents/apis"
	pathSearch   = "agents/search"
	pathLoad     = "agents/load"
	pathExecute  = "agents/execute"

	maxErrorBody = 4 << 10
)

type HTTPOptions struct {
	BaseURL        string
	APIKey         string
	UserAgent      string
	ConnectTimeout time.Duration
	MaxConnections int
	// HTTPClient replaces the client built from the options; its transport
	// still gets the platform headers.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// HTTPTransport talks to the platform's agent API.
type HTTPTransport struct {
	base   *url.URL
	client *http.Client
	slots  *semaphore.Weighted
	logger *zap.Logger
}

func NewHTTPTransport(opts HTTPOptions) (*HTTPTransport, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, domain.E(domain.CodeUnauthenticated, "new http transport", "", domain.ErrMissingAPIKey)
	}
	rawBase := strings.TrimSpace(opts.BaseURL)
	if rawBase == "" {
		rawBase = domain.Endpoints[domain.DefaultEnvironment]
	}
	if !strings.HasSuffix(rawBase, "/") {
		rawBase += "/"
	}
	base, err := url.Parse(rawBase)
	if err != nil {
		return nil, domain.E(domain.CodeInvalidArgument, "new http transport", fmt.Sprintf("invalid base url %q", opts.BaseURL), err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, domain.E(domain.CodeInvalidArgument, "new http transport", fmt.Sprintf("base url %q must be http or https", opts.BaseURL), nil)
	}

	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = domain.DefaultUserAgent
	}
	maxConns := opts.MaxConnections
	if maxConns <= 0 {
		maxConns = domain.DefaultMaxConnections
	}

	headers := http.Header{}
	headers.Set(domain.APIKeyHeader, opts.APIKey)
	headers.Set("User-Agent", userAgent)
	headers.Set("Accept", "application/json")

	client := opts.HTTPClient
	if client == nil {
		connectTimeout := opts.ConnectTimeout
		if connectTimeout <= 0 {
			connectTimeout = domain.DefaultConnectTimeout
		}
		client = &http.Client{Transport: newPooledTransport(connectTimeout, maxConns)}
	}
	inner := client.Transport
	if inner == nil {
		inner = http.DefaultTransport
	}
	wrapped := *client
	wrapped.Transport = &headerRoundTripper{base: inner, headers: headers}

	return &HTTPTransport{
		base:   base,
		client: &wrapped,
		slots:  semaphore.NewWeighted(int64(maxConns)),
		logger: logger.Named("http_transport"),
	}, nil
}

func newPooledTransport(connectTimeout time.Duration, maxConns int) *http.Transport {
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: connectTimeout,
		MaxConnsPerHost:     maxConns,
		MaxIdleConnsPerHost: maxConns,
		IdleConnTimeout:     90 * time.Second,
	}
}

func (t *HTTPTransport) ListAPIs(ctx context.Context) ([]domain.APIIdentifier, error) {
	var apis []domain.APIIdentifier
	if err := t.do(ctx, domain.RemoteOpListAPIs, http.MethodGet, pathListAPIs, nil, &apis); err != nil {
		return nil, err
	}
	return apis, nil
}

func (t *HTTPTransport) Search(ctx context.Context, query domain.SearchQuery) (domain.SearchResult, error) {
	req := searchRequest{
		Query:               query.Text,
		Limit:               query.Limit,
		APIs:                query.APIs,
		Keywords:            query.Keywords,
		FilterByCredentials: query.FilterByCredentials,
	}
	var resp searchResponse
	if err := t.do(ctx, domain.RemoteOpSearch, http.MethodPost, pathSearch, req, &resp); err != nil {
		return domain.SearchResult{}, err
	}
	hits, err := resp.hits()
	if err != nil {
		return domain.SearchResult{}, domain.E(domain.CodeUnavailable, "search", "platform returned a malformed search result", err)
	}
	return domain.SearchResult{Query: query.Text, Hits: hits, TotalCount: len(hits)}, nil
}

func (t *HTTPTransport) Load(ctx context.Context, ids []domain.OperationID) (domain.LoadResponse, error) {
	operations, workflows := domain.SplitIDs(ids)
	req := loadRequest{OperationUUIDs: operations, WorkflowUUIDs: workflows}
	var resp loadResponse
	if err := t.do(ctx, domain.RemoteOpLoad, http.MethodPost, pathLoad, req, &resp); err != nil {
		return domain.LoadResponse{}, err
	}
	return resp.toDomain(t.logger), nil
}

// Execute dispatches once. A failed execution reported by the platform is a
// result, not an error; errors are reserved for transport failures.
func (t *HTTPTransport) Execute(ctx context.Context, req domain.ExecutionRequest) (domain.ExecutionResult, error) {
	body := executeRequest{
		ExecutionType: string(req.ID.Kind),
		UUID:          req.ID.UUID,
		Inputs:        req.Inputs,
	}
	if body.Inputs == nil {
		body.Inputs = map[string]any{}
	}
	var resp executeResponse
	if err := t.do(ctx, domain.RemoteOpExecute, http.MethodPost, pathExecute, body, &resp); err != nil {
		return domain.ExecutionResult{}, err
	}
	return resp.toDomain(), nil
}

func (t *HTTPTransport) do(ctx context.Context, op domain.RemoteOp, method string, path string, in any, out any) error {
	ctx, meta := telemetry.EnsureRequestMeta(ctx, "")
	logger := t.logger.With(telemetry.RemoteOpField(string(op))).With(telemetry.RequestFields(meta)...)

	if err := t.slots.Acquire(ctx, 1); err != nil {
		return contextError(string(op), err)
	}
	defer t.slots.Release(1)

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return domain.E(domain.CodeInvalidArgument, string(op), "encode request", err)
		}
		body = bytes.NewReader(raw)
	}

	endpoint := t.base.ResolveReference(&url.URL{Path: path})
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return domain.E(domain.CodeInternal, string(op), "create request", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	telemetry.InjectHeaders(meta, httpReq.Header)

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		logger.Warn("platform request failed",
			telemetry.EventField(telemetry.EventRemoteFailure),
			telemetry.DurationField(time.Since(start)),
			zap.Error(err),
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return contextError(string(op), ctxErr)
		}
		return domain.E(domain.CodeUnavailable, string(op), "platform request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logger.Warn("platform returned error status",
			telemetry.EventField(telemetry.EventRemoteFailure),
			telemetry.StatusField(resp.StatusCode),
			telemetry.DurationField(time.Since(start)),
		)
		return statusError(string(op), resp.StatusCode, raw)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return contextError(string(op), ctxErr)
			}
			return domain.E(domain.CodeUnavailable, string(op), "decode platform response", err)
		}
	}
	logger.Debug("platform request completed",
		telemetry.EventField(telemetry.EventRemoteCall),
		telemetry.StatusField(resp.StatusCode),
		telemetry.DurationField(time.Since(start)),
	)
	return nil
}

func statusError(op string, status int, body []byte) error {
	msg := fmt.Sprintf("platform returned HTTP %d", status)
	if detail := errorDetail(body); detail != "" {
		msg += ": " + detail
	}

	var code domain.ErrorCode
	switch {
	case status == http.StatusUnauthorized:
		code = domain.CodeUnauthenticated
	case status == http.StatusForbidden:
		code = domain.CodePermissionDenied
	case status == http.StatusNotFound:
		code = domain.CodeNotFound
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		code = domain.CodeDeadlineExceeded
	case status == http.StatusTooManyRequests || status >= 500:
		code = domain.CodeUnavailable
	default:
		code = domain.CodeRejected
	}
	err := domain.E(code, op, msg, nil)
	err.Meta = map[string]string{"status": fmt.Sprint(status)}
	return err
}

func errorDetail(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	var payload struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &payload); err == nil {
		switch {
		case payload.Message != "":
			return payload.Message
		case payload.Error != "":
			return payload.Error
		case payload.Detail != nil:
			if s, ok := payload.Detail.(string); ok {
				return s
			}
			raw, _ := json.Marshal(payload.Detail)
			return string(raw)
		}
	}
	return string(trimmed)
}

func contextError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.E(domain.CodeDeadlineExceeded, op, "platform call timed out", err)
	}
	return domain.E(domain.CodeCanceled, op, "platform call canceled", err)
}

type headerRoundTripper struct {
	base    http.RoundTripper
	headers http.Header
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for key, values := range h.headers {
		req.Header.Del(key)
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	return h.base.RoundTrip(req)
}

var _ domain.Transport = (*HTTPTransport)(nil)
