// Package transport implements the authenticated JSON HTTP client (C3):
// bearer auth with refresh-on-401, bounded retry for transient status
// codes, and Link-header cursor pagination.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kouak/tracecli/internal/model"
)

const (
	requestTimeout  = 30 * time.Second
	maxRetries      = 2
	retryMaxBackoff = 10 * time.Second
	retryHeaderName = "x-sentry-cli-retry"
)

var orgScopedPath = regexp.MustCompile(`^/(?:organizations|projects)/([^/]+)/`)

// retryableMethods are the methods C3's bounded retry applies to. POST is
// deliberately excluded: retrying a POST risks double-submitting a
// non-idempotent request.
var retryableMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodPatch:  true,
}

var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:     true,
	http.StatusTooManyRequests:    true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// TokenSource supplies and refreshes the bearer token.
type TokenSource interface {
	// AccessToken returns the current access token, refreshing it first
	// if it is near expiry and a refresh token is available.
	AccessToken(ctx context.Context) (string, error)
	// ForceRefresh refreshes the access token unconditionally. It
	// returns an error if no refresh token is available (manual token).
	ForceRefresh(ctx context.Context) (string, error)
}

// Resolver routes an org-scoped request to its region root URL (C2).
type Resolver interface {
	ResolveOrgRegion(ctx context.Context, org string) (string, error)
}

// Client is the authenticated JSON HTTP client.
type Client struct {
	httpClient      *http.Client
	tokens          TokenSource
	resolver        Resolver
	controlPlaneURL string
}

// New constructs a Client. controlPlaneURL is used for endpoints that are
// not org-scoped (e.g. /users/me/regions/, /oauth/token/).
func New(tokens TokenSource, resolver Resolver, controlPlaneURL string) *Client {
	return &Client{
		httpClient:      &http.Client{Timeout: requestTimeout},
		tokens:          tokens,
		resolver:        resolver,
		controlPlaneURL: strings.TrimSuffix(controlPlaneURL, "/"),
	}
}

// Response is a decoded JSON API response plus pagination state.
type Response struct {
	StatusCode int
	Body       []byte
	NextCursor string // empty when exhausted
}

var tracer = otel.Tracer("github.com/kouak/tracecli/transport")

var transportMetrics struct {
	requests metric.Int64Counter
	retries  metric.Int64Counter
}

func init() {
	m := otel.Meter("github.com/kouak/tracecli/transport")
	transportMetrics.requests, _ = m.Int64Counter("tracecli.transport.requests",
		metric.WithDescription("outbound API requests"), metric.WithUnit("{request}"))
	transportMetrics.retries, _ = m.Int64Counter("tracecli.transport.retries",
		metric.WithDescription("outbound API requests retried"), metric.WithUnit("{retry}"))
}

// Do issues a JSON request against path (e.g. "/organizations/acme/issues/"),
// routing through C2 when path names an org, with query encoded per the
// scalar/array rule (a []string value repeats the key). body, if non-nil,
// is marshaled as the JSON request body.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body interface{}) (*Response, error) {
	ctx, span := tracer.Start(ctx, "transport.do",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
		),
	)
	defer span.End()

	base, err := c.baseURL(ctx, path)
	if err != nil {
		endSpan(span, err)
		return nil, err
	}

	var bodyBytes []byte
	if body != nil {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			endSpan(span, err)
			return nil, err
		}
	}

	resp, err := c.doWithAuthRetry(ctx, method, base+path, query, bodyBytes)
	endSpan(span, err)
	return resp, err
}

func (c *Client) baseURL(ctx context.Context, path string) (string, error) {
	m := orgScopedPath.FindStringSubmatch(path)
	if m == nil {
		return c.controlPlaneURL, nil
	}
	return c.resolver.ResolveOrgRegion(ctx, m[1])
}

// doWithAuthRetry performs one request, and if it comes back 401 and was
// not already a forced-refresh retry, refreshes the token and retries
// exactly once.
func (c *Client) doWithAuthRetry(ctx context.Context, method, fullURL string, query url.Values, body []byte) (*Response, error) {
	resp, err := c.doWithBackoff(ctx, method, fullURL, query, body, false)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	if _, err := c.tokens.ForceRefresh(ctx); err != nil {
		return nil, &model.AuthError{Reason: "refresh failed: " + err.Error()}
	}
	return c.doWithBackoff(ctx, method, fullURL, query, body, true)
}

// doWithBackoff performs the request, retrying transient status codes on
// retryable methods with bounded exponential backoff. The retryable-status
// check must run before doOnce's error is considered permanent: doOnce
// returns a non-nil *model.ApiError for every non-2xx/non-401 status, so
// checking err first would make every retryable status (408/429/500/502/
// 503/504) terminate on the first attempt.
func (c *Client) doWithBackoff(ctx context.Context, method, fullURL string, query url.Values, body []byte, isAuthRetry bool) (*Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = retryMaxBackoff
	bo.MaxElapsedTime = 0 // bounded by maxRetries below, not elapsed time

	var resp *Response
	var lastErr error
	attempts := 0
	// backoff.Retry's own return value is not used: once retries are
	// exhausted on a retryable status it surfaces the sentinel error below,
	// not the ApiError from the final attempt. lastErr, set on every
	// attempt, always holds that final attempt's real error.
	_ = backoff.Retry(func() error {
		attempts++
		resp, lastErr = c.doOnce(ctx, method, fullURL, query, body, isAuthRetry)
		if resp != nil && attempts <= maxRetries && retryableMethods[method] && retryableStatus[resp.StatusCode] {
			return fmt.Errorf("retryable status %d", resp.StatusCode)
		}
		if lastErr != nil {
			return backoff.Permanent(lastErr)
		}
		return nil
	}, backoff.WithMaxRetries(bo, maxRetries))

	if attempts > 1 {
		transportMetrics.retries.Add(ctx, int64(attempts-1))
	}
	return resp, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, fullURL string, query url.Values, body []byte, isAuthRetry bool) (*Response, error) {
	transportMetrics.requests.Add(ctx, 1)

	u, err := url.Parse(fullURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", fullURL, err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, &model.AuthError{Reason: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if isAuthRetry {
		req.Header.Set(retryHeaderName, "1")
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &model.NetworkError{Endpoint: fullURL, Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &model.NetworkError{Endpoint: fullURL, Err: err}
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Body:       respBody,
		NextCursor: parseNextCursor(httpResp.Header.Get("Link")),
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return resp, nil // caller decides whether to refresh-and-retry
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, &model.ApiError{Status: resp.StatusCode, Detail: extractDetail(respBody), Endpoint: fullURL}
	}
	return resp, nil
}

func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		return parsed.Detail
	}
	return ""
}

// parseNextCursor extracts the cursor from a rel="next" Link header entry
// whose results parameter is "true". Absence of a next link, or
// results="false", means the listing is exhausted.
func parseNextCursor(linkHeader string) string {
	if linkHeader == "" {
		return ""
	}
	for _, part := range strings.Split(linkHeader, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		if !strings.Contains(part, `results="true"`) {
			return ""
		}
		if cursor := linkParam(part, "cursor"); cursor != "" {
			return cursor
		}
	}
	return ""
}

func linkParam(linkEntry, name string) string {
	needle := name + `="`
	idx := strings.Index(linkEntry, needle)
	if idx < 0 {
		return ""
	}
	rest := linkEntry[idx+len(needle):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return ""
	}
	return rest[:end]
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
