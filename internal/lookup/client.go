package lookup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gopkg.in/cenkalti/backoff.v1"

	"github.com/digkill/TGLookupBot/internal/catalog"
	"github.com/digkill/TGLookupBot/internal/config"
)

const maxBodyBytes = 1 << 20

// Client performs lookups against the external endpoints in the catalog.
type Client struct {
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	log        *slog.Logger
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.LookupTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: cfg.LookupMaxRetries,
		retryDelay: cfg.LookupRetryDelay,
		log:        log,
	}
}

// Lookup queries svc with input. GET services get the escaped input appended
// to their URL; POST services receive it as a JSON body. Failed attempts are
// retried up to the configured limit.
func (c *Client) Lookup(ctx context.Context, svc catalog.Service, input string) (map[string]any, error) {
	var result map[string]any
	attempt := 0
	policy := &retryPolicy{ctx: ctx, delay: c.retryDelay, remaining: c.maxRetries}
	op := func() error {
		attempt++
		res, err := c.do(ctx, svc, input)
		if err != nil {
			if c.log != nil {
				c.log.Warn("lookup attempt failed", "service", svc.Key, "attempt", attempt, "err", err)
			}
			var statusErr *StatusError
			if errors.As(err, &statusErr) && !statusErr.Retryable() {
				policy.stopped = true
			}
			return err
		}
		result = res
		return nil
	}
	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("lookup %s after %d attempts: %w", svc.Key, attempt, err)
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, svc catalog.Service, input string) (map[string]any, error) {
	req, err := c.newRequest(ctx, svc, input)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", svc.Key, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncateBody(rawBody)}
	}
	return decodeBody(rawBody), nil
}

func (c *Client) newRequest(ctx context.Context, svc catalog.Service, input string) (*http.Request, error) {
	if strings.EqualFold(svc.Method, http.MethodPost) {
		field := svc.InputField
		if field == "" {
			field = "query"
		}
		body, err := json.Marshal(map[string]string{field: input})
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.APIURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.APIURL+url.QueryEscape(input), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	return req, nil
}

// decodeBody always yields an object: JSON objects as-is, other JSON under
// "result" and non-JSON text under "raw".
func decodeBody(raw []byte) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil && obj != nil {
		return obj
	}
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		return map[string]any{"result": v}
	}
	return map[string]any{"raw": truncateBody(raw)}
}

func truncateBody(b []byte) string {
	const limit = 512
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}

// StatusError is a non-2xx answer from a lookup endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lookup error: status=%d body=%s", e.Code, e.Body)
}

// Retryable is false for client errors other than timeouts and throttling.
func (e *StatusError) Retryable() bool {
	if e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests {
		return true
	}
	return e.Code < 400 || e.Code >= 500
}

// retryPolicy waits a constant delay between attempts and stops after the
// configured number of retries, when ctx ends or after a permanent failure.
type retryPolicy struct {
	ctx       context.Context
	delay     time.Duration
	remaining int
	stopped   bool
}

func (p *retryPolicy) NextBackOff() time.Duration {
	if p.stopped || p.remaining <= 0 || p.ctx.Err() != nil {
		return backoff.Stop
	}
	p.remaining--
	return p.delay
}

func (p *retryPolicy) Reset() {}
