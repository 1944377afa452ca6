// Package appsscript is the client for the BookMate Apps Script webhook.
//
// Every call is a POST of {"action", "secret", ...params} answered by a
// {"ok", "data"|"error"} envelope. The deployment answers the POST with a 302
// to a one-shot content URL. Letting net/http follow it would replay the POST
// as a GET against the script, so redirects are followed by hand, once.
package appsscript

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bookmate/bookmate/internal/httputil"
	"github.com/bookmate/bookmate/internal/logging"
)

const maxResponseBody = 8 << 20

// Outcome labels reported to the call observer.
const (
	OutcomeOK          = "ok"
	OutcomeRemoteError = "remote_error"
	OutcomeFailure     = "failure"
	OutcomeRejected    = "circuit_open"
)

// Config holds client configuration.
type Config struct {
	URL        string
	Secret     string
	Timeout    time.Duration
	HTTPClient *http.Client

	Retry          RetryConfig
	CircuitBreaker CircuitBreakerConfig

	Logger *logging.Logger
	// OnCall observes every logical call (after retries) with its outcome.
	OnCall func(action Action, outcome string, duration time.Duration)
}

// Client calls one Apps Script deployment.
type Client struct {
	url        string
	secret     string
	httpClient *http.Client
	retry      RetryConfig
	breaker    *CircuitBreaker
	log        *logging.Logger
	onCall     func(Action, string, time.Duration)
}

// New creates a webhook client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("apps script URL is required")
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("apps script secret is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var hc http.Client
	if cfg.HTTPClient != nil {
		hc = *cfg.HTTPClient
	} else {
		hc = http.Client{Timeout: timeout}
	}
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	if cfg.CircuitBreaker.FailureThreshold == 0 && cfg.CircuitBreaker.Timeout == 0 {
		defaults := DefaultCircuitBreakerConfig()
		defaults.OnStateChange = cfg.CircuitBreaker.OnStateChange
		cfg.CircuitBreaker = defaults
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Client{
		url:        strings.TrimSpace(cfg.URL),
		secret:     cfg.Secret,
		httpClient: &hc,
		retry:      cfg.Retry,
		breaker:    NewCircuitBreaker(cfg.CircuitBreaker),
		log:        logger,
		onCall:     cfg.OnCall,
	}, nil
}

// CircuitState exposes the breaker state for health reporting.
func (c *Client) CircuitState() CircuitState {
	return c.breaker.State()
}

// Call invokes action with params and returns the raw "data" member.
// Read actions are retried on transient failures; write actions are sent once.
func (c *Client) Call(ctx context.Context, action Action, params map[string]interface{}) (json.RawMessage, error) {
	start := time.Now()

	if err := c.breaker.Allow(); err != nil {
		c.observe(action, OutcomeRejected, start)
		return nil, err
	}

	payload, err := c.encode(action, params)
	if err != nil {
		return nil, err
	}

	attempts := 1
	if action.Idempotent() {
		attempts += c.retry.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := c.retry.backoff(attempt)
			c.log.WithContext(ctx).WithFields(map[string]interface{}{
				"action":  string(action),
				"attempt": attempt + 1,
				"backoff": wait.String(),
			}).WithError(lastErr).Warn("retrying apps script call")
			if err := sleepContext(ctx, wait); err != nil {
				lastErr = err
				break
			}
		}

		data, err := c.roundTrip(ctx, action, payload)
		if err == nil {
			c.breaker.RecordSuccess()
			c.observe(action, OutcomeOK, start)
			return data, nil
		}
		lastErr = err

		if IsRemote(err) {
			// The deployment is healthy; it just refused the request.
			c.breaker.RecordSuccess()
			c.observe(action, OutcomeRemoteError, start)
			return nil, err
		}
		if !c.retry.retryable(err) {
			break
		}
	}

	if !errors.Is(lastErr, context.Canceled) {
		c.breaker.RecordFailure()
	}
	c.observe(action, OutcomeFailure, start)
	c.log.WithContext(ctx).WithField("action", string(action)).WithError(lastErr).Error("apps script call failed")
	return nil, lastErr
}

func (c *Client) encode(action Action, params map[string]interface{}) ([]byte, error) {
	body := make(map[string]interface{}, len(params)+2)
	for k, v := range params {
		body[k] = v
	}
	body["action"] = string(action)
	body["secret"] = c.secret

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", action, err)
	}
	return payload, nil
}

func (c *Client) roundTrip(ctx context.Context, action Action, payload []byte) (json.RawMessage, error) {
	resp, err := c.send(ctx, http.MethodPost, c.url, payload)
	if err != nil {
		return nil, err
	}

	if isRedirect(resp.StatusCode) {
		next, method, err := redirectTarget(resp)
		drain(resp)
		if err != nil {
			return nil, err
		}
		var body []byte
		if method == http.MethodPost {
			body = payload
		}
		resp, err = c.send(ctx, method, next, body)
		if err != nil {
			return nil, err
		}
		if isRedirect(resp.StatusCode) {
			drain(resp)
			return nil, ErrTooManyRedirects
		}
	}

	defer resp.Body.Close()
	return decodeEnvelope(action, resp)
}

func (c *Client) send(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apps script request: %w", err)
	}
	return resp, nil
}

func (c *Client) observe(action Action, outcome string, start time.Time) {
	if c.onCall != nil {
		c.onCall(action, outcome, time.Since(start))
	}
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// redirectTarget resolves Location against the request URL and picks the
// follow-up method: 307/308 preserve the POST, the others become GET.
func redirectTarget(resp *http.Response) (string, string, error) {
	loc := strings.TrimSpace(resp.Header.Get("Location"))
	if loc == "" {
		return "", "", ErrMissingLocation
	}
	target, err := resp.Request.URL.Parse(loc)
	if err != nil {
		return "", "", fmt.Errorf("apps script: bad Location %q: %w", loc, err)
	}
	method := http.MethodGet
	if resp.StatusCode == http.StatusTemporaryRedirect || resp.StatusCode == http.StatusPermanentRedirect {
		method = http.MethodPost
	}
	return target.String(), method, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

func decodeEnvelope(action Action, resp *http.Response) (json.RawMessage, error) {
	body, err := httputil.ReadAllStrict(resp.Body, maxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("apps script %s: read body: %w", action, err)
	}

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: httputil.Snippet(body, 200)}
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w for %s: %s", ErrUnexpectedResponse, action, httputil.Snippet(body, 200))
	}
	envelope := gjson.ParseBytes(body)
	if !envelope.IsObject() {
		return nil, fmt.Errorf("%w for %s: %s", ErrUnexpectedResponse, action, httputil.Snippet(body, 200))
	}

	ok := envelope.Get("ok")
	if !ok.Exists() {
		ok = envelope.Get("success")
	}
	if !ok.Exists() {
		return nil, fmt.Errorf("%w for %s: envelope has no ok flag", ErrUnexpectedResponse, action)
	}
	if !ok.Bool() {
		msg := envelope.Get("error").String()
		if msg == "" {
			msg = envelope.Get("message").String()
		}
		if msg == "" {
			msg = "request rejected"
		}
		return nil, &RemoteError{Action: action, Message: msg}
	}

	data := envelope.Get("data")
	if !data.Exists() {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(data.Raw), nil
}
