package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/uswegem/miracore/configs"
	"github.com/uswegem/miracore/internal/pkg/logger"
)

// Config wires one resilient ledger client.
type Config struct {
	BaseURL          string
	Username         string
	Password         string
	Tenant           string
	Role             string
	Timeout          time.Duration
	TokenTTL         time.Duration
	RetryMaxAttempts int
	RetryInitial     time.Duration
	Breaker          configs.BreakerConfig
}

// Client is the authenticated HTTP client to the core banking system.
// It owns the process-wide token cache and circuit breakers; both are
// explicit long-lived state with admin reset operations, not globals.
type Client struct {
	cfg      Config
	http     *http.Client
	Tokens   *TokenCache
	Breakers *BreakerSet
	lastErr  *errorTracker
}

// Response is the raw outcome of a successful ledger call.
type Response struct {
	StatusCode    int
	Body          []byte
	CorrelationID string
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryMaxAttempts <= 0 {
		cfg.RetryMaxAttempts = 3
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = 200 * time.Millisecond
	}
	if cfg.Role == "" {
		cfg.Role = "gateway"
	}
	c := &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		Breakers: NewBreakerSet(cfg.Breaker),
		lastErr:  newErrorTracker(),
	}
	c.Tokens = NewTokenCache(cfg.TokenTTL, c.authenticate)
	return c
}

// Request performs one ledger call through the breaker for this
// client's role and the request verb. GET calls are retried with
// exponential backoff on transient failures; mutating calls are not
// blindly retried to avoid duplicate side effects on the ledger.
func (c *Client) Request(ctx context.Context, method, path string, body interface{}) (*Response, error) {
	correlationID := uuid.New().String()

	call := func() (*Response, error) {
		return c.throughBreaker(ctx, method, path, body, correlationID)
	}

	if method != http.MethodGet {
		resp, err := call()
		if err != nil {
			c.lastErr.record(err)
		}
		return resp, err
	}

	var resp *Response
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInitial
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.RetryMaxAttempts-1)), ctx)

	err := backoff.Retry(func() error {
		r, err := call()
		if err != nil {
			var le *Error
			if errors.As(err, &le) && le.Retryable() {
				return err
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}, policy)
	if err != nil {
		c.lastErr.record(err)
		return nil, err
	}
	return resp, nil
}

func (c *Client) throughBreaker(ctx context.Context, method, path string, body interface{}, correlationID string) (*Response, error) {
	breaker := c.Breakers.For(c.cfg.Role, method)

	result, err := breaker.Execute(func() (interface{}, error) {
		// The breaker enforces its own call timeout independent of the
		// HTTP client's socket timeout.
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Breaker.CallTimeout)
		defer cancel()
		return c.do(callCtx, method, path, body, correlationID)
	})
	if err != nil {
		if IsCircuitOpen(err) {
			return nil, &Error{
				Category:      CategoryCircuitOpen,
				Message:       fmt.Sprintf("ledger temporarily unavailable (%s %s)", method, path),
				CorrelationID: correlationID,
				Err:           err,
			}
		}
		return nil, err
	}
	return result.(*Response), nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, correlationID string) (*Response, error) {
	resp, err := c.doOnce(ctx, method, path, body, correlationID)
	if err != nil {
		var le *Error
		// One transparent re-authentication on an auth failure.
		if errors.As(err, &le) && le.Category == CategoryAuth && le.StatusCode == http.StatusUnauthorized {
			c.Tokens.Invalidate()
			logger.Warn(ctx, "ledger token rejected, re-authenticating (correlation %s)", correlationID)
			return c.doOnce(ctx, method, path, body, correlationID)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) doOnce(ctx context.Context, method, path string, body interface{}, correlationID string) (*Response, error) {
	token, err := c.Tokens.Token(ctx)
	if err != nil {
		return nil, &Error{Category: CategoryAuth, Message: fmt.Sprintf("authentication failed: %v", err), CorrelationID: correlationID, Err: err}
	}

	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Category: CategoryValidation, Message: fmt.Sprintf("unencodable request body: %v", err), CorrelationID: correlationID, Err: err}
		}
		payload = bytes.NewReader(encoded)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return nil, &Error{Category: CategoryValidation, Message: err.Error(), CorrelationID: correlationID, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", correlationID)
	if c.cfg.Tenant != "" {
		req.Header.Set("X-Tenant-Identifier", c.cfg.Tenant)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Category: CategoryNetwork, Message: err.Error(), CorrelationID: correlationID, Err: err}
	}
	defer res.Body.Close()

	responseBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &Error{Category: CategoryNetwork, Message: err.Error(), CorrelationID: correlationID, Err: err}
	}

	if res.StatusCode >= 400 {
		return nil, &Error{
			Category:      classifyStatus(res.StatusCode),
			StatusCode:    res.StatusCode,
			Message:       errorMessage(responseBody),
			CorrelationID: correlationID,
		}
	}

	return &Response{StatusCode: res.StatusCode, Body: responseBody, CorrelationID: correlationID}, nil
}

// authenticate exchanges the configured credentials for a bearer token.
func (c *Client) authenticate(ctx context.Context) (string, error) {
	payload, _ := json.Marshal(map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
	})
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/authentication"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Tenant != "" {
		req.Header.Set("X-Tenant-Identifier", c.cfg.Tenant)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("authentication returned %d: %s", res.StatusCode, errorMessage(body))
	}

	var result struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
		Base64Key   string `json:"base64EncodedAuthenticationKey"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("unparseable authentication response: %w", err)
	}
	switch {
	case result.Token != "":
		return result.Token, nil
	case result.AccessToken != "":
		return result.AccessToken, nil
	case result.Base64Key != "":
		return result.Base64Key, nil
	}
	return "", fmt.Errorf("authentication response carried no token")
}

// LastErrors reports the most recent error per failure category.
func (c *Client) LastErrors() map[string]string {
	return c.lastErr.snapshot()
}

func errorMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	const max = 300
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}

type errorTracker struct {
	mu   sync.Mutex
	last map[Category]string
}

func newErrorTracker() *errorTracker {
	return &errorTracker{last: make(map[Category]string)}
}

func (t *errorTracker) record(err error) {
	var le *Error
	if !errors.As(err, &le) {
		return
	}
	t.mu.Lock()
	t.last[le.Category] = fmt.Sprintf("%s at %s", le.Message, time.Now().UTC().Format(time.RFC3339))
	t.mu.Unlock()
}

func (t *errorTracker) snapshot() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.last))
	for category, message := range t.last {
		out[string(category)] = message
	}
	return out
}
