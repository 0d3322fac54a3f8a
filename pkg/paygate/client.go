// Package paygate is a client for the payment gateway's checkout and
// transfer API.
package paygate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrCircuitOpen = errors.New("paygate circuit open")
	ErrClosed      = errors.New("paygate client closed")
)

// Checkout session statuses reported by the gateway.
const (
	SessionOpen     = "open"
	SessionComplete = "complete"
	SessionExpired  = "expired"
)

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paygate: status %d: %s %s", e.StatusCode, e.Code, e.Message)
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsNotFound reports whether err is a 404 from the gateway.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// CheckoutParams describes a hosted checkout session. Amount is in major
// units and is sent to the gateway in minor units.
type CheckoutParams struct {
	Amount         decimal.Decimal
	Currency       string
	Description    string
	SuccessURL     string
	CancelURL      string
	ExpiresAt      time.Time
	Metadata       map[string]string
	IdempotencyKey string
}

type Session struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status,omitempty"`
	PaymentIntent string            `json:"payment_intent,omitempty"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	ExpiresAt     int64             `json:"expires_at"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// TransferParams moves funds to a connected account.
type TransferParams struct {
	Destination    string
	Amount         decimal.Decimal
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

type Transfer struct {
	ID          string `json:"id"`
	Destination string `json:"destination"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// Client calls the gateway with retries, timeout, and circuit breaker.
type Client struct {
	cfg    Config
	base   *url.URL
	client *http.Client

	// simple circuit breaker state
	failures  int32
	openUntil int64 // unix nano
	closed    int32 // atomic flag for Close()
}

// NewClient creates a new gateway client.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	u, err := url.ParseRequestURI(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.CircuitFailureThreshold <= 0 {
		cfg.CircuitFailureThreshold = DefaultConfig().CircuitFailureThreshold
	}

	logger.Info("paygate: NewClient created", slog.String("base_url", cfg.BaseURL), slog.Duration("timeout", cfg.Timeout))
	return &Client{cfg: cfg, base: u, client: httpClient}, nil
}

func NewDefaultClient(cfg Config) (*Client, error) {
	defaultClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 15 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	return NewClient(cfg, defaultClient)
}

// package-level logger for pkg/paygate; can be replaced by callers
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger sets the logger used by pkg/paygate. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.failures) < int32(c.cfg.CircuitFailureThreshold) {
		return false
	}

	if time.Now().UnixNano() < atomic.LoadInt64(&c.openUntil) {
		return true
	}

	// attempt half-open: reset failures and allow a request
	atomic.StoreInt32(&c.failures, 0)
	return false
}

func (c *Client) recordFailure() {
	v := atomic.AddInt32(&c.failures, 1)
	if v >= int32(c.cfg.CircuitFailureThreshold) {
		atomic.StoreInt64(&c.openUntil, time.Now().Add(c.cfg.CircuitReset).UnixNano())
	}
}

// Close releases idle connections held by the underlying transport. Close is
// idempotent and safe to call multiple times.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	if c.client != nil && c.client.Transport != nil {
		if tr, ok := c.client.Transport.(interface{ CloseIdleConnections() }); ok {
			tr.CloseIdleConnections()
		}
	}
	return nil
}

type checkoutRequest struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description,omitempty"`
	SuccessURL  string            `json:"success_url"`
	CancelURL   string            `json:"cancel_url"`
	ExpiresAt   int64             `json:"expires_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CreateCheckoutSession opens a hosted checkout session. Requests carrying
// the same idempotency key return the same session.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*Session, error) {
	body := checkoutRequest{
		Amount:      minorUnits(p.Amount),
		Currency:    p.Currency,
		Description: p.Description,
		SuccessURL:  p.SuccessURL,
		CancelURL:   p.CancelURL,
		ExpiresAt:   p.ExpiresAt.Unix(),
		Metadata:    p.Metadata,
	}
	var s Session
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", body, p.IdempotencyKey, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) GetCheckoutSession(ctx context.Context, id string) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(id), nil, "", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ExpireCheckoutSession closes an open session so it can no longer be paid.
func (c *Client) ExpireCheckoutSession(ctx context.Context, id string) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions/"+url.PathEscape(id)+"/expire", nil, "", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

type transferRequest struct {
	Destination string            `json:"destination"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CreateTransfer pays out to a connected account.
func (c *Client) CreateTransfer(ctx context.Context, p TransferParams) (*Transfer, error) {
	body := transferRequest{
		Destination: p.Destination,
		Amount:      minorUnits(p.Amount),
		Currency:    p.Currency,
		Metadata:    p.Metadata,
	}
	var t Transfer
	if err := c.do(ctx, http.MethodPost, "/v1/transfers", body, p.IdempotencyKey, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func minorUnits(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

// do sends one logical request, retrying transient failures with linear
// backoff. Client errors (4xx other than 429) are returned immediately and do
// not count towards the circuit breaker.
func (c *Client) do(ctx context.Context, method, path string, in any, idempotencyKey string, out any) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrClosed
	}
	if c.isCircuitOpen() {
		return ErrCircuitOpen
	}

	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = b
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			// backoff
			t := time.NewTimer(c.cfg.Backoff * time.Duration(attempt))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		start := time.Now()
		err := c.once(ctx, method, path, payload, idempotencyKey, out)
		if err == nil {
			atomic.StoreInt32(&c.failures, 0)
			logger.Debug("paygate: request ok", slog.String("method", method), slog.String("path", path),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()))
			return nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return err
		}

		lastErr = err
		c.recordFailure()
		logger.Warn("paygate: request failed", slog.String("method", method), slog.String("path", path),
			slog.Int("attempt", attempt+1), slog.Any("err", err))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.isCircuitOpen() {
			return ErrCircuitOpen
		}
	}

	return fmt.Errorf("%s %s failed after retries: %w", method, path, lastErr)
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, idempotencyKey string, out any) error {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	// keep any path prefix of the base URL, e.g. https://gw/api
	u := c.base.JoinPath(path)
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(b, apiErr)
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
