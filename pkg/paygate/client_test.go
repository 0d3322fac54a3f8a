package paygate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestClient(t *testing.T, srv *httptest.Server, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		BaseURL:                 srv.URL,
		APIKey:                  "sk_test",
		Timeout:                 2 * time.Second,
		Retries:                 2,
		Backoff:                 time.Millisecond,
		CircuitFailureThreshold: 5,
		CircuitReset:            time.Minute,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewClient(cfg, srv.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCreateCheckoutSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/checkout/sessions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Idempotency-Key") != "checkout-b1-1" {
			t.Errorf("missing idempotency key, got %q", r.Header.Get("Idempotency-Key"))
		}
		var req checkoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Amount != 1050000 || req.Metadata["bid_id"] != "b1" {
			t.Errorf("unexpected request %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_1","url":"https://pay.example/cs_1","status":"open","amount_total":1050000,"currency":"usd"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	s, err := c.CreateCheckoutSession(context.Background(), CheckoutParams{
		Amount:         decimal.RequireFromString("10500.00"),
		Currency:       "usd",
		ExpiresAt:      time.Now().Add(30 * time.Minute),
		Metadata:       map[string]string{"bid_id": "b1"},
		IdempotencyKey: "checkout-b1-1",
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}
	if s.ID != "cs_1" || s.Status != SessionOpen || s.URL == "" {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"cs_1","status":"expired"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	s, err := c.GetCheckoutSession(context.Background(), "cs_1")
	if err != nil {
		t.Fatalf("GetCheckoutSession: %v", err)
	}
	if s.Status != SessionExpired || atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("status=%s calls=%d", s.Status, calls)
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"resource_missing","message":"no such session"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	_, err := c.ExpireCheckoutSession(context.Background(), "cs_missing")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "resource_missing" {
		t.Fatalf("unexpected error %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, func(cfg *Config) {
		cfg.Retries = 0
		cfg.CircuitFailureThreshold = 2
	})
	ctx := context.Background()
	for range 2 {
		if _, err := c.GetCheckoutSession(ctx, "cs_1"); err == nil {
			t.Fatalf("expected failure")
		}
	}
	if _, err := c.GetCheckoutSession(ctx, "cs_1"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("open circuit must not reach the server, calls=%d", calls)
	}
}

func TestCreateTransfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if r.URL.Path != "/v1/transfers" || req.Amount != 200000 || r.Header.Get("Idempotency-Key") != "payout-m1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"id":"tr_1","destination":"acct_c1","amount":200000,"currency":"usd"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	tr, err := c.CreateTransfer(context.Background(), TransferParams{
		Destination:    "acct_c1",
		Amount:         decimal.NewFromInt(2000),
		Currency:       "usd",
		IdempotencyKey: "payout-m1",
	})
	if err != nil || tr.ID != "tr_1" {
		t.Fatalf("CreateTransfer: %+v %v", tr, err)
	}
}

func TestBaseURLPathPrefixIsKept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/checkout/sessions/cs_1" {
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"id":"cs_1","url":"https://pay.example/cs_1","status":"open"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, func(cfg *Config) { cfg.BaseURL = srv.URL + "/api" })
	s, err := c.GetCheckoutSession(context.Background(), "cs_1")
	if err != nil || s.ID != "cs_1" {
		t.Fatalf("GetCheckoutSession: %+v %v", s, err)
	}
}

type testTransport struct{ called int32 }

func (t *testTransport) RoundTrip(req *http.Request) (*http.Response, error) { panic("not used") }
func (t *testTransport) CloseIdleConnections()                               { atomic.StoreInt32(&t.called, 1) }

func TestClient_Close_IdempotentAndCallsTransport(t *testing.T) {
	tr := &testTransport{}
	c, err := NewClient(Config{BaseURL: "http://localhost:12111", Timeout: time.Second}, &http.Client{Transport: tr})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if atomic.LoadInt32(&tr.called) != 1 {
		t.Fatalf("expected CloseIdleConnections called once")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close second call error: %v", err)
	}
	if _, err := c.GetCheckoutSession(context.Background(), "cs_1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
