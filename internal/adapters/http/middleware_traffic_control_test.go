package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/email-analyzer/internal/config"
	"github.com/kirillkom/email-analyzer/internal/core/domain"
)

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	client := newTestClient(t, config.Config{
		APIRateLimitRPS:   1,
		APIRateLimitBurst: 1,
	}, &backendFake{})

	req1 := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res1 := client.do(req1)
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res2 := client.do(req2)
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}
}

func TestBackpressureMiddlewareReturns503WhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)

	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	handler := backpressureMiddleware(base, 1, 20*time.Millisecond)

	go func() {
		req := httptest.NewRequest(http.MethodPost, "/api/form/submit", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		done <- res.Code
	}()

	<-started

	req2 := httptest.NewRequest(http.MethodPost, "/api/form/submit", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for saturated backpressure gate, got %d", res2.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(bytes.NewReader(res2.Body.Bytes())).Decode(&resp); err != nil {
		t.Fatalf("decode overload response: %v", err)
	}
	if resp["error"] == "" {
		t.Fatalf("expected overload error message in response")
	}

	close(release)

	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("first request expected 204, got %d", code)
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("timed out waiting for first request completion")
	}
}

func TestRequestIDIsEchoedOrGenerated(t *testing.T) {
	client := newTestClient(t, config.Config{}, &backendFake{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	if got := client.do(req).Header().Get(requestIDHeader); got != "req-123" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
	if got := client.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)).Header().Get(requestIDHeader); got == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cause := errors.New("cause")
	cases := []struct {
		err  error
		want int
	}{
		{err: domain.NewValidationError(), want: http.StatusUnprocessableEntity},
		{err: domain.WrapError(domain.ErrInvalidInput, "select file", cause), want: http.StatusBadRequest},
		{err: domain.WrapError(domain.ErrSessionNotFound, "lookup session", cause), want: http.StatusNotFound},
		{err: domain.WrapError(domain.ErrSubmitInFlight, "submit", cause), want: http.StatusConflict},
		{err: domain.NewTransportError("", domain.WrapError(domain.ErrTemporary, "analyze_text", cause)), want: http.StatusServiceUnavailable},
		{err: domain.NewServerError(http.StatusInternalServerError, ""), want: http.StatusBadGateway},
		{err: cause, want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
