package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/backdrop/pkg/buildinfo"
	"github.com/matzehuels/backdrop/pkg/cache"
	bderrors "github.com/matzehuels/backdrop/pkg/errors"
)

func newTestClient(t *testing.T, srv *httptest.Server, headers map[string]string) *Client {
	t.Helper()
	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	client := NewClient(c, "test:", time.Hour, headers).WithHTTPClient(srv.Client())
	client.backoff = time.Millisecond
	return client
}

func TestNewClientNilCache(t *testing.T) {
	client := NewClient(nil, "test:", time.Hour, nil)
	if client.cache == nil {
		t.Fatal("NewClient(nil) should fall back to a null cache")
	}
	if client.headers != nil {
		t.Error("NewClient() should allow nil headers")
	}
}

func TestClientGetJSON(t *testing.T) {
	type response struct {
		Message string `json:"message"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		json.NewEncoder(w).Encode(response{Message: "hello"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, nil)

	var resp response
	if err := client.GetJSON(context.Background(), srv.URL, &resp); err != nil {
		t.Fatalf("GetJSON() error: %v", err)
	}
	if resp.Message != "hello" {
		t.Errorf("GetJSON() message = %q, want %q", resp.Message, "hello")
	}
}

func TestClientDefaultHeaders(t *testing.T) {
	var token string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = r.Header.Get("X-Figma-Token")
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv, map[string]string{"X-Figma-Token": "secret"})
	if _, err := client.GetBytes(context.Background(), srv.URL); err != nil {
		t.Fatalf("GetBytes() error: %v", err)
	}
	if token != "secret" {
		t.Errorf("X-Figma-Token = %q, want %q", token, "secret")
	}
}

func TestClientUserAgent(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"build version", nil, "backdrop/" + buildinfo.Get().Version},
		{"overridden", map[string]string{"User-Agent": "custom/1"}, "custom/1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get("User-Agent")
			}))
			defer srv.Close()

			if _, err := newTestClient(t, srv, tt.headers).GetBytes(context.Background(), srv.URL); err != nil {
				t.Fatalf("GetBytes() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("User-Agent = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientFetchOverridesHeaders(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Override")
	}))
	defer srv.Close()

	client := newTestClient(t, srv, map[string]string{"X-Override": "default"})
	if _, err := client.Fetch(context.Background(), srv.URL, map[string]string{"X-Override": "overridden"}); err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if got != "overridden" {
		t.Errorf("header = %q, want %q", got, "overridden")
	}
}

func TestClientCachesBodies(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("body"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv, nil)
	ctx := context.Background()
	for range 3 {
		data, err := client.GetBytes(ctx, srv.URL)
		if err != nil {
			t.Fatalf("GetBytes() error: %v", err)
		}
		if string(data) != "body" {
			t.Errorf("GetBytes() = %q", data)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server called %d times, want 1", n)
	}
}

func TestClientStatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		want      error
		retryable bool
	}{
		{"not found", http.StatusNotFound, ErrNotFound, false},
		{"forbidden", http.StatusForbidden, ErrForbidden, false},
		{"unauthorized", http.StatusUnauthorized, ErrForbidden, false},
		{"bad request", http.StatusBadRequest, ErrNetwork, false},
		{"server error", http.StatusBadGateway, ErrNetwork, true},
		{"rate limited", http.StatusTooManyRequests, ErrNetwork, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			client := newTestClient(t, srv, nil)
			_, err := client.GetBytes(context.Background(), srv.URL)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", IsRetryable(err), tt.retryable)
			}
			wantCalls := int32(1)
			if tt.retryable {
				wantCalls = DefaultAttempts
			}
			if n := calls.Load(); n != wantCalls {
				t.Errorf("server called %d times, want %d", n, wantCalls)
			}
		})
	}
}

func TestClientRateLimited(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter string
		wantAfter  int
		retryable  bool
	}{
		{"no header", "", 0, true},
		{"short wait", "0", 0, true},
		{"long wait", "3600", 3600, false},
		{"http date", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat), 3600, false},
		{"garbage", "soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(http.StatusTooManyRequests)
			}))
			defer srv.Close()

			client := newTestClient(t, srv, nil)
			_, err := client.GetBytes(context.Background(), srv.URL)

			var rl *bderrors.RateLimitedError
			if !errors.As(err, &rl) {
				t.Fatalf("error = %v, want a RateLimitedError", err)
			}
			if d := rl.RetryAfter - tt.wantAfter; d < -2 || d > 2 {
				t.Errorf("RetryAfter = %d, want %d", rl.RetryAfter, tt.wantAfter)
			}
			if !errors.Is(err, ErrNetwork) {
				t.Errorf("error = %v, want it to match ErrNetwork", err)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", IsRetryable(err), tt.retryable)
			}
			wantCalls := int32(1)
			if tt.retryable {
				wantCalls = DefaultAttempts
			}
			if n := calls.Load(); n != wantCalls {
				t.Errorf("server called %d times, want %d", n, wantCalls)
			}
		})
	}
}

func TestClientWaitsForRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", strconv.Itoa(1))
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv, nil)
	start := time.Now()
	data, err := client.GetBytes(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("GetBytes() error: %v", err)
	}
	if string(data) != "ok" {
		t.Errorf("GetBytes() = %q, want ok", data)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("retried after %v, want at least the 1s Retry-After", elapsed)
	}
}

func TestClientRecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv, nil)
	data, err := client.GetBytes(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("GetBytes() error: %v", err)
	}
	if string(data) != "ok" {
		t.Errorf("GetBytes() = %q, want ok", data)
	}
}

func TestClientBadJSONNotCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("{broken"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv, nil)
	var v map[string]any
	for range 2 {
		if err := client.GetJSON(context.Background(), srv.URL, &v); err == nil {
			t.Fatal("GetJSON() expected decode error")
		}
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("server called %d times, want 2", n)
	}
}
