package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/rickgao/realtime-sync/internal/mutation"
	"github.com/rickgao/realtime-sync/internal/version"
)

type recordedRequest struct {
	Method         string
	Path           string
	Vars           map[string]string
	Body           string
	Auth           string
	ContentType    string
	IdempotencyKey string
}

type remoteServer struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
}

func newRemoteServer(t *testing.T) (*remoteServer, *httptest.Server) {
	t.Helper()
	rs := &remoteServer{status: http.StatusOK}

	record := func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rs.mu.Lock()
		rs.requests = append(rs.requests, recordedRequest{
			Method:         r.Method,
			Path:           r.URL.Path,
			Vars:           mux.Vars(r),
			Body:           string(body),
			Auth:           r.Header.Get("Authorization"),
			ContentType:    r.Header.Get("Content-Type"),
			IdempotencyKey: r.Header.Get("Idempotency-Key"),
		})
		status := rs.status
		rs.mu.Unlock()

		w.WriteHeader(status)
		w.Write([]byte(`{}`))
	}

	r := mux.NewRouter()
	r.HandleFunc("/{entity}", record).Methods(http.MethodPost)
	r.HandleFunc("/{entity}/{id}", record).Methods(http.MethodPut, http.MethodDelete)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return rs, server
}

func (rs *remoteServer) all() []recordedRequest {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]recordedRequest(nil), rs.requests...)
}

func (rs *remoteServer) setStatus(code int) {
	rs.mu.Lock()
	rs.status = code
	rs.mu.Unlock()
}

func TestNewClient(t *testing.T) {
	t.Run("default configuration", func(t *testing.T) {
		client := NewClient("https://api.example.com/", "tok")

		if client.baseURL != "https://api.example.com" {
			t.Errorf("baseURL = %q, want trailing slash trimmed", client.baseURL)
		}
		if client.token != "tok" {
			t.Errorf("token = %q, want %q", client.token, "tok")
		}
		if client.httpClient.Timeout != DefaultWriteTimeout {
			t.Errorf("timeout = %v, want %v", client.httpClient.Timeout, DefaultWriteTimeout)
		}
		if client.maxRetries != DefaultWriteRetries || client.retryBackoff != DefaultRetryBackoff {
			t.Errorf("retries = %d/%v, want %d/%v", client.maxRetries, client.retryBackoff, DefaultWriteRetries, DefaultRetryBackoff)
		}
		if client.userAgent != "realtime-sync/"+version.Version {
			t.Errorf("userAgent = %q", client.userAgent)
		}
	})

	t.Run("zero timeout keeps default", func(t *testing.T) {
		client := NewClient("https://api.example.com", "", WithTimeout(0))
		if client.httpClient.Timeout != DefaultWriteTimeout {
			t.Errorf("timeout = %v, want %v", client.httpClient.Timeout, DefaultWriteTimeout)
		}
	})

	t.Run("with options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		hc := &http.Client{}
		client := NewClient("https://api.example.com", "",
			WithHTTPClient(hc),
			WithTimeout(5*time.Second),
			WithRetries(4, time.Second),
			WithLogger(logger),
			WithUserAgent("syncd-test/1"),
		)

		if client.httpClient != hc {
			t.Error("custom HTTP client not used")
		}
		if client.httpClient.Timeout != 5*time.Second {
			t.Errorf("timeout = %v, want 5s", client.httpClient.Timeout)
		}
		if client.maxRetries != 4 || client.retryBackoff != time.Second {
			t.Errorf("retries = %d/%v, want 4/1s", client.maxRetries, client.retryBackoff)
		}
		if client.logger != logger {
			t.Error("custom logger not used")
		}
		if client.userAgent != "syncd-test/1" {
			t.Errorf("userAgent = %q, want syncd-test/1", client.userAgent)
		}
	})
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		code      int
		retryable bool
	}{
		{400, false},
		{401, false},
		{404, false},
		{408, true},
		{409, false},
		{429, true},
		{500, true},
		{503, true},
	}

	for _, tt := range tests {
		err := &APIError{StatusCode: tt.code, Message: http.StatusText(tt.code)}
		if got := err.IsRetryable(); got != tt.retryable {
			t.Errorf("IsRetryable(%d) = %v, want %v", tt.code, got, tt.retryable)
		}
	}

	err := &APIError{StatusCode: 404, Message: "Not Found"}
	if err.Error() != "remote api error 404: Not Found" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestDoRequest(t *testing.T) {
	t.Run("sets headers", func(t *testing.T) {
		var got http.Header
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Clone()
			w.Write([]byte(`ok`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "secret")
		body, err := client.doRequest(context.Background(), request{
			method:         http.MethodPost,
			path:           "/x",
			body:           []byte(`{}`),
			idempotencyKey: "op-1",
		})
		if err != nil {
			t.Fatalf("doRequest: %v", err)
		}
		if string(body) != "ok" {
			t.Errorf("body = %q", body)
		}
		if got.Get("Authorization") != "Bearer secret" {
			t.Errorf("Authorization = %q", got.Get("Authorization"))
		}
		if got.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", got.Get("Content-Type"))
		}
		if got.Get("Idempotency-Key") != "op-1" {
			t.Errorf("Idempotency-Key = %q", got.Get("Idempotency-Key"))
		}
		if got.Get("User-Agent") != "realtime-sync/"+version.Version {
			t.Errorf("User-Agent = %q", got.Get("User-Agent"))
		}
	})

	t.Run("no token no auth header", func(t *testing.T) {
		var auth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
		}))
		defer server.Close()

		client := NewClient(server.URL, "")
		if _, err := client.doRequest(context.Background(), request{method: http.MethodGet, path: "/"}); err != nil {
			t.Fatalf("doRequest: %v", err)
		}
		if auth != "" {
			t.Errorf("Authorization = %q, want empty", auth)
		}
	})

	t.Run("error status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"bad"}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "")
		_, err := client.doRequest(context.Background(), request{method: http.MethodGet, path: "/"})

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("err = %v, want *APIError", err)
		}
		if apiErr.StatusCode != http.StatusBadRequest {
			t.Errorf("StatusCode = %d", apiErr.StatusCode)
		}
		if string(apiErr.Body) != `{"error":"bad"}` {
			t.Errorf("Body = %q", apiErr.Body)
		}
	})
}

func TestDoWithRetry(t *testing.T) {
	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`done`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "", WithRetries(3, time.Millisecond))
		body, err := client.doWithRetry(context.Background(), request{method: http.MethodGet, path: "/"})
		if err != nil {
			t.Fatalf("doWithRetry: %v", err)
		}
		if string(body) != "done" {
			t.Errorf("body = %q", body)
		}
		if calls.Load() != 3 {
			t.Errorf("calls = %d, want 3", calls.Load())
		}
	})

	t.Run("no retry on client error", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		client := NewClient(server.URL, "", WithRetries(3, time.Millisecond))
		if _, err := client.doWithRetry(context.Background(), request{method: http.MethodGet, path: "/"}); err == nil {
			t.Fatal("expected error")
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})

	t.Run("max retries exceeded", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewClient(server.URL, "", WithRetries(2, time.Millisecond))
		_, err := client.doWithRetry(context.Background(), request{method: http.MethodGet, path: "/"})
		if err == nil {
			t.Fatal("expected error")
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != 500 {
			t.Errorf("err = %v, want wrapped 500", err)
		}
		if calls.Load() != 3 {
			t.Errorf("calls = %d, want 3", calls.Load())
		}
	})

	t.Run("context cancelled during backoff", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewClient(server.URL, "", WithRetries(5, time.Hour))
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := client.doWithRetry(ctx, request{method: http.MethodGet, path: "/"})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want deadline exceeded", err)
		}
	})
}

func TestWrite(t *testing.T) {
	newOp := func(t *testing.T, kind mutation.Kind, data any) mutation.Operation {
		t.Helper()
		op, err := mutation.NewOperation(kind, "todos", data, time.Now())
		if err != nil {
			t.Fatalf("NewOperation: %v", err)
		}
		return op
	}

	t.Run("create posts to collection", func(t *testing.T) {
		rs, server := newRemoteServer(t)
		client := NewClient(server.URL, "tok")

		op := newOp(t, mutation.KindCreate, map[string]any{"title": "milk"})
		if err := client.Write(context.Background(), op); err != nil {
			t.Fatalf("Write: %v", err)
		}

		reqs := rs.all()
		if len(reqs) != 1 {
			t.Fatalf("requests = %d, want 1", len(reqs))
		}
		got := reqs[0]
		if got.Method != http.MethodPost || got.Vars["entity"] != "todos" {
			t.Errorf("request = %s %s", got.Method, got.Path)
		}
		if got.IdempotencyKey != op.ID {
			t.Errorf("Idempotency-Key = %q, want %q", got.IdempotencyKey, op.ID)
		}
		if got.Auth != "Bearer tok" {
			t.Errorf("Authorization = %q", got.Auth)
		}

		var body map[string]any
		if err := json.Unmarshal([]byte(got.Body), &body); err != nil {
			t.Fatalf("body: %v", err)
		}
		if body["title"] != "milk" {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("update puts to entity", func(t *testing.T) {
		rs, server := newRemoteServer(t)
		client := NewClient(server.URL, "")

		op := newOp(t, mutation.KindUpdate, map[string]any{"id": "t-9", "done": true})
		if err := client.Write(context.Background(), op); err != nil {
			t.Fatalf("Write: %v", err)
		}

		got := rs.all()[0]
		if got.Method != http.MethodPut || got.Vars["id"] != "t-9" {
			t.Errorf("request = %s %s", got.Method, got.Path)
		}
	})

	t.Run("delete with numeric id", func(t *testing.T) {
		rs, server := newRemoteServer(t)
		client := NewClient(server.URL, "")

		op := newOp(t, mutation.KindDelete, map[string]any{"id": 42})
		if err := client.Write(context.Background(), op); err != nil {
			t.Fatalf("Write: %v", err)
		}

		got := rs.all()[0]
		if got.Method != http.MethodDelete || got.Path != "/todos/42" {
			t.Errorf("request = %s %s", got.Method, got.Path)
		}
		if got.ContentType != "" {
			t.Errorf("Content-Type = %q, want none for delete", got.ContentType)
		}
	})

	t.Run("delete of missing entity succeeds", func(t *testing.T) {
		rs, server := newRemoteServer(t)
		rs.setStatus(http.StatusNotFound)
		client := NewClient(server.URL, "")

		op := newOp(t, mutation.KindDelete, map[string]any{"id": "gone"})
		if err := client.Write(context.Background(), op); err != nil {
			t.Errorf("Write: %v, want nil for 404", err)
		}
	})

	t.Run("update without id", func(t *testing.T) {
		rs, server := newRemoteServer(t)
		client := NewClient(server.URL, "")

		op := newOp(t, mutation.KindUpdate, map[string]any{"done": true})
		err := client.Write(context.Background(), op)
		if !errors.Is(err, ErrMissingID) {
			t.Errorf("err = %v, want ErrMissingID", err)
		}
		if len(rs.all()) != 0 {
			t.Error("no request expected")
		}
	})

	t.Run("rejected write surfaces api error", func(t *testing.T) {
		rs, server := newRemoteServer(t)
		rs.setStatus(http.StatusConflict)
		client := NewClient(server.URL, "")

		op := newOp(t, mutation.KindCreate, map[string]any{"title": "x"})
		err := client.Write(context.Background(), op)

		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
			t.Errorf("err = %v, want 409 APIError", err)
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1", "")
		op := mutation.Operation{ID: "x", Kind: "upsert", EntityType: "todos"}
		if err := client.Write(context.Background(), op); !errors.Is(err, mutation.ErrInvalidKind) {
			t.Errorf("err = %v, want ErrInvalidKind", err)
		}
	})
}

func TestClientSatisfiesWriter(t *testing.T) {
	var _ mutation.Writer = NewClient("http://example.com", "")
}
