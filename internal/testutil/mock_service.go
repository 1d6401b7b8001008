// Package testutil provides a mock web service for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockService is a configurable mock web service.
type MockService struct {
	server    *httptest.Server
	mu        sync.RWMutex
	handlers  map[string]http.HandlerFunc
	requests  []string
	onRequest func(r *http.Request)
}

// NewMockService creates and starts a mock service.
func NewMockService() *MockService {
	mock := &MockService{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requests = append(mock.requests, r.URL.RequestURI())
		hook := mock.onRequest
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if hook != nil {
			hook(r)
		}

		if !exists {
			http.Error(w, `{"error": "unknown method"}`, http.StatusNotFound)
			return
		}
		handler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockService) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockService) Close() {
	m.server.Close()
}

// Reset clears the request log.
func (m *MockService) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// OnRequest registers a hook run before every handler.
func (m *MockService) OnRequest(hook func(r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRequest = hook
}

// SetHandler sets a custom handler for a path.
func (m *MockService) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockService) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetPagedDataset serves rows under base+"/count" and base+"/pages".
// The pages endpoint honors offset and size query parameters, and size=all.
func (m *MockService) SetPagedDataset(base string, rows []map[string]any) {
	base = strings.TrimSuffix(base, "/")

	m.SetHandler(base+"/count", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]int{"count": len(rows)})
	})

	m.SetHandler(base+"/pages", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("size") == "all" {
			writeJSON(w, rows)
			return
		}

		offset, err1 := strconv.Atoi(q.Get("offset"))
		size, err2 := strconv.Atoi(q.Get("size"))
		if err1 != nil || err2 != nil || offset < 0 || size < 0 {
			http.Error(w, fmt.Sprintf(`{"error": "bad paging parameters %q"}`, r.URL.RawQuery), http.StatusBadRequest)
			return
		}

		start := min(offset, len(rows))
		end := min(offset+size, len(rows))
		writeJSON(w, rows[start:end])
	})
}

// Requests returns the request URIs received, in order.
func (m *MockService) Requests() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestCount returns the number of requests whose path equals path,
// or all requests when path is empty.
func (m *MockService) RequestCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, uri := range m.requests {
		p, _, _ := strings.Cut(uri, "?")
		if path == "" || p == path {
			n++
		}
	}
	return n
}

// Rows returns n rows with an increasing "cid" and a "name" field.
func Rows(n int) []map[string]any {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{"cid": i + 1, "name": fmt.Sprintf("compound-%d", i+1)}
	}
	return rows
}

// NewJSONResponse creates a 200 OK JSON response.
func NewJSONResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewUnauthorizedResponse creates a 401 response.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"error": "Unauthorized"}`,
		Headers:    map[string]string{"WWW-Authenticate": "NTLM"},
	}
}

// NewServerErrorResponse creates a 500 response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(v)
}
