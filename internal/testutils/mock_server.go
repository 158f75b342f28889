package testutils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MockRatesServer imitates the open.er-api.com latest endpoint
type MockRatesServer struct {
	server *httptest.Server

	mu         sync.Mutex
	statusCode int
	body       string
	delay      time.Duration
	rates      map[string]float64

	requests atomic.Int64
}

// NewMockRatesServer starts a server answering GET /{anchor} with SampleRates
func NewMockRatesServer() *MockRatesServer {
	mock := &MockRatesServer{
		statusCode: http.StatusOK,
		rates:      SampleRates(),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handler))
	return mock
}

// URL returns the server's base URL
func (m *MockRatesServer) URL() string {
	return m.server.URL
}

// Close shuts the server down
func (m *MockRatesServer) Close() {
	m.server.Close()
}

// Requests is the number of requests served so far
func (m *MockRatesServer) Requests() int {
	return int(m.requests.Load())
}

// FailWith makes subsequent requests answer with statusCode
func (m *MockRatesServer) FailWith(statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCode = statusCode
}

// RespondWithBody makes subsequent requests answer 200 with a raw body
func (m *MockRatesServer) RespondWithBody(body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.body = body
}

// SetRates replaces the served table
func (m *MockRatesServer) SetRates(rates map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates = rates
}

// SetDelay delays every response
func (m *MockRatesServer) SetDelay(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = delay
}

func (m *MockRatesServer) handler(w http.ResponseWriter, r *http.Request) {
	m.requests.Add(1)

	m.mu.Lock()
	statusCode, body, delay, rates := m.statusCode, m.body, m.delay, m.rates
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if statusCode != http.StatusOK {
		http.Error(w, http.StatusText(statusCode), statusCode)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if body != "" {
		_, _ = w.Write([]byte(body))
		return
	}

	anchor := strings.ToUpper(strings.Trim(r.URL.Path, "/"))
	if anchor == "" {
		anchor = "USD"
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"result":    "success",
		"base_code": anchor,
		"rates":     rates,
	})
}
