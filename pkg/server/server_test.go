// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func mustConfig(t *testing.T, address string) *Config {
	t.Helper()
	cfg, err := NewConfig(address)
	if err != nil {
		t.Fatalf("unexpected config error: %v", err)
	}
	return cfg
}

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestNew(t *testing.T) {
	s := New(WithHandler(map[string]http.HandlerFunc{"/v1/tasks": okHandler}))

	if s.config == nil || s.httpServer == nil || s.rateLimiter == nil {
		t.Fatal("expected server to be fully initialized")
	}
	if _, ok := s.config.Handlers["/v1/tasks"]; !ok {
		t.Error("expected /v1/tasks handler to exist")
	}
	if _, ok := s.config.Handlers["/"]; !ok {
		t.Error("expected default root handler to be created")
	}
	if s.Addr() != ":8080" {
		t.Errorf("expected address :8080, got %s", s.Addr())
	}
}

func TestWithOptions(t *testing.T) {
	cfg := mustConfig(t, "")
	cfg.Port = 9090
	cfg.RateLimit = 500

	s := New(WithConfig(cfg), WithName("collectord"), WithVersion("v1.2.3"))

	if s.config.Name != "collectord" {
		t.Errorf("expected name collectord, got %s", s.config.Name)
	}
	if s.config.Version != "v1.2.3" {
		t.Errorf("expected version v1.2.3, got %s", s.config.Version)
	}
	if s.config.RateLimit != 500 {
		t.Errorf("expected rate limit 500, got %v", s.config.RateLimit)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := New()

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", w.Header().Get("Content-Type"))
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name           string
		serving        bool
		check          func() error
		expectedStatus int
		expectedReason string
	}{
		{
			name:           "not serving",
			serving:        false,
			expectedStatus: http.StatusServiceUnavailable,
			expectedReason: "server is not serving",
		},
		{
			name:           "serving without check",
			serving:        true,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "check failing",
			serving:        true,
			check:          func() error { return stderrors.New("waiting for leader lease") },
			expectedStatus: http.StatusServiceUnavailable,
			expectedReason: "waiting for leader lease",
		},
		{
			name:           "check passing",
			serving:        true,
			check:          func() error { return nil },
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(WithReadinessCheck(tt.check))
			s.setReady(tt.serving)

			w := httptest.NewRecorder()
			s.handleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			var resp HealthResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Reason != tt.expectedReason {
				t.Errorf("expected reason %q, got %q", tt.expectedReason, resp.Reason)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := New()

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("expected default Go collector metrics in output")
	}
}

func TestRateLimiting(t *testing.T) {
	cfg := mustConfig(t, "")
	cfg.RateLimit = 1
	cfg.RateLimitBurst = 1
	s := New(WithConfig(cfg), WithHandler(map[string]http.HandlerFunc{"/v1/tasks": okHandler}))

	w1 := httptest.NewRecorder()
	s.Handler().ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/v1/tasks", nil))
	if w1.Code != http.StatusOK {
		t.Errorf("expected first request to succeed with status 200, got %d", w1.Code)
	}

	w2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/v1/tasks", nil))
	if w2.Code != http.StatusTooManyRequests {
		t.Errorf("expected rate limit error with status 429, got %d", w2.Code)
	}
	if w2.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header to be set")
	}

	// System endpoints bypass the limiter.
	w3 := httptest.NewRecorder()
	s.Handler().ServeHTTP(w3, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w3.Code != http.StatusOK {
		t.Errorf("expected /health to bypass rate limiting, got %d", w3.Code)
	}
}

func TestDefaultRootHandler(t *testing.T) {
	s := New(WithName("collectord"), WithHandler(map[string]http.HandlerFunc{"/v1/tasks": okHandler}))

	w := httptest.NewRecorder()
	s.config.Handlers["/"](w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp struct {
		Name   string   `json:"name"`
		Routes []string `json:"routes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Name != "collectord" {
		t.Errorf("expected name collectord, got %s", resp.Name)
	}
	want := []string{"GET /health", "GET /metrics", "GET /ready", "GET /v1/tasks"}
	if strings.Join(resp.Routes, ",") != strings.Join(want, ",") {
		t.Errorf("expected routes %v, got %v", want, resp.Routes)
	}
}

func TestDefaultRootHandlerMethodNotAllowed(t *testing.T) {
	s := New()

	w := httptest.NewRecorder()
	s.config.Handlers["/"](w, httptest.NewRequest(http.MethodPost, "/", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, w.Code)
	}
}

func TestCustomRootHandlerNotOverridden(t *testing.T) {
	called := false
	s := New(WithHandler(map[string]http.HandlerFunc{
		"/": func(w http.ResponseWriter, _ *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		},
	}))

	s.config.Handlers["/"](httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("expected custom root handler to be called, not default")
	}
}

func TestGracefulShutdown(t *testing.T) {
	cfg := mustConfig(t, "")
	cfg.ShutdownTimeout = 100 * time.Millisecond
	s := New(WithConfig(cfg))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve(ctx, ln)
	}()

	url := "http://" + ln.Addr().String() + "/ready"
	deadline := time.Now().Add(time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("server did not become ready")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("expected clean shutdown, got error: %v", err)
		}
	case <-time.After(time.Second):
		t.Error("shutdown timed out")
	}

	if ready, _ := s.isReady(); ready {
		t.Error("expected server to report not ready after shutdown")
	}
}
