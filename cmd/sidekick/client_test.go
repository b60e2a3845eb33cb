package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewAPIClient(t *testing.T) {
	// Test default values
	client := NewAPIClient("", 0)
	if client.baseURL != "http://localhost:8850/api" {
		t.Errorf("Expected default baseURL http://localhost:8850/api, got %s", client.baseURL)
	}
	if client.client.Timeout != 10*time.Second {
		t.Errorf("Expected default timeout 10s, got %v", client.client.Timeout)
	}

	// Test custom values
	client = NewAPIClient("http://example.com/api", 5*time.Second)
	if client.baseURL != "http://example.com/api" {
		t.Errorf("Expected baseURL http://example.com/api, got %s", client.baseURL)
	}
	if client.client.Timeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %v", client.client.Timeout)
	}
}

func TestAPIClientIsReachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sidecar/status" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"state":"stopped"}`))
		}
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, time.Second)
	if !client.IsReachable() {
		t.Error("Expected server to be reachable")
	}

	// Unreachable server
	client = NewAPIClient("http://localhost:99999", 100*time.Millisecond)
	if client.IsReachable() {
		t.Error("Expected server to be unreachable")
	}

	// 404 response means no sidekick API is mounted there
	server404 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server404.Close()

	client = NewAPIClient(server404.URL, time.Second)
	if client.IsReachable() {
		t.Error("Expected server returning 404 to be unreachable")
	}
}

func TestAPIClientStartSidecar(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sidecar/start" && r.Method == "POST" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, time.Second)
	if err := client.StartSidecar(); err != nil {
		t.Errorf("Expected successful start, got error: %v", err)
	}

	// API error response
	errorServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sidecar/start" && r.Method == "POST" {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"sidecar is already running"}`))
		}
	}))
	defer errorServer.Close()

	client = NewAPIClient(errorServer.URL, time.Second)
	err := client.StartSidecar()
	if err == nil {
		t.Fatal("Expected error for API error response, but got nil")
	}
	expectedMsg := "API error: sidecar is already running"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got: %q", expectedMsg, err.Error())
	}
}

func TestAPIClientGetStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sidecar/status" && r.Method == "GET" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"state":"running","pid":4242,"restart_count":1}`))
		}
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, time.Second)
	result, err := client.GetStatus()
	if err != nil {
		t.Fatalf("Expected successful status call, got error: %v", err)
	}
	if result["state"] != "running" {
		t.Errorf("Expected state running, got %v", result["state"])
	}
}

func TestAPIClientGetLogs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sidecar/logs" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("stream") != "stderr" || r.URL.Query().Get("lines") != "3" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"unexpected query"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"stream":"stderr","lines":["a","b","c"]}`))
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, time.Second)
	lines, err := client.GetLogs("stderr", 3)
	if err != nil {
		t.Fatalf("Expected successful logs call, got error: %v", err)
	}
	if len(lines) != 3 || lines[2] != "c" {
		t.Errorf("Unexpected lines: %v", lines)
	}
}

func TestAPIClientClearLogs(t *testing.T) {
	var sawDelete bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sidecar/logs" && r.Method == "DELETE" {
			sawDelete = true
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, time.Second)
	if err := client.ClearLogs(); err != nil {
		t.Errorf("Expected successful clear, got error: %v", err)
	}
	if !sawDelete {
		t.Error("Expected a DELETE request")
	}
}

func TestAPIClientNetworkErrors(t *testing.T) {
	client := NewAPIClient("http://localhost:99999", 100*time.Millisecond)

	if err := client.StartSidecar(); err == nil {
		t.Error("Expected network error for start")
	}
	if _, err := client.GetStatus(); err == nil {
		t.Error("Expected network error for status")
	}
	if err := client.StopSidecar(); err == nil {
		t.Error("Expected network error for stop")
	}
}
