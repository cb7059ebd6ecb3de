package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func TestParseFlagsDefaultsAndTexts(t *testing.T) {
	cfg, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if len(cfg.texts) != len(defaultRequests) {
		t.Fatalf("len(texts) = %d, want %d", len(cfg.texts), len(defaultRequests))
	}

	cfg, err = parseFlags([]string{"-texts", " a | |b ", "-turn-timeout-ms", "5"})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if got := strings.Join(cfg.texts, ","); got != "a,b" {
		t.Fatalf("texts = %q, want %q", got, "a,b")
	}
	if cfg.turnTimeout.Milliseconds() != 1000 {
		t.Fatalf("turnTimeout = %s, want 1s floor", cfg.turnTimeout)
	}

	if _, err := parseFlags([]string{"-turns", "0"}); err == nil {
		t.Fatalf("parseFlags(-turns 0) error = nil, want error")
	}
	if _, err := parseFlags([]string{"-texts", "|"}); err == nil {
		t.Fatalf("parseFlags(-texts |) error = nil, want error")
	}
}

func TestWSURLForStream(t *testing.T) {
	got, err := wsURLForStream("https://example.com/base/", "u 1")
	if err != nil {
		t.Fatalf("wsURLForStream() error = %v", err)
	}
	if want := "wss://example.com/base/v1/requests/ws?user_id=u+1"; got != want {
		t.Fatalf("wsURLForStream() = %q, want %q", got, want)
	}
	if _, err := wsURLForStream("ftp://example.com", ""); err == nil {
		t.Fatalf("wsURLForStream(ftp) error = nil, want error")
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(sorted, 0.50); got != 5 {
		t.Fatalf("p50 = %v, want 5", got)
	}
	if got := percentile(sorted, 0.95); got != 10 {
		t.Fatalf("p95 = %v, want 10", got)
	}
	if got := percentile(nil, 0.5); got != 0 {
		t.Fatalf("empty percentile = %v, want 0", got)
	}
}

func TestRunReplaysAgainstStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/requests/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("user_id") != "perf-test" {
			http.Error(w, "missing user", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req streamRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			_ = conn.WriteJSON(map[string]any{
				"type": "result",
				"result": map[string]any{
					"output":   "ok: " + req.Input,
					"metadata": map[string]any{"handler_id": "PromptOptimizerAgent", "latency_ms": 1.5},
				},
			})
		}
	})
	mux.HandleFunc("/v1/perf/latency", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"window_size": 3})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cfg, err := parseFlags([]string{"-base-url", ts.URL, "-user-id", "perf-test", "-turns", "3", "-inter-turn-ms", "0"})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	var out bytes.Buffer
	if err := run(cfg, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(out.String(), "turns=3 failed=0") {
		t.Fatalf("summary missing from output:\n%s", out.String())
	}
	if !strings.Contains(out.String(), `"window_size":3`) {
		t.Fatalf("server stages missing from output:\n%s", out.String())
	}
}
