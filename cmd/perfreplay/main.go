package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type options struct {
	baseURL        string
	userID         string
	turns          int
	startDelay     time.Duration
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

type streamRequest struct {
	Input  string `json:"input"`
	UserID string `json:"user_id,omitempty"`
}

type streamEnvelope struct {
	Type   string `json:"type"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
	Result *struct {
		Output   string `json:"output"`
		Metadata struct {
			HandlerID string  `json:"handler_id"`
			LatencyMS float64 `json:"latency_ms"`
			Failed    bool    `json:"failed"`
		} `json:"metadata"`
	} `json:"result,omitempty"`
}

type turnResult struct {
	handlerID string
	serverMS  float64
	clientMS  float64
	failed    bool
}

var defaultRequests = []string{
	"Improve this prompt: reply in three words about latency",
	"Here is my resume: backend engineer, five years. Tighten the summary.",
	"Triage this email. Subject: outage review moved to Friday",
	"Rewrite this prompt so it asks for a bulleted answer",
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfreplay: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "perfreplay: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var cfg options
	var textsRaw string
	var startDelayMS int
	var interTurnMS int
	var turnTimeoutMS int

	fs := flag.NewFlagSet("perfreplay", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "agentforge base URL")
	fs.StringVar(&cfg.userID, "user-id", "perf-replay", "user_id bound to the replayed requests")
	fs.IntVar(&cfg.turns, "turns", 10, "number of requests to replay")
	fs.IntVar(&startDelayMS, "start-delay-ms", 0, "delay before the first request in milliseconds")
	fs.IntVar(&interTurnMS, "inter-turn-ms", 100, "delay between requests in milliseconds")
	fs.IntVar(&turnTimeoutMS, "turn-timeout-ms", 90000, "timeout waiting for each result in milliseconds")
	fs.StringVar(&textsRaw, "texts", "", "requests separated by '|' (optional)")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if startDelayMS < 0 {
		startDelayMS = 0
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.startDelay = time.Duration(startDelayMS) * time.Millisecond
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	if strings.TrimSpace(textsRaw) == "" {
		cfg.texts = append([]string(nil), defaultRequests...)
	} else {
		for _, part := range strings.Split(textsRaw, "|") {
			t := strings.TrimSpace(part)
			if t != "" {
				cfg.texts = append(cfg.texts, t)
			}
		}
		if len(cfg.texts) == 0 {
			return options{}, fmt.Errorf("texts produced no non-empty requests")
		}
	}
	return cfg, nil
}

func run(cfg options, out io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	wsURL, err := wsURLForStream(cfg.baseURL, cfg.userID)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	if cfg.verbose {
		fmt.Fprintf(out, "perfreplay: user=%s turns=%d\n", cfg.userID, cfg.turns)
	}
	if cfg.startDelay > 0 {
		time.Sleep(cfg.startDelay)
	}

	resultCh := make(chan streamEnvelope, 32)
	readErrCh := make(chan error, 1)
	go readLoop(conn, resultCh, readErrCh)

	results := make([]turnResult, 0, cfg.turns)
	for i := 0; i < cfg.turns; i++ {
		text := cfg.texts[i%len(cfg.texts)]
		started := time.Now()
		if err := conn.WriteJSON(streamRequest{Input: text}); err != nil {
			return fmt.Errorf("turn %d send: %w", i+1, err)
		}
		env, err := awaitResult(resultCh, readErrCh, cfg.turnTimeout)
		if err != nil {
			return fmt.Errorf("turn %d await result: %w", i+1, err)
		}
		if env.Type != "result" || env.Result == nil {
			return fmt.Errorf("turn %d: %s %s", i+1, env.Code, env.Detail)
		}
		tr := turnResult{
			handlerID: env.Result.Metadata.HandlerID,
			serverMS:  env.Result.Metadata.LatencyMS,
			clientMS:  float64(time.Since(started).Microseconds()) / 1000,
			failed:    env.Result.Metadata.Failed,
		}
		results = append(results, tr)
		if cfg.verbose {
			fmt.Fprintf(out, "perfreplay: turn %d/%d handler=%s server_ms=%.2f client_ms=%.2f failed=%t\n",
				i+1, cfg.turns, tr.handlerID, tr.serverMS, tr.clientMS, tr.failed)
		}
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	printSummary(out, results)
	if err := printServerLatency(ctx, out, cfg.baseURL); err != nil && cfg.verbose {
		fmt.Fprintf(os.Stderr, "perfreplay: perf snapshot unavailable: %v\n", err)
	}
	return nil
}

func wsURLForStream(baseURL, userID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/requests/ws"
	q := u.Query()
	if userID != "" {
		q.Set("user_id", userID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, resultCh chan<- streamEnvelope, readErrCh chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}
		var env streamEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		resultCh <- env
	}
}

func awaitResult(resultCh <-chan streamEnvelope, readErrCh <-chan error, timeout time.Duration) (streamEnvelope, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case env := <-resultCh:
		return env, nil
	case err := <-readErrCh:
		return streamEnvelope{}, err
	case <-timer.C:
		return streamEnvelope{}, fmt.Errorf("timeout after %s", timeout)
	}
}

func printSummary(out io.Writer, results []turnResult) {
	if len(results) == 0 {
		return
	}
	client := make([]float64, 0, len(results))
	failed := 0
	for _, r := range results {
		client = append(client, r.clientMS)
		if r.failed {
			failed++
		}
	}
	sort.Float64s(client)
	fmt.Fprintf(out, "perfreplay: turns=%d failed=%d client_p50_ms=%.2f client_p95_ms=%.2f client_max_ms=%.2f\n",
		len(results), failed, percentile(client, 0.50), percentile(client, 0.95), client[len(client)-1])
}

// percentile expects sorted input and uses nearest-rank.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func printServerLatency(ctx context.Context, out io.Writer, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/perf/latency", nil)
	if err != nil {
		return err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	fmt.Fprintf(out, "perfreplay: server stages %s\n", strings.TrimSpace(string(body)))
	return nil
}
