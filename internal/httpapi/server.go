package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/agentforge/internal/config"
	"github.com/ent0n29/agentforge/internal/memory"
	"github.com/ent0n29/agentforge/internal/observability"
	"github.com/ent0n29/agentforge/internal/orchestrator"
)

const maxHistoryLimit = 200

type Server struct {
	cfg      config.Config
	engine   *orchestrator.Engine
	metrics  *observability.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, engine *orchestrator.Engine, metrics *observability.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		engine:  engine,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers may only drive the stream from the same origin unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Delete("/v1/perf/latency", s.handlePerfReset)

	r.Post("/v1/requests", s.handleProcess)
	r.Get("/v1/requests/ws", s.handleRequestWS)
	r.Get("/v1/users/{id}/history", s.handleHistory)
	r.Get("/v1/memory/status", s.handleMemoryStatus)
	r.Get("/v1/handlers", s.handleListHandlers)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"memory_backend": s.cfg.MemoryBackend,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	status := s.engine.Memory().Status()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"index_mode":      status.IndexMode,
		"degraded_search": status.Degraded,
	})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.Request
	if err := decodeJSON(r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			respondError(w, http.StatusBadRequest, "invalid_request", "request body is required")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.engine.Process(r.Context(), req))
}

type historyResponse struct {
	UserID    string            `json:"user_id"`
	Exchanges []memory.Exchange `json:"exchanges"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "id"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	exchanges, err := s.engine.Memory().For(userID).RecentExchanges(r.Context(), limit)
	if err != nil {
		s.logger.Error("history read failed", zap.String("user_id", userID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "history_unavailable", err.Error())
		return
	}
	if exchanges == nil {
		exchanges = []memory.Exchange{}
	}
	respondJSON(w, http.StatusOK, historyResponse{UserID: userID, Exchanges: exchanges})
}

func (s *Server) handleMemoryStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Memory().Status())
}

func (s *Server) handleListHandlers(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"handlers": s.engine.Profiles(),
		"rules":    s.engine.Rules(),
		"fallback": s.engine.Fallback(),
	})
}

// streamMessage is one outbound frame on the request stream.
type streamMessage struct {
	Type   string               `json:"type"`
	Result *orchestrator.Result `json:"result,omitempty"`
	Code   string               `json:"code,omitempty"`
	Detail string               `json:"detail,omitempty"`
}

type streamItem struct {
	req orchestrator.Request
	err error
}

// handleRequestWS accepts a sequence of requests on one connection and answers
// each with a result frame, in order.
func (s *Server) handleRequestWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Query user_id binds every request on the stream that omits its own.
	defaultUser := strings.TrimSpace(r.URL.Query().Get("user_id"))

	inbound := make(chan streamItem, 16)
	outbound := make(chan streamMessage, 16)

	// Only this goroutine sends on outbound, so frames leave in request order.
	processDone := make(chan struct{})
	go func() {
		defer close(processDone)
		defer close(outbound)
		for item := range inbound {
			msg := streamMessage{Type: "error", Code: "invalid_request"}
			if item.err != nil {
				msg.Detail = item.err.Error()
			} else {
				req := item.req
				if strings.TrimSpace(req.UserID) == "" {
					req.UserID = defaultUser
				}
				res := s.engine.Process(ctx, req)
				msg = streamMessage{Type: "result", Result: &res}
			}
			select {
			case <-ctx.Done():
				return
			case outbound <- msg:
			}
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range outbound {
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("stream write failed", zap.Error(err))
				cancel()
				// Unblocks the read loop.
				_ = conn.Close()
				return
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		var item streamItem
		item.err = json.Unmarshal(data, &item.req)
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- item:
		}
	}

	close(inbound)
	<-processDone
	cancel()
	<-writerDone
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
