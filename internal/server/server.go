// Package server hosts the fork lifecycle and trace services over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/usecase"
)

const (
	maxBodyBytes = 1 << 20
	proxyTimeout = 60 * time.Second
)

// ForkAPI is the fork lifecycle backend
type ForkAPI interface {
	Start(ctx context.Context, req domain.ForkStartRequest) (*domain.ForkSession, error)
	Stop(ctx context.Context) error
	Status(ctx context.Context) (*domain.ForkSession, error)
}

// ProxyObserver records proxied request latency
type ProxyObserver interface {
	ObserveProxy(method string, success bool, latencySeconds float64)
}

// Options configures optional server features
type Options struct {
	// Dashboard feeds /ws; nil disables the websocket
	Dashboard *usecase.Dashboard
	// Gatherer serves /metrics; nil uses the default registry
	Gatherer prometheus.Gatherer
	Proxy    ProxyObserver
	// CORSAllowedOrigins is a comma separated list; empty or "*" allows all
	CORSAllowedOrigins string
}

// Server handles HTTP requests for the backend service
type Server struct {
	fork      ForkAPI
	trace     usecase.TraceService
	proxyObs  ProxyObserver
	gatherer  prometheus.Gatherer
	ws        *WebSocketHub
	client    *http.Client
	logger    *slog.Logger
	startTime time.Time

	corsAllowedOrigins []string
	corsAllowAll       bool
}

// NewServer creates a new HTTP server
func NewServer(fork ForkAPI, trace usecase.TraceService, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		fork:      fork,
		trace:     trace,
		proxyObs:  opts.Proxy,
		gatherer:  opts.Gatherer,
		client:    &http.Client{Timeout: proxyTimeout},
		logger:    logger.With("component", "server"),
		startTime: time.Now(),
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if opts.Dashboard != nil {
		s.ws = NewWebSocketHub(opts.Dashboard, s.logger)
	}

	origins := strings.TrimSpace(opts.CORSAllowedOrigins)
	if origins == "" || origins == "*" {
		s.corsAllowAll = true
	} else {
		for _, o := range strings.Split(origins, ",") {
			s.corsAllowedOrigins = append(s.corsAllowedOrigins, strings.TrimSpace(o))
		}
	}
	return s
}

// Handler returns an http.Handler with all routes configured
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /fork/status", s.handleForkStatus)
	mux.HandleFunc("POST /fork/start", s.handleForkStart)
	mux.HandleFunc("POST /fork/stop", s.handleForkStop)

	mux.HandleFunc("GET /trace/{hash}", s.handleTraceHash)
	mux.HandleFunc("POST /trace/call", s.handleTraceCall(domain.TraceDebug))
	mux.HandleFunc("POST /trace/calltree", s.handleTraceCall(domain.TraceCallTree))

	mux.HandleFunc("POST /proxy", s.handleProxy)

	if s.ws != nil {
		mux.HandleFunc("GET /ws", s.ws.Handler())
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return s.corsMiddleware(mux)
}

// Close disconnects websocket clients
func (s *Server) Close() {
	if s.ws != nil {
		s.ws.Stop()
	}
}

// corsMiddleware adds CORS headers based on the configured allowed origins
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if s.corsAllowAll {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, o := range s.corsAllowedOrigins {
				if o == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
					break
				}
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleForkStatus(w http.ResponseWriter, r *http.Request) {
	session, err := s.fork.Status(r.Context())
	if err != nil {
		s.writeJSONError(w, "Failed to get fork status: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleForkStart(w http.ResponseWriter, r *http.Request) {
	var req domain.ForkStartRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeJSONError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := validateRPCURL(req.RPCURL); err != nil {
		s.writeJSONError(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	session, err := s.fork.Start(r.Context(), req)
	if err != nil {
		s.writeJSONError(w, "Failed to start fork: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleForkStop(w http.ResponseWriter, r *http.Request) {
	if err := s.fork.Stop(r.Context()); err != nil {
		s.writeJSONError(w, "Failed to stop fork: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"running": false})
}

func (s *Server) handleTraceHash(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("hash")
	if len(raw) != 66 || !strings.HasPrefix(raw, "0x") {
		s.writeJSONError(w, "Invalid transaction hash: "+raw, http.StatusBadRequest)
		return
	}
	resp, err := s.trace.TraceByHash(r.Context(), common.HexToHash(raw), r.URL.Query().Get("rpc_url"))
	if err != nil {
		s.writeJSONError(w, "Failed to trace transaction: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTraceCall(flavor domain.TraceFlavor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.TraceCallRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeJSONError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		resp, err := s.trace.TraceByCall(r.Context(), req, flavor)
		if err != nil {
			s.writeJSONError(w, "Failed to trace call: "+err.Error(), http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

// ProxyRequest is the body of a /proxy request
type ProxyRequest struct {
	URL    string          `json:"url"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
	ID     json.RawMessage `json:"id,omitempty"`
}

// handleProxy forwards one JSON-RPC call to payload.url and relays the body
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	var req ProxyRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeJSONError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := validateRPCURL(req.URL); err != nil {
		s.writeJSONError(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Method == "" {
		s.writeJSONError(w, "Validation error: method is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	body, status, err := s.forward(r.Context(), req)
	if s.proxyObs != nil {
		s.proxyObs.ObserveProxy(req.Method, err == nil && status == http.StatusOK, time.Since(start).Seconds())
	}
	if err != nil {
		s.writeJSONError(w, "Proxy request failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (s *Server) forward(ctx context.Context, req ProxyRequest) ([]byte, int, error) {
	params := req.Params
	if len(params) == 0 || string(params) == "null" {
		params = json.RawMessage("[]")
	}
	id := req.ID
	if len(id) == 0 || string(id) == "null" {
		id = json.RawMessage("1")
	}

	payload, err := json.Marshal(map[string]any{
		"jsonrpc": domain.JSONRPCVersion,
		"method":  req.Method,
		"params":  params,
		"id":      id,
	})
	if err != nil {
		return nil, 0, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32*maxBodyBytes))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":         "healthy",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": time.Since(s.startTime).Seconds(),
	}
	if session, err := s.fork.Status(r.Context()); err == nil {
		health["fork"] = session
	}
	s.writeJSON(w, http.StatusOK, health)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// writeJSONError writes a JSON error response
func (s *Server) writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	if statusCode >= 500 {
		s.logger.Warn("request failed", "status", statusCode, "error", message)
	}
	s.writeJSON(w, statusCode, map[string]string{"error": message})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

func validateRPCURL(raw string) error {
	if raw == "" {
		return errors.New("rpc url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q, expected http or https", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %s", raw)
	}
	return nil
}
