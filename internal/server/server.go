// Package server adapts the remoting gateway onto HTTP: the AMF
// endpoint itself plus the liveness and service-listing admin surface.
package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// contentTypeAMF is the media type AMF clients send and expect back.
const contentTypeAMF = "application/x-amf"

// maxRequestBytes bounds a request envelope. AMF requests are small;
// anything near this limit is abuse or corruption.
const maxRequestBytes = 16 << 20 // 16 MiB

// Engine is the server's view of the remoting gateway: a pure function
// from request envelope to response envelope, plus the registered
// service names for the admin surface.
type Engine interface {
	Serve(request []byte) ([]byte, error)
	Services() []string
}

// Server routes HTTP traffic into the remoting engine.
type Server struct {
	engine Engine
	logger *slog.Logger
}

// New builds the gateway HTTP handler. The AMF endpoint mounts at
// gatewayPath; liveness and the service listing mount under fixed
// paths.
func New(engine Engine, gatewayPath string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine: engine,
		logger: logger.With(slog.String("component", "server")),
	}

	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Post(gatewayPath, s.handleAMF)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/v1/services", s.handleServices)
	return r
}

// handleAMF is the gateway endpoint: request bytes in, response bytes
// out. A request that fails envelope parsing produces a plain 400 with
// no AMF body — a fatal packet error has no well-formed response.
func (s *Server) handleAMF(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, contentTypeAMF) {
		http.Error(w, "expected "+contentTypeAMF, http.StatusUnsupportedMediaType)
		return
	}

	request, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		http.Error(w, "read request", http.StatusBadRequest)
		return
	}

	response, err := s.engine.Serve(request)
	if err != nil {
		s.logger.Warn("request rejected",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		http.Error(w, "malformed AMF envelope", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", contentTypeAMF)
	if _, err := w.Write(response); err != nil {
		s.logger.Warn("write response",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
	}
}

// handleHealthz is the liveness probe.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleServices lists registered qualified names for debugging.
func (s *Server) handleServices(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"services": s.engine.Services(),
	})
}
