package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/CTAG07/tundra/pkg/tundra"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the template preview server.
type Server struct {
	config *Config
	logger *slog.Logger
	engine *tundra.Engine
	mux    *http.ServeMux
}

// VersionInfo defines the structure for build/version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// RenderRequest is the body of POST /api/render. Exactly one of Name and
// Source must be set.
type RenderRequest struct {
	Name   string         `json:"name"`
	Source string         `json:"source"`
	Data   map[string]any `json:"data"`
}

// RenderResponse carries the rendered output and any resolution problems.
type RenderResponse struct {
	Key      string   `json:"key"`
	Output   string   `json:"output"`
	Problems []string `json:"problems"`
}

// NewServer registers all routes. A nil gatherer leaves /metrics unrouted.
func NewServer(config *Config, logger *slog.Logger, engine *tundra.Engine, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		config: config,
		logger: logger,
		engine: engine,
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("/api/health", s.handleHealthCheck)
	s.mux.HandleFunc("/api/version", s.handleVersion)
	s.mux.HandleFunc("/api/render", s.handleRender)
	s.mux.HandleFunc("/api/templates", s.handleList)
	s.mux.HandleFunc("/api/templates/exists", s.handleExists)
	s.mux.HandleFunc("/view/", s.handleView)
	s.mux.HandleFunc("/favicon.ico", handleFavicon)
	if gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

// Handler returns the root handler of the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleVersion returns the application's build information.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	respondWithJSON(w, http.StatusOK, VersionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	})
}

// handleRender compiles and renders a named template or an inline source.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	if (req.Name == "") == (req.Source == "") {
		respondWithError(w, http.StatusBadRequest, "Exactly one of 'name' and 'source' is required")
		return
	}

	ctx := r.Context()
	var (
		p   *tundra.Program
		out string
		err error
	)
	if req.Name != "" {
		if p, err = s.engine.Compile(ctx, req.Name); err == nil {
			out, err = s.engine.Render(ctx, req.Name, req.Data)
		}
	} else {
		if p, err = s.engine.CompileString(ctx, req.Source); err == nil {
			out, err = s.engine.RenderString(ctx, req.Source, req.Data)
		}
	}
	if err != nil {
		s.respondWithRenderError(w, err)
		return
	}

	resp := RenderResponse{Key: p.Key, Output: out, Problems: []string{}}
	for _, problem := range p.Problems {
		resp.Problems = append(resp.Problems, problem.Error())
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// handleList returns a list of all available template names.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	names, err := s.engine.Templates()
	if err != nil {
		s.logger.Error("Failed to list templates", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list templates: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, names)
}

func (s *Server) handleExists(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Missing 'name' query parameter")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"name": name, "exists": s.engine.Exists(name)})
}

// handleView renders /view/NAME as a page. Query values become the render
// data, and "request" describes the incoming request for the url helper.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/view/")
	if name == "" {
		http.NotFound(w, r)
		return
	}

	data := make(map[string]any)
	for key, values := range r.URL.Query() {
		if len(values) == 1 {
			data[key] = values[0]
		} else {
			data[key] = values
		}
	}
	data["request"] = map[string]any{
		"host":   r.Host,
		"path":   r.URL.Path,
		"secure": isSecure(r),
	}

	var buf bytes.Buffer
	if err := s.engine.RenderTo(r.Context(), &buf, name, data); err != nil {
		if errors.Is(err, tundra.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error("Failed to render template", "template", name, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.logger.Debug("Serving preview", "template", name, "remote_addr", r.RemoteAddr)

	setPreviewHeaders(w)
	_, _ = buf.WriteTo(w)
}

func (s *Server) respondWithRenderError(w http.ResponseWriter, err error) {
	var re *tundra.RenderError
	switch {
	case errors.Is(err, tundra.ErrNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &re):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("Render request failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, err.Error())
	}
}

func setPreviewHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
}

// isSecure reports whether the client reached us over TLS, directly or
// through a proxy that sets X-Forwarded-Proto.
func isSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// handleFavicon keeps browsers from logging a failed render for every preview.
func handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		err := json.NewEncoder(w).Encode(payload)
		if err != nil {
			fmt.Printf("ERROR: Failed to encode JSON response: %v\n", err)
		}
	}
}
