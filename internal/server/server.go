// Package server exposes the detector over a small JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"urlsentry/internal/config"
	"urlsentry/internal/domaininfo"
	"urlsentry/internal/features"
	"urlsentry/internal/logger"
	"urlsentry/internal/verdict"
)

// Error messages returned to clients.
const (
	MsgNoURL         = "No URL provided"
	MsgInvalidURL    = "Invalid URL format"
	MsgInvalidJSON   = "Invalid JSON body"
	maxRequestBytes  = 1 << 20
	shutdownDeadline = 10 * time.Second
)

// Classifier produces a verdict for a URL.
type Classifier interface {
	Classify(ctx context.Context, url string) (verdict.Verdict, error)
}

// DomainLookup returns registration data for the domain of a URL.
type DomainLookup interface {
	Lookup(ctx context.Context, rawURL string) (domaininfo.Info, error)
}

type urlRequest struct {
	URL string `json:"url"`
}

type checkResponse struct {
	Result string `json:"result"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Features int    `json:"features"`
}

// Server routes API requests to the classifier.
type Server struct {
	classifier   Classifier
	domains      DomainLookup
	featureCount int
	cfg          config.ServingConfig
	log          *logger.Logger
}

// New creates a server. domains may be nil, in which case the domain-info route is absent.
func New(classifier Classifier, domains DomainLookup, featureCount int, cfg *config.ServingConfig, log *logger.Logger) *Server {
	return &Server{
		classifier:   classifier,
		domains:      domains,
		featureCount: featureCount,
		cfg:          *cfg,
		log:          logger.OrDiscard(log),
	}
}

// Handler returns the routed API with CORS applied to every response.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/check-url", s.handleCheckURL)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.domains != nil {
		mux.HandleFunc("POST /api/domain-info", s.handleDomainInfo)
	}

	return s.cors(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("API listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer cancel()

	s.log.Info("Shutting down API")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.cfg.AllowedOrigin
	if origin == "" {
		origin = "*"
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCheckURL(w http.ResponseWriter, r *http.Request) {
	target, ok := s.readURL(w, r)
	if !ok {
		return
	}

	v, err := s.classifier.Classify(r.Context(), target)
	if err != nil {
		s.log.Warn("Classification failed", "url", target, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})

		return
	}

	s.log.Info("Classified URL", "url", target, "verdict", v.Label, "probability", v.Probability)
	s.writeJSON(w, http.StatusOK, checkResponse{Result: v.String()})
}

func (s *Server) handleDomainInfo(w http.ResponseWriter, r *http.Request) {
	target, ok := s.readURL(w, r)
	if !ok {
		return
	}

	ctx := r.Context()

	if s.cfg.WhoisTimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.WhoisTimeoutSec)*time.Second)

		defer cancel()
	}

	info, err := s.domains.Lookup(ctx, target)

	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, info)
	case errors.Is(err, domaininfo.ErrIPAddress), errors.Is(err, domaininfo.ErrInvalidHost):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		s.log.Warn("Domain lookup failed", "url", target, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Features: s.featureCount})
}

// readURL decodes {"url": ...} and checks that it has a scheme and a host. On failure the
// 400 response has already been written.
func (s *Server) readURL(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req urlRequest

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: MsgInvalidJSON})
		return "", false
	}

	if req.URL == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: MsgNoURL})
		return "", false
	}

	parts := features.SplitURL(req.URL)
	if features.CheckURL(req.URL) != nil || parts.Scheme == "" || parts.Authority == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: MsgInvalidURL})
		return "", false
	}

	return req.URL, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("Failed to write response", "err", err)
	}
}
