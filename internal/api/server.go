// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

// Package api serves the agent's local HTTP surface: health, status and
// Prometheus metrics for diagnostics, plus the control endpoints the
// embedding UI drives the session with. It binds to loopback; it is not the
// SafeNet backend API.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jahanasherin1/SafeNet-sub000/internal/logging"
	"github.com/jahanasherin1/SafeNet-sub000/internal/power"
	"github.com/jahanasherin1/SafeNet-sub000/internal/queue"
	"github.com/jahanasherin1/SafeNet-sub000/internal/session"
	"github.com/jahanasherin1/SafeNet-sub000/internal/tracking"
)

// Config configures the diagnostics server.
type Config struct {
	Host            string
	Port            int
	RateLimitReqs   int
	RateLimitWindow time.Duration
	CORSOrigins     []string
}

// Server is the local diagnostics and control HTTP server, run as a service
// under the supervisor tree.
type Server struct {
	cfg      Config
	ctrl     *session.Controller
	orch     *tracking.Orchestrator
	q        *queue.Queue
	policy   *power.Policy
	validate *validator.Validate
}

// NewServer creates the diagnostics server.
func NewServer(cfg Config, ctrl *session.Controller, orch *tracking.Orchestrator, q *queue.Queue, policy *power.Policy) *Server {
	return &Server{
		cfg:      cfg,
		ctrl:     ctrl,
		orch:     orch,
		q:        q,
		policy:   policy,
		validate: validator.New(),
	}
}

// Router builds the chi router with the standard middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(15 * time.Second))
	r.Use(httprate.LimitByIP(s.cfg.RateLimitReqs, s.cfg.RateLimitWindow))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/session/login", s.handleLogin)
		r.Post("/session/logout", s.handleLogout)
		r.Post("/session/resume", s.handleResume)
		r.Post("/battery/saving", s.handleBatterySaving)
		r.Post("/queue/drain", s.handleDrain)
	})

	return r
}

// Serve implements suture.Service: it runs the HTTP server until the context
// is canceled, then shuts it down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("diagnostics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("diagnostics server shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("diagnostics server: %w", err)
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *Server) String() string {
	return "diagnostics-server"
}

// statusResponse is the aggregate the UI polls.
type statusResponse struct {
	LoggedIn       bool                `json:"loggedIn"`
	Email          string              `json:"email,omitempty"`
	TrackingState  string              `json:"trackingState"`
	TrackingDetail string              `json:"trackingDetail"`
	Queue          queue.Status        `json:"queue"`
	Battery        power.BatteryStatus `json:"battery"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		TrackingState:  string(s.orch.State()),
		TrackingDetail: s.orch.StatusString(),
		Queue:          s.q.Status(),
	}

	if sess, ok, err := s.ctrl.Current(); err == nil && ok {
		resp.LoggedIn = !sess.Expired(time.Now())
		resp.Email = sess.Email
	}

	if battery, err := s.policy.Status(); err == nil {
		resp.Battery = battery
	}

	writeJSON(w, http.StatusOK, resp)
}

type loginRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name"`
	Token string `json:"token" validate:"required"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}

	started, err := s.ctrl.Login(r.Context(), req.Email, req.Name, req.Token)
	if err != nil {
		if errors.Is(err, session.ErrTokenExpired) {
			writeError(w, http.StatusUnauthorized, "session token expired")
			return
		}
		logging.Error().Err(err).Msg("login failed")
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"trackingStarted": started})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	if err := s.ctrl.Logout(); err != nil {
		logging.Error().Err(err).Msg("logout failed")
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	active, err := s.ctrl.HandleResume(r.Context())
	if err != nil {
		if errors.Is(err, session.ErrTokenExpired) {
			writeError(w, http.StatusUnauthorized, "session token expired")
			return
		}
		logging.Error().Err(err).Msg("resume failed")
		writeError(w, http.StatusInternalServerError, "resume failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"trackingActive": active})
}

type batterySavingRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

func (s *Server) handleBatterySaving(w http.ResponseWriter, r *http.Request) {
	var req batterySavingRequest
	if !s.decode(w, r, &req) {
		return
	}

	var err error
	if *req.Enabled {
		err = s.policy.Enable()
	} else {
		err = s.policy.Disable()
	}
	if err != nil {
		logging.Error().Err(err).Msg("battery saving update failed")
		writeError(w, http.StatusInternalServerError, "battery saving update failed")
		return
	}

	status, err := s.policy.Status()
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]bool{"savingEnabled": *req.Enabled})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	result, err := s.q.Drain(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("manual drain failed")
		writeError(w, http.StatusInternalServerError, "drain failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"delivered": result.Delivered,
		"failed":    result.Failed,
		"dropped":   result.Dropped,
		"skipped":   result.Skipped,
	})
}

// decode reads and validates a JSON request body, writing the error response
// itself. Returns false when the handler should stop.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("validation failed: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
