// Package server exposes the identity service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jshihstsci/uidgid/internal/types"
)

// SpawnInfoService is the orchestrator surface the handlers need.
type SpawnInfoService interface {
	GetSpawnInfo(ctx context.Context, uuid, ezid, activeTeam string, teams []string) (types.SpawnInfo, error)
}

type Server struct {
	svc SpawnInfoService
	log *zap.Logger
}

// New builds the router. A non-empty jwtSecret enables bearer-token
// auth on the spawn-info endpoint.
func New(svc SpawnInfoService, jwtSecret string, log *zap.Logger) http.Handler {
	s := &Server{svc: svc, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/check-alive", s.handleCheckAlive)
	r.Group(func(r chi.Router) {
		if jwtSecret != "" {
			r.Use(bearerAuth(jwtSecret, log))
		}
		r.Post("/get-spawn-info", s.handleGetSpawnInfo)
	})
	return r
}

func (s *Server) handleCheckAlive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type spawnInfoRequest struct {
	UUID       string   `json:"uuid"`
	Ezid       string   `json:"ezid"`
	ActiveTeam string   `json:"active_team"`
	Teams      []string `json:"teams"`
}

func (s *Server) handleGetSpawnInfo(w http.ResponseWriter, r *http.Request) {
	var req spawnInfoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	info, err := s.svc.GetSpawnInfo(r.Context(), req.UUID, req.Ezid, req.ActiveTeam, req.Teams)
	if err != nil {
		s.log.Warn("get-spawn-info request failed", zap.String("ezid", req.Ezid), zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// statusFor maps the service error kinds to stable HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
			)
		})
	}
}
