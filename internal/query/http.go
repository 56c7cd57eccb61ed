package query

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"LendLedger/internal/observability"
)

// Server serves the HTTP/JSON query API.
type Server struct {
	service *Service
	health  *observability.HealthChecker
	log     zerolog.Logger
	httpSrv *http.Server
}

func NewServer(addr string, service *Service, health *observability.HealthChecker, log zerolog.Logger) *Server {
	s := &Server{
		service: service,
		health:  health,
		log:     log,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", health.LivenessHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", health.ReadinessHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/banks", s.handleBanks).Methods(http.MethodGet)
	v1.HandleFunc("/banks/{asset}", s.handleBank).Methods(http.MethodGet)
	v1.HandleFunc("/positions/{owner}", s.handlePosition).Methods(http.MethodGet)
	v1.HandleFunc("/positions/{owner}/balances", s.handleBalances).Methods(http.MethodGet)
	v1.HandleFunc("/positions/{owner}/transfers", s.handleTransfers).Methods(http.MethodGet)
	v1.HandleFunc("/integrity", s.handleIntegrity).Methods(http.MethodGet)

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.log.Info().Str("addr", s.httpSrv.Addr).Msg("query API listening")
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := s.service.GetBanks(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, banks)
}

func (s *Server) handleBank(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	bank, err := s.service.GetBank(r.Context(), asset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, bank)
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	owner, err := uuid.Parse(mux.Vars(r)["owner"])
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid owner id"})
		return
	}
	position, err := s.service.GetPosition(r.Context(), owner)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, position)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	owner, err := uuid.Parse(mux.Vars(r)["owner"])
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid owner id"})
		return
	}
	balances, err := s.service.GetBalances(r.Context(), owner)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, balances)
}

func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	owner, err := uuid.Parse(mux.Vars(r)["owner"])
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid owner id"})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be 1..500"})
			return
		}
		limit = n
	}

	var before *int64
	if raw := r.URL.Query().Get("before"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid cursor"})
			return
		}
		before = &n
	}

	entries, err := s.service.GetTransferHistory(r.Context(), owner, limit, before)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.VerifyIntegrity(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	s.log.Error().Err(err).Msg("query failed")
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("response encode failed")
	}
}
