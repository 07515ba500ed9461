package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/zkfleet/zkfleet/pkg/constraint"
	"github.com/zkfleet/zkfleet/pkg/driver"
	"github.com/zkfleet/zkfleet/pkg/events"
	"github.com/zkfleet/zkfleet/pkg/log"
	"github.com/zkfleet/zkfleet/pkg/metrics"
	"github.com/zkfleet/zkfleet/pkg/scheduler"
	"github.com/zkfleet/zkfleet/pkg/types"
)

// Defaults are applied to add/update requests that leave resources unset.
type Defaults struct {
	CPUs float64
	Mem  float64
}

// Server exposes the admin operations and the resource-manager callback
// intake over HTTP.
type Server struct {
	engine   *scheduler.Engine
	broker   *events.Broker
	defaults Defaults
	http     *http.Server
	logger   zerolog.Logger
}

// NewServer creates the admin API server around an engine.
func NewServer(engine *scheduler.Engine, broker *events.Broker, defaults Defaults) *Server {
	s := &Server{
		engine:   engine,
		broker:   broker,
		defaults: defaults,
		logger:   log.WithComponent("api"),
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/servers", s.instrument("status", s.handleStatus)).Methods(http.MethodGet)
	apiRouter.HandleFunc("/servers", s.instrument("add", s.handleAdd)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/servers/{id}", s.instrument("update", s.handleUpdate)).Methods(http.MethodPut)
	apiRouter.HandleFunc("/servers/{id}", s.instrument("remove", s.handleRemove)).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/servers/{id}/start", s.instrument("start", s.handleStart)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/servers/{id}/stop", s.instrument("stop", s.handleStop)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/offers", s.instrument("offer", s.handleOffer)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/status", s.instrument("task-status", s.handleTaskStatus)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	s.http = &http.Server{Handler: router}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves the API on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.http.Addr = addr
	s.logger.Info().Str("addr", addr).Msg("admin API listening")

	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// ServerRequest is the add/update request body. Ports use the
// comma-separated range token form, constraints their token mapping.
type ServerRequest struct {
	ID                          string              `json:"id"`
	CPUs                        float64             `json:"cpus,omitempty"`
	Mem                         float64             `json:"mem,omitempty"`
	Ports                       string              `json:"ports,omitempty"`
	Constraints                 map[string][]string `json:"constraints,omitempty"`
	ExhibitorConfig             map[string]string   `json:"exhibitorConfig,omitempty"`
	SharedConfigOverride        map[string]string   `json:"sharedConfigOverride,omitempty"`
	SharedConfigChangeBackoffMS int64               `json:"sharedConfigChangeBackoffMs,omitempty"`
}

func (s *Server) parseServerRequest(r *http.Request) (*ServerRequest, types.TaskConfig, map[string][]constraint.Constraint, error) {
	var req ServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, types.TaskConfig{}, nil, fmt.Errorf("invalid request body: %w", err)
	}

	if req.CPUs == 0 {
		req.CPUs = s.defaults.CPUs
	}
	if req.Mem == 0 {
		req.Mem = s.defaults.Mem
	}

	ports, err := types.ParsePortRanges(req.Ports)
	if err != nil {
		return nil, types.TaskConfig{}, nil, err
	}

	constraints, err := constraint.ParseMap(req.Constraints)
	if err != nil {
		return nil, types.TaskConfig{}, nil, err
	}

	config := types.TaskConfig{
		CPUs:                      req.CPUs,
		Mem:                       req.Mem,
		Ports:                     ports,
		ExhibitorConfig:           req.ExhibitorConfig,
		SharedConfigOverride:      req.SharedConfigOverride,
		SharedConfigChangeBackoff: time.Duration(req.SharedConfigChangeBackoffMS) * time.Millisecond,
	}
	return &req, config, constraints, nil
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	req, config, constraints, err := s.parseServerRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	server, err := s.engine.AddServer(req.ID, config, constraints)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusCreated, server)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	_, config, constraints, err := s.parseServerRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	server, err := s.engine.UpdateServer(mux.Vars(r)["id"], config, constraints)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, server)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	server, err := s.engine.StartServer(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, server)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	server, err := s.engine.StopServer(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, server)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RemoveServer(mux.Vars(r)["id"]); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

// OfferRequest is the resource-manager offer callback body. Ports and
// attributes arrive in their wire encodings.
type OfferRequest struct {
	ID         string  `json:"id"`
	Hostname   string  `json:"hostname"`
	CPUs       float64 `json:"cpus"`
	Mem        float64 `json:"mem"`
	Ports      string  `json:"ports,omitempty"`
	Attributes string  `json:"attributes,omitempty"`
}

// OfferResponse reports whether the offer was consumed.
type OfferResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	var req OfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	ports, err := types.ParsePortRanges(req.Ports)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	offer := &types.Offer{
		ID:       req.ID,
		Hostname: req.Hostname,
		CPUs:     req.CPUs,
		Mem:      req.Mem,
		Ports:    ports,
	}
	if req.Attributes != "" {
		offer.Attributes = types.ParseAttributes(req.Attributes)
	}

	reason := s.engine.AcceptOffer(offer)
	writeJSON(w, http.StatusOK, OfferResponse{Accepted: reason == "", Reason: reason})
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	var update driver.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	s.engine.UpdateTaskStatus(update)
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents streams fleet events as newline-delimited JSON until the
// client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("event streaming is not enabled"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	encoder := json.NewEncoder(w)
	for {
		select {
		case event := <-sub:
			if err := encoder.Encode(event); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// instrument wraps a handler with per-route request counting.
func (s *Server) instrument(route string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
