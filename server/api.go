package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// Server is the HTTP surface: the websocket endpoint plus the thin
// administrative layer driving the live core (forced transitions, history and
// room statistics queries, maintenance notices).
type Server struct {
	httpServer *http.Server
	config *Config
	registry *RoomRegistry
	engine *StatusEngine
	dispatcher *Dispatcher
	store MatchStore
	stats *Stats
	logger *Logger
}

func StartServer(sessionHolder *SessionHolder, registry *RoomRegistry, engine *StatusEngine, dispatcher *Dispatcher, store MatchStore, pipeline *Pipeline, config *Config, stats *Stats, logger *Logger) *Server {

	s := &Server{
		config: config,
		registry: registry,
		engine: engine,
		dispatcher: dispatcher,
		store: store,
		stats: stats,
		logger: logger,
	}

	router := mux.NewRouter()
	// Special case routes. Do NOT enable compression on the WebSocket route, it results in "http: response.Write on hijacked connection" errors.
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) }).Methods("GET")
	router.HandleFunc("/ws", NewSocketAcceptor(sessionHolder, registry, config, pipeline, stats, logger)).Methods("GET")
	router.Handle("/metrics", stats.HTTPHandler()).Methods("GET")

	router.HandleFunc("/v1/matches/{matchID}/status", s.requireAuth(s.updateMatchStatus)).Methods("PUT")
	router.HandleFunc("/v1/matches/status/batch", s.requireAdmin(s.batchUpdateMatchStatus)).Methods("POST")
	router.HandleFunc("/v1/matches/{matchID}/status/history", s.requireAuth(s.matchStatusHistory)).Methods("GET")
	router.HandleFunc("/v1/rooms/stats", s.requireAdmin(s.roomStats)).Methods("GET")
	router.HandleFunc("/v1/notices/maintenance", s.requireAdmin(s.maintenanceNotice)).Methods("POST")
	router.HandleFunc("/v1/notices/system", s.requireAdmin(s.systemNotification)).Methods("POST")

	// Enable CORS on all requests.
	CORSHeaders := handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "User-Agent"})
	CORSOrigins := handlers.AllowedOrigins([]string{"*"})
	CORSMethods := handlers.AllowedMethods([]string{"GET", "HEAD", "POST", "PUT", "DELETE"})
	handlerWithCORS := handlers.CORS(CORSHeaders, CORSOrigins, CORSMethods)(router)

	s.httpServer = &http.Server{
		MaxHeaderBytes: 5120,
		Handler: handlerWithCORS,
	}

	logger.Infof("Starting server for HTTP requests on port %d", config.Port)
	go func(){
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", config.Port))
		if err != nil {
			logger.Fatalw("Error while creating listener for HTTP server", "error", err)
		}
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("Error while serving HTTP server", "error", err)
		}
	}()

	return s

}

func (s *Server) Stop() {
	if err := s.httpServer.Shutdown(context.Background()); err != nil {
		s.logger.Errorw("Couldn't shutdown HTTP server", "error", err)
	}
}

type authedHandler func(w http.ResponseWriter, r *http.Request, identity *Identity)

func (s *Server) requireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestBodySize)
		}
		identity, ok := parseBearerAuth([]byte(s.config.AuthConfig.JWTSecret), r.Header.Get("Authorization"))
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "Auth token invalid")
			return
		}
		next(w, r, identity)
	}
}

func (s *Server) requireAdmin(next authedHandler) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request, identity *Identity) {
		if !identity.Admin {
			writeJSONError(w, http.StatusForbidden, "Administrative role required")
			return
		}
		next(w, r, identity)
	})
}

type statusUpdateRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Force bool `json:"force,omitempty"`
}

type statusUpdateResponse struct {
	MatchID string `json:"matchId"`
	Success bool `json:"success"`
	OldStatus string `json:"oldStatus,omitempty"`
	NewStatus string `json:"newStatus,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) updateMatchStatus(w http.ResponseWriter, r *http.Request, identity *Identity) {

	matchID := mux.Vars(r)["matchID"]

	request := &statusUpdateRequest{}
	if err := json.NewDecoder(r.Body).Decode(request); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	requested, ok := ParseMatchStatus(request.Status)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "Unknown match status: "+request.Status)
		return
	}

	result, err := s.engine.Transition(matchID, requested, *identity, request.Reason, request.Force)
	if err != nil {
		sErr := asSocketError(err)
		writeJSON(w, httpStatusFor(sErr), &statusUpdateResponse{MatchID: matchID, Success: false, Error: sErr.Message})
		return
	}

	writeJSON(w, http.StatusOK, &statusUpdateResponse{
		MatchID: matchID,
		Success: true,
		OldStatus: string(result.OldStatus),
		NewStatus: string(result.NewStatus),
	})

}

type batchStatusUpdateRequest struct {
	MatchIDs []string `json:"matchIds"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Force bool `json:"force,omitempty"`
}

func (s *Server) batchUpdateMatchStatus(w http.ResponseWriter, r *http.Request, identity *Identity) {

	request := &batchStatusUpdateRequest{}
	if err := json.NewDecoder(r.Body).Decode(request); err != nil || len(request.MatchIDs) == 0 {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	requested, ok := ParseMatchStatus(request.Status)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "Unknown match status: "+request.Status)
		return
	}

	//One broken match must not abort the batch, results are reported per id
	results := make([]*statusUpdateResponse, 0, len(request.MatchIDs))
	for _, matchID := range request.MatchIDs {
		result, err := s.engine.Transition(matchID, requested, *identity, request.Reason, request.Force)
		if err != nil {
			results = append(results, &statusUpdateResponse{MatchID: matchID, Success: false, Error: asSocketError(err).Message})
			continue
		}
		results = append(results, &statusUpdateResponse{
			MatchID: matchID,
			Success: true,
			OldStatus: string(result.OldStatus),
			NewStatus: string(result.NewStatus),
		})
	}

	writeJSON(w, http.StatusOK, results)

}

func (s *Server) matchStatusHistory(w http.ResponseWriter, r *http.Request, identity *Identity) {

	matchID := mux.Vars(r)["matchID"]

	match, err := s.store.GetMatch(matchID)
	if err != nil {
		sErr := asSocketError(err)
		writeJSONError(w, httpStatusFor(sErr), sErr.Message)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matchId": matchID,
		"currentStatus": match.Status,
		"statusHistory": match.StatusHistory,
	})

}

func (s *Server) roomStats(w http.ResponseWriter, r *http.Request, identity *Identity) {
	writeJSON(w, http.StatusOK, s.registry.AllRoomStats())
}

func (s *Server) maintenanceNotice(w http.ResponseWriter, r *http.Request, identity *Identity) {

	notice := &MaintenanceNoticeMessage{}
	if err := json.NewDecoder(r.Body).Decode(notice); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	envelope, err := NewEnvelope("", MessageTypeMaintenanceNotice, notice)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Could not build notice")
		return
	}

	s.dispatcher.ToAll(envelope)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})

}

func (s *Server) systemNotification(w http.ResponseWriter, r *http.Request, identity *Identity) {

	notification := &SystemNotificationMessage{}
	if err := json.NewDecoder(r.Body).Decode(notification); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	envelope, err := NewEnvelope("", MessageTypeSystemNotification, notification)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Could not build notification")
		return
	}

	s.dispatcher.ToAll(envelope)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})

}

func httpStatusFor(sErr *SocketError) int {
	switch sErr.Code {
	case ErrorCodeAuthorization:
		return http.StatusForbidden
	case ErrorCodeMatchNotFound, ErrorCodeRoomNotFound:
		return http.StatusNotFound
	case ErrorCodeInvalidTransition:
		return http.StatusConflict
	case ErrorCodeBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": message,
		"timestamp": time.Now(),
	})
}
