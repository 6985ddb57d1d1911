package handlers

import (
	"net/http"
	"time"

	"recruit-inbox/internal/middleware"
	"recruit-inbox/internal/utils"

	"github.com/gorilla/mux"
)

// HandleHealth reports relay statistics and request counters.
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.Engine.RelayStats(s.RequestTimeout)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		var metrics utils.MetricsSnapshot
		if s.Metrics != nil {
			metrics = s.Metrics.Snapshot()
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "healthy",
			"relay":       stats,
			"requests":    metrics.Requests,
			"errors":      metrics.Errors,
			"uptime":      metrics.Uptime.String(),
			"server_time": time.Now().UTC(),
		})
	}
}

// NewRouter registers every route behind JWT authentication and CORS.
func (s *Server) NewRouter() http.Handler {
	r := mux.NewRouter()
	r.Use(s.Auth.Middleware)

	r.HandleFunc("/health", s.HandleHealth()).Methods(http.MethodGet)
	if s.MetricsEnabled && s.Metrics != nil {
		r.Handle("/metrics", s.Metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/messages", s.HandleSendMessage()).Methods(http.MethodPost)
	api.HandleFunc("/threads", s.HandleListThreads()).Methods(http.MethodGet)
	// Registered before the {counterpartId} route so it is not captured by it.
	api.HandleFunc("/threads/unread-count", s.HandleUnreadCount()).Methods(http.MethodGet)
	api.HandleFunc("/threads/{counterpartId}", s.HandleGetThread()).Methods(http.MethodGet)
	api.HandleFunc("/threads/{counterpartId}/read", s.HandleMarkRead()).Methods(http.MethodPost)
	api.HandleFunc("/threads/{counterpartId}/hide", s.HandleHideThread()).Methods(http.MethodPost)

	r.HandleFunc("/ws", s.HandleWebSocket()).Methods(http.MethodGet)

	return middleware.CORSMiddleware(s.AllowedOrigins)(r)
}
