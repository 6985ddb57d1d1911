package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"recruit-inbox/internal/engine"
	"recruit-inbox/internal/inbox"
	"recruit-inbox/internal/middleware"
	"recruit-inbox/internal/utils"
	"recruit-inbox/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Server holds all server dependencies, including the actor system and engine
type Server struct {
	System         *actor.ActorSystem
	Context        *actor.RootContext
	Engine         *engine.Engine
	Metrics        *utils.MetricsCollector
	Inbox          *inbox.Service
	Hub            *websocket.Hub
	Auth           *middleware.Authenticator
	AllowedOrigins []string
	MetricsEnabled bool
	RequestTimeout time.Duration
}

// NewServer creates a new Server instance with the given components
func NewServer(
	system *actor.ActorSystem,
	engine *engine.Engine,
	metrics *utils.MetricsCollector,
	service *inbox.Service,
	hub *websocket.Hub,
	auth *middleware.Authenticator,
) *Server {
	return &Server{
		System:         system,
		Context:        system.Root,
		Engine:         engine,
		Metrics:        metrics,
		Inbox:          service,
		Hub:            hub,
		Auth:           auth,
		MetricsEnabled: true,
		RequestTimeout: 5 * time.Second, // Default timeout for inbox operations
	}
}

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps err onto a status code and the JSON error body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, message := utils.ErrInternal, "Internal server error"
	var appErr *utils.AppError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code, message = utils.ErrTimeout, "Request timed out"
	case errors.Is(err, context.Canceled):
		slog.Debug("Request cancelled by client", "path", r.URL.Path)
		return
	case errors.As(err, &appErr):
		code, message = appErr.Code, appErr.Message
	}

	status := utils.AppErrorToHTTPStatus(code)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "code", code, "error", err)
	}
	if code == utils.ErrStoreUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// requestContext bounds an inbox call by the server's request timeout.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.RequestTimeout)
}

// caller returns the authenticated profile id.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	owner, ok := middleware.GetProfileIDFromContext(r.Context())
	if !ok {
		s.writeError(w, r, utils.NewUnauthorizedError("no authenticated profile"))
		return uuid.Nil, false
	}
	return owner, true
}

// counterpart parses the {counterpartId} path variable.
func (s *Server) counterpart(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["counterpartId"])
	if err != nil {
		s.writeError(w, r, utils.NewAppError(utils.ErrInvalidInput, "Invalid counterpart ID format", err))
		return uuid.Nil, false
	}
	return id, true
}
