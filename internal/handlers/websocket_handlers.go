package handlers

import (
	"log/slog"
	"net/http"

	"recruit-inbox/internal/websocket"

	ws "github.com/gorilla/websocket"
)

// upgrader builds the WebSocket upgrader, accepting only configured origins.
func (s *Server) upgrader() *ws.Upgrader {
	allowed := make(map[string]bool, len(s.AllowedOrigins))
	for _, origin := range s.AllowedOrigins {
		allowed[origin] = true
	}
	return &ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
		},
	}
}

// HandleWebSocket handles WebSocket connection requests. The auth middleware
// has already resolved the caller from the token query parameter.
func (s *Server) HandleWebSocket() http.HandlerFunc {
	upgrader := s.upgrader()
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := s.caller(w, r)
		if !ok {
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// The upgrader has already written the HTTP error.
			slog.Warn("WebSocket upgrade failed", "owner", owner, "error", err)
			return
		}

		client := websocket.NewClient(s.Hub, owner, conn)
		s.Hub.Register(client)

		go client.WritePump()
		go client.ReadPump()
	}
}
