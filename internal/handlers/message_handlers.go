package handlers

import (
	"encoding/json"
	"net/http"

	"recruit-inbox/internal/utils"

	"github.com/google/uuid"
)

const maxRequestBody = 64 << 10

// SendMessageRequest represents a request to send a direct message
type SendMessageRequest struct {
	CounterpartID string `json:"counterpartId"`
	Content       string `json:"content"`
}

// UnreadCountResponse is the body of GET /api/threads/unread-count.
type UnreadCountResponse struct {
	Count int `json:"count"`
}

// HandleSendMessage handles POST /api/messages.
func (s *Server) HandleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := s.caller(w, r)
		if !ok {
			return
		}

		var req SendMessageRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			s.writeError(w, r, utils.NewAppError(utils.ErrInvalidInput, "Invalid request body", err))
			return
		}
		counterpart, err := uuid.Parse(req.CounterpartID)
		if err != nil {
			s.writeError(w, r, utils.NewAppError(utils.ErrInvalidInput, "Invalid counterpart ID format", err))
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()
		msg, err := s.Inbox.SendMessage(ctx, owner, counterpart, req.Content)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

// HandleListThreads handles GET /api/threads.
func (s *Server) HandleListThreads() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := s.caller(w, r)
		if !ok {
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()
		threads, err := s.Inbox.ListThreads(ctx, owner)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, threads)
	}
}

// HandleUnreadCount handles GET /api/threads/unread-count.
func (s *Server) HandleUnreadCount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := s.caller(w, r)
		if !ok {
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()
		count, err := s.Inbox.GetUnreadCount(ctx, owner)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, UnreadCountResponse{Count: count})
	}
}

// HandleGetThread handles GET /api/threads/{counterpartId}.
func (s *Server) HandleGetThread() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := s.caller(w, r)
		if !ok {
			return
		}
		counterpart, ok := s.counterpart(w, r)
		if !ok {
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()
		view, err := s.Inbox.GetThread(ctx, owner, counterpart)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// HandleMarkRead handles POST /api/threads/{counterpartId}/read.
func (s *Server) HandleMarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := s.caller(w, r)
		if !ok {
			return
		}
		counterpart, ok := s.counterpart(w, r)
		if !ok {
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()
		state, err := s.Inbox.MarkThreadRead(ctx, owner, counterpart)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

// HandleHideThread handles POST /api/threads/{counterpartId}/hide.
func (s *Server) HandleHideThread() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := s.caller(w, r)
		if !ok {
			return
		}
		counterpart, ok := s.counterpart(w, r)
		if !ok {
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()
		hidden, err := s.Inbox.HideThread(ctx, owner, counterpart)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, hidden)
	}
}
