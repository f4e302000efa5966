// Package api provides HTTP handlers for BackendBot endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GTaccount22/BackendBot/internal/models"
)

// DefaultMessageHistoryLimit caps how many messages one chat history
// request returns when no limit parameter is given.
const DefaultMessageHistoryLimit = 50

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if s.hub != nil {
		healthData["console_clients"] = s.hub.Count()
	}
	writeJSONResponse(w, http.StatusOK, healthData)
}

// chatsHandler returns all chat sessions for the operator console (GET /api/chats).
func (s *Server) chatsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.chatsHandler: processing chats request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.chatsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessions, err := s.st.ListSessions()
	if err != nil {
		slog.Error("Server.chatsHandler: error fetching sessions", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch chats"))
		return
	}
	slog.Debug("Server.chatsHandler: chats fetched", "count", len(sessions))
	writeJSONResponse(w, http.StatusOK, models.Success(sessions))
}

// chatSubresourceHandler routes /api/chats/{partyID}/... requests.
func (s *Server) chatSubresourceHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.chatSubresourceHandler invoked", "method", r.Method, "path", r.URL.Path)

	path := strings.TrimPrefix(r.URL.Path, "/api/chats/")
	segments := strings.Split(strings.Trim(path, "/"), "/")

	if len(segments) != 2 || segments[0] == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown chat endpoint"))
		return
	}
	partyID := segments[0]

	switch segments[1] {
	case "messages":
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			return
		}
		s.chatMessagesHandler(w, r, partyID)
	case "send":
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			return
		}
		s.chatSendHandler(w, r, partyID)
	case "suggest":
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			return
		}
		s.chatSuggestHandler(w, r, partyID)
	default:
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown chat endpoint"))
	}
}

// chatMessagesHandler handles GET /api/chats/{partyID}/messages.
func (s *Server) chatMessagesHandler(w http.ResponseWriter, r *http.Request, partyID string) {
	limit := DefaultMessageHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid limit parameter"))
			return
		}
		limit = n
	}

	messages, err := s.st.ListMessages(partyID, limit)
	if err != nil {
		slog.Error("Server.chatMessagesHandler: error fetching messages", "error", err, "partyID", partyID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch messages"))
		return
	}
	slog.Debug("Server.chatMessagesHandler: messages fetched", "partyID", partyID, "count", len(messages))
	writeJSONResponse(w, http.StatusOK, models.Success(messages))
}

// operatorSendRequest is the body of POST /api/chats/{partyID}/send.
type operatorSendRequest struct {
	Operator string `json:"operator"`
	Text     string `json:"text"`
}

// chatSendHandler handles POST /api/chats/{partyID}/send.
func (s *Server) chatSendHandler(w http.ResponseWriter, r *http.Request, partyID string) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var req operatorSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.chatSendHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: text"))
		return
	}

	if err := s.engine.OperatorSend(r.Context(), partyID, req.Operator, req.Text); err != nil {
		slog.Error("Server.chatSendHandler: failed to send operator message", "error", err, "partyID", partyID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to send message"))
		return
	}

	slog.Info("Server.chatSendHandler: operator message sent", "partyID", partyID, "operator", req.Operator)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Message sent successfully", nil))
}

// chatSuggestHandler handles POST /api/chats/{partyID}/suggest.
func (s *Server) chatSuggestHandler(w http.ResponseWriter, r *http.Request, partyID string) {
	if s.gaClient == nil {
		slog.Warn("Server.chatSuggestHandler: GenAI client not configured", "partyID", partyID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("GenAI client not configured"))
		return
	}

	history, err := s.st.ListMessages(partyID, DefaultMessageHistoryLimit)
	if err != nil {
		slog.Error("Server.chatSuggestHandler: error fetching messages", "error", err, "partyID", partyID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch messages"))
		return
	}
	if len(history) == 0 {
		writeJSONResponse(w, http.StatusNotFound, models.Error("No chat history for party"))
		return
	}

	suggestion, err := s.gaClient.SuggestReply(r.Context(), history)
	if err != nil {
		slog.Error("Server.chatSuggestHandler: suggestion failed", "error", err, "partyID", partyID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to generate suggestion"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"suggestion": suggestion}))
}

// servicesHandler returns the service catalog (GET /api/services).
func (s *Server) servicesHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.servicesHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.servicesHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	services, err := s.st.ListServices()
	if err != nil {
		slog.Error("Server.servicesHandler: error fetching services", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch services"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(services))
}

// bookingsHandler returns all bookings (GET /api/bookings).
func (s *Server) bookingsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.bookingsHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.bookingsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	bookings, err := s.st.ListBookings()
	if err != nil {
		slog.Error("Server.bookingsHandler: error fetching bookings", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch bookings"))
		return
	}
	slog.Debug("Server.bookingsHandler: bookings fetched", "count", len(bookings))
	writeJSONResponse(w, http.StatusOK, models.Success(bookings))
}
