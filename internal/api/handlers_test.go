package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GTaccount22/BackendBot/internal/dialogue"
	"github.com/GTaccount22/BackendBot/internal/models"
	"github.com/GTaccount22/BackendBot/internal/store"
)

type stubSender struct{}

func (stubSender) SendMessage(ctx context.Context, to string, body string) error { return nil }

var handlersTestNow = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func newHandlersTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	err := st.SeedServices([]models.Service{
		{ID: 1, Name: "Corte de cabello", Price: 15},
		{ID: 2, Name: "Manicure", Price: 12},
	})
	if err != nil {
		t.Fatalf("SeedServices failed: %v", err)
	}
	engine := dialogue.NewEngine(st, stubSender{},
		dialogue.WithInterpreter(dialogue.NewInterpreter(dialogue.WithLocation(time.UTC))),
		dialogue.WithClock(func() time.Time { return handlersTestNow }),
	)
	return NewServer(st, engine), st
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestChatsHandler(t *testing.T) {
	server, st := newHandlersTestServer(t)
	if err := st.SaveSession(models.Session{PartyID: "56911111111", State: models.StateAwaitingName, LastMessageAt: handlersTestNow}); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	rec := httptest.NewRecorder()
	server.chatsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/chats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Status != string(models.APIStatusOK) {
		t.Errorf("status = %s", resp.Status)
	}
	sessions, ok := resp.Result.([]interface{})
	if !ok || len(sessions) != 1 {
		t.Errorf("result = %v, want one session", resp.Result)
	}
}

func TestChatsHandlerMethodNotAllowed(t *testing.T) {
	server, _ := newHandlersTestServer(t)
	rec := httptest.NewRecorder()
	server.chatsHandler(rec, httptest.NewRequest(http.MethodPost, "/api/chats", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestServicesHandler(t *testing.T) {
	server, _ := newHandlersTestServer(t)
	rec := httptest.NewRecorder()
	server.servicesHandler(rec, httptest.NewRequest(http.MethodGet, "/api/services", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	services, ok := resp.Result.([]interface{})
	if !ok || len(services) != 2 {
		t.Errorf("result = %v, want two services", resp.Result)
	}
}

func TestBookingsHandler(t *testing.T) {
	server, st := newHandlersTestServer(t)
	b := models.Booking{ID: "b-1", ClientID: "c-1", ServiceID: 1,
		StartsAt: handlersTestNow.Add(24 * time.Hour), Status: models.BookingStatusPending, CreatedAt: handlersTestNow}
	if err := st.CreateBooking(b); err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	rec := httptest.NewRecorder()
	server.bookingsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/bookings", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	bookings, ok := resp.Result.([]interface{})
	if !ok || len(bookings) != 1 {
		t.Errorf("result = %v, want one booking", resp.Result)
	}
}

func TestChatMessagesHandler(t *testing.T) {
	server, st := newHandlersTestServer(t)
	for i, body := range []string{"hola", "buenas"} {
		msg := models.Message{ID: string(rune('a' + i)), PartyID: "56911111111",
			Direction: models.DirectionIncoming, Body: body, Timestamp: handlersTestNow.Add(time.Duration(i) * time.Minute)}
		if err := st.AddMessage(msg); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/chats/56911111111/messages", nil)
	rec := httptest.NewRecorder()
	server.chatSubresourceHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	messages, ok := resp.Result.([]interface{})
	if !ok || len(messages) != 2 {
		t.Errorf("result = %v, want two messages", resp.Result)
	}
}

func TestChatMessagesHandlerBadLimit(t *testing.T) {
	server, _ := newHandlersTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/chats/56911111111/messages?limit=abc", nil)
	rec := httptest.NewRecorder()
	server.chatSubresourceHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestChatSendHandler(t *testing.T) {
	server, st := newHandlersTestServer(t)
	if err := st.SaveSession(models.Session{PartyID: "56911111111", State: models.StateShowingServices, LastMessageAt: handlersTestNow}); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	body := `{"operator":"ana","text":"¿En qué te ayudo?"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chats/56911111111/send", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.chatSubresourceHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	sess, err := st.GetSession("56911111111")
	if err != nil || sess == nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if sess.AssignedOperator != "ana" {
		t.Errorf("assigned operator = %q, want ana", sess.AssignedOperator)
	}
}

func TestChatSendHandlerValidation(t *testing.T) {
	server, _ := newHandlersTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chats/56911111111/send", strings.NewReader(`{"text":""}`))
	rec := httptest.NewRecorder()
	server.chatSubresourceHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty text: status = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/chats/56911111111/send", strings.NewReader("{not json"))
	rec = httptest.NewRecorder()
	server.chatSubresourceHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json: status = %d, want 400", rec.Code)
	}
}

func TestChatSuggestHandlerWithoutGenAI(t *testing.T) {
	server, _ := newHandlersTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/chats/56911111111/suggest", nil)
	rec := httptest.NewRecorder()
	server.chatSubresourceHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 when GenAI not configured", rec.Code)
	}
}

func TestChatSubresourceUnknownPath(t *testing.T) {
	server, _ := newHandlersTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/chats/56911111111/unknown", nil)
	rec := httptest.NewRecorder()
	server.chatSubresourceHandler(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	server, _ := newHandlersTestServer(t)
	rec := httptest.NewRecorder()
	server.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("body = %s", rec.Body.String())
	}
}
