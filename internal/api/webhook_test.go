package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/GTaccount22/BackendBot/internal/messaging"
	"github.com/GTaccount22/BackendBot/internal/store"
)

func newWebhookTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	st := store.NewInMemoryStore()
	return NewServer(st, nil, append([]Option{WithVerifyToken("secreto")}, opts...)...)
}

func TestWebhookVerification(t *testing.T) {
	server := newWebhookTestServer(t)

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=secreto&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	server.webhookHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); body != "12345" {
		t.Errorf("body = %q, want challenge echoed", body)
	}
}

func TestWebhookVerificationWrongToken(t *testing.T) {
	server := newWebhookTestServer(t)

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	server.webhookHandler(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestMetaWebhookPushesMessage(t *testing.T) {
	cloud, err := messaging.NewCloudAPIService(
		messaging.WithAccessToken("t"),
		messaging.WithPhoneNumberID("p"),
	)
	if err != nil {
		t.Fatalf("NewCloudAPIService failed: %v", err)
	}
	server := newWebhookTestServer(t, WithCloudService(cloud))

	payload := `{"entry":[{"changes":[{"value":{"messages":[
		{"from":"56912345678","timestamp":"1767225600","type":"text","text":{"body":"hola"}},
		{"from":"56912345678","timestamp":"1767225601","type":"image"}
	]}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	server.webhookHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	select {
	case resp := <-cloud.Responses():
		if resp.From != "56912345678" || resp.Body != "hola" {
			t.Errorf("response = %+v", resp)
		}
		if resp.Time != 1767225600 {
			t.Errorf("time = %d, want webhook timestamp", resp.Time)
		}
	default:
		t.Fatal("text message not pushed")
	}

	// The image entry must have been skipped.
	select {
	case extra := <-cloud.Responses():
		t.Errorf("unexpected second response: %+v", extra)
	default:
	}
}

func TestMetaWebhookBadJSON(t *testing.T) {
	cloud, err := messaging.NewCloudAPIService(
		messaging.WithAccessToken("t"),
		messaging.WithPhoneNumberID("p"),
	)
	if err != nil {
		t.Fatalf("NewCloudAPIService failed: %v", err)
	}
	server := newWebhookTestServer(t, WithCloudService(cloud))

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	server.webhookHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTwilioWebhookPushesMessage(t *testing.T) {
	twilio, err := messaging.NewTwilioService(
		messaging.WithAccountSID("AC0"),
		messaging.WithAuthToken("tok"),
		messaging.WithFromWhats("whatsapp:+15550000000"),
	)
	if err != nil {
		t.Fatalf("NewTwilioService failed: %v", err)
	}
	server := newWebhookTestServer(t, WithTwilioService(twilio))

	form := url.Values{}
	form.Set("From", "whatsapp:+56912345678")
	form.Set("Body", "hola")
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	server.twilioWebhookHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	select {
	case resp := <-twilio.Responses():
		// The whatsapp prefix is stripped so party IDs stay uniform.
		if resp.From != "56912345678" || resp.Body != "hola" {
			t.Errorf("response = %+v", resp)
		}
	default:
		t.Fatal("message not pushed")
	}
}

func TestTwilioWebhookMissingFields(t *testing.T) {
	twilio, err := messaging.NewTwilioService(
		messaging.WithAccountSID("AC0"),
		messaging.WithAuthToken("tok"),
		messaging.WithFromWhats("whatsapp:+15550000000"),
	)
	if err != nil {
		t.Fatalf("NewTwilioService failed: %v", err)
	}
	server := newWebhookTestServer(t, WithTwilioService(twilio))

	form := url.Values{}
	form.Set("From", "whatsapp:+56912345678")
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	server.twilioWebhookHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
