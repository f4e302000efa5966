package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestCloudService(t *testing.T, apiBase string) *CloudAPIService {
	t.Helper()
	svc, err := NewCloudAPIService(
		WithAccessToken("test-token"),
		WithPhoneNumberID("12345"),
		WithAPIBase(apiBase),
	)
	if err != nil {
		t.Fatalf("NewCloudAPIService failed: %v", err)
	}
	return svc
}

func TestCloudAPIServiceSendMessage(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload cloudTextPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := newTestCloudService(t, srv.URL)
	if err := svc.SendMessage(context.Background(), "+56 9 1234 5678", "hola"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if gotPath != "/12345/messages" {
		t.Errorf("path = %s, want /12345/messages", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotPayload.MessagingProduct != "whatsapp" || gotPayload.Type != "text" {
		t.Errorf("payload = %+v", gotPayload)
	}
	if gotPayload.To != "56912345678" {
		t.Errorf("to = %s, want canonical digits", gotPayload.To)
	}
	if gotPayload.Text.Body != "hola" {
		t.Errorf("body = %q", gotPayload.Text.Body)
	}
}

func TestCloudAPIServiceSendMessageRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	svc := newTestCloudService(t, srv.URL)
	if err := svc.SendMessage(context.Background(), "56912345678", "hola"); err == nil {
		t.Error("SendMessage = nil error, want rejection on 401")
	}
}

func TestCloudAPIServicePush(t *testing.T) {
	svc := newTestCloudService(t, "http://unused")
	ts := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	svc.Push("56912345678", "hola", ts)

	select {
	case resp := <-svc.Responses():
		if resp.From != "56912345678" || resp.Body != "hola" || resp.Time != ts.Unix() {
			t.Errorf("response = %+v", resp)
		}
	default:
		t.Fatal("no response pushed")
	}
}

func TestCloudAPIServiceRequiresCredentials(t *testing.T) {
	t.Setenv("META_TEMP_TOKEN", "")
	t.Setenv("META_PHONE_NUMBER_ID", "")
	if _, err := NewCloudAPIService(); err == nil {
		t.Error("NewCloudAPIService without credentials = nil error, want failure")
	}
}

func TestCloudAPIServicePushAfterStop(t *testing.T) {
	svc := newTestCloudService(t, "http://unused")
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// A webhook delivery landing after shutdown is dropped, not sent on the
	// closed channel.
	svc.Push("56912345678", "hola", time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))

	if err := svc.Stop(); err != nil {
		t.Errorf("second Stop = %v, want nil", err)
	}
}

func TestExchangeLongLivedToken(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"grant_type":        r.URL.Query().Get("grant_type"),
			"client_id":         r.URL.Query().Get("client_id"),
			"client_secret":     r.URL.Query().Get("client_secret"),
			"fb_exchange_token": r.URL.Query().Get("fb_exchange_token"),
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "long-lived-token",
			"expires_in":   5184000,
		})
	}))
	defer srv.Close()

	token, lifetime, err := ExchangeLongLivedToken(context.Background(), srv.Client(), srv.URL,
		"app-id", "app-secret", "short-token")
	if err != nil {
		t.Fatalf("ExchangeLongLivedToken failed: %v", err)
	}
	if token != "long-lived-token" {
		t.Errorf("token = %q, want long-lived-token", token)
	}
	if lifetime != 5184000*time.Second {
		t.Errorf("lifetime = %v, want 60 days", lifetime)
	}
	want := map[string]string{
		"grant_type":        "fb_exchange_token",
		"client_id":         "app-id",
		"client_secret":     "app-secret",
		"fb_exchange_token": "short-token",
	}
	for key, value := range want {
		if gotQuery[key] != value {
			t.Errorf("query %s = %q, want %q", key, gotQuery[key], value)
		}
	}
}

func TestExchangeLongLivedTokenRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "bad token"}})
	}))
	defer srv.Close()

	if _, _, err := ExchangeLongLivedToken(context.Background(), srv.Client(), srv.URL,
		"app-id", "app-secret", "expired"); err == nil {
		t.Error("ExchangeLongLivedToken = nil error, want failure without access token")
	}
}
