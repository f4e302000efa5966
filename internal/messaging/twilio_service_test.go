package messaging

import (
	"testing"
	"time"
)

func newTestTwilioService(t *testing.T) *TwilioService {
	t.Helper()
	svc, err := NewTwilioService(
		WithAccountSID("AC0"),
		WithAuthToken("tok"),
		WithFromWhats("whatsapp:+15550000000"),
	)
	if err != nil {
		t.Fatalf("NewTwilioService failed: %v", err)
	}
	return svc
}

func TestTwilioServicePushCanonicalizesSender(t *testing.T) {
	svc := newTestTwilioService(t)
	ts := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	svc.Push("whatsapp:+56912345678", "hola", ts)

	select {
	case resp := <-svc.Responses():
		if resp.From != "56912345678" || resp.Body != "hola" || resp.Time != ts.Unix() {
			t.Errorf("response = %+v", resp)
		}
	default:
		t.Fatal("no response pushed")
	}
}

func TestTwilioServicePushAfterStop(t *testing.T) {
	svc := newTestTwilioService(t)
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// A webhook delivery landing after shutdown is dropped, not sent on the
	// closed channel.
	svc.Push("whatsapp:+56912345678", "hola", time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))

	if err := svc.Stop(); err != nil {
		t.Errorf("second Stop = %v, want nil", err)
	}
}
