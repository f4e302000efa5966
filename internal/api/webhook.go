// Package api webhook handlers for inbound WhatsApp messages.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// metaWebhookPayload mirrors the Graph API webhook notification shape for
// text messages. Non-text entries are ignored.
type metaWebhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From      string `json:"from"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// webhookHandler serves the Meta webhook: GET performs the subscription
// handshake, POST delivers inbound messages.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.verifyWebhookHandler(w, r)
	case http.MethodPost:
		s.metaWebhookHandler(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// verifyWebhookHandler answers Meta's subscription handshake: when the mode
// and token match, the hub.challenge value is echoed back verbatim.
func (s *Server) verifyWebhookHandler(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && s.verifyToken != "" && token == s.verifyToken {
		slog.Info("Meta webhook verified")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}

	slog.Warn("Meta webhook verification failed", "mode", mode)
	w.WriteHeader(http.StatusForbidden)
}

// metaWebhookHandler parses an inbound Graph API notification and feeds
// each text message into the Cloud API service's response stream.
func (s *Server) metaWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if s.cloud == nil {
		slog.Warn("Meta webhook received but Cloud API service not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	var payload metaWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Warn("Failed to decode Meta webhook payload", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || msg.From == "" || msg.Text.Body == "" {
					continue
				}
				ts := time.Now()
				if unix, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil {
					ts = time.Unix(unix, 0)
				}
				slog.Info("Inbound WhatsApp message from Meta webhook", "from", msg.From)
				s.cloud.Push(msg.From, msg.Text.Body, ts)
			}
		}
	}

	// Meta expects 200 regardless; retries are driven by non-2xx only.
	w.WriteHeader(http.StatusOK)
}

// twilioWebhookHandler parses an inbound Twilio form post and feeds the
// message into the Twilio service's response stream.
func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.twilio == nil {
		slog.Warn("Twilio webhook received but Twilio service not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")
	if from == "" || body == "" {
		slog.Warn("Twilio webhook missing fields", "from", from)
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	slog.Info("Inbound WhatsApp message from Twilio webhook", "from", from)
	s.twilio.Push(from, body, time.Now())

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}
