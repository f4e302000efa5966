package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/GTaccount22/BackendBot/internal/models"
)

// DefaultGraphAPIBase is the Meta Graph API endpoint prefix.
const DefaultGraphAPIBase = "https://graph.facebook.com/v18.0"

// CloudAPIOpts holds configuration options for the Meta WhatsApp Cloud API service.
type CloudAPIOpts struct {
	AccessToken   string
	PhoneNumberID string
	APIBase       string
	HTTPClient    *http.Client
}

// CloudAPIOption defines a configuration option for the Cloud API service.
type CloudAPIOption func(*CloudAPIOpts)

// WithAccessToken sets the Graph API bearer token.
func WithAccessToken(token string) CloudAPIOption {
	return func(o *CloudAPIOpts) { o.AccessToken = token }
}

// WithPhoneNumberID sets the Cloud API phone number ID.
func WithPhoneNumberID(id string) CloudAPIOption {
	return func(o *CloudAPIOpts) { o.PhoneNumberID = id }
}

// WithAPIBase overrides the Graph API endpoint (used by tests).
func WithAPIBase(base string) CloudAPIOption {
	return func(o *CloudAPIOpts) { o.APIBase = base }
}

// WithHTTPClient overrides the HTTP client (used by tests).
func WithHTTPClient(c *http.Client) CloudAPIOption {
	return func(o *CloudAPIOpts) { o.HTTPClient = c }
}

// CloudAPIService sends messages through the Meta WhatsApp Cloud API.
// Inbound messages arrive over the webhook HTTP surface, which feeds them
// in via Push.
type CloudAPIService struct {
	accessToken   string
	phoneNumberID string
	apiBase       string
	httpClient    *http.Client
	responses     chan models.Response
	mu            sync.Mutex
	stopped       bool
}

// NewCloudAPIService creates a Cloud API service, falling back to the
// META_TEMP_TOKEN and META_PHONE_NUMBER_ID environment variables when the
// options do not provide credentials.
func NewCloudAPIService(opts ...CloudAPIOption) (*CloudAPIService, error) {
	var cfg CloudAPIOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccessToken == "" {
		cfg.AccessToken = os.Getenv("META_TEMP_TOKEN")
	}
	if cfg.PhoneNumberID == "" {
		cfg.PhoneNumberID = os.Getenv("META_PHONE_NUMBER_ID")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultGraphAPIBase
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	slog.Debug("CloudAPIService config loaded",
		"AccessToken_set", cfg.AccessToken != "",
		"PhoneNumberID_set", cfg.PhoneNumberID != "")

	if cfg.AccessToken == "" || cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("access token and phone number ID must be provided")
	}

	return &CloudAPIService{
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		apiBase:       cfg.APIBase,
		httpClient:    cfg.HTTPClient,
		responses:     make(chan models.Response, responseBufferSize),
	}, nil
}

// ValidateAndCanonicalizeRecipient reduces a recipient to bare digits.
func (s *CloudAPIService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// cloudTextPayload is the Graph API send-message request body.
type cloudTextPayload struct {
	MessagingProduct string    `json:"messaging_product"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Text             cloudText `json:"text"`
}

type cloudText struct {
	Body string `json:"body"`
}

// SendMessage posts a text message to the Graph API messages endpoint.
func (s *CloudAPIService) SendMessage(ctx context.Context, to string, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(cloudTextPayload{
		MessagingProduct: "whatsapp",
		To:               canonical,
		Type:             "text",
		Text:             cloudText{Body: body},
	})
	if err != nil {
		return fmt.Errorf("failed to encode message payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", s.apiBase, s.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		slog.Error("CloudAPIService send failed", "error", err, "to", canonical)
		return fmt.Errorf("failed to send message to %s: %w", canonical, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Error("CloudAPIService send rejected", "status", resp.StatusCode, "to", canonical, "body", string(respBody))
		return fmt.Errorf("graph API rejected message to %s: status %d", canonical, resp.StatusCode)
	}

	slog.Debug("CloudAPIService message sent", "to", canonical, "body_length", len(body))
	return nil
}

// Push feeds an inbound webhook message into the Responses channel.
func (s *CloudAPIService) Push(from, body string, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		slog.Warn("CloudAPIService stopped, dropping message", "from", from)
		return
	}
	select {
	case s.responses <- models.Response{From: from, Body: body, Time: ts.Unix()}:
	default:
		slog.Warn("CloudAPIService responses buffer full, dropping message", "from", from)
	}
}

// Start is a no-op: inbound delivery happens via the webhook HTTP surface.
func (s *CloudAPIService) Start(ctx context.Context) error {
	slog.Info("CloudAPIService started")
	return nil
}

// Stop closes the responses channel. Safe to call more than once; Push
// calls racing Stop are dropped rather than sent on a closed channel.
func (s *CloudAPIService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.responses)
	return nil
}

// Responses returns the channel of incoming party messages.
func (s *CloudAPIService) Responses() <-chan models.Response {
	return s.responses
}

// ExchangeLongLivedToken trades a short-lived Meta token for a ~60 day one.
// An empty apiBase defaults to the production Graph API. Returns the new
// token and its lifetime.
func ExchangeLongLivedToken(ctx context.Context, httpClient *http.Client, apiBase, appID, appSecret, shortToken string) (string, time.Duration, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if apiBase == "" {
		apiBase = DefaultGraphAPIBase
	}
	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", appID)
	q.Set("client_secret", appSecret)
	q.Set("fb_exchange_token", shortToken)

	endpoint := apiBase + "/oauth/access_token?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to build token exchange request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", 0, fmt.Errorf("failed to decode token exchange response: %w", err)
	}
	if result.AccessToken == "" {
		return "", 0, fmt.Errorf("token exchange returned no access token (status %d)", resp.StatusCode)
	}
	slog.Info("Exchanged Meta token", "expires_in_seconds", result.ExpiresIn)
	return result.AccessToken, time.Duration(result.ExpiresIn) * time.Second, nil
}
