// Package api provides HTTP handlers and the main API server logic for BackendBot.
//
// It exposes the Meta and Twilio inbound webhooks, RESTful endpoints for the
// operator console (chats, messages, services, bookings) and the console
// WebSocket mount. The API integrates with the dialogue, store, messaging,
// console and genai modules.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/GTaccount22/BackendBot/internal/console"
	"github.com/GTaccount22/BackendBot/internal/dialogue"
	"github.com/GTaccount22/BackendBot/internal/genai"
	"github.com/GTaccount22/BackendBot/internal/messaging"
	"github.com/GTaccount22/BackendBot/internal/store"
)

// DefaultAddr is the listen address used when no override is provided.
const DefaultAddr = ":8080"

// DefaultRequestTimeout bounds handler work per request.
const DefaultRequestTimeout = 30 * time.Second

// Opts holds configuration options for the API server.
type Opts struct {
	Addr        string
	VerifyToken string
	Hub         *console.Hub
	GenAIClient *genai.Client
	Cloud       *messaging.CloudAPIService
	Twilio      *messaging.TwilioService
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithVerifyToken sets the Meta webhook verification token.
func WithVerifyToken(token string) Option {
	return func(o *Opts) { o.VerifyToken = token }
}

// WithConsoleHub mounts the operator console WebSocket hub at /ws.
func WithConsoleHub(hub *console.Hub) Option {
	return func(o *Opts) { o.Hub = hub }
}

// WithGenAIClient enables the operator reply suggestion endpoint.
func WithGenAIClient(c *genai.Client) Option {
	return func(o *Opts) { o.GenAIClient = c }
}

// WithCloudService routes Meta webhook messages into the given service.
func WithCloudService(s *messaging.CloudAPIService) Option {
	return func(o *Opts) { o.Cloud = s }
}

// WithTwilioService routes Twilio webhook messages into the given service.
func WithTwilioService(s *messaging.TwilioService) Option {
	return func(o *Opts) { o.Twilio = s }
}

// Server wires the HTTP surface to the rest of the application.
type Server struct {
	addr        string
	verifyToken string

	st       store.Store
	engine   *dialogue.Engine
	hub      *console.Hub
	gaClient *genai.Client
	cloud    *messaging.CloudAPIService
	twilio   *messaging.TwilioService

	httpServer *http.Server
}

// NewServer creates an API server over the given store and dialogue engine.
func NewServer(st store.Store, engine *dialogue.Engine, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	slog.Debug("API server options set",
		"addr", cfg.Addr,
		"verifyToken_set", cfg.VerifyToken != "",
		"hub_set", cfg.Hub != nil,
		"genai_set", cfg.GenAIClient != nil,
		"cloud_set", cfg.Cloud != nil,
		"twilio_set", cfg.Twilio != nil)

	return &Server{
		addr:        cfg.Addr,
		verifyToken: cfg.VerifyToken,
		st:          st,
		engine:      engine,
		hub:         cfg.Hub,
		gaClient:    cfg.GenAIClient,
		cloud:       cfg.Cloud,
		twilio:      cfg.Twilio,
	}
}

// routes builds the request multiplexer for the server.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/webhook/twilio", s.twilioWebhookHandler)
	mux.HandleFunc("/api/chats", s.chatsHandler)
	mux.HandleFunc("/api/chats/", s.chatSubresourceHandler)
	mux.HandleFunc("/api/services", s.servicesHandler)
	mux.HandleFunc("/api/bookings", s.bookingsHandler)
	if s.hub != nil {
		mux.HandleFunc("/ws", s.hub.HandleWS)
	}
	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.routes(),
		ReadTimeout:  DefaultRequestTimeout,
		WriteTimeout: DefaultRequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("BackendBot API running", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown failed: %w", err)
	}
	slog.Info("API server stopped")
	return nil
}
