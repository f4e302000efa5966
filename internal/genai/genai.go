// Package genai provides GenAI-enhanced operations using the OpenAI API.
//
// BackendBot uses it only on the operator console side, to draft reply
// suggestions from a chat's recent history. The dialogue engine itself
// never calls it; booking conversations stay deterministic.
package genai

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/GTaccount22/BackendBot/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const suggestSystemPrompt = `Eres un asistente de atención al cliente de DuoChat, un servicio de reserva de citas por WhatsApp.
Redacta una respuesta breve, cordial y en español para que un operador humano la envíe al cliente.
Responde solo con el texto sugerido, sin explicaciones.`

// maxHistoryMessages bounds how much chat history is sent per suggestion.
const maxHistoryMessages = 20

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
	Model  openai.ChatModel
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat completion model.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// Client wraps the OpenAI chat completion API for generating operator
// reply suggestions.
type Client struct {
	api   openai.Client
	model openai.ChatModel
}

// NewClient initializes a GenAI client, falling back to the
// OPENAI_API_KEY environment variable when no key option is given.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	return &Client{
		api:   openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model: cfg.Model,
	}, nil
}

// GeneratePrompt generates a completion from a system and user prompt pair.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// SuggestReply drafts an operator reply from a chat's recent message
// history. Messages are rendered oldest first, labelled by direction.
func (c *Client) SuggestReply(ctx context.Context, history []models.Message) (string, error) {
	if len(history) == 0 {
		return "", fmt.Errorf("no chat history to suggest from")
	}
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}

	var sb strings.Builder
	sb.WriteString("Conversación reciente:\n")
	for _, msg := range history {
		label := "Cliente"
		if msg.Direction == models.DirectionOutgoing {
			label = "Nosotros"
		}
		fmt.Fprintf(&sb, "%s: %s\n", label, msg.Body)
	}
	sb.WriteString("\nSugiere la próxima respuesta del operador.")

	return c.GeneratePrompt(ctx, suggestSystemPrompt, sb.String())
}
