// Package llm talks to the text generation service.
package llm

import "context"

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat exchange.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are per-call sampling settings.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Client generates a completion for a chat. Failures wrap models.ErrGenerationUnavailable.
type Client interface {
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)
}
