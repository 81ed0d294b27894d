// Package llm defines the provider-neutral completion contract shared by the
// OpenAI and YandexGPT adapters. The resolver talks to providers only through
// Client, so the chain order is a configuration concern.
package llm

import "context"

// Message is one turn of a conversation. Role is "system", "user" or
// "assistant".
type Message struct {
	Role    string
	Content string
}

// Response carries the generated reply plus the model name and token usage
// for logging.
type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Client interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
}
