package resolver

import (
	"context"
	"log"
	"strings"
	"time"

	"credibot/internal/llm"
	"credibot/internal/rules"
)

// SourceRules marks replies produced by the rule engine.
const SourceRules = "rules"

// Resolver turns a conversation history into a reply. Providers are tried in
// order; the rule engine closes the chain and cannot fail, so Resolve always
// returns a non-empty reply and never an error.
type Resolver struct {
	chain        []llm.Client
	rules        *rules.Engine
	systemPrompt string
	timeout      time.Duration
}

func New(chain []llm.Client, engine *rules.Engine, systemPrompt string, timeout time.Duration) *Resolver {
	return &Resolver{
		chain:        chain,
		rules:        engine,
		systemPrompt: systemPrompt,
		timeout:      timeout,
	}
}

// Resolve returns the reply text and the model that produced it. With an
// empty chain (AI disabled or no provider initialized) it is a pure call
// into the rule engine: no network, same output for the same history.
func (r *Resolver) Resolve(ctx context.Context, history []llm.Message, userID string) (string, string) {
	for _, client := range r.chain {
		text, model, err := r.attempt(ctx, client, history)
		if err != nil {
			log.Printf("❌ Proveedor de IA falló para %s, probando siguiente: %v", userID, err)
			continue
		}
		if text == "" {
			log.Printf("⚠️ Proveedor de IA devolvió respuesta vacía para %s, probando siguiente", userID)
			continue
		}
		return text, model
	}
	return r.rules.Resolve(history), SourceRules
}

func (r *Resolver) attempt(ctx context.Context, client llm.Client, history []llm.Message) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msgs := make([]llm.Message, 0, len(history)+1)
	if r.systemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: r.systemPrompt})
	}
	msgs = append(msgs, history...)

	resp, err := client.Generate(ctx, msgs)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(resp.Content), resp.Model, nil
}
