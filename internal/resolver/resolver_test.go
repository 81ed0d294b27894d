package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"credibot/internal/llm"
	"credibot/internal/rules"
)

type stubClient struct {
	content string
	err     error
	calls   int
}

func (s *stubClient) Generate(ctx context.Context, messages []llm.Message) (llm.Response, error) {
	s.calls++
	if s.err != nil {
		return llm.Response{}, s.err
	}
	return llm.Response{Content: s.content, Model: "stub"}, nil
}

type hangingClient struct{}

func (hangingClient) Generate(ctx context.Context, messages []llm.Message) (llm.Response, error) {
	<-ctx.Done()
	return llm.Response{}, ctx.Err()
}

func history(texts ...string) []llm.Message {
	var out []llm.Message
	role := "user"
	for _, t := range texts {
		out = append(out, llm.Message{Role: role, Content: t})
		if role == "user" {
			role = "assistant"
		} else {
			role = "user"
		}
	}
	return out
}

func TestEmptyChainIsPureRuleFallback(t *testing.T) {
	engine := rules.NewEngine()
	r := New(nil, engine, "prompt", time.Second)

	histories := [][]llm.Message{
		history("hola"),
		history("hola", rules.MainMenu, "quiero activar mi tarjeta"),
		history("hola", rules.MainMenu, "me robaron mi tarjeta"),
	}
	for _, h := range histories {
		got, source := r.Resolve(context.Background(), h, "u1")
		if source != SourceRules {
			t.Fatalf("expected rules source, got %q", source)
		}
		if want := engine.Resolve(h); got != want {
			t.Fatalf("disabled AI must equal rule engine: got %q want %q", got, want)
		}
	}
}

func TestProviderSuccess(t *testing.T) {
	stub := &stubClient{content: "  Con gusto le ayudo.  "}
	r := New([]llm.Client{stub}, rules.NewEngine(), "prompt", time.Second)

	got, source := r.Resolve(context.Background(), history("hola"), "u1")
	if got != "Con gusto le ayudo." {
		t.Fatalf("expected trimmed provider output, got %q", got)
	}
	if source != "stub" {
		t.Fatalf("expected provider model as source, got %q", source)
	}
}

func TestProviderErrorFallsBackToRules(t *testing.T) {
	stub := &stubClient{err: errors.New("rate limited")}
	engine := rules.NewEngine()
	r := New([]llm.Client{stub}, engine, "prompt", time.Second)

	h := history("hola")
	got, source := r.Resolve(context.Background(), h, "u1")
	if source != SourceRules {
		t.Fatalf("expected fallback to rules, got source %q", source)
	}
	if got != engine.Resolve(h) {
		t.Fatalf("fallback reply must equal rule engine output")
	}
	if stub.calls != 1 {
		t.Fatalf("provider must be tried exactly once, got %d calls", stub.calls)
	}
}

func TestBlankProviderOutputIsFailure(t *testing.T) {
	stub := &stubClient{content: "   \n\t "}
	engine := rules.NewEngine()
	r := New([]llm.Client{stub}, engine, "prompt", time.Second)

	h := history("hola")
	got, source := r.Resolve(context.Background(), h, "u1")
	if source != SourceRules || got != engine.Resolve(h) {
		t.Fatalf("whitespace-only output must trigger rule fallback, got %q from %q", got, source)
	}
}

func TestChainOrderAndFallthrough(t *testing.T) {
	first := &stubClient{err: errors.New("down")}
	second := &stubClient{content: "respuesta secundaria"}
	r := New([]llm.Client{first, second}, rules.NewEngine(), "", time.Second)

	got, _ := r.Resolve(context.Background(), history("hola"), "u1")
	if got != "respuesta secundaria" {
		t.Fatalf("expected second provider to answer, got %q", got)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("expected one call per provider, got %d and %d", first.calls, second.calls)
	}
}

func TestProviderTimeoutFallsBack(t *testing.T) {
	engine := rules.NewEngine()
	r := New([]llm.Client{hangingClient{}}, engine, "", 20*time.Millisecond)

	h := history("hola")
	start := time.Now()
	got, source := r.Resolve(context.Background(), h, "u1")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("timeout not enforced, took %v", elapsed)
	}
	if source != SourceRules || got != engine.Resolve(h) {
		t.Fatalf("timed-out provider must fall back to rules")
	}
}
