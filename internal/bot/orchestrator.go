package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"credibot/internal/llm"
	"credibot/internal/messenger"
	"credibot/internal/resolver"
	"credibot/internal/session"
	"credibot/internal/storage"
)

const (
	KindText  = "text"
	KindAudio = "audio"
	KindImage = "image"
)

const apology = "⚠️ Lo siento, estoy teniendo problemas técnicos. Por favor intenta más tarde."

// DefaultClosingPhrases are the despedidas that end a session when found in
// the latest user turn.
var DefaultClosingPhrases = []string{
	"gracias",
	"hasta luego",
	"nos vemos",
	"nos hablamos",
	"eso es todo",
	"adiós",
	"adios",
}

// Inbound is a normalized incoming message. Audio and image deliveries reach
// the orchestrator already converted to text by the transport layer.
type Inbound struct {
	UserID string
	Text   string
	Kind   string
}

// Archiver persists the transcript of a session that ended on a closing
// phrase. Best effort: archival failures never affect the conversation.
type Archiver interface {
	Archive(ctx context.Context, userID string, history []session.Turn) error
}

// Responder derives a reply and its source from the conversation history.
// *resolver.Resolver satisfies it.
type Responder interface {
	Resolve(ctx context.Context, history []llm.Message, userID string) (reply, source string)
}

// Orchestrator runs the per-message pipeline: session load, user turn,
// typing indicator, reply resolution, assistant turn, dispatch, termination.
type Orchestrator struct {
	store    *session.Store
	resolver Responder
	sender   messenger.Sender
	recorder storage.Recorder
	archiver Archiver
	closings []string
}

func New(store *session.Store, res Responder, sender messenger.Sender, recorder storage.Recorder, archiver Archiver, closings []string) *Orchestrator {
	if len(closings) == 0 {
		closings = DefaultClosingPhrases
	}
	return &Orchestrator{
		store:    store,
		resolver: res,
		sender:   sender,
		recorder: recorder,
		archiver: archiver,
		closings: closings,
	}
}

// HandleMessage processes one inbound message. The session survives every
// failure: an unexpected panic is answered with a generic apology, a send
// failure is returned to the caller for retry at a higher layer.
func (o *Orchestrator) HandleMessage(ctx context.Context, in Inbound) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Error procesando mensaje de %s: %v", in.UserID, r)
			if sendErr := o.sender.Send(ctx, in.UserID, apology); sendErr != nil {
				log.Printf("❌ No se pudo enviar la disculpa a %s: %v", in.UserID, sendErr)
			}
			err = fmt.Errorf("orchestration failure: %v", r)
		}
	}()

	log.Printf("👤 %s: %s", in.UserID, in.Text)

	o.store.GetOrCreate(in.UserID)
	o.store.AppendTurn(in.UserID, "user", in.Text)

	o.sender.SetTyping(ctx, in.UserID, true)

	history := o.store.Messages(in.UserID)
	reply, source := o.resolver.Resolve(ctx, history, in.UserID)

	o.store.AppendTurn(in.UserID, "assistant", reply)
	o.sender.SetTyping(ctx, in.UserID, false)

	if err := o.sender.Send(ctx, in.UserID, reply); err != nil {
		log.Printf("❌ Error enviando mensaje a %s: %v", in.UserID, err)
		return fmt.Errorf("send reply: %w", err)
	}

	o.record(in, reply, source)

	if o.closedBy(in.UserID) {
		o.endSession(ctx, in.UserID)
	}
	return nil
}

// WarnInactive sends the one-time inactivity notice. Wired as the session
// store's warn notifier.
func (o *Orchestrator) WarnInactive(userID string) {
	notice := "¿Sigue ahí? Su sesión se cerrará por inactividad en unos segundos. Escriba cualquier mensaje para continuar."
	if err := o.sender.Send(context.Background(), userID, notice); err != nil {
		log.Printf("⚠️ No se pudo enviar aviso de inactividad a %s: %v", userID, err)
	}
}

func (o *Orchestrator) record(in Inbound, reply, source string) {
	if o.recorder == nil {
		return
	}
	ev := storage.Event{
		Timestamp:         time.Now().UTC(),
		UserID:            in.UserID,
		UserMessage:       in.Text,
		AssistantResponse: reply,
		Source:            source,
		Fallback:          source == resolver.SourceRules,
	}
	if err := o.recorder.AppendInteraction(ev); err != nil {
		log.Printf("⚠️ failed to record interaction: %v", err)
	}
}

// closedBy reports whether the latest user turn contains a closing phrase.
func (o *Orchestrator) closedBy(userID string) bool {
	history := o.store.Messages(userID)
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != "user" {
			continue
		}
		text := strings.ToLower(history[i].Content)
		for _, phrase := range o.closings {
			if strings.Contains(text, phrase) {
				return true
			}
		}
		return false
	}
	return false
}

func (o *Orchestrator) endSession(ctx context.Context, userID string) {
	if o.archiver != nil {
		sess := o.store.GetOrCreate(userID)
		if err := o.archiver.Archive(ctx, userID, sess.History); err != nil {
			log.Printf("⚠️ failed to archive session of %s: %v", userID, err)
		}
	}
	o.store.Terminate(userID)
	log.Printf("👋 Sesión de %s finalizada por despedida", userID)
}
