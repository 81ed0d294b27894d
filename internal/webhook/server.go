package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"credibot/internal/bot"
	"credibot/internal/messenger"
	"credibot/internal/session"
)

const version = "1.0.0"

const onlyTextNotice = "🤖 Por ahora solo puedo procesar mensajes de texto."

// Transcriber converts a voice note into text. Optional collaborator; when
// absent, audio messages get the text-only notice.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaID string) (string, error)
}

// ImageReader derives text from an image (model identification on photos
// of POS devices). Optional collaborator, same degradation as Transcriber.
type ImageReader interface {
	Describe(ctx context.Context, mediaID string) (string, error)
}

// TranscriptLoader retrieves archived transcripts of closed sessions.
// Optional collaborator; without it the /transcripts route answers 404.
type TranscriptLoader interface {
	Load(ctx context.Context, userID string) ([][]session.Turn, error)
}

// Server exposes the Meta webhook plus the operational endpoints: status
// snapshot, session wipe, health check.
type Server struct {
	orchestrator *bot.Orchestrator
	store        *session.Store
	sender       messenger.Sender
	transcriber  Transcriber
	imageReader  ImageReader
	transcripts  TranscriptLoader

	verifyToken string
	port        int
	startTime   time.Time
	server      *http.Server
}

func NewServer(orch *bot.Orchestrator, store *session.Store, sender messenger.Sender, verifyToken string, port int) *Server {
	return &Server{
		orchestrator: orch,
		store:        store,
		sender:       sender,
		verifyToken:  verifyToken,
		port:         port,
		startTime:    time.Now(),
	}
}

// SetTranscriber installs the voice-note collaborator.
func (s *Server) SetTranscriber(t Transcriber) { s.transcriber = t }

// SetImageReader installs the image collaborator.
func (s *Server) SetImageReader(r ImageReader) { s.imageReader = r }

// SetTranscriptLoader installs the archive collaborator.
func (s *Server) SetTranscriptLoader(l TranscriptLoader) { s.transcripts = l }

func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/transcripts", s.handleTranscripts)
	mux.HandleFunc("/image/specs", s.handleImageSpecs)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleStatus)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("🚀 Webhook del bot escuchando en el puerto %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Meta webhook payload, trimmed to the fields the bridge consumes.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []inboundMessage  `json:"messages"`
				Statuses []json.RawMessage `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	From string `json:"from"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
	Audio *struct {
		ID string `json:"id"`
	} `json:"audio"`
	Image *struct {
		ID string `json:"id"`
	} `json:"image"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.verifyWebhook(w, r)
	case http.MethodPost:
		s.receiveWebhook(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// verifyWebhook answers Meta's subscription challenge.
func (s *Server) verifyWebhook(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	log.Printf("🔐 Verificando webhook... mode=%s", mode)
	if mode == "subscribe" && token == s.verifyToken {
		log.Printf("✅ Webhook verificado correctamente")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}
	log.Printf("❌ Error en verificación del webhook")
	w.WriteHeader(http.StatusForbidden)
}

func (s *Server) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	deliveryID := uuid.NewString()
	log.Printf("📨 Webhook recibido [%s]", deliveryID)

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || len(payload.Entry) == 0 {
		// Malformed deliveries are acknowledged as a no-op so Meta stops retrying.
		log.Printf("⚠️ [%s] Estructura de webhook inválida", deliveryID)
		w.WriteHeader(http.StatusOK)
		return
	}

	entry := payload.Entry[0]
	if len(entry.Changes) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}
	value := entry.Changes[0].Value

	if len(value.Messages) == 0 {
		kind := "other"
		if len(value.Statuses) > 0 {
			kind = "status"
		}
		log.Printf("📢 [%s] Evento de webhook (no mensaje): %s", deliveryID, kind)
		w.WriteHeader(http.StatusOK)
		return
	}

	in, ok := s.normalize(r.Context(), deliveryID, value.Messages[0])
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := s.orchestrator.HandleMessage(r.Context(), in); err != nil {
		log.Printf("❌ [%s] Error procesando webhook: %v", deliveryID, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// normalize turns a raw transport message into the (userId, text, kind)
// triple the orchestrator accepts. Voice and image messages are converted to
// text through their collaborators when configured.
func (s *Server) normalize(ctx context.Context, deliveryID string, msg inboundMessage) (bot.Inbound, bool) {
	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return bot.Inbound{}, false
		}
		return bot.Inbound{UserID: msg.From, Text: msg.Text.Body, Kind: bot.KindText}, true

	case "audio":
		if s.transcriber == nil || msg.Audio == nil {
			s.declineMedia(ctx, deliveryID, msg)
			return bot.Inbound{}, false
		}
		text, err := s.transcriber.Transcribe(ctx, msg.Audio.ID)
		if err != nil {
			log.Printf("❌ [%s] Transcripción falló: %v", deliveryID, err)
			s.declineMedia(ctx, deliveryID, msg)
			return bot.Inbound{}, false
		}
		return bot.Inbound{UserID: msg.From, Text: text, Kind: bot.KindAudio}, true

	case "image":
		if s.imageReader == nil || msg.Image == nil {
			s.declineMedia(ctx, deliveryID, msg)
			return bot.Inbound{}, false
		}
		text, err := s.imageReader.Describe(ctx, msg.Image.ID)
		if err != nil {
			log.Printf("❌ [%s] Lectura de imagen falló: %v", deliveryID, err)
			s.declineMedia(ctx, deliveryID, msg)
			return bot.Inbound{}, false
		}
		return bot.Inbound{UserID: msg.From, Text: text, Kind: bot.KindImage}, true

	default:
		s.declineMedia(ctx, deliveryID, msg)
		return bot.Inbound{}, false
	}
}

func (s *Server) declineMedia(ctx context.Context, deliveryID string, msg inboundMessage) {
	log.Printf("📎 [%s] Mensaje de tipo: %s", deliveryID, msg.Type)
	if err := s.sender.Send(ctx, msg.From, onlyTextNotice); err != nil {
		log.Printf("⚠️ [%s] No se pudo avisar al usuario: %v", deliveryID, err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	snapshot := s.store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "🟢 Bot activo",
		"version":          version,
		"users_activos":    len(snapshot),
		"sesiones_totales": snapshot,
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	removed := s.store.Clear()
	log.Printf("🧹 Sesiones limpiadas: %d", removed)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":             "Sesiones limpiadas",
		"sesiones_eliminadas": removed,
	})
}

// handleTranscripts returns the archived conversations of one user, an
// operator diagnostic over the Redis archive.
func (s *Server) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.transcripts == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "archivo de transcripciones no configurado"})
		return
	}
	userID := r.URL.Query().Get("usuario")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "usuario requerido"})
		return
	}
	transcripts, err := s.transcripts.Load(r.Context(), userID)
	if err != nil {
		log.Printf("❌ Error cargando transcripciones de %s: %v", userID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "no se pudieron cargar las transcripciones"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"usuario":         userID,
		"total":           len(transcripts),
		"transcripciones": transcripts,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startTime).String(),
	})
}

// handleImageSpecs is kept for compatibility with the deployed API surface.
// OCR extraction is not configured in this deployment.
func (s *Server) handleImageSpecs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		ImageBase64 string `json:"imageBase64"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ImageBase64 == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "imageBase64 requerido"})
		return
	}
	writeJSON(w, http.StatusNotImplemented, map[string]any{
		"error":   "not_implemented",
		"message": "Extracción de texto de imágenes no configurada. Configure un servicio OCR para habilitar esta ruta.",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("⚠️ failed to encode response: %v", err)
	}
}
