package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"credibot/internal/analytics"
	"credibot/internal/archive"
	"credibot/internal/bot"
	"credibot/internal/config"
	"credibot/internal/llm"
	"credibot/internal/messenger"
	"credibot/internal/resolver"
	"credibot/internal/rules"
	"credibot/internal/scheduler"
	"credibot/internal/session"
	"credibot/internal/storage"
	"credibot/internal/webhook"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	sender, err := newSender(cfg)
	if err != nil {
		log.Fatalf("failed to create messenger: %v", err)
	}

	chain := newLLMChain(cfg)
	systemPrompt := readSystemPrompt(cfg.SystemPromptPath)
	res := resolver.New(chain, rules.NewEngine(), systemPrompt, cfg.LLMTimeout)

	var rec storage.Recorder
	if cfg.LogFilePath != "" {
		fr, err := storage.NewFileRecorder(cfg.LogFilePath)
		if err != nil {
			log.Printf("failed to init file recorder: %v", err)
		} else {
			rec = fr
		}
	}

	var archiver bot.Archiver
	var transcripts *archive.RedisArchiver
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		transcripts = archive.NewRedis(client, cfg.ArchiveTTL)
		archiver = transcripts
		log.Printf("💾 Archivado de transcripciones habilitado en %s", cfg.RedisAddr)
	}

	// The warn notifier and the orchestrator reference each other; the store
	// is built first with a closure that resolves once wiring is complete.
	var orch *bot.Orchestrator
	store := session.NewStore(cfg.SessionTTL, cfg.SessionWarnGrace, cfg.HistoryLimit, func(userID string) {
		if orch != nil {
			orch.WarnInactive(userID)
		}
	})

	orch = bot.New(store, res, sender, rec, archiver, cfg.ClosingPhrases)

	sched := scheduler.New()
	sched.SetHeartbeatFunction(func(ctx context.Context) error {
		snapshot := store.Snapshot()
		log.Printf("💓 Sesiones activas: %d", len(snapshot))
		return nil
	})
	if rec != nil {
		sched.SetReportFunction(func(ctx context.Context) error {
			events, err := rec.LoadInteractions()
			if err != nil {
				return err
			}
			stats := analytics.AnalyzeDailyLogs(events, time.Now().UTC())
			log.Print(stats.GenerateReportSummary())
			return nil
		})
	}
	if err := sched.Start(); err != nil {
		log.Printf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	if cfg.Messenger == config.MessengerTelegram {
		tg := sender.(*messenger.Telegram)
		go tg.Listen(context.Background(), func(userID, text string) {
			in := bot.Inbound{UserID: userID, Text: text, Kind: bot.KindText}
			if err := orch.HandleMessage(context.Background(), in); err != nil {
				log.Printf("❌ Error procesando mensaje de telegram: %v", err)
			}
		})
		log.Printf("📱 Modo telegram: escuchando actualizaciones")
	}

	srv := webhook.NewServer(orch, store, sender, cfg.MetaVerifyToken, cfg.Port)
	if transcripts != nil {
		srv.SetTranscriptLoader(transcripts)
	}
	if err := srv.Start(); err != nil {
		log.Fatalf("webhook server stopped: %v", err)
	}
}

func newSender(cfg *config.Config) (messenger.Sender, error) {
	switch cfg.Messenger {
	case config.MessengerTelegram:
		return messenger.NewTelegram(cfg.TelegramBotToken)
	default:
		return messenger.NewWhatsApp(cfg.MetaAccessToken, cfg.MetaPhoneNumberID, cfg.MetaAPIBaseURL), nil
	}
}

// newLLMChain builds the provider chain. With AI disabled the chain is empty
// and every reply comes from the rule engine.
func newLLMChain(cfg *config.Config) []llm.Client {
	if !cfg.UseAI {
		log.Printf("🧩 IA deshabilitada, el bot responderá solo con reglas")
		return nil
	}
	chain := llm.NewFactory(cfg).CreateChain(cfg.LLMProviders)
	if len(chain) == 0 {
		log.Printf("⚠️ Ningún proveedor de IA disponible, el bot responderá solo con reglas")
	}
	return chain
}

func readSystemPrompt(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("system prompt file not found or unreadable at %s: %v", path, err)
		return ""
	}
	return string(data)
}
