package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type Messenger string

const (
	MessengerWhatsApp Messenger = "whatsapp"
	MessengerTelegram Messenger = "telegram"
)

type Config struct {
	// WhatsApp Cloud API (Meta)
	MetaAccessToken   string `env:"META_ACCESS_TOKEN"`
	MetaVerifyToken   string `env:"META_VERIFY_TOKEN"`
	MetaPhoneNumberID string `env:"META_PHONE_NUMBER_ID"`
	MetaAPIBaseURL    string `env:"META_API_BASE_URL" envDefault:"https://graph.facebook.com/v18.0"`

	// Messenger transport selection
	Messenger        Messenger `env:"MESSENGER" envDefault:"whatsapp"`
	TelegramBotToken string    `env:"TELEGRAM_BOT_TOKEN"`

	// LLM settings
	UseAI            bool     `env:"USE_AI" envDefault:"false"`
	LLMProviders     []string `env:"LLM_PROVIDERS" envSeparator:":" envDefault:"openai"`
	OpenAIAPIKey     string   `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string   `env:"OPENAI_BASE_URL"`
	OpenAIModel      string   `env:"OPENAI_MODEL" envDefault:"gpt-3.5-turbo"`
	YandexOAuthToken string   `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string   `env:"YANDEX_FOLDER_ID"`

	// Favor deterministic replies: the AI path should read like the rule
	// engine, not improvise.
	LLMTemperature float32       `env:"LLM_TEMPERATURE" envDefault:"0.2"`
	LLMMaxTokens   int           `env:"LLM_MAX_TOKENS" envDefault:"800"`
	LLMTimeout     time.Duration `env:"LLM_TIMEOUT" envDefault:"15s"`

	// Sessions
	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"5m"`
	SessionWarnGrace time.Duration `env:"SESSION_WARN_GRACE" envDefault:"3s"`
	HistoryLimit     int           `env:"HISTORY_LIMIT" envDefault:"12"`
	ClosingPhrases   []string      `env:"CLOSING_PHRASES" envSeparator:":"`

	// Prompts
	SystemPromptPath string `env:"SYSTEM_PROMPT_PATH" envDefault:"prompts/system_prompt.txt"`

	// Storage
	LogFilePath string        `env:"LOG_FILE_PATH" envDefault:"logs/log.jsonl"`
	RedisAddr   string        `env:"REDIS_ADDR"`
	ArchiveTTL  time.Duration `env:"ARCHIVE_TTL" envDefault:"720h"`

	// HTTP server
	Port int `env:"PORT" envDefault:"3000"`
}

func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}
