package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// WhatsApp sends messages through the Meta Cloud API. Without credentials it
// degrades to logging the outgoing text, so the bot can run locally against
// the webhook alone.
type WhatsApp struct {
	accessToken   string
	phoneNumberID string
	baseURL       string
	httpClient    *http.Client
}

func NewWhatsApp(accessToken, phoneNumberID, baseURL string) *WhatsApp {
	return &WhatsApp{
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
}

type waText struct {
	Body string `json:"body"`
}

type waMessage struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Text             waText `json:"text"`
}

type waError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (w *WhatsApp) configured() bool {
	return w.accessToken != "" && w.phoneNumberID != ""
}

func (w *WhatsApp) Send(ctx context.Context, userID, text string) error {
	clean := strings.TrimSpace(text)
	if !w.configured() {
		log.Printf("(simulado) Enviar mensaje a %s: %s", userID, clean)
		return nil
	}

	payload, err := json.Marshal(waMessage{
		MessagingProduct: "whatsapp",
		To:               userID,
		Text:             waText{Body: clean},
	})
	if err != nil {
		return fmt.Errorf("marshal whatsapp message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", w.baseURL, w.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr waError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("whatsapp api error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("whatsapp api error (%d)", resp.StatusCode)
	}

	log.Printf("✅ Mensaje enviado correctamente a %s", userID)
	return nil
}

// SetTyping logs the indicator. The Cloud API has no first-class typing
// endpoint for business numbers, so this stays a local signal.
func (w *WhatsApp) SetTyping(ctx context.Context, userID string, typing bool) {
	state := "off"
	if typing {
		state = "on"
	}
	log.Printf("✍️ Indicador de typing para %s: %s", userID, state)
}
