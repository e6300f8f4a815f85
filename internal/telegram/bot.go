package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// DefaultAPIBase is the public Bot API endpoint
const DefaultAPIBase = "https://api.telegram.org"

// Bot sends messages to one chat through the Telegram Bot API
type Bot struct {
	botToken   string
	chatID     string
	apiBase    string
	httpClient *http.Client
}

// Config holds Telegram bot configuration
type Config struct {
	BotToken string
	ChatID   string
	// APIBase overrides DefaultAPIBase
	APIBase string
}

// apiResponse represents the response from Telegram API
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// NewBot creates a new Telegram bot instance
func NewBot(config Config) (*Bot, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	base := config.APIBase
	if base == "" {
		base = DefaultAPIBase
	}
	return &Bot{
		botToken:   config.BotToken,
		chatID:     config.ChatID,
		apiBase:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// ValidateConfig validates the Telegram bot configuration
func ValidateConfig(config Config) error {
	if config.BotToken == "" {
		return fmt.Errorf("telegram bot token is required")
	}
	if config.ChatID == "" {
		return fmt.Errorf("telegram chat ID is required")
	}
	return nil
}

// SendMessage sends an HTML formatted text message
func (b *Bot) SendMessage(ctx context.Context, message string) error {
	payload := map[string]interface{}{
		"chat_id":    b.chatID,
		"text":       message,
		"parse_mode": "HTML",
	}
	return b.sendJSON(ctx, "sendMessage", payload)
}

// SendPhoto sends a JPEG with an optional HTML caption
func (b *Bot) SendPhoto(ctx context.Context, photoData []byte, caption string) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("chat_id", b.chatID); err != nil {
		return fmt.Errorf("failed to write chat_id field: %w", err)
	}
	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return fmt.Errorf("failed to write caption field: %w", err)
		}
		if err := writer.WriteField("parse_mode", "HTML"); err != nil {
			return fmt.Errorf("failed to write parse_mode field: %w", err)
		}
	}

	part, err := writer.CreateFormFile("photo", "event.jpg")
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(photoData); err != nil {
		return fmt.Errorf("failed to write photo data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.methodURL("sendPhoto"), &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send photo: %w", err)
	}
	defer resp.Body.Close()

	return handleResponse(resp)
}

func (b *Bot) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", b.apiBase, b.botToken, method)
}

func (b *Bot) sendJSON(ctx context.Context, method string, payload map[string]interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.methodURL(method), bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	return handleResponse(resp)
}

func handleResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var r apiResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return fmt.Errorf("failed to unmarshal response (status %d): %w", resp.StatusCode, err)
	}
	if !r.OK {
		return fmt.Errorf("telegram API error %d: %s", r.ErrorCode, r.Description)
	}
	return nil
}
