// Package notify delivers sleep-onset alerts and answers Telegram bot commands.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrCooldown is returned when an alert with the same key was sent too recently.
var ErrCooldown = errors.New("notification cooldown period not yet elapsed")

// Notifier sends an alert, optionally with a JPEG snapshot.
type Notifier interface {
	Notify(ctx context.Context, key, text string, jpeg []byte) error
}

// Config holds Telegram bot configuration
type Config struct {
	Enabled         bool
	BotToken        string
	ChatID          string
	CooldownSeconds int
	APIBase         string // defaults to https://api.telegram.org
}

// ValidateConfig validates the Telegram bot configuration
func ValidateConfig(config Config) error {
	if config.Enabled {
		if config.BotToken == "" {
			return fmt.Errorf("telegram bot token is required when enabled")
		}
		if config.ChatID == "" {
			return fmt.Errorf("telegram chat ID is required when enabled")
		}
	}
	if config.CooldownSeconds < 0 {
		return fmt.Errorf("cooldown seconds cannot be negative")
	}
	return nil
}

// apiResponse represents the response from Telegram API
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// Telegram sends alerts through a Telegram bot.
type Telegram struct {
	botToken   string
	chatID     string
	apiBase    string
	enabled    bool
	httpClient *http.Client

	mu       sync.Mutex
	lastSent map[string]time.Time
	cooldown time.Duration
	now      func() time.Time
}

// NewTelegram creates a new Telegram notifier
func NewTelegram(config Config) *Telegram {
	cooldown := time.Duration(config.CooldownSeconds) * time.Second
	if cooldown == 0 {
		cooldown = 30 * time.Second
	}
	base := config.APIBase
	if base == "" {
		base = "https://api.telegram.org"
	}

	return &Telegram{
		botToken:   config.BotToken,
		chatID:     config.ChatID,
		apiBase:    strings.TrimRight(base, "/"),
		enabled:    config.Enabled,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		lastSent:   make(map[string]time.Time),
		cooldown:   cooldown,
		now:        time.Now,
	}
}

// IsEnabled returns whether the bot is enabled
func (tb *Telegram) IsEnabled() bool {
	return tb.enabled
}

// Notify sends text, as a photo caption when jpeg is present. Alerts sharing
// key are rate limited by the cooldown. A disabled notifier does nothing.
func (tb *Telegram) Notify(ctx context.Context, key, text string, jpeg []byte) error {
	if !tb.enabled {
		return nil
	}
	if tb.botToken == "" || tb.chatID == "" {
		return fmt.Errorf("telegram bot token or chat ID not configured")
	}

	tb.mu.Lock()
	if last, ok := tb.lastSent[key]; ok && tb.now().Sub(last) < tb.cooldown {
		tb.mu.Unlock()
		return ErrCooldown
	}
	tb.mu.Unlock()

	var err error
	if len(jpeg) > 0 {
		err = tb.sendPhoto(ctx, jpeg, text)
	} else {
		err = tb.sendMessage(ctx, text)
	}
	if err != nil {
		return err
	}

	tb.mu.Lock()
	tb.lastSent[key] = tb.now()
	tb.mu.Unlock()
	return nil
}

func (tb *Telegram) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", tb.apiBase, tb.botToken, method)
}

func (tb *Telegram) sendMessage(ctx context.Context, text string) error {
	payload := map[string]interface{}{
		"chat_id":    tb.chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tb.methodURL("sendMessage"), bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tb.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	return handleResponse(resp)
}

func (tb *Telegram) sendPhoto(ctx context.Context, photoData []byte, caption string) error {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	w.WriteField("chat_id", tb.chatID)
	w.WriteField("caption", caption)
	w.WriteField("parse_mode", "HTML")

	fw, err := w.CreateFormFile("photo", "frame.jpg")
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fw.Write(photoData); err != nil {
		return fmt.Errorf("failed to write photo data: %w", err)
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tb.methodURL("sendPhoto"), &b)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := tb.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send photo: %w", err)
	}
	defer resp.Body.Close()

	return handleResponse(resp)
}

// handleResponse processes the Telegram API response
func handleResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var telegramResp apiResponse
	if err := json.Unmarshal(body, &telegramResp); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !telegramResp.OK {
		return fmt.Errorf("telegram API error %d: %s", telegramResp.ErrorCode, telegramResp.Description)
	}
	return nil
}
