package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/newthinker/equicurve/internal/notifier"
)

const defaultAPIBase = "https://api.telegram.org"

// Telegram sends events as chat messages through the Bot API.
type Telegram struct {
	name     string
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

// New creates a new Telegram notifier
func New(name, botToken, chatID string) *Telegram {
	if name == "" {
		name = "telegram"
	}
	return &Telegram{
		name:     name,
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (t *Telegram) Name() string {
	return t.name
}

func (t *Telegram) Send(ctx context.Context, ev notifier.Event) error {
	return t.sendMessage(ctx, formatEvent(ev))
}

func formatEvent(ev notifier.Event) string {
	var sb strings.Builder

	switch ev.Type {
	case notifier.EventBatchIngested:
		sb.WriteString("📥 *Batch ingested*\n")
	case notifier.EventRunCompleted:
		sb.WriteString("📈 *Portfolio run completed*\n")
	default:
		fmt.Fprintf(&sb, "🔔 *%s*\n", ev.Type)
	}

	if ev.UserID != "" {
		fmt.Fprintf(&sb, "👤 User: %s\n", ev.UserID)
	}

	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "• %s: %v\n", k, ev.Data[k])
	}

	sb.WriteString(fmt.Sprintf("⏰ Time: %s", ev.OccurredAt.Format("2006-01-02 15:04:05")))
	return sb.String()
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)

	payload := map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var result map[string]any
		json.NewDecoder(resp.Body).Decode(&result)
		return fmt.Errorf("telegram: API error (status %d): %v", resp.StatusCode, result)
	}

	return nil
}
