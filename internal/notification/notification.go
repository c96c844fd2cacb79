package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"upbit-trading-bot/internal/events"
)

// Type classifies a notification
type Type string

const (
	NotifyTrade   Type = "trade"
	NotifyExit    Type = "exit"
	NotifyBreaker Type = "breaker"
	NotifyScan    Type = "scan"
	NotifyError   Type = "error"
)

// Notification is one outgoing message
type Notification struct {
	Type      Type
	Title     string
	Message   string
	Ticker    string
	Price     float64
	Pnl       float64
	Timestamp time.Time
}

// Notifier is one delivery channel
type Notifier interface {
	Send(n *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager fans notifications out to all enabled channels
type Manager struct {
	notifiers []Notifier
}

// NewManager creates an empty manager
func NewManager() *Manager {
	return &Manager{}
}

// AddNotifier registers a channel
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send delivers to every enabled channel, returning the last error
func (m *Manager) Send(n *Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	var lastErr error
	for _, notifier := range m.notifiers {
		if !notifier.IsEnabled() {
			continue
		}
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// SendTradeExecuted announces a filled order
func (m *Manager) SendTradeExecuted(ticker, side string, price, total float64) error {
	return m.Send(&Notification{
		Type:    NotifyTrade,
		Title:   fmt.Sprintf("Trade: %s %s", side, ticker),
		Message: fmt.Sprintf("%s %s\nPrice: %.2f\nNotional: %.0f", side, ticker, price, total),
		Ticker:  ticker,
		Price:   price,
	})
}

// SendPositionExited announces a closed position with its trigger
func (m *Manager) SendPositionExited(ticker, trigger string, pnl float64) error {
	return m.Send(&Notification{
		Type:    NotifyExit,
		Title:   fmt.Sprintf("Exit: %s (%s)", ticker, trigger),
		Message: fmt.Sprintf("%s closed by %s\nRealised pnl: %.0f", ticker, trigger, pnl),
		Ticker:  ticker,
		Pnl:     pnl,
	})
}

// SendCircuitBreaker announces a trading block
func (m *Manager) SendCircuitBreaker(reason string) error {
	return m.Send(&Notification{
		Type:    NotifyBreaker,
		Title:   "Trading blocked",
		Message: reason,
	})
}

// SendError announces a component failure
func (m *Manager) SendError(title, message string) error {
	return m.Send(&Notification{
		Type:    NotifyError,
		Title:   title,
		Message: message,
	})
}

// BindBus subscribes the manager to the event bus so trade, exit, breaker
// and error events reach every channel without the pipeline knowing about
// notifications
func (m *Manager) BindBus(bus *events.Bus) {
	bus.Subscribe(events.EventTradeExecuted, func(e events.Event) {
		ticker, _ := e.Data["ticker"].(string)
		side, _ := e.Data["side"].(string)
		price, _ := e.Data["price"].(float64)
		total, _ := e.Data["total"].(float64)
		m.SendTradeExecuted(ticker, side, price, total)
	})
	bus.Subscribe(events.EventPositionExited, func(e events.Event) {
		ticker, _ := e.Data["ticker"].(string)
		trigger, _ := e.Data["trigger"].(string)
		pnl, _ := e.Data["pnl"].(float64)
		m.SendPositionExited(ticker, trigger, pnl)
	})
	bus.Subscribe(events.EventCircuitBreaker, func(e events.Event) {
		reason, _ := e.Data["reason"].(string)
		m.SendCircuitBreaker(reason)
	})
	bus.Subscribe(events.EventError, func(e events.Event) {
		source, _ := e.Data["source"].(string)
		message, _ := e.Data["message"].(string)
		m.SendError("Error in "+source, message)
	})
}

// TelegramConfig holds Telegram channel settings
type TelegramConfig struct {
	BotToken string `json:"bot_token" yaml:"bot_token"`
	ChatID   string `json:"chat_id" yaml:"chat_id"`
	Enabled  bool   `json:"enabled" yaml:"enabled"`
}

// TelegramNotifier sends messages through the Telegram bot API
type TelegramNotifier struct {
	cfg     TelegramConfig
	enabled bool
	client  *http.Client
}

// NewTelegramNotifier creates the channel; missing token or chat disables it
func NewTelegramNotifier(cfg TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		cfg:     cfg,
		enabled: cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) IsEnabled() bool { return t.enabled }

func (t *TelegramNotifier) Send(n *Notification) error {
	if !t.enabled {
		return nil
	}

	payload := map[string]any{
		"chat_id":    t.cfg.ChatID,
		"text":       fmt.Sprintf("*%s*\n\n%s", n.Title, n.Message),
		"parse_mode": "Markdown",
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notification: marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.cfg.BotToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(raw))
	if err != nil {
		return fmt.Errorf("notification: telegram send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notification: telegram status %d", resp.StatusCode)
	}
	return nil
}

// DiscordConfig holds Discord webhook settings
type DiscordConfig struct {
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
	Enabled    bool   `json:"enabled" yaml:"enabled"`
}

// DiscordNotifier sends messages through a Discord webhook
type DiscordNotifier struct {
	cfg     DiscordConfig
	enabled bool
	client  *http.Client
}

// NewDiscordNotifier creates the channel; a missing URL disables it
func NewDiscordNotifier(cfg DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		cfg:     cfg,
		enabled: cfg.Enabled && cfg.WebhookURL != "",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string { return "discord" }

func (d *DiscordNotifier) IsEnabled() bool { return d.enabled }

func (d *DiscordNotifier) Send(n *Notification) error {
	if !d.enabled {
		return nil
	}

	color := 0x2ECC71
	if n.Type == NotifyError || n.Type == NotifyBreaker || n.Pnl < 0 {
		color = 0xE74C3C
	}

	embed := map[string]any{
		"title":       n.Title,
		"description": n.Message,
		"color":       color,
		"timestamp":   n.Timestamp.Format(time.RFC3339),
	}
	if n.Ticker != "" {
		fields := []map[string]any{
			{"name": "Ticker", "value": n.Ticker, "inline": true},
		}
		if n.Price > 0 {
			fields = append(fields, map[string]any{"name": "Price", "value": fmt.Sprintf("%.2f", n.Price), "inline": true})
		}
		if n.Pnl != 0 {
			fields = append(fields, map[string]any{"name": "Pnl", "value": fmt.Sprintf("%.0f", n.Pnl), "inline": true})
		}
		embed["fields"] = fields
	}

	raw, err := json.Marshal(map[string]any{"embeds": []map[string]any{embed}})
	if err != nil {
		return fmt.Errorf("notification: marshal discord payload: %w", err)
	}

	resp, err := d.client.Post(d.cfg.WebhookURL, "application/json", bytes.NewBuffer(raw))
	if err != nil {
		return fmt.Errorf("notification: discord send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("notification: discord status %d", resp.StatusCode)
	}
	return nil
}
