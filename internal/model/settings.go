package model

import "fmt"

// EmailSettings configures the SMTP transport.
type EmailSettings struct {
	Enabled    bool   `json:"enabled"`
	SMTPServer string `json:"smtp_server"`
	SMTPPort   int    `json:"smtp_port"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	FromEmail  string `json:"from_email"`
}

// WebhookSettings configures the webhook transport.
type WebhookSettings struct {
	Enabled    bool   `json:"enabled"`
	DefaultURL string `json:"default_url"`
}

// TelegramSettings configures the Telegram transport.
type TelegramSettings struct {
	Enabled       bool   `json:"enabled"`
	BotToken      string `json:"bot_token"`
	DefaultChatID string `json:"default_chat_id"`
}

// NotificationSettings holds per-channel transport configuration.
type NotificationSettings struct {
	Email    EmailSettings    `json:"email"`
	Webhook  WebhookSettings  `json:"webhook"`
	Telegram TelegramSettings `json:"telegram"`
}

// Settings is the process-wide engine configuration that users can change
// at runtime.
type Settings struct {
	CheckInterval        int                  `json:"check_interval"` // seconds between sweeps
	AutoCheck            bool                 `json:"auto_check"`
	NotificationSettings NotificationSettings `json:"notification_settings"`
}

// DefaultSettings returns the settings used on first start.
func DefaultSettings() Settings {
	return Settings{
		CheckInterval: 60,
		AutoCheck:     true,
		NotificationSettings: NotificationSettings{
			Email: EmailSettings{SMTPPort: 587},
		},
	}
}

// Validate checks the invariants of the settings.
func (s Settings) Validate() error {
	if s.CheckInterval <= 0 {
		return fmt.Errorf("%w: check_interval must be positive, got %d", ErrInvalid, s.CheckInterval)
	}
	if p := s.NotificationSettings.Email.SMTPPort; p < 0 || p > 65535 {
		return fmt.Errorf("%w: smtp_port out of range: %d", ErrInvalid, p)
	}
	return nil
}
