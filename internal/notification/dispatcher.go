package notification

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"trading-alerts/internal/model"
)

// Channel names as reported in deliveries and metrics.
const (
	ChannelLog      = "log"
	ChannelApp      = "app"
	ChannelEmail    = "email"
	ChannelWebhook  = "webhook"
	ChannelTelegram = "telegram"
	ChannelEvents   = "events"
)

// DefaultDestination selects the destination configured in settings.
const DefaultDestination = "default"

var (
	errEmailDisabled   = errors.New("email notifications disabled in settings")
	errNoDefaultURL    = errors.New("no default webhook url configured")
	errTelegramOff     = errors.New("telegram notifications disabled in settings")
	errNoDefaultChatID = errors.New("no default telegram chat configured")
)

// Delivery is the outcome of one channel send.
type Delivery struct {
	Channel string `json:"channel"`
	Target  string `json:"target,omitempty"`
	Err     error  `json:"-"`
}

// Recorder counts deliveries per channel.
type Recorder interface {
	NotificationSent(channel string, err error)
}

// Config lists the dispatcher's transports. A nil transport disables its
// channel.
type Config struct {
	Settings   func() model.NotificationSettings
	Inbox      *Inbox
	Email      *EmailSender
	Webhook    *WebhookSender
	Telegram   *TelegramSender
	Publishers []model.EventPublisher
	Recorder   Recorder
}

// Dispatcher fans a trigger out to the alert's channels. Channels are
// independent: a failure is logged and counted and the rest still run.
type Dispatcher struct {
	cfg Config
	log *logrus.Entry
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config, log *logrus.Entry) *Dispatcher {
	if cfg.Settings == nil {
		cfg.Settings = func() model.NotificationSettings { return model.NotificationSettings{} }
	}
	return &Dispatcher{cfg: cfg, log: log.WithField("component", "dispatcher")}
}

// Dispatch delivers ev for alert a and returns one entry per attempted
// channel.
func (d *Dispatcher) Dispatch(ctx context.Context, a model.Alert, ev model.TriggerEvent) []Delivery {
	ns := d.cfg.Settings()
	ch := a.Channels
	log := d.log.WithFields(logrus.Fields{"alert_id": a.ID, "symbol": a.Symbol})

	var out []Delivery
	record := func(channel, target string, err error) {
		out = append(out, Delivery{Channel: channel, Target: target, Err: err})
		if d.cfg.Recorder != nil {
			d.cfg.Recorder.NotificationSent(channel, err)
		}
		if err != nil {
			log.WithError(err).WithFields(logrus.Fields{"channel": channel, "target": target}).Warn("notification failed")
		}
	}

	log.WithFields(logrus.Fields{
		"indicator": ev.Indicator,
		"condition": ev.Condition,
		"threshold": ev.Threshold,
		"value":     ev.CurrentValue,
	}).Info(Message(ev))
	record(ChannelLog, "", nil)

	if ch.App && d.cfg.Inbox != nil {
		d.cfg.Inbox.Push(ev)
		record(ChannelApp, "", nil)
	}

	if ch.Email != "" && d.cfg.Email != nil {
		var err error
		if !ns.Email.Enabled {
			err = errEmailDisabled
		} else {
			err = d.cfg.Email.Send(ctx, ns.Email, ch.Email, ev)
		}
		record(ChannelEmail, ch.Email, err)
	}

	if ch.Webhook != "" && d.cfg.Webhook != nil {
		url, err := resolveWebhook(ch.Webhook, ns.Webhook)
		if err == nil {
			err = d.cfg.Webhook.Send(ctx, url, ev)
		}
		record(ChannelWebhook, url, err)
	}

	if ch.Telegram != "" && d.cfg.Telegram != nil {
		chatID, err := resolveTelegram(ch.Telegram, ns.Telegram)
		if err == nil {
			err = d.cfg.Telegram.Send(ctx, ns.Telegram.BotToken, chatID, ev)
		}
		record(ChannelTelegram, chatID, err)
	}

	for _, p := range d.cfg.Publishers {
		record(ChannelEvents, "", p.PublishTrigger(ctx, ev))
	}
	return out
}

// resolveWebhook maps the "default" destination to the configured URL.
// Explicit URLs are always used.
func resolveWebhook(dest string, ws model.WebhookSettings) (string, error) {
	if dest != DefaultDestination {
		return dest, nil
	}
	if !ws.Enabled || ws.DefaultURL == "" {
		return "", errNoDefaultURL
	}
	return ws.DefaultURL, nil
}

func resolveTelegram(dest string, ts model.TelegramSettings) (string, error) {
	if !ts.Enabled {
		return dest, errTelegramOff
	}
	if dest != DefaultDestination {
		return dest, nil
	}
	if ts.DefaultChatID == "" {
		return "", errNoDefaultChatID
	}
	return ts.DefaultChatID, nil
}
