package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"

	"trading-alerts/internal/logger"
	"trading-alerts/internal/model"
)

type fakePublisher struct {
	events []model.TriggerEvent
	err    error
}

func (p *fakePublisher) PublishTrigger(_ context.Context, ev model.TriggerEvent) error {
	p.events = append(p.events, ev)
	return p.err
}
func (p *fakePublisher) Close() error { return nil }

type countRecorder struct {
	mu     sync.Mutex
	ok     map[string]int
	failed map[string]int
}

func newCountRecorder() *countRecorder {
	return &countRecorder{ok: map[string]int{}, failed: map[string]int{}}
}

func (r *countRecorder) NotificationSent(channel string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failed[channel]++
		return
	}
	r.ok[channel]++
}

func alertWith(ch model.NotificationChannels) model.Alert {
	return model.Alert{ID: "a1", Symbol: "AAPL", Indicator: "RSI", Condition: model.LessThan, Threshold: 30, Channels: ch, Active: true}
}

func deliveries(ds []Delivery) map[string]error {
	m := map[string]error{}
	for _, d := range ds {
		m[d.Channel] = d.Err
	}
	return m
}

func TestDispatch_AppAndPublishers(t *testing.T) {
	inbox := NewInbox(10)
	pub := &fakePublisher{}
	rec := newCountRecorder()
	d := NewDispatcher(Config{Inbox: inbox, Publishers: []model.EventPublisher{pub}, Recorder: rec}, logger.Discard())

	out := d.Dispatch(context.Background(), alertWith(model.NotificationChannels{App: true}), event("a1"))

	got := deliveries(out)
	for _, ch := range []string{ChannelLog, ChannelApp, ChannelEvents} {
		if err, ok := got[ch]; !ok || err != nil {
			t.Errorf("channel %s: present=%v err=%v", ch, ok, err)
		}
	}
	if inbox.Len() != 1 || len(pub.events) != 1 {
		t.Errorf("inbox=%d published=%d", inbox.Len(), len(pub.events))
	}
	if rec.ok[ChannelApp] != 1 {
		t.Errorf("recorder ok=%v", rec.ok)
	}
}

func TestDispatch_FailureIsolated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	inbox := NewInbox(10)
	pub := &fakePublisher{err: errors.New("broker down")}
	d := NewDispatcher(Config{
		Inbox:      inbox,
		Webhook:    NewWebhookSender(time.Second),
		Publishers: []model.EventPublisher{pub},
	}, logger.Discard())

	out := d.Dispatch(context.Background(), alertWith(model.NotificationChannels{App: true, Webhook: srv.URL}), event("a1"))
	got := deliveries(out)
	if got[ChannelWebhook] == nil {
		t.Error("expected webhook failure")
	}
	if got[ChannelEvents] == nil {
		t.Error("expected publisher failure")
	}
	if inbox.Len() != 1 {
		t.Error("app channel must still deliver")
	}
}

func TestDispatch_WebhookPayloadAndDefault(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %s", r.Header.Get("Content-Type"))
		}
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ns := model.NotificationSettings{Webhook: model.WebhookSettings{Enabled: true, DefaultURL: srv.URL}}
	d := NewDispatcher(Config{
		Settings: func() model.NotificationSettings { return ns },
		Webhook:  NewWebhookSender(time.Second),
	}, logger.Discard())

	out := d.Dispatch(context.Background(), alertWith(model.NotificationChannels{Webhook: DefaultDestination}), event("a1"))
	if err := deliveries(out)[ChannelWebhook]; err != nil {
		t.Fatalf("webhook: %v", err)
	}
	for _, k := range []string{"alert_id", "symbol", "indicator", "condition", "threshold", "current_value", "triggered_at"} {
		if _, ok := body[k]; !ok {
			t.Errorf("payload missing %s", k)
		}
	}
	if body["current_value"].(float64) != 25 {
		t.Errorf("current_value = %v", body["current_value"])
	}

	ns.Webhook.DefaultURL = ""
	out = d.Dispatch(context.Background(), alertWith(model.NotificationChannels{Webhook: DefaultDestination}), event("a1"))
	if !errors.Is(deliveries(out)[ChannelWebhook], errNoDefaultURL) {
		t.Error("expected errNoDefaultURL")
	}
}

func TestDispatch_EmailGatedBySettings(t *testing.T) {
	var sent []string
	es := NewEmailSender()
	es.sendMail = func(_ context.Context, addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, addr+"|"+from+"|"+to[0]+"|"+string(msg))
		return nil
	}

	ns := model.NotificationSettings{Email: model.EmailSettings{
		Enabled: false, SMTPServer: "smtp.example.com", SMTPPort: 587, Username: "u", Password: "p", FromEmail: "alerts@example.com",
	}}
	d := NewDispatcher(Config{Settings: func() model.NotificationSettings { return ns }, Email: es}, logger.Discard())
	a := alertWith(model.NotificationChannels{Email: "trader@example.com"})

	out := d.Dispatch(context.Background(), a, event("a1"))
	if !errors.Is(deliveries(out)[ChannelEmail], errEmailDisabled) || len(sent) != 0 {
		t.Fatalf("disabled email must not send: %v", sent)
	}

	ns.Email.Enabled = true
	out = d.Dispatch(context.Background(), a, event("a1"))
	if err := deliveries(out)[ChannelEmail]; err != nil {
		t.Fatalf("email: %v", err)
	}
	if len(sent) != 1 {
		t.Fatalf("sent %d emails", len(sent))
	}
	msg := sent[0]
	if !strings.HasPrefix(msg, "smtp.example.com:587|alerts@example.com|trader@example.com|") {
		t.Errorf("envelope = %q", msg[:60])
	}
	if !strings.Contains(msg, "Subject: Alert: AAPL - RSI") || !strings.Contains(msg, "text/html") {
		t.Errorf("message headers missing: %s", msg)
	}
}

func TestDispatch_Telegram(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}))
	defer srv.Close()

	ns := model.NotificationSettings{Telegram: model.TelegramSettings{Enabled: true, BotToken: "123:abc", DefaultChatID: "42"}}
	d := NewDispatcher(Config{
		Settings: func() model.NotificationSettings { return ns },
		Telegram: NewTelegramSender(10, bot.WithServerURL(srv.URL)),
	}, logger.Discard())

	out := d.Dispatch(context.Background(), alertWith(model.NotificationChannels{Telegram: DefaultDestination}), event("a1"))
	if err := deliveries(out)[ChannelTelegram]; err != nil {
		t.Fatalf("telegram: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 1 || paths[0] != "/bot123:abc/sendMessage" {
		t.Errorf("paths = %v", paths)
	}

	ns.Telegram.Enabled = false
	out = d.Dispatch(context.Background(), alertWith(model.NotificationChannels{Telegram: "42"}), event("a1"))
	if !errors.Is(deliveries(out)[ChannelTelegram], errTelegramOff) {
		t.Error("expected errTelegramOff")
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("RSI(14) < 30.5!"); got != `RSI\(14\) < 30\.5\!` {
		t.Errorf("got %q", got)
	}
}
