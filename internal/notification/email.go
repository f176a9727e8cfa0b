package notification

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strings"
	"time"

	"trading-alerts/internal/model"
)

// ErrEmailNotConfigured is returned when SMTP settings are incomplete.
var ErrEmailNotConfigured = errors.New("email: smtp settings incomplete")

var emailBody = template.Must(template.New("email").Parse(`<html>
<body>
  <h2>Alert triggered</h2>
  <ul>
    <li><strong>Symbol:</strong> {{.Symbol}}</li>
    <li><strong>Indicator:</strong> {{.Indicator}}</li>
    <li><strong>Condition:</strong> {{.Condition}} {{.Threshold}}</li>
    <li><strong>Current value:</strong> {{.Value}}</li>
    <li><strong>Timeframe:</strong> {{.Timeframe}}</li>
    <li><strong>Triggered at:</strong> {{.TriggeredAt}}</li>
  </ul>
  <p>This is an automatic notification, please do not reply.</p>
</body>
</html>
`))

// DefaultEmailTimeout bounds one SMTP exchange when ctx has no earlier
// deadline.
const DefaultEmailTimeout = 30 * time.Second

// EmailSender sends HTML alert emails over SMTP (STARTTLS when offered).
type EmailSender struct {
	Timeout  time.Duration
	sendMail func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailSender creates a sender using net/smtp.
func NewEmailSender() *EmailSender {
	e := &EmailSender{Timeout: DefaultEmailTimeout}
	e.sendMail = e.dialAndSend
	return e
}

// Send mails ev to the recipient using cfg.
func (e *EmailSender) Send(ctx context.Context, cfg model.EmailSettings, to string, ev model.TriggerEvent) error {
	if cfg.SMTPServer == "" || cfg.SMTPPort == 0 {
		return ErrEmailNotConfigured
	}
	from := cfg.FromEmail
	if from == "" {
		from = cfg.Username
	}

	msg, err := buildEmail(from, to, ev)
	if err != nil {
		return fmt.Errorf("email: build: %w", err)
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.SMTPServer)
	}
	addr := fmt.Sprintf("%s:%d", cfg.SMTPServer, cfg.SMTPPort)
	if err := e.sendMail(ctx, addr, auth, from, []string{to}, msg); err != nil {
		return fmt.Errorf("email: send to %s: %w", to, err)
	}
	return nil
}

// dialAndSend is smtp.SendMail bounded by ctx and e.Timeout. Cancelling ctx
// closes the connection.
func (e *EmailSender) dialAndSend(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer c.Close()
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("smtp: server doesn't support AUTH")
		}
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildEmail(from, to string, ev model.TriggerEvent) ([]byte, error) {
	var body strings.Builder
	err := emailBody.Execute(&body, map[string]string{
		"Symbol":      ev.Symbol,
		"Indicator":   indicatorLabel(ev),
		"Condition":   string(ev.Condition),
		"Threshold":   FormatValue(ev.Threshold),
		"Value":       FormatValue(ev.CurrentValue),
		"Timeframe":   ev.Timeframe,
		"TriggeredAt": ev.TriggeredAt.Format("2006-01-02 15:04:05 MST"),
	})
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", Title(ev))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(body.String())
	return []byte(b.String()), nil
}
