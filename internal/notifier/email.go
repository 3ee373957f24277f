package notifier

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/watchpost/watchpost/internal/config"
	"github.com/watchpost/watchpost/internal/events"
	"github.com/watchpost/watchpost/internal/metrics"
	"github.com/watchpost/watchpost/internal/storage"
)

// eventColors drive the header color of the HTML body.
var eventColors = map[string]string{
	events.IncidentCreated:   "#f87171",
	events.IncidentReminder:  "#fb923c",
	events.IncidentEscalated: "#c084fc",
	events.IncidentResolved:  "#34d399",
	events.MonitorDegraded:   "#fbbf24",
	events.MonitorRecovered:  "#34d399",
}

func colorFor(event string) string {
	if c, ok := eventColors[event]; ok {
		return c
	}
	return "#818cf8"
}

func (s *Service) deliverEmail(event string, mon *storage.Monitor, inc *storage.Incident, ch *storage.NotificationChannel) {
	if !s.smtp.Enabled() {
		s.logger.Warn("email channel configured but smtp is not", "channel_id", ch.ID)
		return
	}
	to := ch.Config.Address
	if _, err := mail.ParseAddress(to); err != nil {
		s.logger.Warn("skipping invalid email address", "channel_id", ch.ID, "address", to)
		return
	}

	msg, err := buildEmail(s.smtp.From, to, event, mon, inc)
	if err != nil {
		s.logger.Error("build email", "channel_id", ch.ID, "error", err)
		return
	}
	if err := sendSMTP(s.smtp, to, msg); err != nil {
		metrics.NotificationsTotal.WithLabelValues(storage.ChannelEmail, "failed").Inc()
		s.logger.Warn("email delivery failed", "channel_id", ch.ID, "address", to, "error", err)
		return
	}
	metrics.NotificationsTotal.WithLabelValues(storage.ChannelEmail, "success").Inc()
	s.logger.Debug("email delivered", "channel_id", ch.ID, "event", event)
}

// buildEmail assembles a multipart/alternative message with a plain text
// part and an inline-styled HTML part.
func buildEmail(from, to, event string, mon *storage.Monitor, inc *storage.Incident) ([]byte, error) {
	meta := metaFor(event)
	subject := fmt.Sprintf("%s [Watchpost] %s — %s", meta.Emoji, meta.Label, mon.Name)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", sanitizeHeader(from))
	fmt.Fprintf(&buf, "To: %s\r\n", sanitizeHeader(to))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", sanitizeHeader(subject)))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n", mw.Boundary())
	fmt.Fprintf(&buf, "\r\n")

	text, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=UTF-8"}})
	if err != nil {
		return nil, err
	}
	fmt.Fprint(text, textBody(event, mon, inc))

	htmlPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=UTF-8"}})
	if err != nil {
		return nil, err
	}
	fmt.Fprint(htmlPart, buildHTMLBody(event, mon, inc))

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sanitizeHeader strips CR and LF so user-controlled values cannot
// inject extra headers.
func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

func textBody(event string, mon *storage.Monitor, inc *storage.Incident) string {
	meta := metaFor(event)
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\r\n", meta.Label, mon.Name)
	fmt.Fprintf(&b, "Target: %s\r\n", mon.URL)
	fmt.Fprintf(&b, "Status: %s\r\n", mon.CurrentStatus)
	if inc != nil {
		if inc.Cause != "" {
			fmt.Fprintf(&b, "Cause: %s\r\n", inc.Cause)
		}
		fmt.Fprintf(&b, "Started: %s\r\n", inc.StartedAt.UTC().Format(storage.TimeFormat))
		if inc.ResolvedAt != nil {
			fmt.Fprintf(&b, "Resolved: %s\r\n", inc.ResolvedAt.UTC().Format(storage.TimeFormat))
		}
	}
	return b.String()
}

// buildHTMLBody renders a compact inline-styled table with a color-coded
// header row. All user-controlled fields are escaped.
func buildHTMLBody(event string, mon *storage.Monitor, inc *storage.Incident) string {
	meta := metaFor(event)
	color := colorFor(event)

	row := func(label, value string) string {
		if value == "" {
			return ""
		}
		return fmt.Sprintf(
			`<tr><td style="padding:6px 12px;color:#6b7280;white-space:nowrap">%s</td>`+
				`<td style="padding:6px 12px;color:#111827">%s</td></tr>`,
			label, html.EscapeString(value))
	}

	var rows strings.Builder
	rows.WriteString(row("Monitor", mon.Name))
	rows.WriteString(row("Target", mon.URL))
	rows.WriteString(row("Status", mon.CurrentStatus))
	if inc != nil {
		rows.WriteString(row("Cause", inc.Cause))
		rows.WriteString(row("Started", inc.StartedAt.UTC().Format(storage.TimeFormat)))
		if inc.ResolvedAt != nil {
			rows.WriteString(row("Resolved", inc.ResolvedAt.UTC().Format(storage.TimeFormat)))
		}
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html><body style="margin:0;padding:16px;background:#f3f4f6;font-family:Arial,sans-serif">
<table style="border-collapse:collapse;background:#ffffff;border:1px solid #e5e7eb;border-radius:4px;min-width:320px">
<tr><td colspan="2" style="padding:10px 12px;background:%s;color:#ffffff;font-weight:bold">%s %s</td></tr>
%s
</table>
</body></html>`, color, meta.Emoji, html.EscapeString(meta.Label), rows.String())
}

// sendSMTP delivers one message, negotiating TLS per configuration:
// "tls" dials an implicit TLS session, "starttls" upgrades a plain
// connection, "none" stays in the clear.
func sendSMTP(cfg config.SMTPConfig, to string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var (
		c   *smtp.Client
		err error
	)
	if cfg.TLS == "tls" {
		conn, dialErr := tls.Dial("tcp", addr, &tls.Config{ServerName: cfg.Host})
		if dialErr != nil {
			return fmt.Errorf("smtp tls dial: %w", dialErr)
		}
		c, err = smtp.NewClient(conn, cfg.Host)
	} else {
		c, err = smtp.Dial(addr)
	}
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer c.Close()

	if cfg.TLS == "starttls" {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return fmt.Errorf("smtp server %s does not offer STARTTLS", cfg.Host)
		}
		if err := c.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}

	if cfg.Username != "" {
		auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.Mail(cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return c.Quit()
}
