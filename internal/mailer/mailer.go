// Package mailer sends alert emails over SMTP.
//
// The connection uses implicit TLS (port 465 style) and a plain auth login,
// which is what app-password SMTP endpoints like Gmail expect. Message
// construction is separated from sending so the worker can be tested with a
// fake Sender.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"budgetwatch/internal/core"
)

// BudgetAlert is the payload of a budget overage email.
type BudgetAlert struct {
	Category    string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Actual      core.Money
	Limit       core.Money
	Overage     core.Money
}

// AnomalyAlert is the payload of an unusual-expense email.
type AnomalyAlert struct {
	Category string
	Amount   core.Money
	Date     time.Time
}

// Sender delivers alert emails.
type Sender interface {
	SendBudgetAlert(ctx context.Context, a BudgetAlert) error
	SendAnomalyAlert(ctx context.Context, a AnomalyAlert) error
}

// SMTPMailer sends alert emails through an SMTP server over implicit TLS.
type SMTPMailer struct {
	host      string
	port      int
	from      string
	password  string
	recipient string
}

func NewSMTPMailer(host string, port int, from, password, recipient string) *SMTPMailer {
	return &SMTPMailer{
		host:      host,
		port:      port,
		from:      from,
		password:  password,
		recipient: recipient,
	}
}

var budgetTemplate = template.Must(template.New("budget").Parse(`<html>
  <body style="font-family: Arial, sans-serif;">
    <h2 style="color: #d9534f;">Budget alert</h2>
    <p>Spending for <strong>{{.Category}}</strong> between {{.PeriodStart.Format "2006-01-02"}} and {{.PeriodEnd.Format "2006-01-02"}} exceeded its limit.</p>
    <table style="border-collapse: collapse;">
      <tr>
        <td style="padding: 8px; border: 1px solid #ddd;"><strong>Budget limit</strong></td>
        <td style="padding: 8px; border: 1px solid #ddd;">&euro;{{.Limit}}</td>
      </tr>
      <tr>
        <td style="padding: 8px; border: 1px solid #ddd;"><strong>Actual spend</strong></td>
        <td style="padding: 8px; border: 1px solid #ddd; color: #d9534f;">&euro;{{.Actual}}</td>
      </tr>
      <tr>
        <td style="padding: 8px; border: 1px solid #ddd;"><strong>Overage</strong></td>
        <td style="padding: 8px; border: 1px solid #ddd; color: #d9534f;">&euro;{{.Overage}} ({{.OveragePercent}}%)</td>
      </tr>
    </table>
    <p>Review the upcoming expenses in this category and consider reducing discretionary spending.</p>
  </body>
</html>
`))

type budgetEmailData struct {
	BudgetAlert
	OveragePercent string
}

// buildBudgetEmail renders the full RFC 5322 message for a budget alert.
func (m *SMTPMailer) buildBudgetEmail(a BudgetAlert) ([]byte, error) {
	data := budgetEmailData{
		BudgetAlert:    a,
		OveragePercent: formatPercent(a.Overage.Cents, a.Limit.Cents),
	}

	var body bytes.Buffer
	if err := budgetTemplate.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("render budget alert: %w", err)
	}

	subject := fmt.Sprintf("Budget alert: %s over by %s", a.Category, a.Overage)
	return m.message(subject, "text/html; charset=utf-8", body.Bytes()), nil
}

// buildAnomalyEmail renders the plain-text message for an anomaly alert.
func (m *SMTPMailer) buildAnomalyEmail(a AnomalyAlert) []byte {
	body := fmt.Sprintf(`An unusual expense was detected:

- Amount: %s
- Category: %s
- Date: %s

This amount is significantly higher than the typical spending pattern.
Please verify this transaction.
`, a.Amount, a.Category, a.Date.Format("2006-01-02"))

	return m.message("Unusual expense detected", "text/plain; charset=utf-8", []byte(body))
}

func (m *SMTPMailer) message(subject, contentType string, body []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", m.from)
	fmt.Fprintf(&buf, "To: %s\r\n", m.recipient)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: %s\r\n", contentType)
	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes()
}

func (m *SMTPMailer) SendBudgetAlert(ctx context.Context, a BudgetAlert) error {
	msg, err := m.buildBudgetEmail(a)
	if err != nil {
		return err
	}
	return m.send(ctx, msg)
}

func (m *SMTPMailer) SendAnomalyAlert(ctx context.Context, a AnomalyAlert) error {
	return m.send(ctx, m.buildAnomalyEmail(a))
}

func (m *SMTPMailer) send(ctx context.Context, msg []byte) error {
	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))

	dialer := &tls.Dialer{NetDialer: &net.Dialer{Timeout: 10 * time.Second}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial SMTP server: %w", err)
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SMTP handshake: %w", err)
	}
	defer client.Close()

	auth := smtp.PlainAuth("", m.from, m.password, m.host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP auth: %w", err)
	}
	if err := client.Mail(m.from); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}
	if err := client.Rcpt(m.recipient); err != nil {
		return fmt.Errorf("SMTP RCPT TO: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}
	return client.Quit()
}

// formatPercent renders part/whole as a percentage with one decimal.
func formatPercent(part, whole int64) string {
	if whole == 0 {
		return "0.0"
	}
	return fmt.Sprintf("%.1f", float64(part)/float64(whole)*100)
}
