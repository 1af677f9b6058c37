package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"sort"
	"strings"
)

// SMTPSender delivers alert emails over SMTP, using STARTTLS when the
// server offers it.
type SMTPSender struct {
	cfg EmailConfig
}

// NewSMTPSender creates an email sender.
func NewSMTPSender(cfg EmailConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send delivers a multipart plain+HTML message to the configured
// recipients.
func (s *SMTPSender) Send(ctx context.Context, subject, plainBody, htmlBody string) error {
	msg, err := buildMessage(s.cfg.From, s.cfg.Recipients, subject, plainBody, htmlBody)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	// smtp.SendMail negotiates STARTTLS when the server advertises it.
	if err := smtp.SendMail(addr, auth, s.cfg.From, s.cfg.Recipients, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func buildMessage(from string, to []string, subject, plainBody, htmlBody string) ([]byte, error) {
	var buf bytes.Buffer
	mp := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n", mp.Boundary())
	buf.WriteString("\r\n")

	plain, err := mp.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build email: %w", err)
	}
	fmt.Fprint(plain, plainBody)

	html, err := mp.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=utf-8"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build email: %w", err)
	}
	fmt.Fprint(html, htmlBody)

	if err := mp.Close(); err != nil {
		return nil, fmt.Errorf("failed to build email: %w", err)
	}
	return buf.Bytes(), nil
}

var emailTemplate = template.Must(template.New("alert").Parse(`<html>
<body>
  <h2>{{.Level}} notification</h2>
  <p>{{.Message}}</p>
  {{if .Fields}}
  <table border="0" cellpadding="4">
    {{range .Fields}}<tr><td><b>{{.Key}}</b></td><td>{{.Value}}</td></tr>
    {{end}}
  </table>
  {{end}}
</body>
</html>
`))

type emailField struct {
	Key   string
	Value any
}

// renderEmail produces the plain and HTML bodies for an alert email.
func renderEmail(level Level, message string, payload map[string]any) (string, string) {
	fields := make([]emailField, 0, len(payload))
	for k, v := range payload {
		fields = append(fields, emailField{Key: k, Value: v})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })

	var plain strings.Builder
	fmt.Fprintf(&plain, "%s notification\r\n\r\n%s\r\n", level, message)
	for _, f := range fields {
		fmt.Fprintf(&plain, "\r\n%s: %v", f.Key, f.Value)
	}

	var html bytes.Buffer
	data := struct {
		Level   Level
		Message string
		Fields  []emailField
	}{level, message, fields}
	if err := emailTemplate.Execute(&html, data); err != nil {
		// Template is static; fall back to the plain body.
		return plain.String(), "<pre>" + template.HTMLEscapeString(plain.String()) + "</pre>"
	}

	return plain.String(), html.String()
}
