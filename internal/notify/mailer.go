// Package notify tells tree owners about new draft submissions.
package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// MailConfig holds SMTP configuration
type MailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends HTML email over SMTP.
type Mailer struct {
	config   MailConfig
	server   string
	auth     smtp.Auth
	sendMail sendMailFunc
}

func NewMailer(config MailConfig) *Mailer {
	return &Mailer{
		config:   config,
		server:   config.Host + ":" + config.Port,
		auth:     smtp.PlainAuth("", config.Username, config.Password, config.Host),
		sendMail: smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (m *Mailer) IsConfigured() bool {
	return m.config.Host != "" && m.config.Port != "" && m.config.From != ""
}

func (m *Mailer) SendHTML(to []string, subject, htmlBody string) error {
	if !m.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := m.config.From
	if m.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", m.config.FromName, m.config.From)
	}

	boundary := "boundary-lineage"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return m.sendMail(m.server, m.auth, m.config.From, to, msg.Bytes())
}

func renderTemplate(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var submissionEmailTemplate = template.Must(template.New("submission").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>New changes proposed for {{.TreeName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #2f6b3a; padding-bottom: 10px; margin-bottom: 20px; }
        .message { background: #f4f7f4; padding: 12px; border-radius: 4px; margin: 20px 0; white-space: pre-wrap; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <p>Hi {{.OwnerName}},</p>

    <p>{{.EditorName}} submitted changes to <strong>{{.TreeName}}</strong> for your review.</p>
    {{if .Message}}
    <div class="message">{{.Message}}</div>
    {{end}}
    <p>Open submission #{{.SubmissionID}} in {{.AppName}} to approve or reject it.</p>

    <div class="footer">
        <p>You received this email because you own this family tree.</p>
    </div>
</body>
</html>`))
