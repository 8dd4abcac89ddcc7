package email

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
)

type Sender struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string

	logger *slog.Logger
}

func NewSender(host, port, username, password, from string, logger *slog.Logger) *Sender {
	return &Sender{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
		logger:   logger,
	}
}

const verificationSubject = "Verify your Chatty email"

var verificationTemplate = template.Must(template.New("verification").Parse(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #ddd; border-radius: 5px; }
        .header { background-color: #6200ee; color: white; padding: 10px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { padding: 20px; }
        .button { display: inline-block; padding: 10px 20px; background-color: #03dac6; color: black; text-decoration: none; border-radius: 4px; font-weight: bold; }
        .footer { margin-top: 20px; font-size: 0.8em; color: #777; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Welcome to Chatty!</h1>
        </div>
        <div class="content">
            <p>Hi {{.Name}},</p>
            <p>Please confirm your email address to start chatting. The link expires in 24 hours.</p>
            <p style="text-align: center;">
                <a href="{{.Link}}" class="button">Verify Email</a>
            </p>
            <p>If the button does not work, paste this address into your browser:<br>{{.Link}}</p>
            <p>If you didn't create an account, you can safely ignore this email.</p>
        </div>
    </div>
</body>
</html>
`))

func renderVerification(name, link string) (string, error) {
	var body bytes.Buffer
	data := struct{ Name, Link string }{Name: name, Link: link}
	if err := verificationTemplate.Execute(&body, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return body.String(), nil
}

func (s *Sender) buildMessage(to, subject, body string) []byte {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return []byte(msg.String())
}

func (s *Sender) SendVerificationEmail(to, name, link string) error {
	body, err := renderVerification(name, link)
	if err != nil {
		return err
	}

	// Without an SMTP host the email is only logged, which is enough for
	// local development.
	if s.Host == "" {
		s.logger.Info("smtp not configured, logging verification email",
			"to", to, "subject", verificationSubject, "link", link)
		return nil
	}

	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	addr := net.JoinHostPort(s.Host, s.Port)

	if err := smtp.SendMail(addr, auth, s.From, []string{to}, s.buildMessage(to, verificationSubject, body)); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}
