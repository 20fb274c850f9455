package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/google/uuid"

	appErrors "github.com/relayworks/outreach-backend/internal/errors"
)

// SMTPCredentials are a tenant's decrypted email credentials, assembled
// per-dispatch and never persisted in plaintext.
type SMTPCredentials struct {
	Email    string
	Password string
	Provider string
}

// EmailMessage is the outbound wire contract.
type EmailMessage struct {
	FromName  string
	FromEmail string
	To        string
	Subject   string
	HTML      string
	ReplyTo   string
	InReplyTo string
}

// EmailSender performs one SMTP delivery and returns the message id stamped
// on the wire.
type EmailSender interface {
	Send(ctx context.Context, msg *EmailMessage) (messageID string, err error)
}

// EmailSenderFactory builds a sender for a tenant's credentials; it is the
// seam tests use to swap the transport out.
type EmailSenderFactory func(creds SMTPCredentials) EmailSender

var providerHosts = map[string]string{
	"gmail":   "smtp.gmail.com:587",
	"outlook": "smtp.office365.com:587",
	"zoho":    "smtp.zoho.com:587",
}

// SMTPSender sends over STARTTLS with per-tenant auth. Connections are
// per-dispatch; no pooling.
type SMTPSender struct {
	Creds SMTPCredentials
}

func NewSMTPSender(creds SMTPCredentials) EmailSender {
	return &SMTPSender{Creds: creds}
}

func (s *SMTPSender) Send(ctx context.Context, msg *EmailMessage) (string, error) {
	addr, ok := providerHosts[strings.ToLower(s.Creds.Provider)]
	if !ok {
		return "", appErrors.Ef(appErrors.KindAuth, "smtp", "unknown email provider %q", s.Creds.Provider)
	}
	host := strings.Split(addr, ":")[0]

	messageID := fmt.Sprintf("<%s@%s>", uuid.New(), domainOf(msg.FromEmail))
	payload := buildMIME(msg, messageID)

	done := make(chan error, 1)
	go func() { done <- s.deliver(addr, host, msg, payload) }()

	select {
	case <-ctx.Done():
		return "", appErrors.E(appErrors.KindTransient, "smtp", ctx.Err())
	case err := <-done:
		if err != nil {
			return "", err
		}
		return messageID, nil
	}
}

func (s *SMTPSender) deliver(addr, host string, msg *EmailMessage, payload []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return appErrors.E(appErrors.KindTransient, "smtp", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return appErrors.E(appErrors.KindTransient, "smtp", err)
	}
	auth := smtp.PlainAuth("", s.Creds.Email, s.Creds.Password, host)
	if err := client.Auth(auth); err != nil {
		return appErrors.E(appErrors.KindAuth, "smtp", err)
	}
	if err := client.Mail(msg.FromEmail); err != nil {
		return appErrors.E(appErrors.KindTransient, "smtp", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		// Recipient rejection at this stage is a permanent address problem.
		return appErrors.E(appErrors.KindPermanent, "smtp", err)
	}
	w, err := client.Data()
	if err != nil {
		return appErrors.E(appErrors.KindTransient, "smtp", err)
	}
	if _, err := w.Write(payload); err != nil {
		return appErrors.E(appErrors.KindTransient, "smtp", err)
	}
	if err := w.Close(); err != nil {
		return appErrors.E(appErrors.KindTransient, "smtp", err)
	}
	return client.Quit()
}

func buildMIME(msg *EmailMessage, messageID string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", msg.FromName, msg.FromEmail)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	if msg.ReplyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", msg.ReplyTo)
	}
	if msg.InReplyTo != "" {
		fmt.Fprintf(&b, "In-Reply-To: %s\r\n", msg.InReplyTo)
		fmt.Fprintf(&b, "References: %s\r\n", msg.InReplyTo)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	b.WriteString("\r\n")
	return []byte(b.String())
}

func domainOf(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return "localhost"
}

// SenderNameFromEmail formats a display name from an address local part,
// e.g. "Jack Doe" from "jack.doe@example.com".
func SenderNameFromEmail(email string) string {
	local := strings.Split(email, "@")[0]
	local = strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(local)
	parts := strings.Fields(local)
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	if len(parts) == 0 {
		return local
	}
	return strings.Join(parts, " ")
}
