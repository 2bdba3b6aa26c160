package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"creatorbook/config"

	"gopkg.in/gomail.v2"
)

// MailServiceInterface is the outbound send capability: one message in,
// a delivery id or an error out.
type MailServiceInterface interface {
	Send(email Email) (string, error)
}

type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// SMTPMailer delivers mail over SMTP via gomail
type SMTPMailer struct {
	dialer    *gomail.Dialer
	fromEmail string
	fromName  string
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer:    gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}
}

func (m *SMTPMailer) Send(email Email) (string, error) {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.fromEmail, m.fromName)
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/plain", email.Text)
	msg.AddAlternative("text/html", email.HTML)

	messageID, err := generateMessageID()
	if err != nil {
		return "", err
	}
	msg.SetHeader("Message-ID", messageID)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return "", fmt.Errorf("smtp send failed: %w", err)
	}

	return messageID, nil
}

func generateMessageID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("<%s@creators-handbook.com>", hex.EncodeToString(buf)), nil
}
