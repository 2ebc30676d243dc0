// Package mailer sends conversation replies to the account email over SMTP.
package mailer

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net/smtp"
	"os"
)

// Sender delivers a plain-text email to a single recipient.
type Sender interface {
	Send(to, subject, body string) error
}

// SMTPSender sends mail over implicit TLS (port 465).
type SMTPSender struct {
	host     string
	port     string
	username string
	password string
}

// NewSMTPSender creates an SMTP sender
func NewSMTPSender(host, port, username, password string) *SMTPSender {
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
	}
}

// NewSMTPSenderFromEnv creates an SMTP sender from SMTP_HOST, SMTP_PORT,
// SMTP_USER and SMTP_PASS. Host and port default to Gmail's TLS endpoint.
func NewSMTPSenderFromEnv() *SMTPSender {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		host = "smtp.gmail.com"
	}
	port := os.Getenv("SMTP_PORT")
	if port == "" {
		port = "465"
	}
	user := os.Getenv("SMTP_USER")
	pass := os.Getenv("SMTP_PASS")
	if user == "" || pass == "" {
		log.Println("Warning: SMTP_USER or SMTP_PASS not set, email sending will fail")
	}
	return NewSMTPSender(host, port, user, pass)
}

// Send delivers one plain-text message
func (s *SMTPSender) Send(to, subject, body string) error {
	if s.username == "" || s.password == "" {
		return errors.New("SMTP credentials not configured")
	}

	msg := []byte(
		fmt.Sprintf("From: %s\r\n", s.username) +
			fmt.Sprintf("To: %s\r\n", to) +
			fmt.Sprintf("Subject: %s\r\n", subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=\"utf-8\"\r\n" +
			"\r\n" +
			body,
	)

	serverAddr := s.host + ":" + s.port

	// Implicit TLS for port 465
	tlsConfig := &tls.Config{
		ServerName: s.host,
	}

	conn, err := tls.Dial("tcp", serverAddr, tlsConfig)
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return err
	}
	defer client.Quit()

	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	if err := client.Auth(auth); err != nil {
		return err
	}

	if err := client.Mail(s.username); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	return w.Close()
}
