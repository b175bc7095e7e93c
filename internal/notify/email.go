package notify

import (
	"fmt"
	"log"
	"net/smtp"
	"os"
	"strings"
)

// EmailConfig holds SMTP delivery settings.
type EmailConfig struct {
	Host     string
	Port     int
	From     string
	To       string
	Password string
}

// EmailSink delivers alerts as plain-text emails over SMTP with STARTTLS.
// Failed deliveries are logged locally and otherwise swallowed.
type EmailSink struct {
	cfg    EmailConfig
	logger *log.Logger
	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailSink creates an email sink. A nil logger falls back to stderr.
func NewEmailSink(cfg EmailConfig, logger *log.Logger) *EmailSink {
	if logger == nil {
		logger = log.New(os.Stderr, "alert: ", log.LstdFlags)
	}
	return &EmailSink{cfg: cfg, logger: logger, send: smtp.SendMail}
}

// Alert implements Sink.
func (s *EmailSink) Alert(subject, body string) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.From, s.cfg.Password, s.cfg.Host)

	msg := strings.Join([]string{
		"From: " + s.cfg.From,
		"To: " + s.cfg.To,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	if err := s.send(addr, auth, s.cfg.From, []string{s.cfg.To}, []byte(msg)); err != nil {
		s.logger.Printf("Failed to deliver alert %q: %v", subject, err)
		s.logger.Printf("ALERT (undelivered): %s\n%s", subject, body)
		return
	}
	s.logger.Printf("Alert delivered: %s", subject)
}
