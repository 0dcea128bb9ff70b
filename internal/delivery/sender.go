// Package delivery sends client replies. Ready replies are queued as asynq
// tasks when Redis is configured and sent by SMTP from the worker; otherwise
// they are sent in process.
package delivery

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"

	"venue_booking_backend/platform/config"
	"venue_booking_backend/platform/logger"
)

// Sender delivers one reply to the client.
type Sender interface {
	SendReply(ctx context.Context, reply DeliverReplyPayload) error
}

// NewSender returns an SMTP sender when SMTP is configured and a logging
// sender otherwise.
func NewSender(cfg config.EmailConfig, log *logger.Logger) Sender {
	if !cfg.GetEmailEnabled() {
		return &LogSender{log: log}
	}
	return NewSMTPSender(cfg.GetSMTPHost(), cfg.GetSMTPPort(), cfg.GetSMTPUsername(), cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(), cfg.GetEmailFromName())
}

// SMTPSender sends replies as plain-text mail through go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (s *SMTPSender) SendReply(ctx context.Context, reply DeliverReplyPayload) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(reply.Recipient); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subjectFor(reply.Kind))
	msg.SetBodyString(gomail.TypeTextPlain, reply.Text)
	msg.SetGenHeader(gomail.HeaderXMailer, "venue-booking")
	if reply.BookingID != "" {
		msg.SetGenHeader("X-Booking-ID", reply.BookingID)
	}

	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15 * time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	}
	if s.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.username),
			gomail.WithPassword(s.password),
		)
	}

	client, err := gomail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogSender records replies in the log instead of sending them.
type LogSender struct {
	log *logger.Logger
}

func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) SendReply(_ context.Context, reply DeliverReplyPayload) error {
	s.log.Info("reply delivered to log",
		"bookingId", reply.BookingID, "recipient", reply.Recipient, "kind", reply.Kind, "source", reply.Source,
		"subject", subjectFor(reply.Kind), "text", reply.Text)
	return nil
}
