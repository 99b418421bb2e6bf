package transport

import (
	"context"
	"fmt"

	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/pkg/logger"
	"github.com/ignite/optin/internal/service/sending"
	"gopkg.in/gomail.v2"
)

type smtpDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender relays through an SMTP server, one connection per message.
type SMTPSender struct {
	dialer smtpDialer
}

// NewSMTPSender creates a sender for host:port. STARTTLS is negotiated when
// the server offers it.
func NewSMTPSender(host string, port int, user, password string) *SMTPSender {
	logger.Info("transport: smtp sender initialized", "host", host, "port", port)
	return &SMTPSender{dialer: gomail.NewDialer(host, port, user, password)}
}

// Send returns the server's rejection text on failure, e.g.
// "550 5.1.1 user unknown". gomail has no context support, so a cancelled
// ctx abandons the wait while the dial finishes in the background and may
// still deliver. That case returns sending.ErrOutcomeUnknown wrapping
// ctx.Err().
func (s *SMTPSender) Send(ctx context.Context, msg *domain.EmailMessage) error {
	if err := validate(msg); err != nil {
		return err
	}
	m := buildMessage(msg)

	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		logger.Warn("transport: smtp send abandoned", "to", msg.To, "error", ctx.Err())
		return fmt.Errorf("%w: %w", sending.ErrOutcomeUnknown, ctx.Err())
	}
}
