package transport

import (
	"context"
	"sync"

	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/pkg/logger"
)

// LogSender records messages and logs them instead of transmitting. It is
// the development default and the test double for the whole system.
type LogSender struct {
	mu   sync.Mutex
	sent []domain.EmailMessage
	// Fail, when set, decides per recipient whether Send fails and with what.
	Fail func(to string) error
}

// NewLogSender returns an empty recorder.
func NewLogSender() *LogSender { return &LogSender{} }

func (l *LogSender) Send(ctx context.Context, msg *domain.EmailMessage) error {
	if err := validate(msg); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.Fail != nil {
		if err := l.Fail(msg.To); err != nil {
			return err
		}
	}
	l.mu.Lock()
	l.sent = append(l.sent, *msg)
	l.mu.Unlock()
	logger.Info("transport: message logged", "to", msg.To, "subject", msg.Subject)
	return nil
}

// Sent returns a copy of every recorded message.
func (l *LogSender) Sent() []domain.EmailMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.EmailMessage(nil), l.sent...)
}
