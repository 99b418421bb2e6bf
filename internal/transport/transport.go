// Package transport adapts mail providers to sending.Sender.
package transport

import (
	"context"
	"fmt"
	"sort"

	"github.com/ignite/optin/internal/config"
	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/service/sending"
	"gopkg.in/gomail.v2"
)

// New builds the Sender selected by cfg.Provider.
func New(ctx context.Context, cfg config.MailConfig) (sending.Sender, error) {
	switch cfg.Provider {
	case "smtp":
		if cfg.SMTP.Host == "" {
			return nil, fmt.Errorf("transport: smtp host is required")
		}
		return NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password), nil
	case "ses":
		return NewSESSender(ctx, cfg.SES.Region, cfg.SES.AccessKey, cfg.SES.SecretKey)
	case "log", "":
		return NewLogSender(), nil
	default:
		return nil, fmt.Errorf("transport: unknown provider %q", cfg.Provider)
	}
}

// buildMessage renders msg as a MIME message with a plain-text part and an
// optional HTML alternative.
func buildMessage(msg *domain.EmailMessage) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.SetHeader(k, msg.Headers[k])
	}

	switch {
	case msg.TextContent != "" && msg.HTMLContent != "":
		m.SetBody("text/plain", msg.TextContent)
		m.AddAlternative("text/html", msg.HTMLContent)
	case msg.HTMLContent != "":
		m.SetBody("text/html", msg.HTMLContent)
	default:
		m.SetBody("text/plain", msg.TextContent)
	}
	return m
}

func validate(msg *domain.EmailMessage) error {
	if msg == nil || msg.To == "" {
		return fmt.Errorf("transport: recipient is required")
	}
	if msg.From == "" {
		return fmt.Errorf("transport: sender address is required")
	}
	return nil
}
