package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/pkg/emailaddr"
	"github.com/ignite/optin/internal/pkg/logger"
	"github.com/ignite/optin/internal/pkg/metrics"
	"github.com/ignite/optin/internal/service/ledger"
	"github.com/ignite/optin/internal/service/ratelimit"
	"github.com/ignite/optin/internal/service/sending"
	"github.com/ignite/optin/internal/service/suppression"
)

// Externally visible messages. Subscribe answers every accepted request
// with the same text.
const (
	MsgSubscribed       = "Thanks! Check your inbox to confirm your subscription."
	MsgConfirmed        = "Email confirmed successfully."
	MsgAlreadyConfirmed = "Email already confirmed."
	MsgConfirmGeneric   = "Confirmed (if applicable)."
	MsgUnsubscribed     = "You have been removed from the list."
)

// Outcome names the internal branch a call took. It is for logs, tests and
// the operator CLI, never for public responses.
type Outcome string

const (
	OutcomeIssued      Outcome = "issued"
	OutcomeBlocked     Outcome = "blocked"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeConfirmed   Outcome = "confirmed"
	OutcomeRepeat      Outcome = "repeat"
	OutcomeInvalid     Outcome = "invalid"
)

// Options configures the service.
type Options struct {
	MinTokenLength int
	// PublicBaseURL prefixes confirm and unsubscribe links.
	PublicBaseURL string
	// SendConfirmation mails the confirm link after a token is issued.
	SendConfirmation bool
	From             string
	Subject          string
}

// Service runs the opt-in protocol.
type Service struct {
	ledger      *ledger.Ledger
	suppression *suppression.Service
	limiter     *ratelimit.Limiter
	mailer      sending.Sender
	opts        Options
	newToken    func() (string, error)
	now         func() time.Time
}

// NewService wires the protocol. limiter and mailer may be nil.
func NewService(l *ledger.Ledger, supp *suppression.Service, limiter *ratelimit.Limiter, mailer sending.Sender, opts Options) *Service {
	if opts.MinTokenLength <= 0 {
		opts.MinTokenLength = DefaultMinTokenLength
	}
	if opts.Subject == "" {
		opts.Subject = "Please confirm your subscription"
	}
	return &Service{
		ledger:      l,
		suppression: supp,
		limiter:     limiter,
		mailer:      mailer,
		opts:        opts,
		newToken:    NewToken,
		now:         time.Now,
	}
}

// Client describes the caller of a request.
type Client struct {
	// Identity is the rate-limit key, normally the first forwarded-for hop.
	Identity  string
	IP        string
	UserAgent string
}

// SubscribeResult reports the branch taken. Token is set only when a token
// was issued.
type SubscribeResult struct {
	Outcome Outcome
	Email   string
	Token   string
	Message string
}

// Subscribe validates email, applies the rate limit, and either issues a
// fresh token or records a blocked attempt for a suppressed address.
func (s *Service) Subscribe(ctx context.Context, email, source string, client Client) (*SubscribeResult, error) {
	email = emailaddr.Normalize(email)
	if !emailaddr.Valid(email) {
		return nil, ErrInvalidEmail
	}
	source = domain.ClampSource(source)
	res := &SubscribeResult{Email: email, Message: MsgSubscribed}

	if s.limiter != nil {
		identity := client.Identity
		if identity == "" {
			identity = ratelimit.UnknownIdentity
		}
		d, err := s.limiter.Allow(ctx, identity)
		if err != nil {
			return nil, err
		}
		if !d.Allowed {
			metrics.RateLimited.WithLabelValues("subscribe").Inc()
			err := s.ledger.Run(ctx, func(tx ledger.Tx) error {
				return tx.AppendEvent(ctx, domain.NewEvent(email, domain.EventRateLimited, map[string]any{
					"identity": identity,
					"count":    d.Count,
					"limit":    d.Limit,
				}))
			})
			if err != nil {
				return nil, fmt.Errorf("record rate limit: %w", err)
			}
			res.Outcome = OutcomeRateLimited
			return res, nil
		}
	}

	inStore, err := s.suppression.Contains(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check suppression: %w", err)
	}

	var token string
	err = s.ledger.Run(ctx, func(tx ledger.Tx) error {
		token = ""
		sub, err := tx.GetByEmail(ctx, email)
		if err != nil && !errors.Is(err, ledger.ErrNotFound) {
			return err
		}
		if inStore || (sub != nil && sub.IsSuppressed()) {
			res.Outcome = OutcomeBlocked
			return tx.AppendEvent(ctx, domain.NewEvent(email, domain.EventSubscribeBlocked, map[string]any{
				"source": source,
				"reason": "suppressed",
			}))
		}

		t, err := s.newToken()
		if err != nil {
			return err
		}
		if err := tx.UpsertPending(ctx, email, HashToken(t), source); err != nil {
			return err
		}
		token = t
		res.Outcome = OutcomeIssued
		return tx.AppendEvent(ctx, domain.NewEvent(email, domain.EventSubscribe, map[string]any{"source": source}))
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	res.Token = token

	if res.Outcome == OutcomeIssued && s.opts.SendConfirmation && s.mailer != nil {
		if err := s.mailer.Send(ctx, s.confirmationMessage(email, token)); err != nil {
			logger.Error("subscription: confirmation mail failed", "email", email, "error", err)
		}
	}
	return res, nil
}

// ConfirmURL is the link mailed to a new subscriber.
func (s *Service) ConfirmURL(token string) string {
	return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/api/confirm?token=" + token
}

func (s *Service) confirmationMessage(email, token string) *domain.EmailMessage {
	link := s.ConfirmURL(token)
	return &domain.EmailMessage{
		To:          email,
		From:        s.opts.From,
		Subject:     s.opts.Subject,
		TextContent: "Please confirm your subscription by opening this link:\n\n" + link + "\n\nIf you did not ask to subscribe, ignore this message.\n",
		HTMLContent: `<p>Please confirm your subscription:</p><p><a href="` + link + `">Confirm my subscription</a></p>` +
			`<p>If you did not ask to subscribe, ignore this message.</p>`,
		Headers: sending.UnsubscribeHeaders(s.opts.PublicBaseURL, email),
	}
}

// ConfirmResult reports a successful confirm call.
type ConfirmResult struct {
	Outcome Outcome
	Email   string
	Message string
}

// Confirm redeems token. Lookup, event and status change run in one
// transaction. ErrInvalidToken is returned, after the confirm_invalid event
// is committed, when the token resolves to nothing.
func (s *Service) Confirm(ctx context.Context, token string, client Client) (*ConfirmResult, error) {
	token = strings.TrimSpace(token)
	if len(token) < s.opts.MinTokenLength {
		return nil, ErrInvalidToken
	}
	hash := HashToken(token)
	meta := map[string]any{"ip": client.IP, "ua": client.UserAgent}
	res := &ConfirmResult{}

	err := s.ledger.Run(ctx, func(tx ledger.Tx) error {
		*res = ConfirmResult{}
		sub, err := tx.GetByTokenHash(ctx, hash)
		live := err == nil
		if errors.Is(err, ledger.ErrNotFound) {
			sub, err = tx.GetByConsumedTokenHash(ctx, hash)
		}
		if errors.Is(err, ledger.ErrNotFound) {
			res.Outcome = OutcomeInvalid
			return tx.AppendEvent(ctx, domain.NewEvent("", domain.EventConfirmInvalid, withReason(meta, "token_not_found")))
		}
		if err != nil {
			return err
		}
		res.Email = sub.Email

		suppressed := sub.IsSuppressed()
		if !suppressed {
			if suppressed, err = s.suppression.Contains(ctx, sub.Email); err != nil {
				return err
			}
		}
		switch {
		case suppressed:
			res.Outcome, res.Message = OutcomeBlocked, MsgConfirmGeneric
			return tx.AppendEvent(ctx, domain.NewEvent(sub.Email, domain.EventConfirmBlocked, withReason(meta, "suppressed")))
		case sub.Status == domain.SubscriberConfirmed:
			res.Outcome, res.Message = OutcomeRepeat, MsgAlreadyConfirmed
			return tx.AppendEvent(ctx, domain.NewEvent(sub.Email, domain.EventConfirmRepeat, meta))
		case live && sub.Status == domain.SubscriberPending:
			ok, err := tx.MarkConfirmed(ctx, sub.Email, hash, s.now(), client.IP, client.UserAgent)
			if err != nil {
				return err
			}
			if !ok {
				res.Outcome = OutcomeInvalid
				return tx.AppendEvent(ctx, domain.NewEvent(sub.Email, domain.EventConfirmInvalid, withReason(meta, "token_already_used")))
			}
			res.Outcome, res.Message = OutcomeConfirmed, MsgConfirmed
			return tx.AppendEvent(ctx, domain.NewEvent(sub.Email, domain.EventConfirm, meta))
		default:
			res.Outcome = OutcomeInvalid
			return tx.AppendEvent(ctx, domain.NewEvent(sub.Email, domain.EventConfirmInvalid, withReason(meta, "token_superseded")))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("confirm: %w", err)
	}
	if res.Outcome == OutcomeInvalid {
		return nil, ErrInvalidToken
	}
	return res, nil
}

// UnsubscribeResult reports an unsubscribe. Added is false when the address
// was already in the suppression set.
type UnsubscribeResult struct {
	Email string
	Added bool
	Total int
}

// Unsubscribe marks the ledger row suppressed, logs a suppressed event and
// adds the address to the suppression set.
func (s *Service) Unsubscribe(ctx context.Context, email string) (*UnsubscribeResult, error) {
	email = emailaddr.Normalize(email)
	if !emailaddr.Valid(email) {
		return nil, ErrInvalidEmail
	}
	err := s.ledger.Run(ctx, func(tx ledger.Tx) error {
		if err := tx.UpsertSuppressed(ctx, email, string(domain.SourceUnsubscribe)); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, domain.NewEvent(email, domain.EventSuppressed, map[string]any{"reason": "unsubscribe"}))
	})
	if err != nil {
		return nil, fmt.Errorf("unsubscribe: %w", err)
	}
	added, err := s.suppression.Add(ctx, email, domain.SourceUnsubscribe)
	if err != nil {
		// The ledger row is already suppressed; one more attempt before the
		// two stores are left out of step.
		logger.Warn("subscription: suppression add failed, retrying", "email", email, "error", err)
		added, err = s.suppression.Add(ctx, email, domain.SourceUnsubscribe)
	}
	if err != nil {
		logger.Error("subscription: ledger suppressed but suppression store not updated", "email", email, "error", err)
		return nil, fmt.Errorf("unsubscribe: %w", err)
	}
	total, err := s.suppression.Count(ctx)
	if err != nil {
		logger.Warn("subscription: suppression count failed", "error", err)
	}
	return &UnsubscribeResult{Email: email, Added: added, Total: total}, nil
}

func withReason(meta map[string]any, reason string) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["reason"] = reason
	return out
}
