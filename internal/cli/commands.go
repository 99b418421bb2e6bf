package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/repository/postgres"
	"github.com/ignite/optin/internal/service/campaign"
	"github.com/ignite/optin/internal/service/ledger"
	"github.com/ignite/optin/internal/service/webhook"
)

func newImportCommand() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Extract, validate and de-duplicate addresses from a text file into a stored list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := mustApp(cmd)
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			res, err := rt.app.Imports.Import(cmd.Context(), raw, key)
			if err != nil {
				return err
			}
			return rt.render(res, func(w io.Writer) {
				fmt.Fprintf(w, "lines=%d found=%d valid=%d unique=%d\n", res.Lines, res.Found, res.Valid, res.Unique)
				fmt.Fprintf(w, "stored at %s\n", res.Location)
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Storage key for the de-duplicated list")
	return cmd
}

func newSendCommand() *cobra.Command {
	var (
		req      campaign.Request
		htmlFile string
		all      bool
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a page of a bulk campaign, or every page with --all",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := mustApp(cmd)
			if err != nil {
				return err
			}
			if htmlFile != "" {
				data, err := os.ReadFile(htmlFile)
				if err != nil {
					return fmt.Errorf("read %s: %w", htmlFile, err)
				}
				req.HTML = string(data)
			}

			var pages []*campaign.Result
			for {
				res, err := rt.app.Campaigns.Send(cmd.Context(), req)
				if err != nil {
					return err
				}
				pages = append(pages, res)
				if !all || res.Done {
					break
				}
				req.Start = res.NextStart
			}
			return rt.render(pages, func(w io.Writer) {
				for _, p := range pages {
					fmt.Fprintf(w, "start=%d processed=%d sent=%d failed=%d suppressedNew=%d next=%d done=%t\n",
						p.Start, p.Processed, p.Sent, p.Failed, p.SuppressedNew, p.NextStart, p.Done)
					for _, f := range p.ErrorsPreview {
						fmt.Fprintf(w, "  %s: %s\n", f.To, f.Error)
					}
					if p.SuppressionError != "" {
						fmt.Fprintf(w, "  suppression not updated: %s\n", p.SuppressionError)
					}
				}
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.ListLocation, "list", "", "List location: http(s) URL, s3://bucket/key or storage key")
	f.StringVar(&req.Subject, "subject", "", "Message subject")
	f.StringVar(&req.HTML, "html", "", "HTML body")
	f.StringVar(&htmlFile, "html-file", "", "Read the HTML body from a file")
	f.StringVar(&req.Text, "text", "", "Plain text body")
	f.StringVar(&req.From, "from", "", "Sender address, defaults to the configured one")
	f.IntVar(&req.Start, "start", 0, "Offset into the filtered list")
	f.IntVar(&req.BatchSize, "batch-size", 0, "Recipients per page")
	f.IntVar(&req.Concurrency, "concurrency", 0, "Parallel sends per page")
	f.BoolVar(&req.DryRun, "dry-run", false, "Walk the list without sending")
	f.BoolVar(&all, "all", false, "Keep sending pages until the list is done")
	_ = cmd.MarkFlagRequired("list")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

type checkResult struct {
	Email      string             `json:"email" yaml:"email"`
	Suppressed bool               `json:"suppressed" yaml:"suppressed"`
	Subscriber *domain.Subscriber `json:"subscriber,omitempty" yaml:"subscriber,omitempty"`
}

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check EMAIL",
		Short: "Show suppression and subscriber status for an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := mustApp(cmd)
			if err != nil {
				return err
			}
			email := strings.ToLower(strings.TrimSpace(args[0]))
			ctx := cmd.Context()
			suppressed, err := rt.app.Suppression.Contains(ctx, email)
			if err != nil {
				return err
			}
			sub, err := rt.app.Ledger.Subscriber(ctx, email)
			if err != nil && !errors.Is(err, ledger.ErrNotFound) {
				return err
			}
			res := checkResult{Email: email, Suppressed: suppressed, Subscriber: sub}
			return rt.render(res, func(w io.Writer) {
				status := "unknown"
				if sub != nil {
					status = string(sub.Status)
				}
				fmt.Fprintf(w, "%s suppressed=%t status=%s\n", email, suppressed, status)
			})
		},
	}
}

func newSuppressCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "suppress EMAIL...",
		Short: "Add addresses to the suppression set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := mustApp(cmd)
			if err != nil {
				return err
			}
			emails := make([]string, 0, len(args))
			for _, a := range args {
				if e := strings.ToLower(strings.TrimSpace(a)); e != "" {
					emails = append(emails, e)
				}
			}
			added, err := rt.app.Suppression.AddMany(cmd.Context(), emails, domain.SourceManual)
			if err != nil {
				return err
			}
			return rt.render(map[string]int{"requested": len(emails), "added": added}, func(w io.Writer) {
				fmt.Fprintf(w, "added %d of %d\n", added, len(emails))
			})
		},
	}
}

func newEventsCommand() *cobra.Command {
	var filter ledger.EventFilter
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent ledger events, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := mustApp(cmd)
			if err != nil {
				return err
			}
			filter.Email = strings.ToLower(strings.TrimSpace(filter.Email))
			events, err := rt.app.Ledger.Events(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if events == nil {
				events = []domain.Event{}
			}
			return rt.render(events, func(w io.Writer) {
				for _, ev := range events {
					fmt.Fprintf(w, "%s  %-20s %s\n", ev.CreatedAt.UTC().Format(time.RFC3339), ev.Type, ev.Email)
				}
			})
		},
	}
	cmd.Flags().StringVar(&filter.Email, "email", "", "Only events for this address")
	cmd.Flags().StringVar((*string)(&filter.Type), "type", "", "Only events of this type")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "Maximum events to return")
	return cmd
}

func newPruneCommand() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune-rate-limits",
		Short: "Delete expired rate limit windows from PostgreSQL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := mustApp(cmd)
			if err != nil {
				return err
			}
			if rt.app.DB == nil {
				return errors.New("prune-rate-limits requires DATABASE_URL")
			}
			n, err := postgres.NewRateCounter(rt.app.DB).Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			return rt.render(map[string]int64{"deleted": n}, func(w io.Writer) {
				fmt.Fprintf(w, "deleted %d windows\n", n)
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", time.Hour, "Age of the oldest window to keep")
	return cmd
}

func newWebhookSignCommand() *cobra.Command {
	var (
		secret string
		id     string
	)
	cmd := &cobra.Command{
		Use:   "webhook-sign FILE",
		Short: "Print the signature headers for a webhook payload, for testing deliveries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if secret == "" {
				secret = os.Getenv("RESEND_WEBHOOK_SECRET")
			}
			v, err := webhook.NewVerifier(secret, 0)
			if err != nil {
				return err
			}
			body, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			if id == "" {
				id = "msg_" + uuid.NewString()
			}
			h := v.Sign(id, time.Now(), body)
			out := map[string]string{
				"svix-id":        h.ID,
				"svix-timestamp": h.Timestamp,
				"svix-signature": h.Signature,
			}
			return rt.render(out, func(w io.Writer) {
				fmt.Fprintf(w, "svix-id: %s\nsvix-timestamp: %s\nsvix-signature: %s\n", h.ID, h.Timestamp, h.Signature)
			})
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret, defaults to RESEND_WEBHOOK_SECRET")
	cmd.Flags().StringVar(&id, "id", "", "Message id, generated when empty")
	return cmd
}
