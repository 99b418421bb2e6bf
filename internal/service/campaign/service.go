package campaign

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/optin/internal/config"
	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/pkg/emailaddr"
	"github.com/ignite/optin/internal/pkg/logger"
	"github.com/ignite/optin/internal/pkg/metrics"
	"github.com/ignite/optin/internal/service/sending"
)

// Request describes one page of a bulk send.
type Request struct {
	ListLocation string `json:"listLocation"`
	// BlobURL is accepted as an alias for ListLocation.
	BlobURL     string `json:"blobUrl,omitempty"`
	Subject     string `json:"subject"`
	HTML        string `json:"html,omitempty"`
	Text        string `json:"text,omitempty"`
	From        string `json:"from,omitempty"`
	Start       int    `json:"start"`
	BatchSize   int    `json:"batchSize"`
	Concurrency int    `json:"concurrency"`
	DryRun      bool   `json:"dryRun"`
}

// Result reports one page. NextStart is an offset into the filtered list.
type Result struct {
	OK        bool `json:"ok"`
	DryRun    bool `json:"dryRun"`
	Total     int  `json:"total"`
	Start     int  `json:"start"`
	BatchSize int  `json:"batchSize"`
	Processed int  `json:"processed"`
	Sent      int  `json:"sent"`
	Failed    int  `json:"failed"`
	// TimedOut counts the failures whose outcome is unknown because the
	// per-message timeout expired first. They are included in Failed.
	TimedOut      int                  `json:"timedOut"`
	SuppressedNew int                  `json:"suppressedNew"`
	Done          bool                 `json:"done"`
	NextStart     int                  `json:"nextStart"`
	ErrorsPreview []domain.SendFailure `json:"errorsPreview"`
	// SuppressionError is set when the page was sent but its permanent
	// failures could not be added to the suppression set. OK is false then.
	SuppressionError string `json:"suppressionError,omitempty"`
}

// Service is the bulk delivery engine. It is safe for concurrent use; each
// Send call owns its worker pool.
type Service struct {
	lists         ListSource
	suppression   SuppressionSet
	sender        sending.Sender
	cfg           config.BulkConfig
	publicBaseURL string
}

// NewService creates the engine.
func NewService(lists ListSource, supp SuppressionSet, sender sending.Sender, cfg config.BulkConfig, publicBaseURL string) *Service {
	if cfg.DefaultBatchSize <= 0 {
		cfg.DefaultBatchSize = 50
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 200
	}
	if cfg.DefaultConcurrency <= 0 {
		cfg.DefaultConcurrency = 3
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 10
	}
	if cfg.PreviewLimit <= 0 {
		cfg.PreviewLimit = 10
	}
	return &Service{lists: lists, suppression: supp, sender: sender, cfg: cfg, publicBaseURL: publicBaseURL}
}

// normalize validates req and applies defaults and caps.
func (s *Service) normalize(req Request) (Request, error) {
	if req.ListLocation == "" {
		req.ListLocation = req.BlobURL
	}
	req.ListLocation = strings.TrimSpace(req.ListLocation)
	req.Subject = strings.TrimSpace(req.Subject)
	req.From = strings.TrimSpace(req.From)
	if req.From == "" {
		req.From = s.cfg.From
	}
	switch {
	case req.ListLocation == "":
		return req, fmt.Errorf("%w: listLocation is required", ErrInvalidRequest)
	case req.Subject == "":
		return req, fmt.Errorf("%w: subject is required", ErrInvalidRequest)
	case req.From == "":
		return req, fmt.Errorf("%w: from is required when no default sender is configured", ErrInvalidRequest)
	}
	if req.Start < 0 {
		req.Start = 0
	}
	req.BatchSize = clamp(req.BatchSize, s.cfg.DefaultBatchSize, s.cfg.MaxBatchSize)
	req.Concurrency = clamp(req.Concurrency, s.cfg.DefaultConcurrency, s.cfg.MaxConcurrency)
	return req, nil
}

func clamp(v, def, max int) int {
	if v <= 0 {
		v = def
	}
	if v > max {
		v = max
	}
	return v
}

// ParseList splits line-delimited content into normalized, valid, unique
// addresses in their original order.
func ParseList(raw []byte) []string {
	var out []string
	seen := make(map[string]struct{})
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		e := emailaddr.Normalize(sc.Text())
		if !emailaddr.Valid(e) {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Send delivers one page of a campaign.
func (s *Service) Send(ctx context.Context, req Request) (*Result, error) {
	req, err := s.normalize(req)
	if err != nil {
		return nil, err
	}

	raw, err := s.lists.Fetch(ctx, req.ListLocation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListUnavailable, err)
	}
	targets := ParseList(raw)

	set, err := s.suppression.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSuppressionUnavailable, err)
	}
	filtered := make([]string, 0, len(targets))
	for _, e := range targets {
		if !set.Contains(e) {
			filtered = append(filtered, e)
		}
	}

	res := &Result{
		OK:            true,
		DryRun:        req.DryRun,
		Total:         len(filtered),
		Start:         req.Start,
		BatchSize:     req.BatchSize,
		ErrorsPreview: []domain.SendFailure{},
	}
	if req.Start >= len(filtered) {
		res.Done = true
		res.NextStart = req.Start
		return res, nil
	}
	end := req.Start + req.BatchSize
	if end > len(filtered) {
		end = len(filtered)
	}
	page := filtered[req.Start:end]

	runID := uuid.NewString()
	errs := s.dispatch(ctx, req, page, runID)

	var failures []domain.SendFailure
	var dead []string
	for i, err := range errs {
		if err == nil {
			res.Sent++
			continue
		}
		res.Failed++
		if isTimeout(err) {
			res.TimedOut++
		}
		failures = append(failures, domain.SendFailure{To: page[i], Error: err.Error()})
		if IsPermanentFailure(err.Error()) {
			dead = append(dead, page[i])
		}
	}
	res.Processed = len(page)
	res.NextStart = req.Start + len(page)
	res.Done = res.NextStart >= res.Total
	if len(failures) > s.cfg.PreviewLimit {
		res.ErrorsPreview = failures[:s.cfg.PreviewLimit]
	} else if failures != nil {
		res.ErrorsPreview = failures
	}

	if req.DryRun {
		metrics.BulkRecipients.WithLabelValues("skipped").Add(float64(res.Sent))
	} else {
		metrics.BulkRecipients.WithLabelValues("sent").Add(float64(res.Sent))
	}
	metrics.BulkRecipients.WithLabelValues("failed").Add(float64(res.Failed - res.TimedOut))
	metrics.BulkRecipients.WithLabelValues("timeout").Add(float64(res.TimedOut))

	if len(dead) > 0 {
		added, err := s.suppression.AddMany(ctx, dead, domain.SourceBulkBounce)
		if err != nil {
			// The page has already gone out, so the counters and NextStart
			// must still reach the caller.
			res.OK = false
			res.SuppressionError = fmt.Sprintf("%v: promote permanent failures: %v", ErrSuppressionUnavailable, err)
			logger.Error("campaign: permanent failures not suppressed",
				"run_id", runID, "start", res.Start, "addresses", len(dead), "error", err)
		} else {
			res.SuppressedNew = added
			metrics.BulkSuppressedAdded.Add(float64(added))
		}
	}

	logger.Info("campaign: batch complete",
		"run_id", runID,
		"start", res.Start,
		"processed", res.Processed,
		"sent", res.Sent,
		"failed", res.Failed,
		"timed_out", res.TimedOut,
		"suppressed_new", res.SuppressedNew,
		"dry_run", res.DryRun,
		"done", res.Done,
	)
	return res, nil
}

// dispatch sends page with req.Concurrency workers pulling indexes from a
// shared queue. The returned slice is aligned with page; nil means sent.
func (s *Service) dispatch(ctx context.Context, req Request, page []string, runID string) []error {
	errs := make([]error, len(page))
	queue := make(chan int, len(page))
	for i := range page {
		queue <- i
	}
	close(queue)

	workers := req.Concurrency
	if workers > len(page) {
		workers = len(page)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				if req.DryRun {
					continue
				}
				errs[i] = s.sendOne(ctx, req, page[i], runID)
			}
		}()
	}
	wg.Wait()
	return errs
}

func (s *Service) sendOne(ctx context.Context, req Request, to, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// The timeout bounds how long this worker waits, not the provider call.
	// A sender without context support (SMTP) may still deliver after it
	// fires, so such failures are counted as TimedOut and never suppressed.
	if timeout := s.cfg.SendTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	headers := map[string]string{"X-Entity-Ref-ID": runID}
	for k, v := range sending.UnsubscribeHeaders(s.publicBaseURL, to) {
		headers[k] = v
	}
	msg := &domain.EmailMessage{
		To:          to,
		From:        req.From,
		Subject:     req.Subject,
		HTMLContent: req.HTML,
		TextContent: req.Text,
		Headers:     headers,
	}

	start := time.Now()
	if err := s.sender.Send(ctx, msg); err != nil {
		logger.Debug("campaign: send failed", "to", to, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return err
	}
	return nil
}

func isTimeout(err error) bool {
	return errors.Is(err, sending.ErrOutcomeUnknown) || errors.Is(err, context.DeadlineExceeded)
}
