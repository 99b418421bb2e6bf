package campaign_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ignite/optin/internal/config"
	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/repository/memory"
	"github.com/ignite/optin/internal/service/campaign"
	"github.com/ignite/optin/internal/service/sending"
	"github.com/ignite/optin/internal/service/suppression"
	"github.com/ignite/optin/internal/storage"
	"github.com/ignite/optin/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	svc    *campaign.Service
	blob   *storage.Memory
	supp   *suppression.Service
	sender *transport.LogSender
}

func newHarness(t *testing.T, list []string, suppressed ...string) *harness {
	t.Helper()
	h := &harness{
		blob:   storage.NewMemory(),
		supp:   suppression.NewService(memory.NewSuppressionRepo(suppressed...)),
		sender: transport.NewLogSender(),
	}
	require.NoError(t, h.blob.Put(context.Background(), "lists/a.txt", []byte(strings.Join(list, "\n")), "text/plain"))
	h.svc = campaign.NewService(
		storage.NewListFetcher(h.blob, nil, nil),
		h.supp,
		h.sender,
		config.BulkConfig{SendTimeoutSeconds: 5, From: "news@example.com"},
		"https://list.example.com",
	)
	return h
}

func addrs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("user%02d@example.com", i)
	}
	return out
}

func TestSend_FiltersBeforePaginating(t *testing.T) {
	list := addrs(6)
	h := newHarness(t, list, list[1], list[3])

	res, err := h.svc.Send(context.Background(), campaign.Request{
		ListLocation: "lists/a.txt", Subject: "hi", Text: "hello", BatchSize: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 2, res.NextStart)
	assert.False(t, res.Done)

	var got []string
	for _, m := range h.sender.Sent() {
		got = append(got, m.To)
	}
	assert.ElementsMatch(t, []string{list[0], list[2]}, got)

	res, err = h.svc.Send(context.Background(), campaign.Request{
		ListLocation: "lists/a.txt", Subject: "hi", Text: "hello", Start: 2, BatchSize: 2,
	})
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, 4, res.NextStart)
	assert.Len(t, h.sender.Sent(), 4)
}

func TestSend_PastEndIsDone(t *testing.T) {
	h := newHarness(t, addrs(3))
	res, err := h.svc.Send(context.Background(), campaign.Request{
		ListLocation: "lists/a.txt", Subject: "hi", Start: 3,
	})
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 3, res.NextStart)
	assert.Empty(t, h.sender.Sent())
}

func TestSend_DryRunCountsWithoutSending(t *testing.T) {
	h := newHarness(t, addrs(5))
	res, err := h.svc.Send(context.Background(), campaign.Request{
		BlobURL: "lists/a.txt", Subject: "hi", DryRun: true,
	})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 5, res.Sent)
	assert.Equal(t, 0, res.Failed)
	assert.Empty(t, h.sender.Sent())
}

func TestSend_PromotesPermanentFailures(t *testing.T) {
	list := addrs(4)
	h := newHarness(t, list)
	h.sender.Fail = func(to string) error {
		switch to {
		case list[0]:
			return errors.New("550 5.1.1 Mailbox does not exist")
		case list[2]:
			return errors.New("421 try again later")
		}
		return nil
	}

	res, err := h.svc.Send(context.Background(), campaign.Request{ListLocation: "lists/a.txt", Subject: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 1, res.SuppressedNew)
	require.Len(t, res.ErrorsPreview, 2)
	assert.Equal(t, list[0], res.ErrorsPreview[0].To)

	ok, err := h.supp.Contains(context.Background(), list[0])
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = h.supp.Contains(context.Background(), list[2])
	require.NoError(t, err)
	assert.False(t, ok)

	var mu sync.Mutex
	var attempted []string
	h.sender.Fail = func(to string) error {
		mu.Lock()
		attempted = append(attempted, to)
		mu.Unlock()
		return nil
	}
	res, err = h.svc.Send(context.Background(), campaign.Request{ListLocation: "lists/a.txt", Subject: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 3, res.Sent)
	assert.ElementsMatch(t, []string{list[1], list[2], list[3]}, attempted)
	assert.NotContains(t, attempted, list[0])
}

type addFailsSuppression struct{ *suppression.Service }

func (addFailsSuppression) AddMany(context.Context, []string, domain.SuppressionSource) (int, error) {
	return 0, errors.New("dynamodb throttled")
}

func TestSend_SuppressionAddFailureKeepsPageStats(t *testing.T) {
	list := addrs(8)
	h := newHarness(t, list)
	h.sender.Fail = func(to string) error {
		if to == list[3] {
			return errors.New("550 user unknown")
		}
		return nil
	}
	svc := campaign.NewService(storage.NewListFetcher(h.blob, nil, nil), addFailsSuppression{h.supp}, h.sender,
		config.BulkConfig{From: "news@example.com"}, "")

	res, err := svc.Send(context.Background(), campaign.Request{ListLocation: "lists/a.txt", Subject: "hi", BatchSize: 5})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.OK)
	assert.Contains(t, res.SuppressionError, "dynamodb throttled")
	assert.Equal(t, 5, res.Processed)
	assert.Equal(t, 4, res.Sent)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 0, res.SuppressedNew)
	assert.Equal(t, 5, res.NextStart)
	assert.False(t, res.Done)
	require.Len(t, res.ErrorsPreview, 1)
	assert.Equal(t, list[3], res.ErrorsPreview[0].To)
	assert.Len(t, h.sender.Sent(), 4)
}

func TestSend_PreviewIsCapped(t *testing.T) {
	h := newHarness(t, addrs(30))
	h.sender.Fail = func(string) error { return errors.New("connection reset") }

	res, err := h.svc.Send(context.Background(), campaign.Request{ListLocation: "lists/a.txt", Subject: "hi", BatchSize: 30})
	require.NoError(t, err)
	assert.Equal(t, 30, res.Failed)
	assert.Len(t, res.ErrorsPreview, 10)
	assert.Equal(t, 0, res.SuppressedNew)
}

func TestSend_CapsBatchAndConcurrency(t *testing.T) {
	h := newHarness(t, addrs(3))
	res, err := h.svc.Send(context.Background(), campaign.Request{
		ListLocation: "lists/a.txt", Subject: "hi", BatchSize: 10_000, Concurrency: 500, DryRun: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 200, res.BatchSize)
}

func TestSend_AddsUnsubscribeHeaders(t *testing.T) {
	h := newHarness(t, addrs(1))
	_, err := h.svc.Send(context.Background(), campaign.Request{ListLocation: "lists/a.txt", Subject: "hi", HTML: "<p>x</p>"})
	require.NoError(t, err)
	sent := h.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "<https://list.example.com/api/unsubscribe?email=user00%40example.com>", sent[0].Headers["List-Unsubscribe"])
	assert.NotEmpty(t, sent[0].Headers["X-Entity-Ref-ID"])
	assert.Equal(t, "news@example.com", sent[0].From)
}

func TestSend_Validation(t *testing.T) {
	h := newHarness(t, addrs(1))
	_, err := h.svc.Send(context.Background(), campaign.Request{Subject: "hi"})
	assert.ErrorIs(t, err, campaign.ErrInvalidRequest)
	_, err = h.svc.Send(context.Background(), campaign.Request{ListLocation: "lists/a.txt", Subject: "  "})
	assert.ErrorIs(t, err, campaign.ErrInvalidRequest)
}

func TestSend_MissingListIsFatal(t *testing.T) {
	h := newHarness(t, addrs(1))
	_, err := h.svc.Send(context.Background(), campaign.Request{ListLocation: "lists/missing.txt", Subject: "hi"})
	assert.ErrorIs(t, err, campaign.ErrListUnavailable)
}

type failingSuppression struct{}

func (failingSuppression) Load(context.Context) (suppression.Set, error) {
	return nil, errors.New("bucket gone")
}

func (failingSuppression) AddMany(context.Context, []string, domain.SuppressionSource) (int, error) {
	return 0, nil
}

func TestSend_SuppressionLoadFailureIsFatal(t *testing.T) {
	h := newHarness(t, addrs(2))
	svc := campaign.NewService(storage.NewListFetcher(h.blob, nil, nil), failingSuppression{}, h.sender, config.BulkConfig{}, "")
	_, err := svc.Send(context.Background(), campaign.Request{ListLocation: "lists/a.txt", Subject: "hi", From: "a@b.io"})
	assert.ErrorIs(t, err, campaign.ErrSuppressionUnavailable)
	assert.Empty(t, h.sender.Sent())
}

func TestSend_CountsTimeoutsSeparately(t *testing.T) {
	list := addrs(4)
	h := newHarness(t, list)
	h.sender.Fail = func(to string) error {
		switch to {
		case list[1]:
			return fmt.Errorf("%w: %w", sending.ErrOutcomeUnknown, context.DeadlineExceeded)
		case list[2]:
			return errors.New("550 no such user")
		}
		return nil
	}

	res, err := h.svc.Send(context.Background(), campaign.Request{ListLocation: "lists/a.txt", Subject: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 1, res.TimedOut)
	assert.Equal(t, 1, res.SuppressedNew)

	ok, err := h.supp.Contains(context.Background(), list[1])
	require.NoError(t, err)
	assert.False(t, ok, "a timed-out send may have been delivered")
}

type slowSender struct {
	inflight, peak atomic.Int32
}

func (s *slowSender) Send(ctx context.Context, _ *domain.EmailMessage) error {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-time.After(10 * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestSend_BoundedConcurrency(t *testing.T) {
	h := newHarness(t, addrs(20))
	sender := &slowSender{}
	svc := campaign.NewService(storage.NewListFetcher(h.blob, nil, nil), h.supp, sender, config.BulkConfig{}, "")
	res, err := svc.Send(context.Background(), campaign.Request{
		ListLocation: "lists/a.txt", Subject: "hi", From: "a@b.io", BatchSize: 20, Concurrency: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, 20, res.Sent)
	assert.LessOrEqual(t, sender.peak.Load(), int32(4))
}

func TestParseList(t *testing.T) {
	raw := []byte("A@Example.com\r\n\n  b@example.com \nnot-an-address\na@example.com\n")
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, campaign.ParseList(raw))
}

func TestIsPermanentFailure(t *testing.T) {
	cases := map[string]bool{
		"550 5.1.1 User unknown":         true,
		"553 relaying denied":            true,
		"No Such User here":              true,
		"Invalid Recipient":              true,
		"421 4.7.0 try again later":      false,
		"context deadline exceeded":      false,
		"mailbox does not exist (gmail)": true,
	}
	for msg, want := range cases {
		assert.Equal(t, want, campaign.IsPermanentFailure(msg), msg)
	}
}
