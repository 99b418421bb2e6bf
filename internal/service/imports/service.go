// Package imports turns an arbitrary text upload into a de-duplicated,
// line-delimited candidate list the bulk engine can consume.
package imports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/optin/internal/pkg/emailaddr"
	"github.com/ignite/optin/internal/pkg/logger"
	"github.com/ignite/optin/internal/storage"
)

// PreviewSize is the number of addresses echoed back to the caller.
const PreviewSize = 10

// ErrEmptyUpload is returned when the upload has no content.
var ErrEmptyUpload = errors.New("empty upload")

// Result reports what an import found and where the list was written.
type Result struct {
	OK       bool     `json:"ok"`
	Lines    int      `json:"lines"`
	Found    int      `json:"found"`
	Valid    int      `json:"valid"`
	Unique   int      `json:"unique"`
	Location string   `json:"location"`
	Preview  []string `json:"preview"`
}

// Service writes imported lists to a Blob.
type Service struct {
	blob storage.Blob
	now  func() time.Time
}

// NewService creates an importer over blob.
func NewService(blob storage.Blob) *Service {
	return &Service{blob: blob, now: time.Now}
}

// Import extracts addresses from raw and stores the unique valid ones. key
// overrides the generated location when non-empty.
func (s *Service) Import(ctx context.Context, raw []byte, key string) (*Result, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyUpload
	}
	text := string(raw)
	found := emailaddr.Find(text)

	res := &Result{OK: true, Found: len(found)}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimRight(line, "\r") != "" {
			res.Lines++
		}
	}

	seen := make(map[string]struct{}, len(found))
	var unique []string
	for _, e := range found {
		if !emailaddr.Valid(e) {
			continue
		}
		res.Valid++
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		unique = append(unique, e)
	}
	res.Unique = len(unique)

	if key == "" {
		key = s.defaultKey()
	}
	var buf bytes.Buffer
	for _, e := range unique {
		buf.WriteString(e)
		buf.WriteByte('\n')
	}
	if err := s.blob.Put(ctx, key, buf.Bytes(), "text/plain; charset=utf-8"); err != nil {
		return nil, fmt.Errorf("imports: store list: %w", err)
	}
	res.Location = key

	res.Preview = unique
	if len(unique) > PreviewSize {
		res.Preview = unique[:PreviewSize]
	}
	if res.Preview == nil {
		res.Preview = []string{}
	}
	logger.Info("imports: list stored", "location", key, "found", res.Found, "unique", res.Unique)
	return res, nil
}

func (s *Service) defaultKey() string {
	ts := strings.NewReplacer(":", "-", ".", "-").Replace(s.now().UTC().Format("2006-01-02T15:04:05.000Z"))
	return "imports/emails-" + ts + "-dedup.txt"
}
