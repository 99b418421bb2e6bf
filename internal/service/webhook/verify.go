package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const secretPrefix = "whsec_"

// DefaultTolerance bounds clock skew between provider and receiver.
const DefaultTolerance = 5 * time.Minute

// Headers carries the three Svix signing headers.
type Headers struct {
	ID        string
	Timestamp string
	Signature string
}

func (h Headers) complete() bool {
	return h.ID != "" && h.Timestamp != "" && h.Signature != ""
}

// Verifier checks Svix signatures: HMAC-SHA256 over "id.timestamp.body"
// with the base64 key material of the shared secret.
type Verifier struct {
	key       []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier decodes secret, which may carry a "whsec_" prefix.
func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrNotConfigured
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix))
	if err != nil {
		return nil, fmt.Errorf("webhook: decode secret: %w", err)
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{key: key, tolerance: tolerance, now: time.Now}, nil
}

// Verify returns nil when any v1 signature in h matches body and the
// timestamp is within tolerance.
func (v *Verifier) Verify(h Headers, body []byte) error {
	if !h.complete() {
		return ErrMissingHeaders
	}
	sec, err := strconv.ParseInt(strings.TrimSpace(h.Timestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	skew := v.now().Sub(time.Unix(sec, 0))
	if skew > v.tolerance || skew < -v.tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := v.sign(h.ID, h.Timestamp, body)
	for _, part := range strings.Fields(h.Signature) {
		version, sig, ok := strings.Cut(part, ",")
		if !ok || version != "v1" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) == 1 {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching signature", ErrInvalidSignature)
}

func (v *Verifier) sign(id, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(id))
	mac.Write([]byte{'.'})
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Sign produces a v1 signature header value for body. It is used by tests
// and the operator CLI to exercise the endpoint.
func (v *Verifier) Sign(id string, ts time.Time, body []byte) Headers {
	stamp := strconv.FormatInt(ts.Unix(), 10)
	return Headers{ID: id, Timestamp: stamp, Signature: "v1," + v.sign(id, stamp, body)}
}
