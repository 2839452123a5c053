// Package webhook signs and verifies payment provider deliveries.
//
// The signature header has the form `t=<unix seconds>,v1=<hex hmac>` where the
// HMAC-SHA256 covers `<t>.<raw body>`. Several v1 entries may be present while
// a secret is being rotated; any one match is enough.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// SignatureHeader carries the delivery signature.
	SignatureHeader = "X-Groupbuy-Signature"
	// DefaultTolerance bounds how far the signed timestamp may drift from now.
	DefaultTolerance = 5 * time.Minute

	signingVersion = "v1"
)

var (
	ErrMissingSignature = errors.New("webhook signature missing")
	ErrInvalidHeader    = errors.New("webhook signature header malformed")
	ErrNoValidSignature = errors.New("webhook signature mismatch")
	ErrTimestampSkew    = errors.New("webhook timestamp outside tolerance")
)

// Verifier checks delivery signatures against a shared secret.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier builds a verifier. A non-positive tolerance uses DefaultTolerance.
func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("webhook secret required")
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{secret: []byte(secret), tolerance: tolerance, now: time.Now}, nil
}

// Verify returns nil when header carries a valid, fresh signature for payload.
func (v *Verifier) Verify(payload []byte, header string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}
	ts, signatures, err := parseHeader(header)
	if err != nil {
		return err
	}
	if skew := v.now().Sub(time.Unix(ts, 0)); skew > v.tolerance || skew < -v.tolerance {
		return ErrTimestampSkew
	}

	expected := computeSignature(v.secret, ts, payload)
	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return ErrNoValidSignature
}

// Sign builds a header value for payload signed at ts.
func Sign(secret string, payload []byte, ts time.Time) string {
	unix := ts.Unix()
	sig := computeSignature([]byte(secret), unix, payload)
	return fmt.Sprintf("t=%d,%s=%s", unix, signingVersion, hex.EncodeToString(sig))
}

func computeSignature(secret []byte, ts int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseHeader(header string) (int64, [][]byte, error) {
	var (
		ts         int64
		haveTS     bool
		signatures [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return 0, nil, ErrInvalidHeader
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, ErrInvalidHeader
			}
			ts, haveTS = parsed, true
		case signingVersion:
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}
	if !haveTS {
		return 0, nil, ErrInvalidHeader
	}
	if len(signatures) == 0 {
		return 0, nil, ErrNoValidSignature
	}
	return ts, signatures, nil
}
