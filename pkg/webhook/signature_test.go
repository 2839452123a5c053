package webhook

import (
	"errors"
	"testing"
	"time"
)

const testSecret = "whsec_groupbuy"

func fixedVerifier(t *testing.T, now time.Time) *Verifier {
	t.Helper()
	v, err := NewVerifier(testSecret, time.Minute)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	v.now = func() time.Time { return now }
	return v
}

func TestVerifyAcceptsSignedPayload(t *testing.T) {
	now := time.Unix(1_780_000_000, 0)
	payload := []byte(`{"payment_id":"p"}`)
	v := fixedVerifier(t, now)

	if err := v.Verify(payload, Sign(testSecret, payload, now.Add(-30*time.Second))); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	rotated := Sign("old-secret", payload, now) + ",v1=" + Sign(testSecret, payload, now)[len("t=1780000000,v1="):]
	if err := v.Verify(payload, rotated); err != nil {
		t.Fatalf("expected one matching signature to pass, got %v", err)
	}
}

func TestVerifyRejects(t *testing.T) {
	now := time.Unix(1_780_000_000, 0)
	payload := []byte(`{"payment_id":"p"}`)
	v := fixedVerifier(t, now)

	cases := []struct {
		name   string
		header string
		want   error
	}{
		{name: "missing", header: "", want: ErrMissingSignature},
		{name: "garbage", header: "nonsense", want: ErrInvalidHeader},
		{name: "no timestamp", header: "v1=abcd", want: ErrInvalidHeader},
		{name: "wrong secret", header: Sign("other", payload, now), want: ErrNoValidSignature},
		{name: "tampered body", header: Sign(testSecret, []byte(`{"payment_id":"q"}`), now), want: ErrNoValidSignature},
		{name: "stale", header: Sign(testSecret, payload, now.Add(-2*time.Minute)), want: ErrTimestampSkew},
		{name: "future", header: Sign(testSecret, payload, now.Add(2*time.Minute)), want: ErrTimestampSkew},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := v.Verify(payload, tc.header); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier("  ", 0); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
