package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_123","type":"invoice.paid","data":{"object":{}}}`)
	verifier := NewVerifier("whsec_test")

	header := verifier.Sign(payload, time.Now())
	require.NoError(t, verifier.Verify(payload, header))
}

func TestVerifySignatureWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_123"}`)
	header := NewVerifier("whsec_other").Sign(payload, time.Now())

	err := NewVerifier("whsec_test").Verify(payload, header)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifySignatureTamperedPayload(t *testing.T) {
	verifier := NewVerifier("whsec_test")
	header := verifier.Sign([]byte(`{"amount":100}`), time.Now())

	err := verifier.Verify([]byte(`{"amount":999}`), header)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifySignatureStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_123"}`)
	verifier := NewVerifier("whsec_test")

	header := verifier.Sign(payload, time.Now().Add(-10*time.Minute))
	require.ErrorIs(t, verifier.Verify(payload, header), ErrInvalidSignature)
}

func TestVerifySignatureMalformedHeader(t *testing.T) {
	verifier := NewVerifier("whsec_test")
	for _, header := range []string{"", "t=", "v1=abc", "garbage"} {
		require.ErrorIs(t, verifier.Verify([]byte("{}"), header), ErrInvalidSignature)
	}
}
