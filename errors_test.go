package x402

import (
	"errors"
	"strings"
	"testing"
)

func TestPaymentErrorUnwrap(t *testing.T) {
	err := NewPaymentError(ErrCodeNoValidSigner, "no signer available", ErrNoValidSigner)

	if !errors.Is(err, ErrNoValidSigner) {
		t.Error("errors.Is failed to match wrapped sentinel")
	}

	var paymentErr *PaymentError
	if !errors.As(err, &paymentErr) {
		t.Fatal("errors.As failed")
	}
	if paymentErr.Code != ErrCodeNoValidSigner {
		t.Errorf("Code = %v, want ErrCodeNoValidSigner", paymentErr.Code)
	}
}

func TestPaymentErrorMessage(t *testing.T) {
	err := NewPaymentError(ErrCodeSigningFailed, "signing failed", errors.New("bad key"))
	msg := err.Error()
	if msg == "" {
		t.Fatal("empty error message")
	}
	// The message must carry both the description and the cause.
	if !strings.Contains(msg, "signing failed") || !strings.Contains(msg, "bad key") {
		t.Errorf("message %q missing context", msg)
	}
}

func TestPaymentErrorDetails(t *testing.T) {
	err := NewPaymentError(ErrCodeAmountExceeded, "amount over limit", ErrAmountExceeded).
		WithDetails("have", "100").
		WithDetails("want", "50")

	if err.Details["have"] != "100" || err.Details["want"] != "50" {
		t.Errorf("details not recorded: %v", err.Details)
	}
}
