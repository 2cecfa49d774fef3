package validation

import (
	"testing"

	x402 "github.com/skapa-xyz/pl-genesis-hackathon-demo"
)

const (
	goodAddress = "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"
	goodNonce   = "0xab00000000000000000000000000000000000000000000000000000000000000"
)

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		amount  string
		wantErr bool
	}{
		{"1000", false},
		{"0", false},
		{"123456789012345678901234567890", false},
		{"-1", true},
		{"1.5", true},
		{"", true},
		{"abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			err := ValidateAmount(tt.amount)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAmount(%q) = %v, wantErr %v", tt.amount, err, tt.wantErr)
			}
		})
	}
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{"valid checksummed", goodAddress, false},
		{"valid lowercase", "0x742d35cc6634c0532925a3b844bc9e7595f0beb0", false},
		{"missing prefix", "742d35Cc6634C0532925a3b844Bc9e7595f0bEb0", true},
		{"too short", "0x742d35", true},
		{"empty", "", true},
		{"non-hex", "0xZZZZ35Cc6634C0532925a3b844Bc9e7595f0bEb0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.address)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddress(%q) = %v, wantErr %v", tt.address, err, tt.wantErr)
			}
		})
	}
}

func TestValidateNonce(t *testing.T) {
	if err := ValidateNonce(goodNonce); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateNonce("0x1234"); err == nil {
		t.Error("expected error for short nonce")
	}
	if err := ValidateNonce(""); err == nil {
		t.Error("expected error for empty nonce")
	}
}

func validRequirement() x402.PaymentRequirement {
	return x402.PaymentRequirement{
		Scheme:            "exact",
		Network:           "filecoin-calibration",
		MaxAmountRequired: "1000",
		Asset:             goodAddress,
		PayTo:             goodAddress,
		MaxTimeoutSeconds: 60,
	}
}

func TestValidatePaymentRequirement(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*x402.PaymentRequirement)
		wantErr bool
	}{
		{"valid", func(r *x402.PaymentRequirement) {}, false},
		{"bad amount", func(r *x402.PaymentRequirement) { r.MaxAmountRequired = "-5" }, true},
		{"unknown network", func(r *x402.PaymentRequirement) { r.Network = "no-such-chain" }, true},
		{"bad payTo", func(r *x402.PaymentRequirement) { r.PayTo = "nope" }, true},
		{"bad asset", func(r *x402.PaymentRequirement) { r.Asset = "nope" }, true},
		{"unsupported scheme", func(r *x402.PaymentRequirement) { r.Scheme = "stream" }, true},
		{"negative timeout", func(r *x402.PaymentRequirement) { r.MaxTimeoutSeconds = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequirement()
			tt.mutate(&req)
			err := ValidatePaymentRequirement(req)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePaymentRequirement = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePaymentPayload(t *testing.T) {
	payload := x402.PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "filecoin-calibration",
		Payload:     map[string]interface{}{"signature": "0xabc"},
	}
	if err := ValidatePaymentPayload(payload); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	payload.X402Version = 2
	if err := ValidatePaymentPayload(payload); err == nil {
		t.Error("expected error for unsupported version")
	}
}

func TestValidateAuthorization(t *testing.T) {
	auth := x402.EVMAuthorization{
		From:        goodAddress,
		To:          goodAddress,
		Value:       "1000",
		ValidAfter:  "1700000000",
		ValidBefore: "1700000600",
		Nonce:       goodNonce,
	}
	if err := ValidateAuthorization(auth); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	inverted := auth
	inverted.ValidAfter = "1700000600"
	inverted.ValidBefore = "1700000000"
	if err := ValidateAuthorization(inverted); err == nil {
		t.Error("expected error for inverted validity window")
	}

	badNonce := auth
	badNonce.Nonce = "0x1234"
	if err := ValidateAuthorization(badNonce); err == nil {
		t.Error("expected error for short nonce")
	}
}
