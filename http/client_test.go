package http

import (
	"net/http"
	"testing"

	x402 "github.com/skapa-xyz/pl-genesis-hackathon-demo"
	"github.com/skapa-xyz/pl-genesis-hackathon-demo/encoding"
)

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient()
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if client.Transport == nil {
		t.Fatal("Transport is nil")
	}
}

func TestNewClientWithSigner(t *testing.T) {
	signer := &stubSigner{network: "filecoin-calibration", asset: testAsset}

	client, err := NewClient(WithSigner(signer))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	transport, ok := client.Transport.(*X402Transport)
	if !ok {
		t.Fatalf("Transport is %T, want *X402Transport", client.Transport)
	}
	if len(transport.Signers) != 1 {
		t.Errorf("len(Signers) = %d, want 1", len(transport.Signers))
	}
	if transport.Selector == nil {
		t.Error("Selector is nil")
	}
}

func TestNewClientMultipleSigners(t *testing.T) {
	first := &stubSigner{network: "filecoin-calibration", asset: testAsset}
	second := &stubSigner{network: "base-sepolia", asset: testAsset}

	client, err := NewClient(WithSigner(first), WithSigner(second))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	transport := client.Transport.(*X402Transport)
	if len(transport.Signers) != 2 {
		t.Fatalf("len(Signers) = %d, want 2", len(transport.Signers))
	}
	if transport.Signers[0].Network() != "filecoin-calibration" {
		t.Error("signer order not preserved")
	}
}

func TestNewClientWithHTTPClient(t *testing.T) {
	custom := &http.Client{}

	client, err := NewClient(
		WithHTTPClient(custom),
		WithSigner(&stubSigner{network: "filecoin-calibration", asset: testAsset}),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if client.Client != custom {
		t.Error("underlying http.Client was replaced")
	}
	if _, ok := client.Transport.(*X402Transport); !ok {
		t.Errorf("Transport is %T, want *X402Transport", client.Transport)
	}
}

func TestWithPaymentCallbackUnknownType(t *testing.T) {
	_, err := NewClient(WithPaymentCallback("bogus", func(x402.PaymentEvent) {}))
	if err == nil {
		t.Fatal("NewClient() error = nil, want error for unknown event type")
	}
}

func TestWithPaymentCallbacks(t *testing.T) {
	noop := func(x402.PaymentEvent) {}

	client, err := NewClient(WithPaymentCallbacks(noop, nil, noop))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	transport := client.Transport.(*X402Transport)
	if transport.OnPaymentAttempt == nil {
		t.Error("OnPaymentAttempt not set")
	}
	if transport.OnPaymentSuccess != nil {
		t.Error("OnPaymentSuccess set, want nil")
	}
	if transport.OnPaymentFailure == nil {
		t.Error("OnPaymentFailure not set")
	}
}

func TestGetSettlement(t *testing.T) {
	encoded, err := encoding.EncodeSettlement(x402.SettlementResponse{
		Success:     true,
		Transaction: "0xabc123",
		Network:     "filecoin-calibration",
	})
	if err != nil {
		t.Fatalf("EncodeSettlement() error = %v", err)
	}

	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("X-PAYMENT-RESPONSE", encoded)

	settlement := GetSettlement(resp)
	if settlement == nil {
		t.Fatal("GetSettlement() = nil, want settlement")
	}
	if !settlement.Success || settlement.Transaction != "0xabc123" {
		t.Errorf("settlement = %+v", settlement)
	}
}

func TestGetSettlementMissingHeader(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	if settlement := GetSettlement(resp); settlement != nil {
		t.Errorf("GetSettlement() = %+v, want nil", settlement)
	}
}

func TestGetSettlementMalformedHeader(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("X-PAYMENT-RESPONSE", "not base64 json!!")
	if settlement := GetSettlement(resp); settlement != nil {
		t.Errorf("GetSettlement() = %+v, want nil", settlement)
	}
}
