package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	x402 "github.com/skapa-xyz/pl-genesis-hackathon-demo"
	"github.com/skapa-xyz/pl-genesis-hackathon-demo/encoding"
)

// fakeFacilitator serves the verify/settle surface and counts settle calls.
type fakeFacilitator struct {
	*httptest.Server
	settleCalls   atomic.Int64
	verifyValid   bool
	invalidReason string
	settleOK      bool
	settleReason  string
	settleStatus  int
}

func newFakeFacilitator(t *testing.T) *fakeFacilitator {
	t.Helper()
	f := &fakeFacilitator{verifyValid: true, settleOK: true}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/verify", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(x402.VerifyResponse{
			IsValid:       f.verifyValid,
			InvalidReason: f.invalidReason,
			Payer:         "0x1111111111111111111111111111111111111111",
		})
	})
	mux.HandleFunc("/api/v1/settle", func(w http.ResponseWriter, r *http.Request) {
		f.settleCalls.Add(1)
		if f.settleStatus != 0 {
			http.Error(w, "internal error", f.settleStatus)
			return
		}
		json.NewEncoder(w).Encode(x402.SettlementResponse{
			Success:     f.settleOK,
			ErrorReason: f.settleReason,
			Transaction: "0xfeedface",
			Network:     "filecoin-calibration",
		})
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

func middlewareRequirements() []x402.PaymentRequirement {
	return []x402.PaymentRequirement{{
		Scheme:            "exact",
		Network:           "filecoin-calibration",
		MaxAmountRequired: "1000",
		Asset:             testAsset,
		PayTo:             "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
		MaxTimeoutSeconds: 60,
	}}
}

func encodedPayment(t *testing.T, network string) string {
	t.Helper()
	header, err := encoding.EncodePayment(x402.PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     network,
		Payload: x402.EVMPayload{
			Signature: "0xabcd",
			Authorization: x402.EVMAuthorization{
				From:        "0x1111111111111111111111111111111111111111",
				To:          "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
				Value:       "1000",
				ValidAfter:  "0",
				ValidBefore: "9999999999",
				Nonce:       "0xab00000000000000000000000000000000000000000000000000000000000000",
			},
		},
	})
	if err != nil {
		t.Fatalf("EncodePayment() error = %v", err)
	}
	return header
}

func gatedHandler(t *testing.T, config *MiddlewareConfig, handler http.Handler) http.Handler {
	t.Helper()
	if handler == nil {
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("premium data"))
		})
	}
	return NewPaymentMiddleware(config)(handler)
}

func TestMiddlewareRespondsWith402(t *testing.T) {
	facilitator := newFakeFacilitator(t)
	gated := gatedHandler(t, &MiddlewareConfig{
		FacilitatorURL:      facilitator.URL,
		PaymentRequirements: middlewareRequirements(),
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/weather", nil)
	rec := httptest.NewRecorder()
	gated.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}

	var body x402.PaymentRequirementsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("402 body is not valid JSON: %v", err)
	}
	if body.X402Version != 1 {
		t.Errorf("x402Version = %d, want 1", body.X402Version)
	}
	if len(body.Accepts) != 1 {
		t.Fatalf("len(accepts) = %d, want 1", len(body.Accepts))
	}
	if body.Accepts[0].Resource != "http://example.com/weather" {
		t.Errorf("resource = %q, want request URL", body.Accepts[0].Resource)
	}
	if facilitator.settleCalls.Load() != 0 {
		t.Error("settle called without a payment")
	}
}

func TestMiddlewareRejectsMalformedHeader(t *testing.T) {
	facilitator := newFakeFacilitator(t)
	gated := gatedHandler(t, &MiddlewareConfig{
		FacilitatorURL:      facilitator.URL,
		PaymentRequirements: middlewareRequirements(),
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/weather", nil)
	req.Header.Set("X-PAYMENT", "!!! not base64 !!!")
	rec := httptest.NewRecorder()
	gated.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestMiddlewareVerifiesAndSettles(t *testing.T) {
	facilitator := newFakeFacilitator(t)

	var payerInContext string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v := VerifiedPayment(r.Context()); v != nil {
			payerInContext = v.Payer
		}
		w.Write([]byte("premium data"))
	})

	gated := gatedHandler(t, &MiddlewareConfig{
		FacilitatorURL:      facilitator.URL,
		PaymentRequirements: middlewareRequirements(),
	}, handler)

	req := httptest.NewRequest(http.MethodGet, "/weather", nil)
	req.Header.Set("X-PAYMENT", encodedPayment(t, "filecoin-calibration"))
	rec := httptest.NewRecorder()
	gated.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "premium data" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if payerInContext != "0x1111111111111111111111111111111111111111" {
		t.Errorf("payer in context = %q", payerInContext)
	}
	if got := facilitator.settleCalls.Load(); got != 1 {
		t.Errorf("settle calls = %d, want 1", got)
	}

	settlementHeader := rec.Header().Get("X-PAYMENT-RESPONSE")
	if settlementHeader == "" {
		t.Fatal("X-PAYMENT-RESPONSE header missing")
	}
	settlement, err := encoding.DecodeSettlement(settlementHeader)
	if err != nil {
		t.Fatalf("settlement header not decodable: %v", err)
	}
	if !settlement.Success || settlement.Transaction != "0xfeedface" {
		t.Errorf("settlement = %+v", settlement)
	}
}

func TestMiddlewareSkipsSettlementOnHandlerError(t *testing.T) {
	facilitator := newFakeFacilitator(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	})

	gated := gatedHandler(t, &MiddlewareConfig{
		FacilitatorURL:      facilitator.URL,
		PaymentRequirements: middlewareRequirements(),
	}, handler)

	req := httptest.NewRequest(http.MethodGet, "/weather", nil)
	req.Header.Set("X-PAYMENT", encodedPayment(t, "filecoin-calibration"))
	rec := httptest.NewRecorder()
	gated.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if got := facilitator.settleCalls.Load(); got != 0 {
		t.Errorf("settle calls = %d, want 0 for a failed handler", got)
	}
	if rec.Header().Get("X-PAYMENT-RESPONSE") != "" {
		t.Error("settlement header present on unsettled response")
	}
}

func TestMiddlewareVerifyOnly(t *testing.T) {
	facilitator := newFakeFacilitator(t)

	gated := gatedHandler(t, &MiddlewareConfig{
		FacilitatorURL:      facilitator.URL,
		PaymentRequirements: middlewareRequirements(),
		VerifyOnly:          true,
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/weather", nil)
	req.Header.Set("X-PAYMENT", encodedPayment(t, "filecoin-calibration"))
	rec := httptest.NewRecorder()
	gated.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := facilitator.settleCalls.Load(); got != 0 {
		t.Errorf("settle calls = %d, want 0 in verify-only mode", got)
	}
}

func TestMiddlewareInvalidPayment(t *testing.T) {
	facilitator := newFakeFacilitator(t)
	facilitator.verifyValid = false
	facilitator.invalidReason = "Invalid signature"

	gated := gatedHandler(t, &MiddlewareConfig{
		FacilitatorURL:      facilitator.URL,
		PaymentRequirements: middlewareRequirements(),
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/weather", nil)
	req.Header.Set("X-PAYMENT", encodedPayment(t, "filecoin-calibration"))
	rec := httptest.NewRecorder()
	gated.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402", rec.Code)
	}
	if facilitator.settleCalls.Load() != 0 {
		t.Error("settle called for an invalid payment")
	}
}

func TestMiddlewareNoMatchingRequirement(t *testing.T) {
	facilitator := newFakeFacilitator(t)
	gated := gatedHandler(t, &MiddlewareConfig{
		FacilitatorURL:      facilitator.URL,
		PaymentRequirements: middlewareRequirements(),
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/weather", nil)
	req.Header.Set("X-PAYMENT", encodedPayment(t, "base-sepolia"))
	rec := httptest.NewRecorder()
	gated.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402", rec.Code)
	}
}

func TestMiddlewareSettlementRejectedHijacksResponse(t *testing.T) {
	facilitator := newFakeFacilitator(t)
	facilitator.settleOK = false
	facilitator.settleReason = "Payment already settled"

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("premium data"))
	})

	gated := gatedHandler(t, &MiddlewareConfig{
		FacilitatorURL:      facilitator.URL,
		PaymentRequirements: middlewareRequirements(),
	}, handler)

	req := httptest.NewRequest(http.MethodGet, "/weather", nil)
	req.Header.Set("X-PAYMENT", encodedPayment(t, "filecoin-calibration"))
	rec := httptest.NewRecorder()
	gated.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402 after rejected settlement", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "premium data") {
		t.Error("handler payload leaked despite failed settlement")
	}
}

func TestMiddlewareSettlementErrorHijacksResponse(t *testing.T) {
	facilitator := newFakeFacilitator(t)
	facilitator.settleStatus = http.StatusInternalServerError

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("premium data"))
	})

	gated := gatedHandler(t, &MiddlewareConfig{
		FacilitatorURL:      facilitator.URL,
		PaymentRequirements: middlewareRequirements(),
	}, handler)

	req := httptest.NewRequest(http.MethodGet, "/weather", nil)
	req.Header.Set("X-PAYMENT", encodedPayment(t, "filecoin-calibration"))
	rec := httptest.NewRecorder()
	gated.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 after settlement error", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "premium data") {
		t.Error("handler payload leaked despite failed settlement")
	}
}
