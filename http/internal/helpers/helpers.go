// Package helpers provides shared functions for the x402 HTTP middleware
// implementations so the stdlib, Gin, and Chi variants behave identically.
package helpers

import (
	"encoding/json"
	"fmt"
	"net/http"

	x402 "github.com/skapa-xyz/pl-genesis-hackathon-demo"
	"github.com/skapa-xyz/pl-genesis-hackathon-demo/encoding"
)

// ParsePaymentHeaderFromRequest parses the X-PAYMENT header from a request.
//
// Returns x402.ErrMalformedHeader if the header is missing, invalid base64,
// or invalid JSON, and x402.ErrUnsupportedVersion if X402Version != 1.
func ParsePaymentHeaderFromRequest(r *http.Request) (x402.PaymentPayload, error) {
	var payment x402.PaymentPayload

	headerValue := r.Header.Get("X-PAYMENT")
	if headerValue == "" {
		return payment, x402.ErrMalformedHeader
	}

	payment, err := encoding.DecodePayment(headerValue)
	if err != nil {
		return payment, fmt.Errorf("%w: %v", x402.ErrMalformedHeader, err)
	}

	if payment.X402Version != 1 {
		return payment, x402.ErrUnsupportedVersion
	}

	return payment, nil
}

// FindMatchingRequirement finds the requirement matching the payment's scheme
// and network. It wraps x402.FindMatchingRequirement to return a value for
// the middleware code that copies requirements around.
//
// Returns x402.ErrUnsupportedScheme if no requirement matches.
func FindMatchingRequirement(payment x402.PaymentPayload, requirements []x402.PaymentRequirement) (x402.PaymentRequirement, error) {
	req, err := x402.FindMatchingRequirement(payment, requirements)
	if err != nil {
		return x402.PaymentRequirement{}, err
	}
	return *req, nil
}

// SendPaymentRequired writes a 402 response carrying the accepted payment
// methods as JSON.
func SendPaymentRequired(w http.ResponseWriter, requirements []x402.PaymentRequirement) {
	response := x402.PaymentRequirementsResponse{
		X402Version: 1,
		Error:       "Payment required for this resource",
		Accepts:     requirements,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	// Headers are already sent with the 402 status; an encoding failure here
	// can only truncate the body.
	_ = json.NewEncoder(w).Encode(response)
}

// AddPaymentResponseHeader sets X-PAYMENT-RESPONSE to the base64-encoded
// settlement result.
func AddPaymentResponseHeader(w http.ResponseWriter, settlement *x402.SettlementResponse) error {
	encoded, err := encoding.EncodeSettlement(*settlement)
	if err != nil {
		return err
	}

	w.Header().Set("X-PAYMENT-RESPONSE", encoded)
	return nil
}
