package x402

import (
	"encoding/json"
	"fmt"
)

// DecodeEVMPayload converts a PaymentPayload's generic payload into a typed
// EVMPayload. The payload arrives as map[string]interface{} after JSON
// decoding; re-marshaling gives an explicit tagged parse with a single
// malformed outcome instead of probing optional fields.
func DecodeEVMPayload(payment PaymentPayload) (*EVMPayload, error) {
	if payment.Payload == nil {
		return nil, fmt.Errorf("%w: payload is missing", ErrInvalidPayment)
	}

	// Fast path when the payload was constructed in-process.
	if typed, ok := payment.Payload.(EVMPayload); ok {
		return validateEVMPayload(&typed)
	}
	if typed, ok := payment.Payload.(*EVMPayload); ok {
		cp := *typed
		return validateEVMPayload(&cp)
	}

	raw, err := json.Marshal(payment.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayment, err)
	}

	var payload EVMPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayment, err)
	}

	return validateEVMPayload(&payload)
}

// validateEVMPayload checks the fields the protocol requires to be present.
func validateEVMPayload(payload *EVMPayload) (*EVMPayload, error) {
	if payload.Signature == "" {
		return nil, fmt.Errorf("%w: signature is missing", ErrInvalidPayment)
	}
	auth := payload.Authorization
	if auth.From == "" || auth.To == "" {
		return nil, fmt.Errorf("%w: authorization addresses are missing", ErrInvalidAuthorization)
	}
	if auth.Value == "" {
		return nil, fmt.Errorf("%w: authorization value is missing", ErrInvalidAuthorization)
	}
	if auth.Nonce == "" {
		return nil, fmt.Errorf("%w: authorization nonce is missing", ErrInvalidAuthorization)
	}
	return payload, nil
}
