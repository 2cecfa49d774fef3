// Package validation checks payment requirements and payloads before the
// expensive steps (signing, settlement) run. Malformed requirement fields
// must fail here, not inside a signer.
package validation

import (
	"fmt"
	"math/big"
	"regexp"

	x402 "github.com/skapa-xyz/pl-genesis-hackathon-demo"
)

// evmAddressRegex matches Ethereum-style addresses (0x followed by 40 hex chars).
var evmAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// nonceRegex matches a 32-byte hex nonce with 0x prefix.
var nonceRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)

// ValidateAmount validates that an amount string is a valid non-negative
// integer in atomic units.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("amount cannot be empty")
	}

	// Parse as big.Int to handle large values
	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return fmt.Errorf("invalid amount format: %s", amount)
	}

	if amt.Sign() < 0 {
		return fmt.Errorf("amount cannot be negative, got: %s", amount)
	}

	return nil
}

// ValidateAddress validates an EVM address.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if !evmAddressRegex.MatchString(address) {
		return fmt.Errorf("invalid address format: %s (expected 0x followed by 40 hex characters)", address)
	}
	return nil
}

// ValidateNonce validates that a nonce is a 0x-prefixed 32-byte hex string.
func ValidateNonce(nonce string) error {
	if !nonceRegex.MatchString(nonce) {
		return fmt.Errorf("invalid nonce: expected 0x-prefixed 32-byte hex string")
	}
	return nil
}

// ValidatePaymentRequirement performs comprehensive validation of a payment
// requirement before an authorization is built and signed against it.
func ValidatePaymentRequirement(req x402.PaymentRequirement) error {
	if err := ValidateAmount(req.MaxAmountRequired); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}

	if err := x402.ValidateNetwork(req.Network); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}

	if req.PayTo == "" {
		return fmt.Errorf("invalid requirement: payTo cannot be empty")
	}
	if err := ValidateAddress(req.PayTo); err != nil {
		return fmt.Errorf("invalid requirement: payTo %w", err)
	}

	if req.Asset == "" {
		return fmt.Errorf("invalid requirement: asset address cannot be empty")
	}
	if err := ValidateAddress(req.Asset); err != nil {
		return fmt.Errorf("invalid requirement: asset %w", err)
	}

	switch req.Scheme {
	case "exact":
		// The only supported scheme.
	case "":
		return fmt.Errorf("invalid requirement: scheme cannot be empty")
	default:
		return fmt.Errorf("invalid requirement: unsupported scheme %s", req.Scheme)
	}

	if req.MaxTimeoutSeconds < 0 {
		return fmt.Errorf("invalid requirement: timeout cannot be negative: %d", req.MaxTimeoutSeconds)
	}

	// Signing-domain overrides, when present, must be non-empty strings.
	if req.Extra != nil {
		if name, ok := req.Extra["name"].(string); ok && name == "" {
			return fmt.Errorf("invalid requirement: signing domain name cannot be empty")
		}
		if version, ok := req.Extra["version"].(string); ok && version == "" {
			return fmt.Errorf("invalid requirement: signing domain version cannot be empty")
		}
	}

	return nil
}

// ValidatePaymentPayload validates a payment payload structure.
// It checks the version, scheme, network, and payload fields.
func ValidatePaymentPayload(payment x402.PaymentPayload) error {
	if payment.X402Version != 1 {
		return fmt.Errorf("unsupported x402 version: %d", payment.X402Version)
	}

	if payment.Scheme == "" {
		return fmt.Errorf("scheme cannot be empty")
	}

	if payment.Network == "" {
		return fmt.Errorf("network cannot be empty")
	}

	if payment.Payload == nil {
		return fmt.Errorf("payload cannot be nil")
	}

	return nil
}

// ValidateAuthorization checks an authorization's internal consistency:
// well-formed addresses, a 32-byte nonce, and validAfter < validBefore.
func ValidateAuthorization(auth x402.EVMAuthorization) error {
	if err := ValidateAddress(auth.From); err != nil {
		return fmt.Errorf("invalid authorization: from %w", err)
	}
	if err := ValidateAddress(auth.To); err != nil {
		return fmt.Errorf("invalid authorization: to %w", err)
	}
	if err := ValidateAmount(auth.Value); err != nil {
		return fmt.Errorf("invalid authorization: %w", err)
	}
	if err := ValidateNonce(auth.Nonce); err != nil {
		return fmt.Errorf("invalid authorization: %w", err)
	}

	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok {
		return fmt.Errorf("invalid authorization: malformed validAfter %q", auth.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok {
		return fmt.Errorf("invalid authorization: malformed validBefore %q", auth.ValidBefore)
	}
	if validAfter.Cmp(validBefore) >= 0 {
		return fmt.Errorf("invalid authorization: validAfter must precede validBefore")
	}

	return nil
}
