package x402

import (
	"math/big"
	"sort"
	"strings"
)

// PaymentSelector selects the appropriate signer and creates a payment.
type PaymentSelector interface {
	// SelectAndSign chooses a signer for one of the offered requirements and
	// creates a signed payment.
	SelectAndSign(requirements []PaymentRequirement, signers []Signer) (*PaymentPayload, error)
}

// DefaultPaymentSelector implements the standard selection algorithm:
// requirements are considered strictly in the order the server offered them
// (the first satisfiable entry wins, no ranking across entries), and within
// a requirement signers are ordered by:
//  1. Signer priority (lower number = higher priority)
//  2. Token priority within the signer
//  3. Configuration order (for ties)
type DefaultPaymentSelector struct{}

// NewDefaultPaymentSelector creates a new DefaultPaymentSelector.
func NewDefaultPaymentSelector() *DefaultPaymentSelector {
	return &DefaultPaymentSelector{}
}

// SelectAndSign implements PaymentSelector.
func (s *DefaultPaymentSelector) SelectAndSign(requirements []PaymentRequirement, signers []Signer) (*PaymentPayload, error) {
	if len(signers) == 0 {
		return nil, NewPaymentError(ErrCodeNoValidSigner, "no signers configured", ErrNoValidSigner)
	}
	if len(requirements) == 0 {
		return nil, NewPaymentError(ErrCodeInvalidRequirements, "no payment requirements offered", ErrInvalidRequirements)
	}

	for i := range requirements {
		requirement := &requirements[i]

		requiredAmount := new(big.Int)
		if _, ok := requiredAmount.SetString(requirement.MaxAmountRequired, 10); !ok {
			return nil, NewPaymentError(ErrCodeInvalidRequirements, "invalid amount in requirements", ErrInvalidRequirements).
				WithDetails("amount", requirement.MaxAmountRequired)
		}

		candidates := candidatesFor(requirement, requiredAmount, signers)
		if len(candidates) == 0 {
			continue
		}

		// Lower priority numbers come first.
		sort.SliceStable(candidates, func(a, b int) bool {
			if candidates[a].signerPriority != candidates[b].signerPriority {
				return candidates[a].signerPriority < candidates[b].signerPriority
			}
			return candidates[a].tokenPriority < candidates[b].tokenPriority
		})

		payment, err := candidates[0].signer.Sign(requirement)
		if err != nil {
			return nil, NewPaymentError(ErrCodeSigningFailed, "failed to sign payment", err)
		}
		return payment, nil
	}

	return nil, NewPaymentError(ErrCodeNoValidSigner, "no signer can satisfy any offered requirement", ErrNoValidSigner).
		WithDetails("offered", len(requirements))
}

// candidatesFor returns the signers able to satisfy a requirement within
// their spending limits.
func candidatesFor(requirement *PaymentRequirement, requiredAmount *big.Int, signers []Signer) []signerCandidate {
	var candidates []signerCandidate
	for _, signer := range signers {
		if !signer.CanSign(requirement) {
			continue
		}

		maxAmount := signer.GetMaxAmount()
		if maxAmount != nil && requiredAmount.Cmp(maxAmount) > 0 {
			continue
		}

		tokenPriority := 0
		for _, token := range signer.GetTokens() {
			if strings.EqualFold(token.Address, requirement.Asset) {
				tokenPriority = token.Priority
				break
			}
		}

		candidates = append(candidates, signerCandidate{
			signer:         signer,
			signerPriority: signer.GetPriority(),
			tokenPriority:  tokenPriority,
		})
	}
	return candidates
}

// signerCandidate represents a signer that can satisfy a payment requirement.
type signerCandidate struct {
	signer         Signer
	signerPriority int
	tokenPriority  int
}
