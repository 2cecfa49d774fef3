package evm

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	x402 "github.com/skapa-xyz/pl-genesis-hackathon-demo"
	"github.com/skapa-xyz/pl-genesis-hackathon-demo/validation"
)

// Signer implements the x402.Signer interface for EVM-compatible chains.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	network    string
	chainID    *big.Int
	tokens     []x402.TokenConfig
	priority   int
	maxAmount  *big.Int
}

// SignerOption configures a Signer.
type SignerOption func(*Signer) error

// NewSigner creates a new EVM signer with the given options.
func NewSigner(opts ...SignerOption) (*Signer, error) {
	s := &Signer{
		priority: 0,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	// Validation
	if s.privateKey == nil {
		return nil, x402.ErrInvalidKey
	}
	if s.network == "" {
		return nil, x402.ErrInvalidNetwork
	}
	if len(s.tokens) == 0 {
		return nil, x402.ErrNoTokens
	}

	// Derive address and chain ID from network
	s.address = crypto.PubkeyToAddress(s.privateKey.PublicKey)
	s.chainID = x402.ChainID(s.network)
	if s.chainID == nil {
		return nil, fmt.Errorf("%w: %s", x402.ErrInvalidNetwork, s.network)
	}

	return s, nil
}

// WithPrivateKey sets the private key from a hex string. A 0x prefix is
// accepted and stripped.
func WithPrivateKey(hexKey string) SignerOption {
	return func(s *Signer) error {
		hexKey = strings.TrimPrefix(hexKey, "0x")

		privateKey, err := crypto.HexToECDSA(hexKey)
		if err != nil {
			return x402.ErrInvalidKey
		}

		s.privateKey = privateKey
		return nil
	}
}

// WithNetwork sets the blockchain network.
func WithNetwork(network string) SignerOption {
	return func(s *Signer) error {
		s.network = network
		return nil
	}
}

// WithChain sets the network and its stable token from a chain configuration.
func WithChain(chain x402.ChainConfig) SignerOption {
	return func(s *Signer) error {
		s.network = chain.NetworkID
		s.tokens = append(s.tokens, chain.Token())
		return nil
	}
}

// WithToken adds a token configuration.
func WithToken(address, symbol string, decimals int) SignerOption {
	return func(s *Signer) error {
		s.tokens = append(s.tokens, x402.TokenConfig{
			Address:  address,
			Symbol:   symbol,
			Decimals: decimals,
			Priority: 0,
		})
		return nil
	}
}

// WithTokenPriority adds a token configuration with a priority.
func WithTokenPriority(address, symbol string, decimals, priority int) SignerOption {
	return func(s *Signer) error {
		s.tokens = append(s.tokens, x402.TokenConfig{
			Address:  address,
			Symbol:   symbol,
			Decimals: decimals,
			Priority: priority,
		})
		return nil
	}
}

// WithPriority sets the signer priority.
func WithPriority(priority int) SignerOption {
	return func(s *Signer) error {
		s.priority = priority
		return nil
	}
}

// WithMaxAmountPerCall sets the maximum amount per payment call, in atomic
// units.
func WithMaxAmountPerCall(amount string) SignerOption {
	return func(s *Signer) error {
		maxAmount, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return x402.ErrInvalidAmount
		}
		s.maxAmount = maxAmount
		return nil
	}
}

// Address returns the signer's payer address.
func (s *Signer) Address() common.Address {
	return s.address
}

// Network returns the blockchain network identifier.
func (s *Signer) Network() string {
	return s.network
}

// Scheme returns the payment scheme identifier.
func (s *Signer) Scheme() string {
	return "exact"
}

// GetPriority returns the signer's priority level.
func (s *Signer) GetPriority() int {
	return s.priority
}

// GetTokens returns the list of tokens supported by this signer.
func (s *Signer) GetTokens() []x402.TokenConfig {
	return s.tokens
}

// GetMaxAmount returns the per-call spending limit, or nil if no limit is set.
func (s *Signer) GetMaxAmount() *big.Int {
	return s.maxAmount
}

// CanSign reports whether this signer can satisfy the requirement: matching
// scheme and network, and a configured token matching the asset.
func (s *Signer) CanSign(requirements *x402.PaymentRequirement) bool {
	if requirements.Scheme != s.Scheme() {
		return false
	}
	if requirements.Network != s.network {
		return false
	}
	for _, token := range s.tokens {
		if strings.EqualFold(token.Address, requirements.Asset) {
			return true
		}
	}
	return false
}

// Sign builds and signs a fresh single-use authorization for the
// requirement. The requirement is validated first: malformed fields fail
// fast before the signing step. The payment value is always the full
// MaxAmountRequired (partial payment is not supported).
func (s *Signer) Sign(requirements *x402.PaymentRequirement) (*x402.PaymentPayload, error) {
	if err := validation.ValidatePaymentRequirement(*requirements); err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeInvalidRequirements, "cannot sign payment", err)
	}
	if !s.CanSign(requirements) {
		return nil, x402.NewPaymentError(x402.ErrCodeNoValidSigner, "signer cannot satisfy requirement", x402.ErrNoValidSigner)
	}

	value, ok := new(big.Int).SetString(requirements.MaxAmountRequired, 10)
	if !ok {
		return nil, x402.NewPaymentError(x402.ErrCodeInvalidRequirements, "invalid amount in requirements", x402.ErrInvalidAmount)
	}
	if s.maxAmount != nil && value.Cmp(s.maxAmount) > 0 {
		return nil, x402.NewPaymentError(x402.ErrCodeAmountExceeded, "payment exceeds per-call limit", x402.ErrAmountExceeded).
			WithDetails("amount", value.String()).
			WithDetails("limit", s.maxAmount.String())
	}

	auth, err := NewTransferAuthorization(s.address, common.HexToAddress(requirements.PayTo), value, requirements.MaxTimeoutSeconds)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeSigningFailed, "failed to build authorization", err)
	}

	name, version := requirements.SigningDomain()
	signature, err := SignTransferAuthorization(s.privateKey, common.HexToAddress(requirements.Asset), s.chainID, auth, name, version)
	if err != nil {
		return nil, err
	}

	return &x402.PaymentPayload{
		X402Version: 1,
		Scheme:      s.Scheme(),
		Network:     s.network,
		Payload: x402.EVMPayload{
			Signature:     signature,
			Authorization: auth.Wire(),
		},
	}, nil
}
