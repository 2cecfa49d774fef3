package x402

import (
	"fmt"
	"math/big"
)

// ChainConfig contains chain-specific configuration for x402 payments:
// the protocol network identifier, the EVM chain ID, and the stable token
// used for "exact" transfers together with its EIP-712 domain parameters.
type ChainConfig struct {
	// NetworkID is the x402 protocol network identifier (e.g., "filecoin-calibration").
	NetworkID string

	// ChainID is the EVM chain identifier used in the signing domain.
	ChainID int64

	// TokenAddress is the stable token contract address on this chain.
	TokenAddress string

	// TokenSymbol is the stable token symbol (e.g., "USDFC").
	TokenSymbol string

	// Decimals is the number of decimal places for the token.
	Decimals uint8

	// DomainName is the default EIP-712 domain parameter "name".
	DomainName string

	// DomainVersion is the default EIP-712 domain parameter "version".
	DomainVersion string
}

var (
	// FilecoinCalibration is the configuration for the Filecoin Calibration
	// testnet with the USDFC token. The domain name matches the token's
	// deployed EIP-712 domain.
	FilecoinCalibration = ChainConfig{
		NetworkID:     "filecoin-calibration",
		ChainID:       314159,
		TokenAddress:  "0xb3042734b608a1B16e9e86B374A3f3e389B4cDf0",
		TokenSymbol:   "USDFC",
		Decimals:      6,
		DomainName:    "USD for Filecoin Community",
		DomainVersion: "1",
	}

	// FilecoinMainnet is the configuration for Filecoin mainnet with USDFC.
	FilecoinMainnet = ChainConfig{
		NetworkID:     "filecoin",
		ChainID:       314,
		TokenAddress:  "0x80B98d3aa09ffff255c3ba4A241111Ff1262F045",
		TokenSymbol:   "USDFC",
		Decimals:      6,
		DomainName:    "USD for Filecoin Community",
		DomainVersion: "1",
	}

	// BaseSepolia is the configuration for the Base Sepolia testnet with USDC.
	BaseSepolia = ChainConfig{
		NetworkID:     "base-sepolia",
		ChainID:       84532,
		TokenAddress:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		TokenSymbol:   "USDC",
		Decimals:      6,
		DomainName:    "USDC",
		DomainVersion: "2",
	}

	// BaseMainnet is the configuration for Base mainnet with USDC.
	BaseMainnet = ChainConfig{
		NetworkID:     "base",
		ChainID:       8453,
		TokenAddress:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		TokenSymbol:   "USDC",
		Decimals:      6,
		DomainName:    "USD Coin",
		DomainVersion: "2",
	}
)

// chains indexes the supported chain configurations by network identifier.
var chains = map[string]ChainConfig{
	FilecoinCalibration.NetworkID: FilecoinCalibration,
	FilecoinMainnet.NetworkID:     FilecoinMainnet,
	BaseSepolia.NetworkID:         BaseSepolia,
	BaseMainnet.NetworkID:         BaseMainnet,
}

// ChainByNetwork returns the chain configuration for a network identifier.
func ChainByNetwork(network string) (ChainConfig, error) {
	chain, ok := chains[network]
	if !ok {
		return ChainConfig{}, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, network)
	}
	return chain, nil
}

// ChainID returns the EVM chain ID for a network, or nil if unsupported.
func ChainID(network string) *big.Int {
	chain, ok := chains[network]
	if !ok {
		return nil
	}
	return big.NewInt(chain.ChainID)
}

// DefaultSigningDomain returns the default EIP-712 domain name and version
// for a network. Unknown networks fall back to the Filecoin Community domain,
// matching the original deployment this toolkit was built for.
func DefaultSigningDomain(network string) (name, version string) {
	chain, ok := chains[network]
	if !ok {
		return FilecoinCalibration.DomainName, FilecoinCalibration.DomainVersion
	}
	return chain.DomainName, chain.DomainVersion
}

// ValidateNetwork returns an error if the network is not supported.
func ValidateNetwork(network string) error {
	if network == "" {
		return fmt.Errorf("%w: network cannot be empty", ErrInvalidNetwork)
	}
	if _, ok := chains[network]; !ok {
		return fmt.Errorf("%w: %s", ErrInvalidNetwork, network)
	}
	return nil
}

// SupportedNetworks returns the network identifiers this toolkit supports,
// in a stable order.
func SupportedNetworks() []string {
	return []string{
		FilecoinCalibration.NetworkID,
		FilecoinMainnet.NetworkID,
		BaseSepolia.NetworkID,
		BaseMainnet.NetworkID,
	}
}

// Token returns the chain's stable token as a TokenConfig, ready to hand to
// a signer.
func (c ChainConfig) Token() TokenConfig {
	return TokenConfig{
		Address:  c.TokenAddress,
		Symbol:   c.TokenSymbol,
		Decimals: int(c.Decimals),
	}
}

// ExactRequirementConfig configures NewExactRequirement.
type ExactRequirementConfig struct {
	// Chain is the chain configuration (required).
	Chain ChainConfig

	// Amount is the human-readable token amount (e.g., "1.5").
	Amount string

	// PayTo is the payment recipient address (required).
	PayTo string

	// MaxTimeoutSeconds is the authorization validity window (optional,
	// defaults to 300).
	MaxTimeoutSeconds int

	// MimeType is the response MIME type (optional, defaults to
	// "application/json").
	MimeType string

	// Description is an optional human-readable payment description.
	Description string
}

// NewExactRequirement builds a PaymentRequirement for the "exact" scheme on
// the configured chain's stable token, converting the human-readable amount
// to atomic units.
func NewExactRequirement(cfg ExactRequirementConfig) (PaymentRequirement, error) {
	if cfg.Chain.NetworkID == "" {
		return PaymentRequirement{}, fmt.Errorf("%w: chain is required", ErrInvalidRequirements)
	}
	if cfg.PayTo == "" {
		return PaymentRequirement{}, fmt.Errorf("%w: payTo is required", ErrInvalidRequirements)
	}

	atomic, err := AmountToBigInt(cfg.Amount, int(cfg.Chain.Decimals))
	if err != nil {
		return PaymentRequirement{}, fmt.Errorf("%w: amount %q", ErrInvalidAmount, cfg.Amount)
	}
	if atomic.Sign() < 0 {
		return PaymentRequirement{}, fmt.Errorf("%w: amount cannot be negative", ErrInvalidAmount)
	}

	timeout := cfg.MaxTimeoutSeconds
	if timeout == 0 {
		timeout = 300
	}
	mimeType := cfg.MimeType
	if mimeType == "" {
		mimeType = "application/json"
	}

	return PaymentRequirement{
		Scheme:            "exact",
		Network:           cfg.Chain.NetworkID,
		MaxAmountRequired: atomic.String(),
		Asset:             cfg.Chain.TokenAddress,
		PayTo:             cfg.PayTo,
		MimeType:          mimeType,
		Description:       cfg.Description,
		MaxTimeoutSeconds: timeout,
		Extra: map[string]interface{}{
			"name":    cfg.Chain.DomainName,
			"version": cfg.Chain.DomainVersion,
		},
	}, nil
}
