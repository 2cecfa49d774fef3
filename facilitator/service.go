package facilitator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	x402 "github.com/skapa-xyz/pl-genesis-hackathon-demo"
	"github.com/skapa-xyz/pl-genesis-hackathon-demo/signers/evm"
)

// Invalidity and rejection reasons returned to callers. Payment invalidity is
// a normal protocol outcome, so these travel in 200 responses, never as HTTP
// errors.
const (
	ReasonMissingPayload       = "Missing payment payload"
	ReasonUnsupportedVersion   = "Unsupported x402 version"
	ReasonUnsupportedScheme    = "Unsupported payment scheme"
	ReasonMalformedPayload     = "Malformed payment payload"
	ReasonMissingSignature     = "Missing signature"
	ReasonMissingAuthorization = "Missing authorization"
	ReasonInvalidSignature     = "Invalid signature"
	ReasonSignerMismatch       = "Signature does not match authorization from address"
	ReasonAlreadySettled       = "Payment already settled"
)

// Service implements the facilitator verify and settle operations.
//
// Verify is structural by default: it checks the payload's shape and scheme
// but does not recover the signer, matching the protocol's reference
// behavior. Enable WithSignatureVerification to additionally recover the
// EIP-712 signer and compare it against the authorization's from address.
// Verify never touches the replay ledger in either mode.
type Service struct {
	ledger           ReplayLedger
	logger           *slog.Logger
	verifySignatures bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLedger sets the replay ledger backend. Defaults to an in-memory ledger.
func WithLedger(ledger ReplayLedger) ServiceOption {
	return func(s *Service) { s.ledger = ledger }
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithSignatureVerification makes Verify recover the EIP-712 signer from the
// payload signature and require it to match authorization.from.
func WithSignatureVerification() ServiceOption {
	return func(s *Service) { s.verifySignatures = true }
}

// NewService creates a facilitator service.
func NewService(opts ...ServiceOption) *Service {
	s := &Service{}
	for _, opt := range opts {
		opt(s)
	}
	if s.ledger == nil {
		s.ledger = NewMemoryLedger()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Ledger exposes the replay ledger, primarily for pruning loops.
func (s *Service) Ledger() ReplayLedger {
	return s.ledger
}

// Verify validates a payment payload. Invalid payments are reported in the
// response with a reason; an error return means the check itself could not
// run. The requirement is optional and only consulted for signature
// verification, where it supplies the signing domain.
func (s *Service) Verify(ctx context.Context, payment *x402.PaymentPayload, requirement *x402.PaymentRequirement) (*x402.VerifyResponse, error) {
	if payment == nil {
		return invalid(ReasonMissingPayload), nil
	}
	if payment.X402Version != 1 {
		return invalid(ReasonUnsupportedVersion), nil
	}
	if payment.Scheme != "exact" {
		return invalid(ReasonUnsupportedScheme), nil
	}

	evmPayload, err := x402.DecodeEVMPayload(*payment)
	if err != nil {
		return invalid(ReasonMalformedPayload), nil
	}
	if evmPayload.Signature == "" {
		return invalid(ReasonMissingSignature), nil
	}
	if evmPayload.Authorization.From == "" {
		return invalid(ReasonMissingAuthorization), nil
	}

	if s.verifySignatures {
		if resp := s.checkSignature(payment.Network, evmPayload, requirement); resp != nil {
			return resp, nil
		}
	}

	s.logger.InfoContext(ctx, "payment verified",
		"network", payment.Network,
		"payer", evmPayload.Authorization.From)

	return &x402.VerifyResponse{
		IsValid: true,
		Payer:   evmPayload.Authorization.From,
	}, nil
}

// checkSignature recovers the EIP-712 signer and compares it to the
// authorization's from address. Returns nil when the signature checks out.
func (s *Service) checkSignature(network string, payload *x402.EVMPayload, requirement *x402.PaymentRequirement) *x402.VerifyResponse {
	auth := payload.Authorization

	from := common.HexToAddress(auth.From)
	to := common.HexToAddress(auth.To)

	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return invalid(ReasonMalformedPayload)
	}
	validAfter, err := strconv.ParseInt(auth.ValidAfter, 10, 64)
	if err != nil {
		return invalid(ReasonMalformedPayload)
	}
	validBefore, err := strconv.ParseInt(auth.ValidBefore, 10, 64)
	if err != nil {
		return invalid(ReasonMalformedPayload)
	}
	nonceBytes, err := hex.DecodeString(strings.TrimPrefix(auth.Nonce, "0x"))
	if err != nil || len(nonceBytes) != 32 {
		return invalid(ReasonMalformedPayload)
	}

	var domainName, domainVersion, asset string
	if requirement != nil {
		domainName, domainVersion = requirement.SigningDomain()
		asset = requirement.Asset
	} else {
		domainName, domainVersion = x402.DefaultSigningDomain(network)
	}
	chainID := x402.ChainID(network)
	if chainID == nil {
		return invalid(ReasonMalformedPayload)
	}

	signature, err := hex.DecodeString(strings.TrimPrefix(payload.Signature, "0x"))
	if err != nil {
		return invalid(ReasonInvalidSignature)
	}

	authorization := &evm.Authorization{
		From:        from,
		To:          to,
		Value:       value,
		ValidAfter:  big.NewInt(validAfter),
		ValidBefore: big.NewInt(validBefore),
		Nonce:       common.BytesToHash(nonceBytes),
	}

	typedData := evm.TransferTypedData(domainName, domainVersion, chainID, common.HexToAddress(asset), authorization)
	digest, err := evm.SigningDigest(typedData)
	if err != nil {
		return invalid(ReasonInvalidSignature)
	}

	signer, err := evm.RecoverSigner(digest, signature)
	if err != nil {
		return invalid(ReasonInvalidSignature)
	}
	if signer != from {
		return invalid(ReasonSignerMismatch)
	}
	return nil
}

// Settle commits a payment exactly once. The ledger is consulted before any
// structural validation so a replayed payload can never settle twice, no
// matter what else is wrong or right with it.
func (s *Service) Settle(ctx context.Context, payment *x402.PaymentPayload, requirement *x402.PaymentRequirement) (*x402.SettlementResponse, error) {
	if payment == nil {
		return nil, x402.ErrMalformedHeader
	}

	evmPayload, err := x402.DecodeEVMPayload(*payment)
	if err != nil {
		return rejected(payment.Network, ReasonMalformedPayload), nil
	}
	auth := evmPayload.Authorization

	key := SettlementKey(auth)

	settled, err := s.ledger.Contains(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("ledger lookup failed: %w", err)
	}
	if settled {
		s.logger.WarnContext(ctx, "double settle rejected",
			"network", payment.Network,
			"payer", auth.From)
		return rejected(payment.Network, ReasonAlreadySettled), nil
	}

	if payment.X402Version != 1 {
		return rejected(payment.Network, ReasonUnsupportedVersion), nil
	}
	if payment.Scheme != "exact" {
		return rejected(payment.Network, ReasonUnsupportedScheme), nil
	}
	if evmPayload.Signature == "" {
		return rejected(payment.Network, ReasonMissingSignature), nil
	}

	validBefore, _ := strconv.ParseInt(auth.ValidBefore, 10, 64)

	won, err := s.ledger.Reserve(ctx, key, validBefore)
	if err != nil {
		return nil, fmt.Errorf("ledger reservation failed: %w", err)
	}
	if !won {
		// Lost a race with a concurrent settle of the same authorization.
		return rejected(payment.Network, ReasonAlreadySettled), nil
	}

	transaction, err := syntheticTransactionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate transaction id: %w", err)
	}

	s.logger.InfoContext(ctx, "payment settled",
		"network", payment.Network,
		"payer", auth.From,
		"transaction", transaction)

	return &x402.SettlementResponse{
		Success:     true,
		Transaction: transaction,
		Network:     payment.Network,
		Payer:       auth.From,
	}, nil
}

// syntheticTransactionID fabricates a transaction hash. Real chain settlement
// is out of scope; the id exists so clients can correlate settlements.
func syntheticTransactionID() (string, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(raw[:]), nil
}

func invalid(reason string) *x402.VerifyResponse {
	return &x402.VerifyResponse{IsValid: false, InvalidReason: reason}
}

func rejected(network, reason string) *x402.SettlementResponse {
	return &x402.SettlementResponse{
		Success:     false,
		Transaction: "",
		Network:     network,
		ErrorReason: reason,
	}
}
