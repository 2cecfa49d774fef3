package x402

import (
	"errors"
	"testing"
)

func TestChainByNetwork(t *testing.T) {
	chain, err := ChainByNetwork("filecoin-calibration")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chain.ChainID != 314159 {
		t.Errorf("ChainID = %d, want 314159", chain.ChainID)
	}
	if chain.TokenSymbol != "USDFC" {
		t.Errorf("TokenSymbol = %q, want USDFC", chain.TokenSymbol)
	}
	if chain.Decimals != 6 {
		t.Errorf("Decimals = %d, want 6", chain.Decimals)
	}

	if _, err := ChainByNetwork("no-such-network"); !errors.Is(err, ErrUnsupportedNetwork) {
		t.Errorf("error = %v, want ErrUnsupportedNetwork", err)
	}
}

func TestChainID(t *testing.T) {
	tests := []struct {
		network string
		want    int64
	}{
		{"filecoin-calibration", 314159},
		{"filecoin", 314},
		{"base-sepolia", 84532},
		{"base", 8453},
	}

	for _, tt := range tests {
		t.Run(tt.network, func(t *testing.T) {
			id := ChainID(tt.network)
			if id == nil {
				t.Fatal("ChainID returned nil")
			}
			if id.Int64() != tt.want {
				t.Errorf("ChainID = %d, want %d", id.Int64(), tt.want)
			}
		})
	}

	if id := ChainID("unknown"); id != nil {
		t.Errorf("ChainID(unknown) = %v, want nil", id)
	}
}

func TestValidateNetwork(t *testing.T) {
	if err := ValidateNetwork("filecoin-calibration"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateNetwork(""); !errors.Is(err, ErrInvalidNetwork) {
		t.Errorf("empty network: error = %v, want ErrInvalidNetwork", err)
	}
	if err := ValidateNetwork("monopoly-money"); !errors.Is(err, ErrInvalidNetwork) {
		t.Errorf("unknown network: error = %v, want ErrInvalidNetwork", err)
	}
}

func TestSupportedNetworks(t *testing.T) {
	networks := SupportedNetworks()
	if len(networks) == 0 {
		t.Fatal("no supported networks")
	}

	seen := make(map[string]bool, len(networks))
	for _, n := range networks {
		seen[n] = true
	}
	for _, want := range []string{"filecoin-calibration", "filecoin", "base-sepolia", "base"} {
		if !seen[want] {
			t.Errorf("missing network %q", want)
		}
	}
}

func TestNewExactRequirement(t *testing.T) {
	req, err := NewExactRequirement(ExactRequirementConfig{
		Chain:             FilecoinCalibration,
		Amount:            "0.001",
		PayTo:             "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
		MaxTimeoutSeconds: 60,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Scheme != "exact" {
		t.Errorf("Scheme = %q, want exact", req.Scheme)
	}
	if req.MaxAmountRequired != "1000" {
		t.Errorf("MaxAmountRequired = %q, want 1000", req.MaxAmountRequired)
	}
	if req.Asset != FilecoinCalibration.TokenAddress {
		t.Errorf("Asset = %q, want chain default token", req.Asset)
	}
	if name, version := req.SigningDomain(); name != "USD for Filecoin Community" || version != "1" {
		t.Errorf("SigningDomain = %q/%q", name, version)
	}

	if _, err := NewExactRequirement(ExactRequirementConfig{Chain: FilecoinCalibration, Amount: "1"}); err == nil {
		t.Error("expected error for missing payTo")
	}
}
