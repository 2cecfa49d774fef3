package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	x402 "github.com/skapa-xyz/pl-genesis-hackathon-demo"
	"github.com/skapa-xyz/pl-genesis-hackathon-demo/retry"
)

// FacilitatorClient is a client for an x402 facilitator service exposing the
// /api/v1 verify/settle/info surface.
type FacilitatorClient struct {
	// BaseURL is the facilitator root, without the /api/v1 prefix.
	BaseURL string

	// Client is the underlying HTTP client.
	Client *http.Client

	// Timeouts bounds each operation. Zero values fall back to
	// x402.DefaultTimeouts.
	Timeouts x402.TimeoutConfig

	// Retry configures backoff for transient verify/info failures. Settle is
	// never retried by the client: the facilitator's replay ledger is the
	// sole authority on whether a payment went through.
	Retry retry.Config
}

// NewFacilitatorClient creates a facilitator client with default timeouts
// and retry configuration.
func NewFacilitatorClient(baseURL string) *FacilitatorClient {
	return &FacilitatorClient{
		BaseURL:  baseURL,
		Client:   &http.Client{},
		Timeouts: x402.DefaultTimeouts,
		Retry:    retry.DefaultConfig,
	}
}

// FacilitatorRequest is the request payload sent to the facilitator.
type FacilitatorRequest struct {
	X402Version         int                      `json:"x402Version"`
	PaymentPayload      *x402.PaymentPayload     `json:"paymentPayload,omitempty"`
	PaymentRequirements *x402.PaymentRequirement `json:"paymentRequirements,omitempty"`
}

// InfoResponse is the facilitator's static capability descriptor.
type InfoResponse struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	SupportedNetworks []string `json:"supportedNetworks"`
	SupportedSchemes  []string `json:"supportedSchemes"`
}

// isTransient reports whether an error is worth retrying: connectivity
// failures only, never payment outcomes.
func isTransient(err error) bool {
	return errors.Is(err, x402.ErrFacilitatorUnavailable)
}

// Verify asks the facilitator to validate a payment without settling it.
// An invalid payment is reported in the response, not as an error.
func (c *FacilitatorClient) Verify(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*x402.VerifyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts().VerifyTimeout)
	defer cancel()

	return retry.Do(ctx, c.retryConfig(), isTransient, func() (*x402.VerifyResponse, error) {
		var verifyResp x402.VerifyResponse
		if err := c.post(ctx, "/api/v1/verify", payment, requirement, &verifyResp); err != nil {
			return nil, err
		}
		return &verifyResp, nil
	})
}

// Settle asks the facilitator to commit a payment. A rejected settlement
// (double spend, structural invalidity) is reported in the response, not as
// an error.
func (c *FacilitatorClient) Settle(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*x402.SettlementResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts().SettleTimeout)
	defer cancel()

	var settlementResp x402.SettlementResponse
	if err := c.post(ctx, "/api/v1/settle", payment, requirement, &settlementResp); err != nil {
		return nil, err
	}
	return &settlementResp, nil
}

// Info queries the facilitator's capability descriptor.
func (c *FacilitatorClient) Info(ctx context.Context) (*InfoResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts().RequestTimeout)
	defer cancel()

	return retry.Do(ctx, c.retryConfig(), isTransient, func() (*InfoResponse, error) {
		var infoResp InfoResponse
		if err := c.get(ctx, "/api/v1/info", &infoResp); err != nil {
			return nil, err
		}
		return &infoResp, nil
	})
}

// Healthy reports whether the facilitator's liveness probe answers 200.
func (c *FacilitatorClient) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts().RequestTimeout)
	defer cancel()

	endpoint, err := url.JoinPath(c.BaseURL, "/health")
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// post sends a FacilitatorRequest and decodes the 200 response into out.
// Non-200 statuses mean the request itself was malformed or the service is
// unavailable; payment invalidity always comes back as a 200.
func (c *FacilitatorClient) post(ctx context.Context, path string, payment x402.PaymentPayload, requirement x402.PaymentRequirement, out interface{}) error {
	body := FacilitatorRequest{
		X402Version:         1,
		PaymentPayload:      &payment,
		PaymentRequirements: &requirement,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint, err := url.JoinPath(c.BaseURL, path)
	if err != nil {
		return fmt.Errorf("invalid facilitator URL: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", x402.ErrFacilitatorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("facilitator %s returned status %d: %s", path, resp.StatusCode, bytes.TrimSpace(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode facilitator response: %w", err)
	}
	return nil
}

// get fetches a facilitator endpoint and decodes the 200 response into out.
func (c *FacilitatorClient) get(ctx context.Context, path string, out interface{}) error {
	endpoint, err := url.JoinPath(c.BaseURL, path)
	if err != nil {
		return fmt.Errorf("invalid facilitator URL: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", x402.ErrFacilitatorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("facilitator %s returned status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode facilitator response: %w", err)
	}
	return nil
}

func (c *FacilitatorClient) httpClient() *http.Client {
	if c.Client == nil {
		return http.DefaultClient
	}
	return c.Client
}

func (c *FacilitatorClient) timeouts() x402.TimeoutConfig {
	t := c.Timeouts
	if t.Validate() != nil {
		return x402.DefaultTimeouts
	}
	return t
}

func (c *FacilitatorClient) retryConfig() retry.Config {
	if c.Retry.MaxAttempts <= 0 {
		return retry.DefaultConfig
	}
	return c.Retry
}
