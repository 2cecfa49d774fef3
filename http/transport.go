// Package http provides the client-side x402 payment flow (an
// http.RoundTripper that pays on 402 and retries once), the facilitator
// client, and resource-server middleware for payment gating.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	x402 "github.com/skapa-xyz/pl-genesis-hackathon-demo"
	"github.com/skapa-xyz/pl-genesis-hackathon-demo/encoding"
)

// contextKey is a private type for request-context keys.
type contextKey struct{ name string }

// retriedKey marks a request that already carries a payment. The marker is
// the first-class "retried once" state: a 402 on a marked request is
// returned unchanged, never paid for again.
var retriedKey = &contextKey{"x402-retried"}

// markRetried flags a request context as already retried with payment.
func markRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey, true)
}

// isRetried reports whether the request was already retried with payment.
func isRetried(ctx context.Context) bool {
	retried, _ := ctx.Value(retriedKey).(bool)
	return retried
}

// X402Transport is a RoundTripper that handles x402 payment flows. It wraps
// an existing http.RoundTripper; on a 402 Payment Required response it signs
// a payment authorization and replays the original request exactly once with
// the X-PAYMENT header attached.
type X402Transport struct {
	// Base is the underlying RoundTripper (typically http.DefaultTransport).
	Base http.RoundTripper

	// Signers is the list of available payment signers.
	Signers []x402.Signer

	// Selector is used to choose the appropriate signer and create payments.
	Selector x402.PaymentSelector

	// Logger receives diagnostic records for each payment stage. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// OnPaymentAttempt is called when a payment attempt is made.
	OnPaymentAttempt x402.PaymentCallback

	// OnPaymentSuccess is called when a payment succeeds.
	OnPaymentSuccess x402.PaymentCallback

	// OnPaymentFailure is called when a payment fails.
	OnPaymentFailure x402.PaymentCallback
}

// RoundTrip implements http.RoundTripper. It makes the initial request and,
// if a 402 Payment Required response with a well-formed requirements body
// comes back, signs a payment and retries once. Any other response, and any
// 402 on an already-retried request, is returned unchanged.
func (t *X402Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if isRetried(req.Context()) {
		return base.RoundTrip(req)
	}

	reqCopy := req.Clone(req.Context())

	resp, err := base.RoundTrip(reqCopy)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	logger.Info("payment required", "url", req.URL.String())

	// A 402 whose body is not the {x402Version, accepts} shape is an
	// unrelated 402: surface it to the caller untouched.
	requirements, body, err := parsePaymentRequirements(resp)
	if err != nil {
		logger.Warn("402 response without parseable payment requirements", "error", err)
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return resp, nil
	}
	resp.Body.Close()

	selector := t.Selector
	if selector == nil {
		selector = x402.NewDefaultPaymentSelector()
	}

	payment, err := selector.SelectAndSign(requirements, t.Signers)
	if err != nil {
		t.emitFailure(req, err, 0)
		return nil, err
	}

	// Match on network and scheme since those are what PaymentPayload carries.
	var selected *x402.PaymentRequirement
	for i := range requirements {
		if requirements[i].Network == payment.Network && requirements[i].Scheme == payment.Scheme {
			selected = &requirements[i]
			break
		}
	}

	startTime := time.Now()

	if t.OnPaymentAttempt != nil && selected != nil {
		t.OnPaymentAttempt(x402.PaymentEvent{
			Type:      x402.PaymentEventAttempt,
			Timestamp: startTime,
			URL:       req.URL.String(),
			Network:   payment.Network,
			Scheme:    payment.Scheme,
			Amount:    selected.MaxAmountRequired,
			Asset:     selected.Asset,
			Recipient: selected.PayTo,
		})
	}

	paymentHeader, err := encoding.EncodePayment(*payment)
	if err != nil {
		err = x402.NewPaymentError(x402.ErrCodeSigningFailed, "failed to build payment header", err)
		t.emitFailure(req, err, time.Since(startTime))
		return nil, err
	}

	reqRetry := req.Clone(markRetried(req.Context()))
	if req.GetBody != nil {
		retryBody, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		reqRetry.Body = retryBody
	}
	reqRetry.Header.Set("X-PAYMENT", paymentHeader)

	logger.Info("retrying request with payment",
		"url", req.URL.String(),
		"network", payment.Network,
		"scheme", payment.Scheme)

	respRetry, err := base.RoundTrip(reqRetry)
	duration := time.Since(startTime)
	if err != nil {
		t.emitFailure(req, err, duration)
		return nil, err
	}

	// Settlement info is diagnostic; its absence never fails the request.
	if settlement, err := encoding.DecodeSettlement(respRetry.Header.Get("X-PAYMENT-RESPONSE")); err == nil && settlement.Success {
		logger.Info("payment settled",
			"transaction", settlement.Transaction,
			"network", settlement.Network,
			"payer", settlement.Payer)
		if t.OnPaymentSuccess != nil {
			event := x402.PaymentEvent{
				Type:        x402.PaymentEventSuccess,
				Timestamp:   time.Now(),
				URL:         req.URL.String(),
				Transaction: settlement.Transaction,
				Payer:       settlement.Payer,
				Duration:    duration,
			}
			if selected != nil {
				event.Network = selected.Network
				event.Scheme = selected.Scheme
				event.Amount = selected.MaxAmountRequired
				event.Asset = selected.Asset
				event.Recipient = selected.PayTo
			}
			t.OnPaymentSuccess(event)
		}
	}

	return respRetry, nil
}

// emitFailure triggers the failure callback if one is configured.
func (t *X402Transport) emitFailure(req *http.Request, err error, duration time.Duration) {
	if t.OnPaymentFailure == nil {
		return
	}
	t.OnPaymentFailure(x402.PaymentEvent{
		Type:      x402.PaymentEventFailure,
		Timestamp: time.Now(),
		URL:       req.URL.String(),
		Error:     err,
		Duration:  duration,
	})
}

// parsePaymentRequirements extracts payment requirements from a 402 response.
// The raw body is always returned so the caller can restore it when the 402
// turns out not to be an x402 response.
func parsePaymentRequirements(resp *http.Response) ([]x402.PaymentRequirement, []byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, x402.NewPaymentError(x402.ErrCodeInvalidRequirements, "failed to read 402 response body", err)
	}

	var reqResp x402.PaymentRequirementsResponse
	if err := json.Unmarshal(body, &reqResp); err != nil {
		return nil, body, x402.NewPaymentError(x402.ErrCodeInvalidRequirements, "failed to parse payment requirements", err)
	}

	if reqResp.X402Version == 0 || len(reqResp.Accepts) == 0 {
		return nil, body, x402.NewPaymentError(x402.ErrCodeInvalidRequirements, "no payment requirements in response", x402.ErrInvalidRequirements)
	}

	return reqResp.Accepts, body, nil
}

// RequestWithBody clones an HTTP request with a new body.
// This is needed because request bodies can only be read once.
func RequestWithBody(req *http.Request, body []byte) *http.Request {
	clone := req.Clone(req.Context())
	clone.Body = io.NopCloser(bytes.NewReader(body))
	clone.ContentLength = int64(len(body))
	clone.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return clone
}
