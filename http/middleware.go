package http

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	x402 "github.com/skapa-xyz/pl-genesis-hackathon-demo"
	"github.com/skapa-xyz/pl-genesis-hackathon-demo/http/internal/helpers"
)

// MiddlewareConfig holds the configuration for the payment-gating middleware.
type MiddlewareConfig struct {
	// FacilitatorURL is the facilitator endpoint used to verify and settle.
	FacilitatorURL string

	// PaymentRequirements defines the accepted payment methods.
	PaymentRequirements []x402.PaymentRequirement

	// VerifyOnly skips settlement if true. Useful for staging environments
	// where payments should be validated but never committed.
	VerifyOnly bool

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// contextValueKey is a private type for request context keys.
type contextValueKey string

// PaymentContextKey carries the *x402.VerifyResponse of a verified payment
// into the gated handler's request context.
const PaymentContextKey = contextValueKey("x402_payment")

// VerifiedPayment extracts the verification result stored by the middleware,
// or nil if the request was not payment gated.
func VerifiedPayment(ctx context.Context) *x402.VerifyResponse {
	v, _ := ctx.Value(PaymentContextKey).(*x402.VerifyResponse)
	return v
}

// NewPaymentMiddleware creates middleware that gates handlers behind x402
// payments. Requests without a valid X-PAYMENT header receive a 402 listing
// the accepted payment methods. Verified requests run the wrapped handler,
// and settlement happens only once the handler commits a success status.
func NewPaymentMiddleware(config *MiddlewareConfig) func(http.Handler) http.Handler {
	facilitator := NewFacilitatorClient(config.FacilitatorURL)

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme := "http"
			if r.TLS != nil {
				scheme = "https"
			}
			resourceURL := scheme + "://" + r.Host + r.RequestURI

			// Each response carries the concrete resource URL so the client
			// can bind its authorization to what it actually requested.
			requirements := make([]x402.PaymentRequirement, len(config.PaymentRequirements))
			for i, req := range config.PaymentRequirements {
				requirements[i] = req
				requirements[i].Resource = resourceURL
				if requirements[i].Description == "" {
					requirements[i].Description = "Payment required for " + r.URL.Path
				}
			}

			if r.Header.Get("X-PAYMENT") == "" {
				logger.Info("no payment header provided", "path", r.URL.Path)
				helpers.SendPaymentRequired(w, requirements)
				return
			}

			payment, err := helpers.ParsePaymentHeaderFromRequest(r)
			if err != nil {
				logger.Warn("invalid payment header", "error", err)
				http.Error(w, "Invalid payment header", http.StatusBadRequest)
				return
			}

			requirement, err := helpers.FindMatchingRequirement(payment, requirements)
			if err != nil {
				logger.Warn("no matching requirement", "scheme", payment.Scheme, "network", payment.Network)
				helpers.SendPaymentRequired(w, requirements)
				return
			}

			verifyResp, err := facilitator.Verify(r.Context(), payment, requirement)
			if err != nil {
				logger.Error("facilitator verification failed", "error", err)
				http.Error(w, "Payment verification failed", http.StatusServiceUnavailable)
				return
			}

			if !verifyResp.IsValid {
				logger.Warn("payment rejected", "reason", verifyResp.InvalidReason)
				helpers.SendPaymentRequired(w, requirements)
				return
			}

			logger.Info("payment verified", "payer", verifyResp.Payer)

			ctx := context.WithValue(r.Context(), PaymentContextKey, verifyResp)
			r = r.WithContext(ctx)

			interceptor := &settlementInterceptor{
				w: w,
				settleFunc: func() bool {
					if config.VerifyOnly {
						return true
					}

					settlementResp, err := facilitator.Settle(r.Context(), payment, requirement)
					if err != nil {
						logger.Error("settlement failed", "error", err)
						http.Error(w, "Payment settlement failed", http.StatusServiceUnavailable)
						return false
					}

					if !settlementResp.Success {
						logger.Warn("settlement unsuccessful", "reason", settlementResp.ErrorReason)
						helpers.SendPaymentRequired(w, requirements)
						return false
					}

					logger.Info("payment settled", "transaction", settlementResp.Transaction)

					if err := helpers.AddPaymentResponseHeader(w, settlementResp); err != nil {
						// The payment went through; a missing diagnostic
						// header is not worth failing the response over.
						logger.Warn("failed to add payment response header", "error", err)
					}
					return true
				},
				onFailure: func(statusCode int) {
					logger.Warn("handler returned non-success, skipping settlement", "status", statusCode)
				},
			}
			next.ServeHTTP(interceptor, r)
		})
	}
}

// settlementInterceptor wraps the ResponseWriter so settlement runs exactly
// at the moment the handler commits its status. Error statuses pass through
// unsettled; a failed settlement hijacks the response and discards the
// handler's payload.
type settlementInterceptor struct {
	w          http.ResponseWriter
	settleFunc func() bool
	onFailure  func(statusCode int)
	committed  bool
	hijacked   bool
}

func (i *settlementInterceptor) Header() http.Header {
	return i.w.Header()
}

func (i *settlementInterceptor) Write(b []byte) (int, error) {
	// Write without WriteHeader implies 200 OK.
	if !i.committed {
		i.WriteHeader(http.StatusOK)
	}

	// On settlement failure the error response has already been written.
	if i.hijacked {
		return len(b), nil
	}

	return i.w.Write(b)
}

func (i *settlementInterceptor) WriteHeader(statusCode int) {
	if i.committed {
		return
	}
	i.committed = true

	// Handler errors pass through without settling.
	if statusCode >= 400 {
		if i.onFailure != nil {
			i.onFailure(statusCode)
		}
		i.w.WriteHeader(statusCode)
		return
	}

	if !i.settleFunc() {
		// settleFunc already wrote its own error response.
		i.hijacked = true
		return
	}

	i.w.WriteHeader(statusCode)
}

// Flush implements http.Flusher for streaming responses.
func (i *settlementInterceptor) Flush() {
	if flusher, ok := i.w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker.
func (i *settlementInterceptor) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := i.w.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("hijacking not supported")
}

// Push implements http.Pusher.
func (i *settlementInterceptor) Push(target string, opts *http.PushOptions) error {
	if pusher, ok := i.w.(http.Pusher); ok {
		return pusher.Push(target, opts)
	}
	return http.ErrNotSupported
}
