// Package chi provides Chi-compatible middleware for x402 payment gating.
// Chi middleware uses the stdlib http.Handler signature, so this adapter
// mostly delegates to the shared helpers; it additionally bypasses OPTIONS
// requests so CORS preflights are never payment gated.
package chi

import (
	"context"
	"log/slog"
	"net/http"

	x402 "github.com/skapa-xyz/pl-genesis-hackathon-demo"
	httpx402 "github.com/skapa-xyz/pl-genesis-hackathon-demo/http"
	"github.com/skapa-xyz/pl-genesis-hackathon-demo/http/internal/helpers"
)

// NewPaymentMiddleware creates x402 payment-gating middleware for Chi.
//
// Example usage:
//
//	config := &httpx402.MiddlewareConfig{
//	    FacilitatorURL: "http://localhost:4021",
//	    PaymentRequirements: []x402.PaymentRequirement{{
//	        Scheme:            "exact",
//	        Network:           "filecoin-calibration",
//	        MaxAmountRequired: "1000",
//	        Asset:             "0xb3042734b608a1B16e9e86B374A3f3e389B4cDf0",
//	        PayTo:             "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
//	        MaxTimeoutSeconds: 60,
//	    }},
//	}
//	r := chi.NewRouter()
//	r.Use(chix402.NewPaymentMiddleware(config))
//	r.Get("/protected", func(w http.ResponseWriter, r *http.Request) {
//	    payment := httpx402.VerifiedPayment(r.Context())
//	    w.Write([]byte("payer: " + payment.Payer))
//	})
func NewPaymentMiddleware(config *httpx402.MiddlewareConfig) func(http.Handler) http.Handler {
	facilitator := httpx402.NewFacilitatorClient(config.FacilitatorURL)

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// CORS preflights carry no payment headers.
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			scheme := "http"
			if r.TLS != nil {
				scheme = "https"
			}
			resourceURL := scheme + "://" + r.Host + r.RequestURI

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
				sendErrorResponse(w, http.StatusBadRequest, "Invalid payment header")
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
				sendErrorResponse(w, http.StatusServiceUnavailable, "Payment verification failed")
				return
			}

			if !verifyResp.IsValid {
				logger.Warn("payment rejected", "reason", verifyResp.InvalidReason)
				helpers.SendPaymentRequired(w, requirements)
				return
			}

			logger.Info("payment verified", "payer", verifyResp.Payer)

			if !config.VerifyOnly {
				settlementResp, err := facilitator.Settle(r.Context(), payment, requirement)
				if err != nil {
					logger.Error("settlement failed", "error", err)
					sendErrorResponse(w, http.StatusServiceUnavailable, "Payment settlement failed")
					return
				}

				if !settlementResp.Success {
					logger.Warn("settlement unsuccessful", "reason", settlementResp.ErrorReason)
					helpers.SendPaymentRequired(w, requirements)
					return
				}

				logger.Info("payment settled", "transaction", settlementResp.Transaction)

				if err := helpers.AddPaymentResponseHeader(w, settlementResp); err != nil {
					logger.Warn("failed to add payment response header", "error", err)
				}
			}

			ctx := context.WithValue(r.Context(), httpx402.PaymentContextKey, verifyResp)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sendErrorResponse writes a JSON error body carrying the protocol version.
func sendErrorResponse(w http.ResponseWriter, statusCode int, errorMessage string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(`{"x402Version":1,"error":"` + errorMessage + `"}`))
}
