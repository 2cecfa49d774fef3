// Package gin provides Gin-compatible middleware for x402 payment gating.
// It is a thin adapter that translates gin.Context to stdlib http patterns
// and delegates verification and settlement to the http package.
package gin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	x402 "github.com/skapa-xyz/pl-genesis-hackathon-demo"
	httpx402 "github.com/skapa-xyz/pl-genesis-hackathon-demo/http"
	"github.com/skapa-xyz/pl-genesis-hackathon-demo/http/internal/helpers"
)

// NewPaymentMiddleware creates x402 payment-gating middleware for Gin.
//
// Requests without a valid X-PAYMENT header are aborted with a 402 carrying
// the accepted payment methods. Verified payments are settled before the
// handler runs (unless VerifyOnly is set), and the verification result is
// stored both via c.Set("x402_payment", ...) and in the request context
// under httpx402.PaymentContextKey.
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
//	r := gin.Default()
//	r.Use(ginx402.NewPaymentMiddleware(config))
func NewPaymentMiddleware(config *httpx402.MiddlewareConfig) gin.HandlerFunc {
	facilitator := httpx402.NewFacilitatorClient(config.FacilitatorURL)

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		resourceURL := scheme + "://" + c.Request.Host + c.Request.RequestURI

		requirements := make([]x402.PaymentRequirement, len(config.PaymentRequirements))
		for i, req := range config.PaymentRequirements {
			requirements[i] = req
			requirements[i].Resource = resourceURL
			if requirements[i].Description == "" {
				requirements[i].Description = "Payment required for " + c.Request.URL.Path
			}
		}

		if c.GetHeader("X-PAYMENT") == "" {
			logger.Info("no payment header provided", "path", c.Request.URL.Path)
			sendPaymentRequired(c, requirements)
			return
		}

		payment, err := helpers.ParsePaymentHeaderFromRequest(c.Request)
		if err != nil {
			logger.Warn("invalid payment header", "error", err)
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"x402Version": 1,
				"error":       "Invalid payment header",
			})
			return
		}

		requirement, err := helpers.FindMatchingRequirement(payment, requirements)
		if err != nil {
			logger.Warn("no matching requirement", "scheme", payment.Scheme, "network", payment.Network)
			sendPaymentRequired(c, requirements)
			return
		}

		verifyResp, err := facilitator.Verify(c.Request.Context(), payment, requirement)
		if err != nil {
			logger.Error("facilitator verification failed", "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"x402Version": 1,
				"error":       "Payment verification failed",
			})
			return
		}

		if !verifyResp.IsValid {
			logger.Warn("payment rejected", "reason", verifyResp.InvalidReason)
			sendPaymentRequired(c, requirements)
			return
		}

		logger.Info("payment verified", "payer", verifyResp.Payer)

		if !config.VerifyOnly {
			settlementResp, err := facilitator.Settle(c.Request.Context(), payment, requirement)
			if err != nil {
				logger.Error("settlement failed", "error", err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"x402Version": 1,
					"error":       "Payment settlement failed",
				})
				return
			}

			if !settlementResp.Success {
				logger.Warn("settlement unsuccessful", "reason", settlementResp.ErrorReason)
				sendPaymentRequired(c, requirements)
				return
			}

			logger.Info("payment settled", "transaction", settlementResp.Transaction)

			if err := helpers.AddPaymentResponseHeader(c.Writer, settlementResp); err != nil {
				logger.Warn("failed to add payment response header", "error", err)
			}
		}

		c.Set("x402_payment", verifyResp)

		ctx := context.WithValue(c.Request.Context(), httpx402.PaymentContextKey, verifyResp)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// sendPaymentRequired aborts the chain with a 402 and the accepted payment
// methods, using Gin's JSON rendering.
func sendPaymentRequired(c *gin.Context, requirements []x402.PaymentRequirement) {
	response := x402.PaymentRequirementsResponse{
		X402Version: 1,
		Error:       "Payment required for this resource",
		Accepts:     requirements,
	}

	c.AbortWithStatusJSON(http.StatusPaymentRequired, response)
}
