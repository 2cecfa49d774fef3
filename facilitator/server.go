package facilitator

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	x402 "github.com/skapa-xyz/pl-genesis-hackathon-demo"
	"github.com/skapa-xyz/pl-genesis-hackathon-demo/encoding"
)

// ServerName identifies this facilitator in its capability descriptor.
const ServerName = "x402-facilitator"

// ServerVersion is reported by the info endpoint.
const ServerVersion = "1.0.0"

// Server exposes a Service over HTTP.
//
// Endpoints:
//
//	POST /api/v1/verify  body {x402Version, paymentPayload, paymentRequirements}
//	POST /api/v1/settle  same body shape
//	GET  /api/v1/info    capability descriptor
//	GET  /health         liveness probe
//
// The verify and settle endpoints also accept the payload via the X-PAYMENT
// header and requirements via X-PAYMENT-REQUIREMENTS; headers take precedence
// over body fields when both are present.
type Server struct {
	service *Service
	logger  *slog.Logger
	router  chi.Router
}

// NewServer wires the service into a chi router.
func NewServer(service *Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		service: service,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/verify", s.handleVerify)
		r.Post("/settle", s.handleSettle)
		r.Get("/info", s.handleInfo)
	})
	r.Get("/health", s.handleHealth)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// facilitatorRequest is the body shape of verify and settle calls.
type facilitatorRequest struct {
	X402Version         int                      `json:"x402Version"`
	PaymentPayload      *x402.PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements *x402.PaymentRequirement `json:"paymentRequirements"`
}

// errorBody is the 4xx response shape for structurally broken requests.
// Payment invalidity never uses it; that is a 200 with a reason field.
type errorBody struct {
	X402Version int    `json:"x402Version"`
	Error       string `json:"error"`
	Source      string `json:"source,omitempty"`
}

// extractPayment resolves the payment payload and requirements from a
// request, giving the X-PAYMENT and X-PAYMENT-REQUIREMENTS headers
// precedence over the body fields. The returned source names where the
// payload came from, for error reporting.
func extractPayment(r *http.Request) (payment *x402.PaymentPayload, requirement *x402.PaymentRequirement, source string, err error) {
	var body facilitatorRequest
	if r.Body != nil {
		// An empty or absent body is fine when headers carry the payment.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	payment = body.PaymentPayload
	requirement = body.PaymentRequirements
	source = "body"

	if header := r.Header.Get("X-PAYMENT"); header != "" {
		decoded, decodeErr := encoding.DecodePayment(header)
		if decodeErr != nil {
			return nil, nil, "header", decodeErr
		}
		payment = &decoded
		source = "header"
	}

	if header := r.Header.Get("X-PAYMENT-REQUIREMENTS"); header != "" {
		raw, decodeErr := base64.StdEncoding.DecodeString(header)
		if decodeErr != nil {
			return nil, nil, "header", decodeErr
		}
		var decoded x402.PaymentRequirement
		if decodeErr := json.Unmarshal(raw, &decoded); decodeErr != nil {
			return nil, nil, "header", decodeErr
		}
		requirement = &decoded
	}

	return payment, requirement, source, nil
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	payment, requirement, source, err := extractPayment(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payment payload", source)
		return
	}
	if payment == nil {
		s.writeError(w, http.StatusBadRequest, "missing payment payload", source)
		return
	}

	resp, err := s.service.Verify(r.Context(), payment, requirement)
	if err != nil {
		s.logger.Error("verify failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "verification error", source)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	payment, requirement, source, err := extractPayment(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payment payload", source)
		return
	}
	if payment == nil {
		s.writeError(w, http.StatusBadRequest, "missing payment payload", source)
		return
	}

	resp, err := s.service.Settle(r.Context(), payment, requirement)
	if err != nil {
		s.logger.Error("settle failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "settlement error", source)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":              ServerName,
		"version":           ServerVersion,
		"supportedNetworks": x402.SupportedNetworks(),
		"supportedSchemes":  []string{"exact"},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message, source string) {
	s.writeJSON(w, status, errorBody{
		X402Version: 1,
		Error:       message,
		Source:      source,
	})
}
