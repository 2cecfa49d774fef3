// Command facilitator runs the x402 facilitator service: payment
// verification, exactly-once settlement, and the /api/v1 HTTP surface.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skapa-xyz/pl-genesis-hackathon-demo/facilitator"
)

func main() {
	addr := flag.String("addr", envOr("FACILITATOR_ADDR", ":3000"), "Listen address")
	verifySignatures := flag.Bool("verify-signatures", os.Getenv("FACILITATOR_VERIFY_SIGNATURES") == "true",
		"Recover EIP-712 signers during verification instead of structural checks only")
	pruneInterval := flag.Duration("prune-interval", time.Hour,
		"How often expired ledger entries are pruned (0 disables pruning)")
	jsonLogs := flag.Bool("json-logs", false, "Emit logs as JSON")
	flag.Parse()

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, nil)
	if *jsonLogs {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	opts := []facilitator.ServiceOption{facilitator.WithLogger(logger)}
	if *verifySignatures {
		opts = append(opts, facilitator.WithSignatureVerification())
	}
	service := facilitator.NewService(opts...)

	server := &http.Server{
		Addr:              *addr,
		Handler:           facilitator.NewServer(service, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *pruneInterval > 0 {
		go prune(ctx, service.Ledger(), *pruneInterval, logger)
	}

	go func() {
		logger.Info("facilitator listening",
			"addr", *addr,
			"verifySignatures", *verifySignatures)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
		os.Exit(1)
	}
}

// prune drops expired ledger entries on an interval so the replay ledger's
// growth is bounded by the authorizations' own validity windows.
func prune(ctx context.Context, ledger facilitator.ReplayLedger, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := ledger.PruneExpired(ctx, time.Now().Unix())
			if err != nil {
				logger.Warn("ledger prune failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Info("pruned expired settlements", "count", removed)
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
