// Package facilitator implements the x402 verify/settle service: structural
// validation of payment payloads, optional EIP-712 signature checking, and a
// replay ledger guaranteeing each authorization settles at most once.
package facilitator

import (
	"context"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"

	x402 "github.com/skapa-xyz/pl-genesis-hackathon-demo"
)

// SettlementKey derives the ledger key for an authorization. The nonce alone
// would be unique, but keying on the full (from, to, value, nonce) tuple means
// a forged payload reusing a seen nonce with different transfer fields still
// cannot collide with the original settlement record.
func SettlementKey(auth x402.EVMAuthorization) string {
	canonical := strings.ToLower(auth.From) + "|" +
		strings.ToLower(auth.To) + "|" +
		auth.Value + "|" +
		strings.ToLower(auth.Nonce)
	return "0x" + hex.EncodeToString(crypto.Keccak256([]byte(canonical)))
}

// ReplayLedger records settled authorizations. Implementations must make
// Reserve an atomic check-and-insert: two concurrent calls with the same key
// must produce exactly one true result.
type ReplayLedger interface {
	// Reserve inserts the key if absent and reports whether this call won the
	// insertion. validBefore is the authorization's expiry, kept so expired
	// entries can be pruned.
	Reserve(ctx context.Context, key string, validBefore int64) (bool, error)

	// Contains reports whether the key has been settled.
	Contains(ctx context.Context, key string) (bool, error)

	// PruneExpired removes entries whose authorization expired before now
	// (Unix seconds) and returns how many were removed. An expired
	// authorization can never settle again, so dropping its entry is safe.
	PruneExpired(ctx context.Context, now int64) (int, error)
}

// MemoryLedger is a mutex-guarded in-process ReplayLedger.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]int64
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]int64)}
}

// Reserve implements ReplayLedger. The lock covers the presence check and the
// insertion as one unit.
func (l *MemoryLedger) Reserve(_ context.Context, key string, validBefore int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.entries[key]; exists {
		return false, nil
	}
	l.entries[key] = validBefore
	return true, nil
}

// Contains implements ReplayLedger.
func (l *MemoryLedger) Contains(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, exists := l.entries[key]
	return exists, nil
}

// PruneExpired implements ReplayLedger. Entries recorded with a zero or
// unparseable expiry are kept forever.
func (l *MemoryLedger) PruneExpired(_ context.Context, now int64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pruned := 0
	for key, validBefore := range l.entries {
		if validBefore > 0 && validBefore < now {
			delete(l.entries, key)
			pruned++
		}
	}
	return pruned, nil
}

// Len reports the number of recorded settlements.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
