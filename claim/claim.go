// Package claim owns claim identity and the Pending -> Eligible -> Settled lifecycle
package claim

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ID is the content address of a claim's canonical payload
type ID string

// String returns the underlying address
func (id ID) String() string {
	return string(id)
}

// Address returns the content address of body: its hex SHA-256 digest.
// Blob stores use it so the same bytes always map to the same claim identity.
func Address(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// State is a step of the claim lifecycle
type State string

// Lifecycle states. No other states exist.
const (
	Pending  State = "pending"
	Eligible State = "eligible"
	Settled  State = "settled"
)

// ParseState converts a stored state string back into a State
func ParseState(s string) (State, error) {
	switch State(s) {
	case Pending, Eligible, Settled:
		return State(s), nil
	default:
		return "", fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, s)
	}
}

// CanTransitionTo reports whether s -> next is an edge of the lifecycle
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case Pending:
		return next == Eligible
	case Eligible:
		return next == Settled
	default:
		return false
	}
}

// IsTerminal reports whether no transition leaves s
func (s State) IsTerminal() bool {
	return s == Settled
}

// Claim is a content-addressed artifact moving through the lifecycle.
// Score is derived from the gesture log by the store when the claim is read.
type Claim struct {
	ID         ID
	Originator string
	CreatedAt  time.Time
	Proof      []byte
	State      State
	Score      int64
}

// Store persists claims and provides the atomic compare-and-set transition
type Store interface {
	// CreateClaim inserts a new claim. It fails with ErrClaimExists if the ID is taken.
	CreateClaim(ctx context.Context, c Claim) error
	// Claim returns the claim or ErrClaimNotFound
	Claim(ctx context.Context, id ID) (Claim, error)
	// CompareAndSetState moves the claim from expected to next if and only if its
	// current state equals expected. It returns the claim as it is after the call,
	// or ErrStateConflict together with the current claim.
	CompareAndSetState(ctx context.Context, id ID, expected, next State) (Claim, error)
}

// Blobs is the content-addressed persistence collaborator
type Blobs interface {
	Put(ctx context.Context, body []byte) (string, error)
	Get(ctx context.Context, address string) ([]byte, error)
}

// Secrets supplies the attestation secret of a source
type Secrets interface {
	Secret(ctx context.Context, source string) ([]byte, error)
}

// Clock abstracts time for production and testing
type Clock interface {
	Now() time.Time
}
