package claim

import (
	"errors"
	"fmt"
)

// Error kinds shared by the registry, the ledger and the waterfall
var (
	// Rejected at the boundary, never retried
	ErrInvalidProof = errors.New("invalid proof")

	// No mutation occurred, safe to retry after funding
	ErrInsufficientBalance = errors.New("insufficient balance")

	// A concurrent transition won the race; re-read and decide
	ErrStateConflict = errors.New("state conflict")

	// Terminal for the call
	ErrAlreadySettled = errors.New("claim already settled")
	ErrNotEligible    = errors.New("claim not eligible for settlement")
	ErrClaimSettled   = errors.New("claim settled")

	// Caller must resubmit with a higher value
	ErrInsufficientPayment = errors.New("insufficient payment")

	// Transient, retry with backoff
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	ErrClaimNotFound     = errors.New("claim not found")
	ErrClaimExists       = errors.New("claim already exists")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrUnknownSource     = errors.New("unknown attestation source")
)

// Rejection is returned by every rejected operation. It carries the error kind,
// the claim's authoritative state when the rejection happened (empty if the
// claim is unknown) and the underlying cause, if any.
type Rejection struct {
	kind  error
	state State
	cause error
}

// Reject builds a Rejection
func Reject(kind error, state State, cause error) *Rejection {
	return &Rejection{kind: kind, state: state, cause: cause}
}

// Error implements the error interface
func (r *Rejection) Error() string {
	msg := r.kind.Error()
	if r.cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, r.cause)
	}
	if r.state != "" {
		msg = fmt.Sprintf("%s (state: %s)", msg, r.state)
	}
	return msg
}

// Kind returns the error kind
func (r *Rejection) Kind() error {
	return r.kind
}

// State returns the claim state observed when the operation was rejected
func (r *Rejection) State() State {
	return r.state
}

// Cause returns the underlying error for logging purposes
func (r *Rejection) Cause() error {
	return r.cause
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As
func (r *Rejection) Unwrap() []error {
	if r.cause == nil {
		return []error{r.kind}
	}
	return []error{r.kind, r.cause}
}

// IsRetryable reports whether err is a transient failure that left no partial state
func IsRetryable(err error) bool {
	return errors.Is(err, ErrCollaboratorUnavailable)
}

// StateOf extracts the authoritative state carried by a Rejection
func StateOf(err error) (State, bool) {
	var rejection *Rejection
	if errors.As(err, &rejection) && rejection.state != "" {
		return rejection.state, true
	}
	return "", false
}

// KindOf returns the kind of a Rejection, or nil if err is not one
func KindOf(err error) error {
	var rejection *Rejection
	if errors.As(err, &rejection) {
		return rejection.kind
	}
	return nil
}
