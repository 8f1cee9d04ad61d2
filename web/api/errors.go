package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/screwyprof/luvsettle/claim"
	"github.com/screwyprof/luvsettle/settlement"
)

// Sentinel errors for error classification
var (
	ErrBadRequest          = errors.New(http.StatusText(http.StatusBadRequest))
	ErrInternalServerError = errors.New(http.StatusText(http.StatusInternalServerError))
)

// Error represents a structured API error response
type Error struct {
	cause    error       // The original error (for logging/debugging)
	message  string      // Safe user-facing message
	httpCode int         // HTTP status code (also used as API error code)
	kind     string      // Machine-readable rejection kind, empty for plain HTTP errors
	state    claim.State // Claim state at rejection time, if known
}

// HTTPCode returns the HTTP status code for this error
func (e *Error) HTTPCode() int {
	return e.httpCode
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.message
}

// Unwrap returns the underlying cause for error unwrapping
func (e *Error) Unwrap() error {
	return e.cause
}

// Is implements error checking for sentinel errors
func (e *Error) Is(target error) bool {
	return errors.Is(e.cause, target)
}

// Cause returns the original error for logging purposes
func (e *Error) Cause() error {
	return e.cause
}

// Kind returns the machine-readable rejection kind
func (e *Error) Kind() string {
	return e.kind
}

// State returns the claim state carried by the rejection
func (e *Error) State() claim.State {
	return e.state
}

// MarshalJSON implements json.Marshaler interface
func (e *Error) MarshalJSON() ([]byte, error) {
	body := map[string]any{
		"code":    e.httpCode,
		"message": e.message,
	}
	if e.kind != "" {
		body["kind"] = e.kind
	}
	if e.state != "" {
		body["state"] = e.state
	}
	return json.Marshal(body)
}

func BadRequest(cause error) *Error {
	return &Error{
		cause:    cause,
		message:  cause.Error(), // 4xx errors are safe to expose
		httpCode: http.StatusBadRequest,
		kind:     "invalid_request",
	}
}

func InternalServerError(cause error) *Error {
	return &Error{
		cause:    cause,
		message:  http.StatusText(http.StatusInternalServerError), // Never expose internal error details
		httpCode: http.StatusInternalServerError,
	}
}

// rejectionClass tells how a rejection kind is presented over HTTP
type rejectionClass struct {
	kind     error
	slug     string
	httpCode int
}

var rejectionClasses = []rejectionClass{
	{claim.ErrInvalidRequest, "invalid_request", http.StatusBadRequest},
	{claim.ErrInvalidTransition, "invalid_transition", http.StatusBadRequest},
	{claim.ErrInvalidProof, "invalid_proof", http.StatusUnprocessableEntity},
	{claim.ErrInsufficientBalance, "insufficient_balance", http.StatusPaymentRequired},
	{claim.ErrInsufficientPayment, "insufficient_payment", http.StatusUnprocessableEntity},
	{claim.ErrClaimNotFound, "claim_not_found", http.StatusNotFound},
	{settlement.ErrSettlementNotFound, "settlement_not_found", http.StatusNotFound},
	{claim.ErrClaimExists, "claim_exists", http.StatusConflict},
	{claim.ErrStateConflict, "state_conflict", http.StatusConflict},
	{claim.ErrAlreadySettled, "already_settled", http.StatusConflict},
	{claim.ErrNotEligible, "not_eligible", http.StatusConflict},
	{claim.ErrClaimSettled, "claim_settled", http.StatusConflict},
	{claim.ErrCollaboratorUnavailable, "collaborator_unavailable", http.StatusServiceUnavailable},
}

// Rejection presents a claim.Rejection. Only its kind and the claim state are
// exposed, except for invalid requests whose cause describes the caller's input.
// Other causes may carry collaborator internals.
func Rejection(err error) *Error {
	kind := claim.KindOf(err)
	state, _ := claim.StateOf(err)

	for _, class := range rejectionClasses {
		if kind != class.kind {
			continue
		}
		message := kind.Error()
		if kind == claim.ErrInvalidRequest {
			message = err.Error()
		}
		if class.httpCode >= http.StatusInternalServerError {
			message = http.StatusText(class.httpCode)
		}
		return &Error{
			cause:    err,
			message:  message,
			httpCode: class.httpCode,
			kind:     class.slug,
			state:    state,
		}
	}

	return InternalServerError(err)
}

// Wrap transforms any error into a safe API error
// If the error is already an API error, it returns it unchanged
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}

	// Don't double-wrap API errors
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var rejection *claim.Rejection
	if errors.As(err, &rejection) {
		return Rejection(err)
	}

	return InternalServerError(err)
}
