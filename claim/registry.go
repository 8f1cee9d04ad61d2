package claim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/screwyprof/luvsettle/attest"
	"github.com/screwyprof/luvsettle/pkg/clock"
)

// RegistryOption configures the Registry
type RegistryOption func(*Registry)

// WithClock injects a custom Clock (e.g., for testing)
func WithClock(c Clock) RegistryOption {
	return func(r *Registry) { r.clock = c }
}

// WithLogger sets the logger used for diagnostics
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// Registry is the only component allowed to create claims and move them
// between lifecycle states
type Registry struct {
	store   Store
	blobs   Blobs
	secrets Secrets
	clock   Clock
	log     *slog.Logger
}

// NewRegistry constructs a Registry over its collaborators
func NewRegistry(store Store, blobs Blobs, secrets Secrets, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:   store,
		blobs:   blobs,
		secrets: secrets,
		clock:   clock.SystemClock{},
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateClaim verifies the attested package, stores its canonical payload in the
// content-addressed blob store and registers a Pending claim under the address.
//
// Verification happens before any mutation. Submitting the same payload twice
// yields ErrClaimExists with the existing claim's state.
func (r *Registry) CreateClaim(ctx context.Context, pkg attest.Package) (Claim, error) {
	secret, err := r.secrets.Secret(ctx, pkg.Source)
	if err != nil {
		if errors.Is(err, ErrUnknownSource) {
			return Claim{}, Reject(ErrInvalidProof, "", err)
		}
		return Claim{}, Reject(ErrCollaboratorUnavailable, "", err)
	}

	if !attest.Verify(pkg, secret) {
		return Claim{}, Reject(ErrInvalidProof, "", nil)
	}

	body, err := attest.Encode(pkg.Payload)
	if err != nil {
		return Claim{}, Reject(ErrInvalidProof, "", err)
	}

	address, err := r.blobs.Put(ctx, body)
	if err != nil {
		return Claim{}, Reject(ErrCollaboratorUnavailable, "", fmt.Errorf("put payload: %w", err))
	}

	c := Claim{
		ID:         ID(address),
		Originator: pkg.Source,
		CreatedAt:  r.clock.Now().UTC(),
		Proof:      pkg.MAC,
		State:      Pending,
	}

	if err := r.store.CreateClaim(ctx, c); err != nil {
		if errors.Is(err, ErrClaimExists) {
			existing, getErr := r.store.Claim(ctx, c.ID)
			if getErr != nil {
				return Claim{}, Reject(ErrClaimExists, "", nil)
			}
			return existing, Reject(ErrClaimExists, existing.State, nil)
		}
		return Claim{}, Reject(ErrCollaboratorUnavailable, "", fmt.Errorf("create claim: %w", err))
	}

	r.log.DebugContext(ctx, "Claim created",
		slog.String("claimID", c.ID.String()),
		slog.String("originator", c.Originator),
	)

	return c, nil
}

// Transition atomically moves a claim from expected to next.
// It fails with ErrStateConflict if the claim is no longer in expected.
func (r *Registry) Transition(ctx context.Context, id ID, expected, next State) (Claim, error) {
	if !expected.CanTransitionTo(next) {
		return Claim{}, Reject(ErrInvalidTransition, "", fmt.Errorf("%s -> %s", expected, next))
	}

	c, err := r.store.CompareAndSetState(ctx, id, expected, next)
	switch {
	case err == nil:
	case errors.Is(err, ErrClaimNotFound):
		return Claim{}, Reject(ErrClaimNotFound, "", nil)
	case errors.Is(err, ErrStateConflict):
		return c, Reject(ErrStateConflict, c.State, fmt.Errorf("expected %s", expected))
	default:
		return Claim{}, Reject(ErrCollaboratorUnavailable, "", fmt.Errorf("transition: %w", err))
	}

	r.log.InfoContext(ctx, "Claim transitioned",
		slog.String("claimID", id.String()),
		slog.String("from", string(expected)),
		slog.String("to", string(next)),
	)

	return c, nil
}

// Get returns the claim with its current score
func (r *Registry) Get(ctx context.Context, id ID) (Claim, error) {
	c, err := r.store.Claim(ctx, id)
	if errors.Is(err, ErrClaimNotFound) {
		return Claim{}, Reject(ErrClaimNotFound, "", nil)
	}
	if err != nil {
		return Claim{}, Reject(ErrCollaboratorUnavailable, "", fmt.Errorf("get claim: %w", err))
	}
	return c, nil
}

// Payload loads and decodes the attested payload stored under the claim's address
func (r *Registry) Payload(ctx context.Context, id ID) (attest.Payload, error) {
	c, err := r.Get(ctx, id)
	if err != nil {
		return attest.Payload{}, err
	}

	body, err := r.blobs.Get(ctx, c.ID.String())
	if err != nil {
		return attest.Payload{}, Reject(ErrCollaboratorUnavailable, c.State, fmt.Errorf("get payload: %w", err))
	}

	return attest.Decode(body)
}
