package bind

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/screwyprof/luvsettle/attest"
	"github.com/screwyprof/luvsettle/claim"
	"github.com/screwyprof/luvsettle/ledger"
	"github.com/screwyprof/luvsettle/pkg/httpkit"
	"github.com/screwyprof/luvsettle/settlement"
	"github.com/screwyprof/luvsettle/web/api"
)

// MaxBodyBytes bounds every request body, attested payload included
const MaxBodyBytes = 1 << 20

// Sentinel errors for request binding
var (
	ErrInvalidClaimRequest   = errors.New("invalid claim request")
	ErrInvalidGestureRequest = errors.New("invalid gesture request")
	ErrInvalidSettleRequest  = errors.New("invalid settle request")
	ErrInvalidClaimID        = errors.New("invalid claim id")

	ErrSourceRequired     = errors.New("source is required")
	ErrTimestampRequired  = errors.New("timestamp is required")
	ErrMACNotHex          = errors.New("mac must be hex encoded")
	ErrMACRequired        = errors.New("mac is required")
	ErrEndorserRequired   = errors.New("endorser is required")
	ErrAmountNotPositive  = errors.New("amount must be positive")
	ErrPayerRequired      = errors.New("payer is required")
	ErrPaymentNotPositive = errors.New("payment_value must be positive")
	ErrClaimIDMalformed   = errors.New("claim id must be 64 lowercase hex characters")
)

// ClaimID reads and validates the {id} path value
func ClaimID(r *http.Request) (claim.ID, error) {
	id := r.PathValue("id")
	if len(id) != 64 {
		return "", fmt.Errorf("%w: %w", ErrInvalidClaimID, ErrClaimIDMalformed)
	}
	for _, c := range id {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("%w: %w", ErrInvalidClaimID, ErrClaimIDMalformed)
		}
	}
	return claim.ID(id), nil
}

// CreateClaimRequest binds POST /claims to an attested package
func CreateClaimRequest(w http.ResponseWriter, r *http.Request) (attest.Package, error) {
	var req api.CreateClaimRequest
	if err := httpkit.DecodeJSON(w, r, MaxBodyBytes, &req); err != nil {
		return attest.Package{}, fmt.Errorf("%w: %w", ErrInvalidClaimRequest, err)
	}

	if req.Source == "" {
		return attest.Package{}, fmt.Errorf("%w: %w", ErrInvalidClaimRequest, ErrSourceRequired)
	}
	if req.Timestamp.IsZero() {
		return attest.Package{}, fmt.Errorf("%w: %w", ErrInvalidClaimRequest, ErrTimestampRequired)
	}
	if req.MAC == "" {
		return attest.Package{}, fmt.Errorf("%w: %w", ErrInvalidClaimRequest, ErrMACRequired)
	}
	mac, err := hex.DecodeString(req.MAC)
	if err != nil {
		return attest.Package{}, fmt.Errorf("%w: %w", ErrInvalidClaimRequest, ErrMACNotHex)
	}

	return attest.Package{
		Payload: attest.Payload{
			Source:    req.Source,
			Timestamp: req.Timestamp,
			Data:      req.Data,
		},
		MAC: mac,
	}, nil
}

// GestureRequest binds POST /claims/{id}/gestures
func GestureRequest(w http.ResponseWriter, r *http.Request) (claim.ID, api.GestureRequest, error) {
	id, err := ClaimID(r)
	if err != nil {
		return "", api.GestureRequest{}, err
	}

	var req api.GestureRequest
	if err := httpkit.DecodeJSON(w, r, MaxBodyBytes, &req); err != nil {
		return "", api.GestureRequest{}, fmt.Errorf("%w: %w", ErrInvalidGestureRequest, err)
	}
	if req.Endorser == "" {
		return "", api.GestureRequest{}, fmt.Errorf("%w: %w", ErrInvalidGestureRequest, ErrEndorserRequired)
	}
	if req.Amount <= 0 {
		return "", api.GestureRequest{}, fmt.Errorf("%w: %w", ErrInvalidGestureRequest, ErrAmountNotPositive)
	}

	return id, req, nil
}

// SettleRequest binds POST /claims/{id}/settlement
func SettleRequest(w http.ResponseWriter, r *http.Request) (claim.ID, api.SettleRequest, error) {
	id, err := ClaimID(r)
	if err != nil {
		return "", api.SettleRequest{}, err
	}

	var req api.SettleRequest
	if err := httpkit.DecodeJSON(w, r, MaxBodyBytes, &req); err != nil {
		return "", api.SettleRequest{}, fmt.Errorf("%w: %w", ErrInvalidSettleRequest, err)
	}
	if req.Payer == "" {
		return "", api.SettleRequest{}, fmt.Errorf("%w: %w", ErrInvalidSettleRequest, ErrPayerRequired)
	}
	if req.PaymentValue <= 0 {
		return "", api.SettleRequest{}, fmt.Errorf("%w: %w", ErrInvalidSettleRequest, ErrPaymentNotPositive)
	}

	return id, req, nil
}

// ClaimResponse binds a domain claim to its API shape
func ClaimResponse(c claim.Claim) api.Claim {
	return api.Claim{
		ID:         c.ID.String(),
		Originator: c.Originator,
		State:      string(c.State),
		Score:      c.Score,
		CreatedAt:  c.CreatedAt.UTC(),
	}
}

// PayloadResponse binds an attested payload to its API shape
func PayloadResponse(p attest.Payload) api.Payload {
	return api.Payload{
		Source:    p.Source,
		Timestamp: p.Timestamp.UTC(),
		Data:      p.Data,
	}
}

// GestureResponse binds a ledger result to its API shape
func GestureResponse(id claim.ID, res ledger.Result) api.GestureResponse {
	return api.GestureResponse{
		ClaimID:  id.String(),
		Accepted: res.Accepted,
		Sequence: res.Gesture.Sequence,
		Score:    res.Score,
		Promoted: res.Promoted,
	}
}

// GesturesResponse binds a claim's gesture log to its API shape
func GesturesResponse(id claim.ID, gestures []ledger.Gesture) api.Gestures {
	out := make([]api.Gesture, len(gestures))
	for i, g := range gestures {
		out[i] = api.Gesture{
			Endorser:   g.Endorser,
			Amount:     g.Amount,
			Sequence:   g.Sequence,
			AcceptedAt: g.AcceptedAt.UTC(),
		}
	}
	return api.Gestures{ClaimID: id.String(), Gestures: out}
}

// SettlementResponse binds a settlement record to its API shape
func SettlementResponse(r settlement.Record) api.Settlement {
	rewards := make([]api.EndorserReward, len(r.EndorserRewards))
	for i, reward := range r.EndorserRewards {
		rewards[i] = api.EndorserReward{
			Endorser: reward.Endorser,
			Score:    reward.Score,
			Reward:   reward.Reward,
		}
	}

	transfers := make([]api.Transfer, len(r.Transfers))
	for i, transfer := range r.Transfers {
		transfers[i] = api.Transfer{
			Kind:   string(transfer.Kind),
			From:   transfer.From,
			To:     transfer.To,
			Amount: transfer.Amount,
		}
	}

	var committedAt *time.Time
	if r.PayoutCommittedAt != nil {
		at := r.PayoutCommittedAt.UTC()
		committedAt = &at
	}

	return api.Settlement{
		ClaimID:           r.ClaimID.String(),
		Payer:             r.Payer,
		PaymentValue:      r.PaymentValue,
		Cost:              r.Cost,
		ProtocolCut:       r.ProtocolCut,
		OriginatorReward:  r.OriginatorReward,
		EndorserRewards:   rewards,
		Residual:          r.Residual,
		TotalScore:        r.TotalScore,
		Transfers:         transfers,
		SettledAt:         r.SettledAt.UTC(),
		PayoutStatus:      string(r.PayoutStatus),
		PayoutCommittedAt: committedAt,
	}
}
