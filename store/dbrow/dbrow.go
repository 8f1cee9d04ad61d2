// Package dbrow holds the row shapes of the settlement schema and their
// conversions to domain types
package dbrow

import (
	"time"

	"github.com/screwyprof/luvsettle/claim"
	"github.com/screwyprof/luvsettle/ledger"
	"github.com/screwyprof/luvsettle/settlement"
)

// Claim represents a claim record as stored in the database
type Claim struct {
	ID         string    `db:"id"`
	Originator string    `db:"originator"`
	Proof      []byte    `db:"proof"`
	State      string    `db:"state"`
	Score      int64     `db:"score"`
	CreatedAt  time.Time `db:"created_at"`
	// updated_at is handled by the store on every transition
}

// ToDomain converts the row into a claim, rejecting unknown states
func (r Claim) ToDomain() (claim.Claim, error) {
	state, err := claim.ParseState(r.State)
	if err != nil {
		return claim.Claim{}, err
	}
	return claim.Claim{
		ID:         claim.ID(r.ID),
		Originator: r.Originator,
		CreatedAt:  r.CreatedAt.UTC(),
		Proof:      r.Proof,
		State:      state,
		Score:      r.Score,
	}, nil
}

// Gesture represents an accepted gesture as stored in the database
type Gesture struct {
	Seq        int64     `db:"seq"`
	ClaimID    string    `db:"claim_id"`
	Endorser   string    `db:"endorser"`
	Amount     int64     `db:"amount"`
	Token      string    `db:"token"`
	AcceptedAt time.Time `db:"accepted_at"`
}

// ToDomain converts the row into a gesture
func (r Gesture) ToDomain() ledger.Gesture {
	return ledger.Gesture{
		ClaimID:    claim.ID(r.ClaimID),
		Endorser:   r.Endorser,
		Amount:     r.Amount,
		Sequence:   r.Seq,
		Token:      r.Token,
		AcceptedAt: r.AcceptedAt.UTC(),
	}
}

// Settlement represents a settlement record as stored in the database.
// EndorserRewards and Transfers are JSONB columns.
type Settlement struct {
	ClaimID           string                      `db:"claim_id"`
	Payer             string                      `db:"payer"`
	EscrowToken       string                      `db:"escrow_token"`
	PaymentValue      int64                       `db:"payment_value"`
	Cost              int64                       `db:"cost"`
	ProtocolCut       int64                       `db:"protocol_cut"`
	OriginatorReward  int64                       `db:"originator_reward"`
	Residual          int64                       `db:"residual"`
	TotalScore        int64                       `db:"total_score"`
	EndorserRewards   []settlement.EndorserReward `db:"endorser_rewards"`
	Transfers         []settlement.Transfer       `db:"transfers"`
	SettledAt         time.Time                   `db:"settled_at"`
	PayoutStatus      string                      `db:"payout_status"`
	PayoutCommittedAt *time.Time                  `db:"payout_committed_at"`
}

// SettlementFromDomain converts a record into its row
func SettlementFromDomain(r settlement.Record) Settlement {
	rewards := r.EndorserRewards
	if rewards == nil {
		rewards = []settlement.EndorserReward{}
	}
	transfers := r.Transfers
	if transfers == nil {
		transfers = []settlement.Transfer{}
	}
	return Settlement{
		ClaimID:           r.ClaimID.String(),
		Payer:             r.Payer,
		EscrowToken:       r.Escrow,
		PaymentValue:      r.PaymentValue,
		Cost:              r.Cost,
		ProtocolCut:       r.ProtocolCut,
		OriginatorReward:  r.OriginatorReward,
		Residual:          r.Residual,
		TotalScore:        r.TotalScore,
		EndorserRewards:   rewards,
		Transfers:         transfers,
		SettledAt:         r.SettledAt,
		PayoutStatus:      string(r.PayoutStatus),
		PayoutCommittedAt: r.PayoutCommittedAt,
	}
}

// ToDomain converts the row into a record
func (r Settlement) ToDomain() settlement.Record {
	var committedAt *time.Time
	if r.PayoutCommittedAt != nil {
		at := r.PayoutCommittedAt.UTC()
		committedAt = &at
	}
	return settlement.Record{
		ClaimID:           claim.ID(r.ClaimID),
		Payer:             r.Payer,
		Escrow:            r.EscrowToken,
		PaymentValue:      r.PaymentValue,
		Cost:              r.Cost,
		ProtocolCut:       r.ProtocolCut,
		OriginatorReward:  r.OriginatorReward,
		EndorserRewards:   r.EndorserRewards,
		Residual:          r.Residual,
		TotalScore:        r.TotalScore,
		Transfers:         r.Transfers,
		SettledAt:         r.SettledAt.UTC(),
		PayoutStatus:      settlement.PayoutStatus(r.PayoutStatus),
		PayoutCommittedAt: committedAt,
	}
}

// ScanTargets returns pointers to the fields in settlementColumns order
func (r *Settlement) ScanTargets() []any {
	return []any{
		&r.ClaimID, &r.Payer, &r.PaymentValue, &r.Cost, &r.ProtocolCut, &r.OriginatorReward,
		&r.Residual, &r.TotalScore, &r.EndorserRewards, &r.Transfers, &r.SettledAt,
		&r.PayoutStatus, &r.PayoutCommittedAt, &r.EscrowToken,
	}
}

// Values returns the fields in settlementColumns order for an insert
func (r Settlement) Values() []any {
	return []any{
		r.ClaimID, r.Payer, r.PaymentValue, r.Cost, r.ProtocolCut, r.OriginatorReward,
		r.Residual, r.TotalScore, r.EndorserRewards, r.Transfers, r.SettledAt,
		r.PayoutStatus, r.PayoutCommittedAt, r.EscrowToken,
	}
}

// SettlementColumns lists the settlements table columns in scan order
const SettlementColumns = `claim_id, payer, payment_value, cost, protocol_cut, originator_reward,
	residual, total_score, endorser_rewards, transfers, settled_at, payout_status, payout_committed_at,
	escrow_token`

// ScanTargets returns pointers to the fields in ClaimColumns order
func (r *Claim) ScanTargets() []any {
	return []any{&r.ID, &r.Originator, &r.Proof, &r.State, &r.Score, &r.CreatedAt}
}

// ClaimColumns lists the claims table columns in scan order
const ClaimColumns = `id, originator, proof, state, score, created_at`
