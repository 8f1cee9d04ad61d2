package settlement

import (
	"time"

	"github.com/screwyprof/luvsettle/claim"
)

// TransferKind labels why a transfer exists
type TransferKind string

// Transfer kinds, in waterfall order
const (
	KindPersistenceCost  TransferKind = "persistence_cost"
	KindProtocolFee      TransferKind = "protocol_fee"
	KindOriginatorReward TransferKind = "originator_reward"
	KindEndorserReward   TransferKind = "endorser_reward"
	KindResidual         TransferKind = "residual"
)

// PayoutStatus tracks whether the record's transfer batch reached the treasury
type PayoutStatus string

// Payout statuses
const (
	PayoutPending   PayoutStatus = "pending"
	PayoutCommitted PayoutStatus = "committed"
)

// Transfer moves Amount from the payer to an account
type Transfer struct {
	From   string       `json:"from"`
	To     string       `json:"to"`
	Amount int64        `json:"amount"`
	Kind   TransferKind `json:"kind"`
}

// Batch is a set of transfers committed atomically under an idempotency key.
// When Escrow is set the transfers are paid out of the debit made under that
// token rather than from the current balance of the sender.
type Batch struct {
	Key       string
	Escrow    string
	Transfers []Transfer
}

// Total returns the sum of all transfers in the batch
func (b Batch) Total() int64 {
	var total int64
	for _, t := range b.Transfers {
		total += t.Amount
	}
	return total
}

// Accounts names the fixed beneficiaries of every settlement
type Accounts struct {
	Storage  string
	Treasury string
}

// Record is the authoritative proof that a claim settled
type Record struct {
	ClaimID           claim.ID
	Payer             string
	Escrow            string
	PaymentValue      int64
	Cost              int64
	ProtocolCut       int64
	OriginatorReward  int64
	EndorserRewards   []EndorserReward
	Residual          int64
	TotalScore        int64
	Transfers         []Transfer
	SettledAt         time.Time
	PayoutStatus      PayoutStatus
	PayoutCommittedAt *time.Time
}

// NewRecord turns a plan into a record with its transfer batch buffered as
// pending. escrow is the token the payment was debited under.
func NewRecord(p Plan, accounts Accounts, escrow string, settledAt time.Time) Record {
	return Record{
		ClaimID:          p.ClaimID,
		Payer:            p.Payer,
		Escrow:           escrow,
		PaymentValue:     p.PaymentValue,
		Cost:             p.Cost,
		ProtocolCut:      p.ProtocolCut,
		OriginatorReward: p.OriginatorReward,
		EndorserRewards:  p.EndorserRewards,
		Residual:         p.Residual,
		TotalScore:       p.TotalScore,
		Transfers:        Transfers(p, accounts),
		SettledAt:        settledAt,
		PayoutStatus:     PayoutPending,
	}
}

// Batch returns the record's transfers under the key that makes committing them idempotent
func (r Record) Batch() Batch {
	return Batch{
		Key:       BatchKey(r.ClaimID),
		Escrow:    r.Escrow,
		Transfers: r.Transfers,
	}
}

// BatchKey is the idempotency key of a claim's transfer batch
func BatchKey(id claim.ID) string {
	return "settlement:" + id.String()
}

// Transfers lists the plan's transfers in waterfall order, skipping zero amounts
func Transfers(p Plan, accounts Accounts) []Transfer {
	out := make([]Transfer, 0, len(p.EndorserRewards)+4)
	add := func(to string, amount int64, kind TransferKind) {
		if amount == 0 {
			return
		}
		out = append(out, Transfer{From: p.Payer, To: to, Amount: amount, Kind: kind})
	}

	add(accounts.Storage, p.Cost, KindPersistenceCost)
	add(accounts.Treasury, p.ProtocolCut, KindProtocolFee)
	add(p.Originator, p.OriginatorReward, KindOriginatorReward)
	for _, r := range p.EndorserRewards {
		add(r.Endorser, r.Reward, KindEndorserReward)
	}
	add(accounts.Treasury, p.Residual, KindResidual)

	return out
}
