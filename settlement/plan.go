// Package settlement converts an Eligible claim's consensus into a one-time
// distribution of an incoming payment
package settlement

import (
	"cmp"
	"errors"
	"fmt"
	"math/bits"
	"slices"

	"github.com/screwyprof/luvsettle/claim"
	"github.com/screwyprof/luvsettle/ledger"
	"github.com/screwyprof/luvsettle/terms"
)

// Plan errors
var (
	ErrInvalidContribution = errors.New("invalid contribution")
	ErrDuplicateEndorser   = errors.New("duplicate endorser contribution")
)

// Input is everything the waterfall is a function of
type Input struct {
	ClaimID       claim.ID
	Payer         string
	Originator    string
	PaymentValue  int64
	Contributions []ledger.Contribution
	Terms         terms.Config
}

// EndorserReward is one endorser's share of the validator pool
type EndorserReward struct {
	Endorser string `json:"endorser"`
	Score    int64  `json:"score"`
	Reward   int64  `json:"reward"`
}

// Plan is the computed distribution of a payment. Every amount is an integer
// and Cost + ProtocolCut + OriginatorReward + sum(EndorserRewards) + Residual
// always equals PaymentValue.
type Plan struct {
	ClaimID          claim.ID
	Payer            string
	Originator       string
	PaymentValue     int64
	Cost             int64
	Remaining        int64
	ProtocolCut      int64
	RewardPool       int64
	OriginatorReward int64
	ValidatorPool    int64
	TotalScore       int64
	EndorserRewards  []EndorserReward
	Residual         int64
}

// NewPlan runs the waterfall: cost coverage, protocol funding, originator
// reward, then endorser rewards weighted by each endorser's share of the total
// score. Truncation residue goes to the protocol treasury as Residual.
//
// NewPlan is pure and validates the payment against the persistence cost.
func NewPlan(in Input) (Plan, error) {
	if err := in.Terms.Validate(); err != nil {
		return Plan{}, err
	}
	if in.PaymentValue <= in.Terms.PersistenceCost {
		return Plan{}, fmt.Errorf("%w: payment %d must exceed persistence cost %d",
			claim.ErrInsufficientPayment, in.PaymentValue, in.Terms.PersistenceCost)
	}

	contributions, total, err := normalize(in.Contributions)
	if err != nil {
		return Plan{}, err
	}

	p := Plan{
		ClaimID:      in.ClaimID,
		Payer:        in.Payer,
		Originator:   in.Originator,
		PaymentValue: in.PaymentValue,
		Cost:         in.Terms.PersistenceCost,
		TotalScore:   total,
	}

	p.Remaining = p.PaymentValue - p.Cost
	p.ProtocolCut = mulDiv(p.Remaining, in.Terms.ProtocolFeePercent, 100)
	p.RewardPool = p.Remaining - p.ProtocolCut
	p.OriginatorReward = p.RewardPool / 2
	p.ValidatorPool = p.RewardPool - p.OriginatorReward

	distributed := int64(0)
	p.EndorserRewards = make([]EndorserReward, 0, len(contributions))
	for _, c := range contributions {
		reward := mulDiv(p.ValidatorPool, c.Amount, total)
		distributed += reward
		p.EndorserRewards = append(p.EndorserRewards, EndorserReward{
			Endorser: c.Endorser,
			Score:    c.Amount,
			Reward:   reward,
		})
	}

	p.Residual = p.ValidatorPool - distributed

	return p, nil
}

// Distributed returns the sum of every amount the plan moves
func (p Plan) Distributed() int64 {
	sum := p.Cost + p.ProtocolCut + p.OriginatorReward + p.Residual
	for _, r := range p.EndorserRewards {
		sum += r.Reward
	}
	return sum
}

// normalize validates contributions and returns a copy sorted by endorser,
// together with the total score
func normalize(in []ledger.Contribution) ([]ledger.Contribution, int64, error) {
	out := slices.Clone(in)
	slices.SortFunc(out, func(a, b ledger.Contribution) int {
		return cmp.Compare(a.Endorser, b.Endorser)
	})

	var total int64
	for i, c := range out {
		if c.Endorser == "" || c.Amount <= 0 {
			return nil, 0, fmt.Errorf("%w: %q with amount %d", ErrInvalidContribution, c.Endorser, c.Amount)
		}
		if i > 0 && out[i-1].Endorser == c.Endorser {
			return nil, 0, fmt.Errorf("%w: %q", ErrDuplicateEndorser, c.Endorser)
		}
		next, carry := bits.Add64(uint64(total), uint64(c.Amount), 0)
		if carry != 0 || next > uint64(1<<63-1) {
			return nil, 0, fmt.Errorf("%w: total score overflows", ErrInvalidContribution)
		}
		total = int64(next)
	}

	return out, total, nil
}

// mulDiv returns floor(a * b / d) for non-negative operands with b <= d,
// without intermediate overflow. A zero divisor yields zero.
func mulDiv(a, b, d int64) int64 {
	if d == 0 || a == 0 || b == 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	q, _ := bits.Div64(hi, lo, uint64(d))
	return int64(q)
}
