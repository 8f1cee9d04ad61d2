package api

import "time"

// CreateClaimRequest is the body of POST /claims: an attested payload and its MAC
type CreateClaimRequest struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Data      []byte    `json:"data"` // base64
	MAC       string    `json:"mac"`  // hex
}

// Claim represents a claim in API responses
type Claim struct {
	ID         string    `json:"id"`
	Originator string    `json:"originator"`
	State      string    `json:"state"`
	Score      int64     `json:"score"`
	CreatedAt  time.Time `json:"created_at"`
}

// GestureRequest is the body of POST /claims/{id}/gestures
type GestureRequest struct {
	Endorser string `json:"endorser"`
	Amount   int64  `json:"amount"`
}

// GestureResponse describes an accepted gesture
type GestureResponse struct {
	ClaimID  string `json:"claim_id"`
	Accepted bool   `json:"accepted"`
	Sequence int64  `json:"sequence"`
	Score    int64  `json:"score"`
	Promoted bool   `json:"promoted"`
}

// Gesture is one accepted entry of a claim's gesture log
type Gesture struct {
	Endorser   string    `json:"endorser"`
	Amount     int64     `json:"amount"`
	Sequence   int64     `json:"sequence"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// Gestures is the body of GET /claims/{id}/gestures, in append order
type Gestures struct {
	ClaimID  string    `json:"claim_id"`
	Gestures []Gesture `json:"gestures"`
}

// PromotionResponse is the body of POST /claims/{id}/promotion
type PromotionResponse struct {
	ClaimID  string `json:"claim_id"`
	Promoted bool   `json:"promoted"`
}

// SettleRequest is the body of POST /claims/{id}/settlement
type SettleRequest struct {
	Payer        string `json:"payer"`
	PaymentValue int64  `json:"payment_value"`
}

// EndorserReward is one endorser's share of the validator pool
type EndorserReward struct {
	Endorser string `json:"endorser"`
	Score    int64  `json:"score"`
	Reward   int64  `json:"reward"`
}

// Transfer is one leg of the settlement batch
type Transfer struct {
	Kind   string `json:"kind"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

// Settlement represents a settlement record in API responses
type Settlement struct {
	ClaimID           string           `json:"claim_id"`
	Payer             string           `json:"payer"`
	PaymentValue      int64            `json:"payment_value"`
	Cost              int64            `json:"cost"`
	ProtocolCut       int64            `json:"protocol_cut"`
	OriginatorReward  int64            `json:"originator_reward"`
	EndorserRewards   []EndorserReward `json:"endorser_rewards"`
	Residual          int64            `json:"residual"`
	TotalScore        int64            `json:"total_score"`
	Transfers         []Transfer       `json:"transfers"`
	SettledAt         time.Time        `json:"settled_at"`
	PayoutStatus      string           `json:"payout_status"`
	PayoutCommittedAt *time.Time       `json:"payout_committed_at,omitempty"`
}

// Payload is the attested payload stored under a claim's address
type Payload struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Data      []byte    `json:"data"` // base64
}
