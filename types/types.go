package types

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// TokenPair identifies the direction of a trade for threshold lookups
type TokenPair struct {
	TokenIn  common.Address
	TokenOut common.Address
}

func (p TokenPair) String() string {
	return p.TokenIn.Hex() + "/" + p.TokenOut.Hex()
}

// Opportunity represents a detected price discrepancy across one or more routers.
// ExpectedAmountsOut is aligned index-by-index with CandidateRouters.
type Opportunity struct {
	TokenIn            common.Address
	TokenOut           common.Address
	AmountIn           *big.Int
	CandidateRouters   []common.Address
	ExpectedAmountsOut []*big.Int
	DiscoveredAt       time.Time
}

// Pair returns the token pair the opportunity trades
func (o *Opportunity) Pair() TokenPair {
	return TokenPair{TokenIn: o.TokenIn, TokenOut: o.TokenOut}
}

// ID returns the content fingerprint of the opportunity. DiscoveredAt is not
// part of the identity, so two cycles that observe the same state agree on it.
func (o *Opportunity) ID() common.Hash {
	buf := make([]byte, 0, 20*2+37+4+len(o.CandidateRouters)*20+4+len(o.ExpectedAmountsOut)*37)
	buf = append(buf, o.TokenIn.Bytes()...)
	buf = append(buf, o.TokenOut.Bytes()...)
	buf = appendAmount(buf, o.AmountIn)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(o.CandidateRouters)))
	for _, r := range o.CandidateRouters {
		buf = append(buf, r.Bytes()...)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(o.ExpectedAmountsOut)))
	for _, a := range o.ExpectedAmountsOut {
		buf = appendAmount(buf, a)
	}
	return crypto.Keccak256Hash(buf)
}

// GrossOut sums the expected output of every candidate router
func (o *Opportunity) GrossOut() *big.Int {
	total := new(big.Int)
	for _, a := range o.ExpectedAmountsOut {
		if a != nil {
			total.Add(total, a)
		}
	}
	return total
}

// Profit returns sum(ExpectedAmountsOut) - AmountIn. The result may be negative.
func (o *Opportunity) Profit() *big.Int {
	profit := o.GrossOut()
	if o.AmountIn != nil {
		profit.Sub(profit, o.AmountIn)
	}
	return profit
}

// Validate rejects opportunities that can never be executed. It performs no
// network access.
func (o *Opportunity) Validate() error {
	switch {
	case o.AmountIn == nil || o.AmountIn.Sign() <= 0:
		return fmt.Errorf("%w: amount in must be positive", ErrInvalidOpportunity)
	case o.TokenIn == (common.Address{}) || o.TokenOut == (common.Address{}):
		return fmt.Errorf("%w: empty token address", ErrInvalidOpportunity)
	case len(o.CandidateRouters) == 0:
		return fmt.Errorf("%w: missing router", ErrInvalidOpportunity)
	case len(o.CandidateRouters) != len(o.ExpectedAmountsOut):
		return fmt.Errorf("%w: %d routers but %d amounts", ErrInvalidOpportunity,
			len(o.CandidateRouters), len(o.ExpectedAmountsOut))
	}
	for i, r := range o.CandidateRouters {
		if r == (common.Address{}) {
			return fmt.Errorf("%w: empty router address at index %d", ErrInvalidOpportunity, i)
		}
		if a := o.ExpectedAmountsOut[i]; a == nil || a.Sign() < 0 {
			return fmt.Errorf("%w: invalid amount out at index %d", ErrInvalidOpportunity, i)
		}
	}
	return nil
}

// FeeQuote is a point-in-time EIP-1559 fee quote in wei. It is never cached.
type FeeQuote struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// BundleDescriptor is the unsigned transaction a bundle carries
type BundleDescriptor struct {
	Recipient common.Address
	Payload   []byte
	Fee       FeeQuote
	GasLimit  uint64
	ChainID   *big.Int
}

// SubmissionStatus classifies what the relay did with a bundle
type SubmissionStatus string

const (
	SubmissionAccepted SubmissionStatus = "accepted"
	SubmissionRejected SubmissionStatus = "rejected"
	SubmissionError    SubmissionStatus = "error"
)

// SubmissionResult carries either the relay acknowledgement or an explicit error
type SubmissionResult struct {
	Status     SubmissionStatus
	BundleHash string
	TxHash     common.Hash
	Err        error
}

// Accepted reports whether the relay acknowledged the bundle
func (r *SubmissionResult) Accepted() bool {
	return r != nil && r.Status == SubmissionAccepted
}

// Outcome is the terminal state of an opportunity within a cycle
type Outcome string

const (
	OutcomeRejected     Outcome = "rejected"
	OutcomeDeduplicated Outcome = "deduplicated"
	OutcomeExecuted     Outcome = "executed"
	OutcomeFailed       Outcome = "failed"
)

// Result is reported once per opportunity
type Result struct {
	ID          common.Hash
	Opportunity *Opportunity
	Outcome     Outcome
	Profit      *big.Int
	Fee         *FeeQuote
	Submission  *SubmissionResult
	Err         error
}

// RecordState tracks a fingerprint inside the dedupe store
type RecordState string

const (
	RecordExecuting RecordState = "executing"
	RecordExecuted  RecordState = "executed"
	RecordFailed    RecordState = "failed"
)

// SubmissionRecord is what the dedupe store and the history store keep for a
// fingerprint. It is JSON encoded for the Redis backend.
type SubmissionRecord struct {
	ID         string      `json:"id"`
	TokenIn    string      `json:"token_in"`
	TokenOut   string      `json:"token_out"`
	AmountIn   string      `json:"amount_in"`
	Profit     string      `json:"profit"`
	State      RecordState `json:"state"`
	BundleHash string      `json:"bundle_hash,omitempty"`
	TxHash     string      `json:"tx_hash,omitempty"`
	Error      string      `json:"error,omitempty"`
	ReservedAt time.Time   `json:"reserved_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// NewSubmissionRecord creates an executing record for an opportunity
func NewSubmissionRecord(opp *Opportunity, profit *big.Int, now time.Time) *SubmissionRecord {
	rec := &SubmissionRecord{
		ID:         opp.ID().Hex(),
		TokenIn:    opp.TokenIn.Hex(),
		TokenOut:   opp.TokenOut.Hex(),
		State:      RecordExecuting,
		ReservedAt: now,
		UpdatedAt:  now,
	}
	if opp.AmountIn != nil {
		rec.AmountIn = opp.AmountIn.String()
	}
	if profit != nil {
		rec.Profit = profit.String()
	}
	return rec
}

// appendAmount writes a sign tag, the magnitude length and the magnitude, so
// every distinct value (nil, negative, or wider than 256 bits) encodes uniquely
func appendAmount(buf []byte, x *big.Int) []byte {
	if x == nil {
		return append(buf, 0)
	}
	tag := byte(1)
	if x.Sign() < 0 {
		tag = 2
	}
	mag := x.Bytes()
	buf = append(buf, tag)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(mag)))
	return append(buf, mag...)
}
