package domain

import "time"

// BetStrategy selects how a slip's collateral is split across venues.
type BetStrategy string

const (
	// StrategyMaximizeShares splits collateral to chase price discrepancies
	// between venues, nudging each venue's entry price by a bounded variance.
	StrategyMaximizeShares BetStrategy = "maximize_shares"
	// StrategyMaximizePrivacy is reserved. It currently allocates like the
	// default even split and carries no additional behavior.
	StrategyMaximizePrivacy BetStrategy = "maximize_privacy"
)

// SlipStatus is the lifecycle state of a BetSlip.
type SlipStatus string

const (
	SlipStatusPending    SlipStatus = "pending"
	SlipStatusProcessing SlipStatus = "processing"
	SlipStatusPlaced     SlipStatus = "placed"
	SlipStatusSelling    SlipStatus = "selling"
	SlipStatusFailed     SlipStatus = "failed"
	SlipStatusClosed     SlipStatus = "closed"
)

// Terminal reports whether the status is final. Closed and Failed slips are
// immutable; no event may move them to another state.
func (s SlipStatus) Terminal() bool {
	return s == SlipStatusClosed || s == SlipStatusFailed
}

// validSlipTransitions enumerates every legal status edge. Anything not listed
// is rejected with ErrInvalidTransition.
var validSlipTransitions = map[SlipStatus][]SlipStatus{
	SlipStatusPending:    {SlipStatusProcessing, SlipStatusFailed},
	SlipStatusProcessing: {SlipStatusPlaced, SlipStatusFailed},
	SlipStatusPlaced:     {SlipStatusSelling, SlipStatusClosed, SlipStatusFailed},
	SlipStatusSelling:    {SlipStatusClosed},
}

// CanTransition reports whether moving from s to next is a legal edge of the
// slip state machine.
func (s SlipStatus) CanTransition(next SlipStatus) bool {
	for _, t := range validSlipTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// BetSlip is one user wager, fanned out into independent venue-level legs.
// Amounts are in the settlement currency's smallest unit (6-decimal
// fixed-point micro-units) and are always non-negative.
type BetSlip struct {
	ID                string
	User              string
	Strategy          BetStrategy
	ParentMarketID    string // catalog market the slip bets, fanned out per venue
	OutcomeIndex      int    // binary outcome the user backs, uniform across legs
	InitialCollateral int64
	FinalCollateral   int64
	DustAmount        int64 // rounding remainder from the allocation split
	Status            SlipStatus
	InstantArbitrage  bool
	FailureReason     string
	ParentID          string // optional back-reference for chained slips
	Legs              []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TargetMarket identifies one venue-level market a slip bets into, produced by
// the market catalog for a parent market.
type TargetMarket struct {
	VenueID  string
	MarketID string
}
