package domain

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/sha3"
)

// LegOutcome is the state of one venue-level bet.
type LegOutcome string

const (
	LegOutcomeNone   LegOutcome = "none"
	LegOutcomePlaced LegOutcome = "placed"
	LegOutcomeFailed LegOutcome = "failed"
	LegOutcomeSold   LegOutcome = "sold"
	LegOutcomeWon    LegOutcome = "won"
	LegOutcomeLost   LegOutcome = "lost"
	LegOutcomeDraw   LegOutcome = "draw"
	LegOutcomeVoid   LegOutcome = "void"
)

// Terminal reports whether the outcome is final. A leg transitions exactly
// once out of None (to Placed or Failed) and exactly once out of Placed.
func (o LegOutcome) Terminal() bool {
	switch o {
	case LegOutcomeFailed, LegOutcomeSold, LegOutcomeWon, LegOutcomeLost, LegOutcomeDraw, LegOutcomeVoid:
		return true
	}
	return false
}

// Adverse reports whether the outcome should fire the instant-arbitrage
// trigger on an opted-in slip.
func (o LegOutcome) Adverse() bool {
	return o == LegOutcomeLost || o == LegOutcomeVoid
}

// ProxiedBet is one venue-level bet ("leg") owned by exactly one BetSlip.
type ProxiedBet struct {
	ID                       string
	SlipID                   string
	VenueID                  string
	MarketID                 string
	OptionIndex              int
	MinimumShares            int64 // slippage floor accepted at placement
	OriginalCollateralAmount int64 // requested
	FinalCollateralAmount    int64 // actually consumed / recovered
	SharesBought             int64
	SharesSold               int64
	Outcome                  LegOutcome
	FailureReason            string
	PlacedAt                 time.Time
	SettledAt                *time.Time
}

// Open reports whether the leg is placed and not yet resolved.
func (b ProxiedBet) Open() bool {
	return b.Outcome == LegOutcomePlaced
}

// DeriveLegID computes a deterministic leg identifier from the slip, venue,
// market, and fan-out sequence number. Resubmitting the same leg always
// produces the same ID, which the ledger uses as its duplicate guard.
func DeriveLegID(slipID, venueID, marketID string, sequence int) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(slipID))
	h.Write([]byte{0})
	h.Write([]byte(venueID))
	h.Write([]byte{0})
	h.Write([]byte(marketID))
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], uint64(sequence))
	h.Write(seq[:])
	return hex.EncodeToString(h.Sum(nil))
}
