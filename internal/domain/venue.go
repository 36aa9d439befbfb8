package domain

// PricingModel identifies the pricing function a venue's market maker runs.
// Only LMSR is modeled.
type PricingModel string

const PricingModelLMSR PricingModel = "lmsr"

// Venue is the static configuration of one external market-maker instance.
// Read-only to the engine; sourced from configuration.
type Venue struct {
	ID           string
	Name         string
	ChainFamily  string // e.g. "evm", "solana"
	Address      string // program / contract address
	BaseURL      string // marketplace adapter REST endpoint
	SettlementWS string // optional settlement push feed
	Active       bool
	PricingModel PricingModel
}

// PoolState is the authoritative LMSR state of one (venue, market) pair,
// fetched on demand from the venue. Mutated only by confirmed buys and sells.
type PoolState struct {
	VenueID          string
	MarketID         string
	B                float64
	InitialLiquidity [2]float64
	OutstandingQ     [2]float64
	FeesCollected    int64
}

// Quote is a venue's current two-sided price. Prices are probabilities and
// sum to 1 within floating tolerance.
type Quote struct {
	Price0 float64
	Price1 float64
}
