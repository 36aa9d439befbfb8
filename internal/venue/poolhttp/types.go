package poolhttp

// Request and response shapes of the marketplace adapter REST API. Collateral
// and proceeds travel as micro-unit integers; prices as probabilities.

type buySharesRequest struct {
	MarketID         string `json:"marketId"`
	OptionIndex      int    `json:"optionIndex"`
	CollateralAmount int64  `json:"collateralAmount"`
	MinShares        int64  `json:"minShares,omitempty"`
}

type buySharesResponse struct {
	TransactionID   string `json:"transactionId"`
	SharesMinted    int64  `json:"sharesMinted"`
	CollateralSpent int64  `json:"collateralSpent"`
	Error           string `json:"error,omitempty"`
}

type sellSharesRequest struct {
	MarketID    string `json:"marketId"`
	OptionIndex int    `json:"optionIndex"`
	Amount      int64  `json:"amount"`
	MinProceeds int64  `json:"minProceeds,omitempty"`
}

type sellSharesResponse struct {
	TransactionID      string `json:"transactionId"`
	CollateralReceived int64  `json:"collateralReceived"`
	Error              string `json:"error,omitempty"`
}

type getPricesRequest struct {
	MarketID string `json:"marketId"`
}

type getPoolStateRequest struct {
	MarketID string `json:"marketId"`
}

type getPoolStateResponse struct {
	B                float64    `json:"b"`
	InitialLiquidity [2]float64 `json:"initialLiquidity"`
	OutstandingQ     [2]float64 `json:"outstandingShares"`
	Error            string     `json:"error,omitempty"`
}

type getPricesResponse struct {
	Prices [2]float64 `json:"prices"`
	Error  string     `json:"error,omitempty"`
}

type claimPayoutRequest struct {
	MarketID string `json:"marketId"`
}

type claimPayoutResponse struct {
	TransactionID string `json:"transactionId"`
	Payout        int64  `json:"payout"`
	Error         string `json:"error,omitempty"`
}
