package execution

// Strategy selects how C5 submits a plan's legs (spec §4.5).
type Strategy string

const (
	StrategyMarket Strategy = "MARKET"
	StrategyLimit  Strategy = "LIMIT"
	StrategyHybrid Strategy = "HYBRID" // default
)
