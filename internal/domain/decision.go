package domain

import "github.com/shopspring/decimal"

// Intent is the direction a strategy wants to move a route in.
type Intent string

const (
	IntentBuy  Intent = "BUY"
	IntentSell Intent = "SELL"
	IntentExit Intent = "EXIT"
	IntentHold Intent = "HOLD"
)

// Decision is the output of a single strategy step. A Decision is produced
// fresh on every step and never mutated after creation.
type Decision struct {
	Intent     Intent          `json:"intent"`
	Confidence float64         `json:"confidence"` // [0,1]
	SizeHint   decimal.Decimal `json:"size_hint"`  // fraction of capital, zero when unset
	Reason     string          `json:"reason"`
}

// Hold builds the no-op decision with an explanation.
func Hold(reason string) Decision {
	return Decision{Intent: IntentHold, Confidence: 1, Reason: reason}
}
