package models

// Action — что делать с позицией по итогам тика.
type Action string

const (
	ActionBuy      Action = "BUY"
	ActionSell     Action = "SELL"
	ActionCloseAll Action = "CLOSE_ALL"
	ActionBlocked  Action = "BLOCKED"
)

// Signal is the single decision a strategy may emit per tick.
// TakeProfit == 0 means "no take profit attached".
type Signal struct {
	Action     Action
	LotSize    float64
	TakeProfit float64
	Reason     string
}

// IsEntry reports whether the signal opens new volume.
func (s *Signal) IsEntry() bool {
	return s != nil && (s.Action == ActionBuy || s.Action == ActionSell)
}

// Side переводит действие в сторону ордера; не-входы стороны не имеют.
func (a Action) Side() Side {
	switch a {
	case ActionBuy:
		return SideBuy
	case ActionSell:
		return SideSell
	}
	return SideNone
}

// OrderResult — подтверждение от исполнителя.
type OrderResult struct {
	Ticket    int64
	Action    Action
	Volume    float64
	FillPrice float64
}
