// README: Money value object (integer cents) shared by order totals and wallets.
package types

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (m Money) Add(n Money) Money {
	return Money{Amount: m.Amount + n.Amount, Currency: m.Currency}
}

func (m Money) LessThan(n Money) bool {
	return m.Amount < n.Amount
}
