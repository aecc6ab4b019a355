package models

type Currency string

const (
	CurrencyGold Currency = "gold" // primary stake currency
	CurrencyGems Currency = "gems" // secondary fee currency
)

// Wallet balances are in whole units (no cents). Either balance is
// never negative after a committed mutation.
type Wallet struct {
	UID       string `json:"uid" redis:"uid"`
	Gold      int64  `json:"gold" redis:"gold"`
	Gems      int64  `json:"gems" redis:"gems"`
	UpdatedAt int64  `json:"updated_at" redis:"updated_at"`
}

func (w *Wallet) Balance(c Currency) int64 {
	if c == CurrencyGems {
		return w.Gems
	}
	return w.Gold
}

func (w *Wallet) SetBalance(c Currency, v int64) {
	if c == CurrencyGems {
		w.Gems = v
		return
	}
	w.Gold = v
}

type TransactionType string

const (
	TransactionTypeStakeDebit TransactionType = "stake_debit"
	TransactionTypeFeeDebit   TransactionType = "fee_debit"
	TransactionTypeWinPayout  TransactionType = "win_payout"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeAdjustment TransactionType = "adjustment"
	TransactionTypeInitial    TransactionType = "initial_credit"
)

// WalletTransaction is an append-only audit record, one per committed
// wallet mutation. Replaying the signed amounts reconstructs the balance.
type WalletTransaction struct {
	ID            string            `json:"id" redis:"id"`
	UID           string            `json:"uid" redis:"uid"`
	Amount        int64             `json:"amount" redis:"amount"` // signed delta
	Currency      Currency          `json:"currency" redis:"currency"`
	Type          TransactionType   `json:"type" redis:"type"`
	BeforeBalance int64             `json:"before_balance" redis:"before_balance"`
	AfterBalance  int64             `json:"after_balance" redis:"after_balance"`
	GameID        string            `json:"game_id,omitempty" redis:"game_id"`
	TableID       string            `json:"table_id,omitempty" redis:"table_id"`
	Meta          map[string]string `json:"meta,omitempty" redis:"meta"`
	CreatedAt     int64             `json:"created_at" redis:"created_at"`
}
