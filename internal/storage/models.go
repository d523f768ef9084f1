package storage

import "time"

// Session is the per-wallet record of generated content and unlock state.
type Session struct {
	Wallet         string // checksum address
	FullStory      string // empty until a story is generated
	Unlocked       bool
	UnlockedTxHash string // set with Unlocked, the confirming transaction
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PendingPayment is an outstanding unsigned-transaction request awaiting
// client signature. At most one per wallet.
type PendingPayment struct {
	Wallet      string
	AmountUnits string // tip amount in token base units, decimal string
	TxJSON      string // the built transaction request, JSON-encoded
	CreatedAt   time.Time
}
