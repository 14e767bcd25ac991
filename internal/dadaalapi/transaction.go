package dadaalapi

import "time"

const (
	TxEarning    = "earning"
	TxWithdrawal = "withdrawal"
	TxReferral   = "referral"
	TxPremium    = "premium"
	TxBonus      = "bonus"
)

const (
	TxPending   = "pending"
	TxCompleted = "completed"
	TxFailed    = "failed"
	TxCancelled = "cancelled"
)

// Transaction is an append-only record of a single balance-affecting event
type Transaction struct {
	CreatedAt   time.Time `json:"created_at"`
	Id          uint      `json:"id" gorm:"primaryKey;autoIncrement:true"`
	RefId       string    `json:"ref_id" gorm:"uniqueIndex;not null"` // external reference id
	UserId      uint      `json:"user_id" gorm:"index"`               // ID of user whose balance is affected
	Kind        string    `json:"kind"`                               // earning, withdrawal, referral, premium, bonus
	Status      string    `json:"status"`                             // pending, completed, failed, cancelled
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
}

// EarningKinds are the transaction kinds that contribute to total_earnings.
var EarningKinds = []string{TxEarning, TxReferral, TxBonus}
