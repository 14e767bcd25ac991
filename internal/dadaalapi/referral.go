package dadaalapi

import (
	"time"

	"gorm.io/gorm"
)

const (
	RefPending   = "pending"
	RefCompleted = "completed"
	RefInvalid   = "invalid"
)

// Referral links referrer -> referred, at most one row per referred user
type Referral struct {
	CreatedAt  time.Time `json:"created_at"`
	Id         uint      `json:"id" gorm:"primaryKey;autoIncrement:true"`
	ReferrerId uint      `json:"referrer_id" gorm:"index"`
	ReferredId uint      `json:"referred_id" gorm:"uniqueIndex"`
	Commission float64   `json:"commission"`
	Status     string    `json:"status"` // pending, completed, invalid
}

type RefData struct {
	TotalCounter    uint    `json:"total_counter"`
	Completed       uint    `json:"completed"`
	Pending         uint    `json:"pending"`
	CommissionTotal float64 `json:"commission_total"`
}

func GetRefStats(db *gorm.DB, user User) (refStats RefData) {
	var referrals []Referral
	res := db.Where("referrer_id = ?", user.Id).Find(&referrals)
	if res.RowsAffected > 0 {
		for _, referral := range referrals {
			refStats.TotalCounter++
			refStats.CommissionTotal += referral.Commission
			switch referral.Status {
			case RefCompleted:
				refStats.Completed++
			case RefPending:
				refStats.Pending++
			}
		}
	}
	return refStats
}
