package dadaalapi

import (
	"time"

	"gorm.io/gorm"
)

const (
	UserActive    = "active"
	UserSuspended = "suspended"
	UserPending   = "pending"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	Id            uint           `json:"id" gorm:"primarykey"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"deleted_at" gorm:"index"`
	Name          string         `gorm:"not null" json:"name"`
	Email         string         `gorm:"uniqueIndex;not null" json:"email"`
	Phone         string         `json:"phone"`
	PasswordHash  string         `gorm:"not null" json:"-"`
	Role          string         `gorm:"not null;default:user" json:"role"`
	Status        string         `gorm:"not null;default:active" json:"status"`
	EmailVerified bool           `json:"email_verified"`
	TotalEarnings float64        `json:"total_earnings"` // materialized cache, transaction log is authoritative
	ReferralCode  string         `gorm:"uniqueIndex" json:"referral_code"`
	ReferrerId    *uint          `gorm:"index" json:"referrer_id"`
	RefCounter    uint           `json:"ref_counter"`
	PremiumUntil  *time.Time     `json:"premium_until"`
	Locale        string         `json:"locale"`
	Ip            string         `json:"ip"`
}

func (u User) IsPremium() bool {
	return u.PremiumUntil != nil && u.PremiumUntil.After(time.Now())
}

type UserData struct {
	ID            uint    `json:"id"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Phone         string  `json:"phone"`
	Status        string  `json:"status"`
	TotalEarnings float64 `json:"total_earnings"`
	ReferralCode  string  `json:"referral_code"`
	RefCounter    uint    `json:"ref_counter"`
	Premium       bool    `json:"premium"`
	EmailVerified bool    `json:"email_verified"`
}

func NewUserData(user User) UserData {
	return UserData{
		ID:            user.Id,
		Name:          user.Name,
		Email:         user.Email,
		Phone:         user.Phone,
		Status:        user.Status,
		TotalEarnings: user.TotalEarnings,
		ReferralCode:  user.ReferralCode,
		RefCounter:    user.RefCounter,
		Premium:       user.IsPremium(),
		EmailVerified: user.EmailVerified,
	}
}
