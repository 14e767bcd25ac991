package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dadaal/internal/dadaalapi"
	"dadaal/internal/monitoring"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrUserNotFound  = errors.New("user not found")
	ErrDuplicate     = errors.New("duplicate credit")
)

// Service applies monetary deltas to user balances. Every mutation appends a
// transaction row and bumps total_earnings inside a single DB transaction, so
// the two writes commit together or not at all.
type Service struct {
	db  *gorm.DB
	rdb *redis.Client
}

func New(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{db: db, rdb: rdb}
}

// NewReferenceID fabricates a reference id unique across all transactions.
func NewReferenceID() string {
	return "TXN-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
}

// IdempotencyKey derives a stable key from the request identity and an hourly
// window, so a double-submitted crediting request cannot double-credit.
func IdempotencyKey(parts ...string) string {
	window := time.Now().UTC().Format("2006010215")
	sum := sha256.Sum256([]byte(strings.Join(parts, "|") + "|" + window))
	return hex.EncodeToString(sum[:8])
}

// lockRow takes a row lock on dialects that support it. sqlite serializes
// writers with a database-level lock and rejects FOR UPDATE outright.
func lockRow(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// CommissionRate resolves the rate for a product tier, falling back to the
// generic payment rate.
func CommissionRate(cfg *dadaalapi.AppConfig, tier string) float64 {
	c := cfg.Settings.Commission
	switch tier {
	case "basic":
		return c.Basic
	case "silver":
		return c.Silver
	case "gold":
		return c.Gold
	case "wholesale":
		return c.Wholesale
	}
	return c.Generic
}

// Credit applies amount to the user's balance and appends the matching
// transaction row. Rejects non-positive amounts before touching the store.
func (s *Service) Credit(ctx context.Context, userID uint, amount float64, kind string, description string) (dadaalapi.Transaction, error) {
	if amount <= 0 {
		return dadaalapi.Transaction{}, ErrInvalidAmount
	}
	amount = dadaalapi.RoundFloat(amount, 2)
	record := dadaalapi.Transaction{
		RefId:       NewReferenceID(),
		UserId:      userID,
		Kind:        kind,
		Status:      dadaalapi.TxCompleted,
		Amount:      amount,
		Description: description,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user dadaalapi.User
		res := lockRow(tx).
			Where(
				"id = ?",
				userID,
			).First(&user)
		if res.Error != nil && !errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrUserNotFound
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		res = tx.Model(&dadaalapi.User{}).
			Where("id = ?", userID).
			Update("total_earnings", gorm.Expr("total_earnings + ?", amount))
		return res.Error
	})
	if err != nil {
		return dadaalapi.Transaction{}, err
	}
	monitoring.CreditsApplied.Inc()
	monitoring.CreditedAmount.Add(amount)
	s.publish(ctx, userID, record, "credit")
	return record, nil
}

// Record appends a transaction row without touching the balance. Used for
// events that do not count as earnings, like premium payments or withdrawals.
func (s *Service) Record(ctx context.Context, userID uint, amount float64, kind string, status string, description string) (dadaalapi.Transaction, error) {
	if amount <= 0 {
		return dadaalapi.Transaction{}, ErrInvalidAmount
	}
	record := dadaalapi.Transaction{
		RefId:       NewReferenceID(),
		UserId:      userID,
		Kind:        kind,
		Status:      status,
		Amount:      dadaalapi.RoundFloat(amount, 2),
		Description: description,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return dadaalapi.Transaction{}, err
	}
	return record, nil
}

// ReferralBonus creates the Referral row and credits the referrer in the same
// transaction boundary. The idempotency key guards against double-submission,
// the unique index on referred_id guards against a second referral for the
// same referred user.
func (s *Service) ReferralBonus(ctx context.Context, referrerID uint, referredID uint, amount float64, key string) (dadaalapi.Referral, error) {
	if amount <= 0 {
		return dadaalapi.Referral{}, ErrInvalidAmount
	}
	reserved := false
	if key != "" && s.rdb != nil {
		ok, err := s.rdb.SetNX(ctx, "idem:refbonus:"+key, "1", 24*time.Hour).Result()
		if err == nil && !ok {
			return dadaalapi.Referral{}, ErrDuplicate
		}
		reserved = err == nil
	}
	amount = dadaalapi.RoundFloat(amount, 2)
	referral := dadaalapi.Referral{
		ReferrerId: referrerID,
		ReferredId: referredID,
		Commission: amount,
		Status:     dadaalapi.RefCompleted,
	}
	record := dadaalapi.Transaction{
		RefId:       NewReferenceID(),
		UserId:      referrerID,
		Kind:        dadaalapi.TxReferral,
		Status:      dadaalapi.TxCompleted,
		Amount:      amount,
		Description: fmt.Sprintf("Referral bonus for user %d", referredID),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var double dadaalapi.Referral
		res := tx.Where("referred_id = ?", referredID).First(&double)
		if res.RowsAffected == 1 {
			return ErrDuplicate
		}
		var referrer dadaalapi.User
		res = lockRow(tx).
			Where(
				"id = ?",
				referrerID,
			).First(&referrer)
		if res.RowsAffected != 1 {
			return ErrUserNotFound
		}
		if err := tx.Create(&referral).Error; err != nil {
			return err
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		res = tx.Model(&dadaalapi.User{}).
			Where("id = ?", referrerID).
			Updates(map[string]interface{}{
				"total_earnings": gorm.Expr("total_earnings + ?", amount),
				"ref_counter":    gorm.Expr("ref_counter + 1"),
			})
		return res.Error
	})
	if err != nil {
		// Release the reservation so a retry of a failed attempt is not
		// rejected as a duplicate. A genuine duplicate keeps its key.
		if reserved && !errors.Is(err, ErrDuplicate) {
			s.rdb.Del(ctx, "idem:refbonus:"+key)
		}
		return dadaalapi.Referral{}, err
	}
	s.publish(ctx, referrerID, record, "referral")
	return referral, nil
}

// publish pushes a credit notification to the per-user channel consumed by
// the websocket feed. Best effort, a missed notification is not an error.
func (s *Service) publish(ctx context.Context, userID uint, record dadaalapi.Transaction, kind string) {
	if s.rdb == nil {
		return
	}
	notification, err := json.Marshal(dadaalapi.WsResponseData{
		Target: dadaalapi.MessageTargetNotification,
		Data: dadaalapi.NotificationData{
			Style:   dadaalapi.MessageStyleSuccess,
			Type:    kind,
			RefId:   record.RefId,
			Amount:  record.Amount,
			Message: record.Description,
		},
	})
	if err != nil {
		return
	}
	_ = s.rdb.Publish(ctx, fmt.Sprintf("ledger_ch@%d", userID), notification).Err()
}
