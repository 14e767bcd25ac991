package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dadaal/internal/dadaalapi"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// A second pooled connection would see a fresh empty memory database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&dadaalapi.User{}, &dadaalapi.Transaction{}, &dadaalapi.Referral{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string, code string, earnings float64) dadaalapi.User {
	t.Helper()
	user := dadaalapi.User{
		Name:          "Test User",
		Email:         email,
		PasswordHash:  "x",
		Role:          dadaalapi.RoleUser,
		Status:        dadaalapi.UserActive,
		ReferralCode:  code,
		TotalEarnings: earnings,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func TestCreditAppliesBalanceAndAppendsRow(t *testing.T) {
	db := setupTestDB(t)
	svc := New(db, nil)
	user := createTestUser(t, db, "asha@example.com", "REF1", 10)

	record, err := svc.Credit(context.Background(), user.Id, 5.5, dadaalapi.TxEarning, "test credit")
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if record.RefId == "" || record.Amount != 5.5 || record.Status != dadaalapi.TxCompleted {
		t.Errorf("record = %+v", record)
	}

	var fresh dadaalapi.User
	if err := db.First(&fresh, user.Id).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if fresh.TotalEarnings != 15.5 {
		t.Errorf("total_earnings = %v, want 15.5", fresh.TotalEarnings)
	}

	var count int64
	db.Model(&dadaalapi.Transaction{}).Where("user_id = ?", user.Id).Count(&count)
	if count != 1 {
		t.Errorf("transaction rows = %d, want 1", count)
	}
}

func TestCreditRejectsNonPositiveAmount(t *testing.T) {
	db := setupTestDB(t)
	svc := New(db, nil)
	user := createTestUser(t, db, "asha@example.com", "REF1", 10)

	for _, amount := range []float64{0, -5} {
		if _, err := svc.Credit(context.Background(), user.Id, amount, dadaalapi.TxEarning, "bad"); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Credit(%v) err = %v, want ErrInvalidAmount", amount, err)
		}
	}

	var count int64
	db.Model(&dadaalapi.Transaction{}).Count(&count)
	if count != 0 {
		t.Errorf("transaction rows = %d, want 0", count)
	}
	var fresh dadaalapi.User
	db.First(&fresh, user.Id)
	if fresh.TotalEarnings != 10 {
		t.Errorf("total_earnings = %v, want 10", fresh.TotalEarnings)
	}
}

func TestCreditUnknownUserRollsBack(t *testing.T) {
	db := setupTestDB(t)
	svc := New(db, nil)

	if _, err := svc.Credit(context.Background(), 999, 5, dadaalapi.TxEarning, "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
	var count int64
	db.Model(&dadaalapi.Transaction{}).Count(&count)
	if count != 0 {
		t.Errorf("transaction rows = %d, want 0", count)
	}
}

func TestReferralBonusOncePerReferred(t *testing.T) {
	db := setupTestDB(t)
	svc := New(db, nil)
	referrer := createTestUser(t, db, "referrer@example.com", "REF1", 0)
	referred := createTestUser(t, db, "referred@example.com", "REF2", 0)

	if _, err := svc.ReferralBonus(context.Background(), referrer.Id, referred.Id, 5, ""); err != nil {
		t.Fatalf("ReferralBonus: %v", err)
	}

	var fresh dadaalapi.User
	db.First(&fresh, referrer.Id)
	if fresh.TotalEarnings != 5 {
		t.Errorf("referrer total_earnings = %v, want 5", fresh.TotalEarnings)
	}
	if fresh.RefCounter != 1 {
		t.Errorf("ref_counter = %d, want 1", fresh.RefCounter)
	}

	if _, err := svc.ReferralBonus(context.Background(), referrer.Id, referred.Id, 5, ""); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second bonus err = %v, want ErrDuplicate", err)
	}

	var refRows int64
	db.Model(&dadaalapi.Referral{}).Where("referred_id = ?", referred.Id).Count(&refRows)
	if refRows != 1 {
		t.Errorf("referral rows = %d, want 1", refRows)
	}
	var txRows int64
	db.Model(&dadaalapi.Transaction{}).Where("user_id = ?", referrer.Id).Count(&txRows)
	if txRows != 1 {
		t.Errorf("transaction rows = %d, want 1", txRows)
	}
	db.First(&fresh, referrer.Id)
	if fresh.TotalEarnings != 5 {
		t.Errorf("referrer total_earnings after duplicate = %v, want 5", fresh.TotalEarnings)
	}
}

func TestReferralBonusReleasesKeyOnFailure(t *testing.T) {
	db := setupTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc := New(db, rdb)
	ctx := context.Background()

	// First attempt fails: the referrer does not exist yet.
	if _, err := svc.ReferralBonus(ctx, 999, 998, 5, "key-1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
	if mr.Exists("idem:refbonus:key-1") {
		t.Fatal("idempotency key should be released after a failed attempt")
	}

	// A retry with the same key must go through.
	referrer := createTestUser(t, db, "referrer@example.com", "REF1", 0)
	referred := createTestUser(t, db, "referred@example.com", "REF2", 0)
	if _, err := svc.ReferralBonus(ctx, referrer.Id, referred.Id, 5, "key-1"); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}

	// A genuine duplicate keeps its key and is rejected.
	if _, err := svc.ReferralBonus(ctx, referrer.Id, referred.Id, 5, "key-1"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate err = %v, want ErrDuplicate", err)
	}
	if !mr.Exists("idem:refbonus:key-1") {
		t.Error("key of a committed bonus should stay set")
	}
}
