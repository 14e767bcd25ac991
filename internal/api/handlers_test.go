package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dadaal/internal/dadaalapi"
)

func newTestApp(t *testing.T) *dadaalapi.App {
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
	dadaalapi.CurrentAppConfig = &dadaalapi.AppConfig{
		Settings: dadaalapi.AppSettings{
			Commission: dadaalapi.CommissionSettings{
				Generic:   0.05,
				Basic:     0.08,
				Silver:    0.12,
				Gold:      0.15,
				Wholesale: 0.20,
			},
			Referral: dadaalapi.ReferralSettings{
				SignupBonus: 5,
				ActionBonus: 0.25,
			},
			Prices: dadaalapi.SettingCost{PremiumMonthly: 9.99},
			Limits: dadaalapi.SettingLimit{MobileMoneyMin: 1, MobileMoneyMax: 10000},
		},
	}
	return &dadaalapi.App{Db: db}
}

func createTestUser(t *testing.T, db *gorm.DB, email string, code string) dadaalapi.User {
	t.Helper()
	user := dadaalapi.User{
		Name:         "Test User",
		Email:        email,
		PasswordHash: "x",
		Role:         dadaalapi.RoleUser,
		Status:       dadaalapi.UserActive,
		ReferralCode: code,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func performJSON(t *testing.T, app *dadaalapi.App, handler gin.HandlerFunc, body interface{}, keys map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	c.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set("app", app)
	for k, v := range keys {
		c.Set(k, v)
	}
	handler(c)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func TestTrackReferralReturnsEarnings(t *testing.T) {
	app := newTestApp(t)
	createTestUser(t, app.Db, "owner@example.com", "TRACK1")

	w := performJSON(t, app, TrackReferral, gin.H{
		"referral_code": "TRACK1",
		"action":        "visit",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	if body["credited"] != true {
		t.Errorf("credited = %v", body["credited"])
	}
	if body["earnings"] != 0.25 {
		t.Errorf("earnings = %v, want 0.25", body["earnings"])
	}
}

func TestTrackReferralUnknownCode(t *testing.T) {
	app := newTestApp(t)
	w := performJSON(t, app, TrackReferral, gin.H{
		"referral_code": "NOSUCH",
		"action":        "visit",
	}, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestCreatePaymentCreditsCommission(t *testing.T) {
	app := newTestApp(t)
	user := createTestUser(t, app.Db, "payer@example.com", "PAY1")

	w := performJSON(t, app, CreatePayment, gin.H{
		"amount": 100.0,
		"method": "mobile_money",
		"phone":  "+252611234567",
	}, map[string]interface{}{"user_id": user.Id})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	if body["commission"] != 5.0 {
		t.Errorf("commission = %v, want 5", body["commission"])
	}
	if body["total_earnings"] != 5.0 {
		t.Errorf("total_earnings = %v, want 5", body["total_earnings"])
	}

	var record dadaalapi.Transaction
	if err := app.Db.Where("user_id = ?", user.Id).First(&record).Error; err != nil {
		t.Fatalf("load transaction: %v", err)
	}
	if record.Kind != dadaalapi.TxEarning || record.Amount != 5 {
		t.Errorf("transaction = %+v", record)
	}
}

func TestCreatePaymentRejectedLeavesLedgerUntouched(t *testing.T) {
	app := newTestApp(t)
	user := createTestUser(t, app.Db, "payer@example.com", "PAY1")

	w := performJSON(t, app, CreatePayment, gin.H{
		"amount": 0.50,
		"method": "mobile_money",
		"phone":  "+252611234567",
	}, map[string]interface{}{"user_id": user.Id})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var count int64
	app.Db.Model(&dadaalapi.Transaction{}).Count(&count)
	if count != 0 {
		t.Errorf("transaction rows = %d, want 0", count)
	}
}

func TestToggleUserStatusResponse(t *testing.T) {
	app := newTestApp(t)
	user := createTestUser(t, app.Db, "member@example.com", "MEM1")

	w := performJSON(t, app, ToggleUserStatus, gin.H{
		"user_id": user.Id,
		"status":  dadaalapi.UserSuspended,
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	if msg, ok := body["message"].(string); !ok || msg == "" {
		t.Errorf("message = %v, want non-empty string", body["message"])
	}

	var fresh dadaalapi.User
	app.Db.First(&fresh, user.Id)
	if fresh.Status != dadaalapi.UserSuspended {
		t.Errorf("status = %q, want suspended", fresh.Status)
	}
}

func TestRegisterCreditsReferrerSignupBonus(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("TELEGRAM_TOKEN", "")
	app := newTestApp(t)
	mr := miniredis.RunT(t)
	app.Rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	referrer := createTestUser(t, app.Db, "referrer@example.com", "INVITE1")

	w := performJSON(t, app, Register, gin.H{
		"name":          "New User",
		"email":         "new@example.com",
		"phone":         "+252611234567",
		"password":      "password123",
		"referral_code": "INVITE1",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["is_signup"] != true {
		t.Errorf("is_signup = %v", body["is_signup"])
	}
	if token, ok := body["jwt"].(string); !ok || token == "" {
		t.Errorf("jwt = %v, want non-empty string", body["jwt"])
	}

	var fresh dadaalapi.User
	app.Db.First(&fresh, referrer.Id)
	if fresh.TotalEarnings != 5 {
		t.Errorf("referrer total_earnings = %v, want 5", fresh.TotalEarnings)
	}
	if fresh.RefCounter != 1 {
		t.Errorf("ref_counter = %d, want 1", fresh.RefCounter)
	}
	var refRows int64
	app.Db.Model(&dadaalapi.Referral{}).Where("referrer_id = ?", referrer.Id).Count(&refRows)
	if refRows != 1 {
		t.Errorf("referral rows = %d, want 1", refRows)
	}
	var created dadaalapi.User
	if err := app.Db.Where("email = ?", "new@example.com").First(&created).Error; err != nil {
		t.Fatalf("load created user: %v", err)
	}
	if created.ReferrerId == nil || *created.ReferrerId != referrer.Id {
		t.Errorf("referrer_id = %v, want %d", created.ReferrerId, referrer.Id)
	}
}

func TestRegisterDuplicateEmailCreatesNoRow(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("TELEGRAM_TOKEN", "")
	app := newTestApp(t)
	mr := miniredis.RunT(t)
	app.Rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})

	payload := gin.H{
		"name":     "New User",
		"email":    "new@example.com",
		"phone":    "+252611234567",
		"password": "password123",
	}
	if w := performJSON(t, app, Register, payload, nil); w.Code != http.StatusCreated {
		t.Fatalf("first register status = %d, body %s", w.Code, w.Body.String())
	}
	if w := performJSON(t, app, Register, payload, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate register status = %d, want 400", w.Code)
	}
	var count int64
	app.Db.Model(&dadaalapi.User{}).Where("email = ?", "new@example.com").Count(&count)
	if count != 1 {
		t.Errorf("user rows = %d, want 1", count)
	}
}
