package api

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dadaal/internal/dadaalapi"
	"dadaal/internal/ledger"
	"dadaal/internal/monitoring"
	"dadaal/internal/payments"
)

type paymentParams struct {
	Amount        float64 `json:"amount" binding:"required,gt=0"`
	Method        string  `json:"method" binding:"required"`
	Phone         string  `json:"phone"`
	CardHolder    string  `json:"card_holder"`
	CardEmail     string  `json:"card_email"`
	AccountHolder string  `json:"account_holder"`
	WalletAddress string  `json:"wallet_address"`
	ProductTier   string  `json:"product_tier"`
}

type subscribeParams struct {
	Months        int    `json:"months"`
	Method        string `json:"method" binding:"required"`
	Phone         string `json:"phone"`
	CardHolder    string `json:"card_holder"`
	CardEmail     string `json:"card_email"`
	AccountHolder string `json:"account_holder"`
	WalletAddress string `json:"wallet_address"`
}

// CreatePayment runs the instruction through the provider simulation and
// credits the commission on success. A rejected attempt leaves the ledger
// untouched.
func CreatePayment(c *gin.Context) {
	app := c.MustGet("app").(*dadaalapi.App)
	user, ok := currentUser(c, app)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var p paymentParams
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sim := payments.NewSimulator(dadaalapi.CurrentAppConfig, Provider)
	result := sim.Process(ctx, payments.Request{
		Amount:        p.Amount,
		Method:        p.Method,
		Phone:         p.Phone,
		CardHolder:    p.CardHolder,
		CardEmail:     p.CardEmail,
		AccountHolder: p.AccountHolder,
		WalletAddress: p.WalletAddress,
	})
	if !result.Success {
		monitoring.PaymentsProcessed.WithLabelValues(p.Method, "rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"state":   result.State,
			"error":   result.Err,
		})
		return
	}
	monitoring.PaymentsProcessed.WithLabelValues(p.Method, "succeeded").Inc()
	rate := ledger.CommissionRate(dadaalapi.CurrentAppConfig, p.ProductTier)
	commission := dadaalapi.RoundFloat(p.Amount*rate, 2)
	lgr := ledger.New(app.Db, app.Rdb)
	record, err := lgr.Credit(
		ctx,
		user.Id,
		commission,
		dadaalapi.TxEarning,
		fmt.Sprintf("Commission for payment %s", result.TransactionID),
	)
	if err != nil {
		zap.L().Error("commission credit failed",
			zap.Uint("user_id", user.Id),
			zap.String("txid", result.TransactionID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "payment processed but credit failed"})
		return
	}
	if p.Amount >= 1000 {
		cpUrl := os.Getenv("CP_URL")
		msg := fmt.Sprintf(
			`Large payment: \$%s via %s
[User: %d](%s/users/%d)
Txid: %s`,
			dadaalapi.EscapeMarkdownV2(fmt.Sprintf("%.2f", p.Amount)),
			dadaalapi.EscapeMarkdownV2(p.Method),
			user.Id,
			cpUrl,
			user.Id,
			dadaalapi.EscapeMarkdownV2(result.TransactionID),
		)
		_ = dadaalapi.SendTelegramMessage(msg, "finance")
	}
	if fresh, ok := currentUser(c, app); ok {
		user = fresh
	} else {
		// The account vanished between the credit and the reload; answer
		// from the pre-credit snapshot instead of a zero projection.
		user.TotalEarnings = dadaalapi.RoundFloat(user.TotalEarnings+commission, 2)
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"state":          result.State,
		"transaction_id": result.TransactionID,
		"reference_id":   record.RefId,
		"commission":     commission,
		"total_earnings": user.TotalEarnings,
	})
}

// SubscribePremium charges the monthly price through the simulator and
// extends premium_until. An active subscription extends from its current
// expiry, not from now.
func SubscribePremium(c *gin.Context) {
	app := c.MustGet("app").(*dadaalapi.App)
	user, ok := currentUser(c, app)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var p subscribeParams
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	months := p.Months
	if months == 0 {
		months = 1
	}
	if months < 1 || months > 12 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "months must be between 1 and 12"})
		return
	}
	price := dadaalapi.RoundFloat(dadaalapi.CurrentAppConfig.Settings.Prices.PremiumMonthly*float64(months), 2)
	sim := payments.NewSimulator(dadaalapi.CurrentAppConfig, Provider)
	result := sim.Process(ctx, payments.Request{
		Amount:        price,
		Method:        p.Method,
		Phone:         p.Phone,
		CardHolder:    p.CardHolder,
		CardEmail:     p.CardEmail,
		AccountHolder: p.AccountHolder,
		WalletAddress: p.WalletAddress,
	})
	if !result.Success {
		monitoring.PaymentsProcessed.WithLabelValues(p.Method, "rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"state":   result.State,
			"error":   result.Err,
		})
		return
	}
	monitoring.PaymentsProcessed.WithLabelValues(p.Method, "succeeded").Inc()
	lgr := ledger.New(app.Db, app.Rdb)
	record, err := lgr.Record(
		ctx,
		user.Id,
		price,
		dadaalapi.TxPremium,
		dadaalapi.TxCompleted,
		fmt.Sprintf("Premium subscription, payment %s", result.TransactionID),
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "subscription failed"})
		return
	}
	base := time.Now()
	if user.PremiumUntil != nil && user.PremiumUntil.After(base) {
		base = *user.PremiumUntil
	}
	until := base.AddDate(0, 0, 30*months)
	res := app.Db.Model(&dadaalapi.User{}).
		Where("id = ?", user.Id).
		Update("premium_until", until)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "subscription failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"transaction_id": result.TransactionID,
		"reference_id":   record.RefId,
		"premium_until":  until,
	})
}
