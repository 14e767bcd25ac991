package api

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/dchest/uniuri"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"dadaal/internal/api/jwt"
	"dadaal/internal/dadaalapi"
	"dadaal/internal/ledger"
	"dadaal/internal/mailer"
	"dadaal/internal/payments"
	"dadaal/internal/tokens"
)

type registerParams struct {
	Name         string `json:"name" binding:"required,max=100"`
	Email        string `json:"email" binding:"required,max=250"`
	Phone        string `json:"phone" binding:"required,max=20"`
	Password     string `json:"password" binding:"required,min=8,max=100"`
	ReferralCode string `json:"referral_code" binding:"max=16"`
	Locale       string `json:"locale" binding:"max=5"`
}

type loginParams struct {
	Email    string `json:"email" binding:"required,max=250"`
	Password string `json:"password" binding:"required,max=100"`
}

type verifyParams struct {
	Email string `json:"email" binding:"required,max=250"`
	Code  string `json:"code" binding:"required,len=6"`
}

type forgotParams struct {
	Email string `json:"email" binding:"required,max=250"`
}

type resetParams struct {
	Password string `json:"password" binding:"required,min=8,max=100"`
}

// Register creates an account, links the referrer when a valid code was
// submitted, credits the referral signup bonus, and queues the verification
// email. Duplicate email is a validation error and creates no row.
func Register(c *gin.Context) {
	app := c.MustGet("app").(*dadaalapi.App)
	var p registerParams
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if !emailCheck.MatchString(email) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		return
	}
	if _, _, err := payments.NormalizePhone(p.Phone); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid phone number"})
		return
	}
	var double dadaalapi.User
	res := app.Db.Where(
		"email = ?",
		email,
	).First(&double)
	if res.RowsAffected == 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email already registered"})
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	// Resolve the referrer first; an unknown code is ignored, not an error.
	var referrerId *uint
	if p.ReferralCode != "" {
		var referrer dadaalapi.User
		res = app.Db.Where(
			"referral_code = ?",
			p.ReferralCode,
		).First(&referrer)
		if res.RowsAffected == 1 {
			referrerId = &referrer.Id
		}
	}
	refNew := ""
	for {
		refNew = uniuri.NewLenChars(8, []byte(refCodeChars))
		var codeDouble dadaalapi.User
		res = app.Db.Where(
			"referral_code = ?",
			refNew,
		).First(&codeDouble)
		if res.RowsAffected == 1 {
			continue
		}
		break
	}
	user := dadaalapi.User{
		Name:         p.Name,
		Email:        email,
		Phone:        p.Phone,
		PasswordHash: string(hash),
		Role:         dadaalapi.RoleUser,
		Status:       dadaalapi.UserActive,
		ReferralCode: refNew,
		ReferrerId:   referrerId,
		Locale:       p.Locale,
		Ip:           c.ClientIP(),
	}
	res = app.Db.Create(&user)
	if res.Error != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "registration failed"})
		return
	}
	if referrerId != nil {
		lgr := ledger.New(app.Db, app.Rdb)
		bonus := dadaalapi.CurrentAppConfig.Settings.Referral.SignupBonus
		key := ledger.IdempotencyKey("signup", fmt.Sprint(*referrerId), fmt.Sprint(user.Id))
		if _, err := lgr.ReferralBonus(ctx, *referrerId, user.Id, bonus, key); err != nil {
			zap.L().Error("referral bonus failed", zap.Uint("referrer_id", *referrerId), zap.Uint("referred_id", user.Id), zap.Error(err))
		}
	}
	issuer := tokens.NewIssuer(app.Rdb)
	code, _, err := issuer.IssueVerification(ctx, email)
	if err != nil {
		zap.L().Error("failed to issue verification code", zap.String("email", email), zap.Error(err))
	} else if app.Aqc != nil {
		if task, terr := mailer.NewVerificationTask(email, code); terr == nil {
			if _, qerr := app.Aqc.Enqueue(task); qerr != nil {
				zap.L().Error("failed to enqueue verification email", zap.String("email", email), zap.Error(qerr))
			}
		}
	}
	cpUrl := os.Getenv("CP_URL")
	msg := fmt.Sprintf(
		`New Signup [User: %d](%s/users/%d)
[%s](mailto:%s)
Locale: %s
IP: [%s](%s%s)`,
		user.Id,
		cpUrl,
		user.Id,
		user.Email,
		user.Email,
		dadaalapi.EscapeMarkdownV2(user.Locale),
		dadaalapi.EscapeMarkdownV2(user.Ip),
		"https://iplocation.io/ip/",
		user.Ip,
	)
	if referrerId != nil {
		msg = fmt.Sprintf(
			`%s
Invited by [User: %d](%s/users/%d)`,
			msg,
			*referrerId,
			cpUrl,
			*referrerId,
		)
	}
	_ = dadaalapi.SendTelegramMessage(msg, "signup")
	token, err := jwt.GenerateJWT(user.Id, user.Email, user.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"user":      dadaalapi.NewUserData(user),
		"is_signup": true,
		"jwt":       token,
	})
}

// Login deliberately returns the same error for unknown email and wrong
// password, so accounts cannot be enumerated.
func Login(c *gin.Context) {
	app := c.MustGet("app").(*dadaalapi.App)
	var p loginParams
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.ToLower(strings.TrimSpace(p.Email))
	var user dadaalapi.User
	res := app.Db.Where(
		"email = ?",
		email,
	).First(&user)
	if res.RowsAffected != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(p.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}
	if user.Status == dadaalapi.UserSuspended {
		c.JSON(http.StatusForbidden, gin.H{"error": "account suspended"})
		return
	}
	token, err := jwt.GenerateJWT(user.Id, user.Email, user.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":      dadaalapi.NewUserData(user),
		"is_signup": false,
		"jwt":       token,
	})
}

// VerifyEmail redeems the 6-digit code. The code is single-use.
func VerifyEmail(c *gin.Context) {
	app := c.MustGet("app").(*dadaalapi.App)
	var p verifyParams
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.ToLower(strings.TrimSpace(p.Email))
	issuer := tokens.NewIssuer(app.Rdb)
	if err := issuer.RedeemVerification(ctx, email, p.Code); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired code"})
		return
	}
	res := app.Db.Model(&dadaalapi.User{}).
		Where("email = ?", email).
		Updates(map[string]interface{}{"email_verified": true})
	if res.Error != nil || res.RowsAffected != 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "verification failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "email verified"})
}

// ForgotPassword always answers 200 so the endpoint leaks nothing about
// which emails exist.
func ForgotPassword(c *gin.Context) {
	app := c.MustGet("app").(*dadaalapi.App)
	var p forgotParams
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.ToLower(strings.TrimSpace(p.Email))
	var user dadaalapi.User
	res := app.Db.Where(
		"email = ?",
		email,
	).First(&user)
	if res.RowsAffected == 1 {
		issuer := tokens.NewIssuer(app.Rdb)
		token, _, err := issuer.IssueReset(ctx, email)
		if err != nil {
			zap.L().Error("failed to issue reset token", zap.String("email", email), zap.Error(err))
		} else if app.Aqc != nil {
			if task, terr := mailer.NewResetTask(email, token); terr == nil {
				if _, qerr := app.Aqc.Enqueue(task); qerr != nil {
					zap.L().Error("failed to enqueue reset email", zap.String("email", email), zap.Error(qerr))
				}
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "if the email exists, a reset link has been sent"})
}

// ResetPassword redeems the token and changes the password. The redeem
// consumes the token, so a replayed link fails.
func ResetPassword(c *gin.Context) {
	app := c.MustGet("app").(*dadaalapi.App)
	token := c.Param("token")
	var p resetParams
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	issuer := tokens.NewIssuer(app.Rdb)
	email, err := issuer.RedeemReset(ctx, token)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired token"})
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset failed"})
		return
	}
	res := app.Db.Model(&dadaalapi.User{}).
		Where("email = ?", email).
		Update("password_hash", string(hash))
	if res.Error != nil || res.RowsAffected != 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reset failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "password updated"})
}
