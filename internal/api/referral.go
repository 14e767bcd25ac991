package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"dadaal/internal/dadaalapi"
	"dadaal/internal/ledger"
)

type trackParams struct {
	ReferralCode string `json:"referral_code" binding:"required,max=16"`
	Action       string `json:"action" binding:"required,max=50"`
}

// TrackReferral is the public tracking hook. A recorded action credits the
// action bonus to the code owner. The idempotency key folds in the visitor
// IP and an hourly window, so one visitor hammering the endpoint earns the
// owner at most one bonus per action per hour.
func TrackReferral(c *gin.Context) {
	app := c.MustGet("app").(*dadaalapi.App)
	var p trackParams
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var owner dadaalapi.User
	res := app.Db.Where(
		"referral_code = ?",
		p.ReferralCode,
	).First(&owner)
	if res.RowsAffected != 1 {
		c.JSON(http.StatusNotFound, gin.H{"error": "referral code not found"})
		return
	}
	if owner.Status == dadaalapi.UserSuspended {
		c.JSON(http.StatusForbidden, gin.H{"error": "referral code inactive"})
		return
	}
	key := ledger.IdempotencyKey("track", p.ReferralCode, p.Action, c.ClientIP())
	if app.Rdb != nil {
		ok, err := app.Rdb.SetNX(ctx, "idem:track:"+key, "1", 2*time.Hour).Result()
		if err != nil || !ok {
			c.JSON(http.StatusOK, gin.H{
				"success":  true,
				"credited": false,
				"earnings": owner.TotalEarnings,
			})
			return
		}
	}
	bonus := dadaalapi.CurrentAppConfig.Settings.Referral.ActionBonus
	lgr := ledger.New(app.Db, app.Rdb)
	_, err := lgr.Credit(ctx, owner.Id, bonus, dadaalapi.TxBonus, "Referral action: "+p.Action)
	if err != nil && !errors.Is(err, ledger.ErrDuplicate) {
		// Release the reservation so the action can be retried.
		if app.Rdb != nil {
			app.Rdb.Del(ctx, "idem:track:"+key)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tracking failed"})
		return
	}
	res = app.Db.Where(
		"id = ?",
		owner.Id,
	).First(&owner)
	if res.RowsAffected != 1 {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tracking failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"credited": err == nil,
		"earnings": owner.TotalEarnings,
	})
}

// GetReferrals lists the caller's referrals, newest first, with aggregate
// stats alongside the page.
func GetReferrals(c *gin.Context) {
	app := c.MustGet("app").(*dadaalapi.App)
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", "20"))
	if err != nil || size < 1 || size > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "size must be between 1 and 100"})
		return
	}
	user, ok := currentUser(c, app)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var count int64
	if err := app.Db.Model(&dadaalapi.Referral{}).Where("referrer_id = ?", user.Id).Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	var referrals []dadaalapi.Referral
	res := app.Db.
		Where("referrer_id = ?", user.Id).
		Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&referrals)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	next := ""
	if int64(page*size) < count {
		next = fmt.Sprintf("/users/ref/?page=%d&size=%d", page+1, size)
	}
	previous := ""
	if page > 1 {
		previous = fmt.Sprintf("/users/ref/?page=%d&size=%d", page-1, size)
	}
	c.JSON(http.StatusOK, gin.H{
		"referral_code": user.ReferralCode,
		"stats":         dadaalapi.GetRefStats(app.Db, user),
		"count":         count,
		"next":          next,
		"previous":      previous,
		"results":       referrals,
	})
}
