package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dadaal/internal/dadaalapi"
)

type statusParams struct {
	UserId uint   `json:"user_id" binding:"required"`
	Status string `json:"status" binding:"required"`
}

// ToggleUserStatus suspends or reactivates an account. Suspension blocks
// login and referral tracking but keeps all rows.
func ToggleUserStatus(c *gin.Context) {
	app := c.MustGet("app").(*dadaalapi.App)
	var p statusParams
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch p.Status {
	case dadaalapi.UserActive, dadaalapi.UserSuspended, dadaalapi.UserPending:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be active, suspended or pending"})
		return
	}
	var user dadaalapi.User
	res := app.Db.Where(
		"id = ?",
		p.UserId,
	).First(&user)
	if res.RowsAffected != 1 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if user.Role == dadaalapi.RoleAdmin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot change status of an admin"})
		return
	}
	res = app.Db.Model(&dadaalapi.User{}).
		Where("id = ?", p.UserId).
		Update("status", p.Status)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	zap.L().Info("user status changed",
		zap.Uint("user_id", p.UserId),
		zap.String("status", p.Status),
		zap.Uint("admin_id", c.GetUint("user_id")),
	)
	user.Status = p.Status
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("user %d status set to %s", p.UserId, p.Status),
		"user":    dadaalapi.NewUserData(user),
	})
}

// DeleteUser removes the account and its transactions and referral rows in
// one transaction. Hard delete, there is no undo.
func DeleteUser(c *gin.Context) {
	app := c.MustGet("app").(*dadaalapi.App)
	userId, err := strconv.Atoi(c.Param("id"))
	if err != nil || userId < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	var user dadaalapi.User
	res := app.Db.Where(
		"id = ?",
		userId,
	).First(&user)
	if res.RowsAffected != 1 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if user.Role == dadaalapi.RoleAdmin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete an admin"})
		return
	}
	tx := app.Db.Begin()
	if err := tx.Where("user_id = ?", user.Id).Delete(&dadaalapi.Transaction{}).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if err := tx.Where("referrer_id = ? OR referred_id = ?", user.Id, user.Id).Delete(&dadaalapi.Referral{}).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if err := tx.Unscoped().Delete(&user).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	tx.Commit()
	zap.L().Warn("user deleted",
		zap.Uint("user_id", user.Id),
		zap.String("email", user.Email),
		zap.Uint("admin_id", c.GetUint("user_id")),
	)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AdminListUsers returns a paginated user listing, optionally filtered by
// status or a search string on name and email.
func AdminListUsers(c *gin.Context) {
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
	query := app.Db.Model(&dadaalapi.User{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if search := c.Query("search"); search != "" {
		like := "%" + search + "%"
		query = query.Where("name ILIKE ? OR email ILIKE ?", like, like)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	var users []dadaalapi.User
	res := query.
		Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&users)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	results := make([]dadaalapi.UserData, 0, len(users))
	for _, user := range users {
		results = append(results, dadaalapi.NewUserData(user))
	}
	next := ""
	if int64(page*size) < count {
		next = fmt.Sprintf("/admin/users/?page=%d&size=%d", page+1, size)
	}
	previous := ""
	if page > 1 {
		previous = fmt.Sprintf("/admin/users/?page=%d&size=%d", page-1, size)
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    count,
		"next":     next,
		"previous": previous,
		"results":  results,
	})
}

// AdminStats aggregates platform totals straight from the store, plus the
// mail queue depth from the asynq inspector.
func AdminStats(c *gin.Context) {
	app := c.MustGet("app").(*dadaalapi.App)
	var totalUsers int64
	app.Db.Model(&dadaalapi.User{}).Count(&totalUsers)
	var activeUsers int64
	app.Db.Model(&dadaalapi.User{}).Where("status = ?", dadaalapi.UserActive).Count(&activeUsers)
	var suspendedUsers int64
	app.Db.Model(&dadaalapi.User{}).Where("status = ?", dadaalapi.UserSuspended).Count(&suspendedUsers)
	var premiumUsers int64
	app.Db.Model(&dadaalapi.User{}).Where("premium_until > NOW()").Count(&premiumUsers)
	var totalReferrals int64
	app.Db.Model(&dadaalapi.Referral{}).Count(&totalReferrals)
	var totalTransactions int64
	app.Db.Model(&dadaalapi.Transaction{}).Count(&totalTransactions)
	var totalEarnings float64
	app.Db.Model(&dadaalapi.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("status = ? AND kind IN ?", dadaalapi.TxCompleted, dadaalapi.EarningKinds).
		Scan(&totalEarnings)
	var premiumRevenue float64
	app.Db.Model(&dadaalapi.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("status = ? AND kind = ?", dadaalapi.TxCompleted, dadaalapi.TxPremium).
		Scan(&premiumRevenue)
	mailQueue := gin.H{}
	if app.Aqi != nil {
		if info, err := app.Aqi.GetQueueInfo("mail"); err == nil {
			mailQueue = gin.H{
				"pending":   info.Pending,
				"active":    info.Active,
				"retry":     info.Retry,
				"archived":  info.Archived,
				"processed": info.Processed,
				"failed":    info.Failed,
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"users": gin.H{
			"total":     totalUsers,
			"active":    activeUsers,
			"suspended": suspendedUsers,
			"premium":   premiumUsers,
		},
		"referrals":       totalReferrals,
		"transactions":    totalTransactions,
		"total_earnings":  dadaalapi.RoundFloat(totalEarnings, 2),
		"premium_revenue": dadaalapi.RoundFloat(premiumRevenue, 2),
		"mail_queue":      mailQueue,
	})
}
