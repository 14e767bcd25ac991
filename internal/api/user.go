package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dadaal/internal/dadaalapi"
)

// GetUser returns the caller's profile projection with referral stats.
func GetUser(c *gin.Context) {
	app := c.MustGet("app").(*dadaalapi.App)
	user, ok := currentUser(c, app)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":           dadaalapi.NewUserData(user),
		"referral_stats": dadaalapi.GetRefStats(app.Db, user),
	})
}
