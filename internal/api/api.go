package api

import (
	"context"
	"regexp"

	"github.com/gin-gonic/gin"

	"dadaal/internal/dadaalapi"
	"dadaal/internal/payments"
)

var ctx = context.Background()

// Provider is the outbound payment gateway client, set once at server init.
var Provider *payments.ProviderClient

var emailCheck = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const refCodeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// currentUser loads the authenticated user set by the Auth middleware.
func currentUser(c *gin.Context, app *dadaalapi.App) (dadaalapi.User, bool) {
	userId := c.GetUint("user_id")
	var user dadaalapi.User
	res := app.Db.Where(
		"id = ?",
		userId,
	).First(&user)
	if res.RowsAffected != 1 {
		return dadaalapi.User{}, false
	}
	return user, true
}
