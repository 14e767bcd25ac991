package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dadaal/internal/api/jwt"
	"dadaal/internal/dadaalapi"
)

var ctx = context.Background()

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsHandler streams balance updates to the client. On connect it pushes the
// current user projection, then forwards ledger notifications published on
// the per-user redis channel. A "sync" text message re-sends the projection.
func wsHandler(c *gin.Context) {
	token := c.DefaultQuery("token", "")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	userId, _, _, err := jwt.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	app := c.MustGet("app").(*dadaalapi.App)
	var user dadaalapi.User
	res := app.Db.Where(
		"id = ?",
		userId,
	).First(&user)
	if res.RowsAffected != 1 || user.Status == dadaalapi.UserSuspended {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.L().Error("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	lastPong := time.Now()
	conn.SetPongHandler(func(string) error {
		lastPong = time.Now()
		return nil
	})
	pingPeriod := 3 * time.Second
	timeout := 9 * time.Second
	var mu sync.Mutex // serializes writes to the connection

	if jsonData := dadaalapi.SyncUserStats(app.Db, user); jsonData != nil {
		if err := conn.WriteMessage(websocket.TextMessage, jsonData); err != nil {
			return
		}
	}

	// Forward ledger notifications for this user.
	go func() {
		pubsub := app.Rdb.Subscribe(ctx, fmt.Sprintf("ledger_ch@%d", user.Id))
		defer pubsub.Close()
		for msg := range pubsub.Channel() {
			var decoded dadaalapi.WsResponseData
			if err := json.Unmarshal([]byte(msg.Payload), &decoded); err != nil {
				continue
			}
			mu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload))
			mu.Unlock()
			if err != nil {
				_ = conn.Close()
				return
			}
		}
	}()

	// Listen for client commands.
	go func() {
		defer conn.Close()
		for {
			messageType, p, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			if string(p) == "sync" {
				res := app.Db.Where(
					"id = ?",
					user.Id,
				).First(&user)
				if res.RowsAffected != 1 {
					return
				}
				jsonData := dadaalapi.SyncUserStats(app.Db, user)
				if jsonData == nil {
					continue
				}
				mu.Lock()
				err := conn.WriteMessage(websocket.TextMessage, jsonData)
				mu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		if time.Since(lastPong) > timeout {
			zap.L().Debug("websocket client stopped answering pings", zap.Uint("user_id", user.Id))
			return
		}
		mu.Lock()
		err := conn.WriteMessage(websocket.PingMessage, nil)
		mu.Unlock()
		if err != nil {
			return
		}
		time.Sleep(pingPeriod)
	}
}
