package server

import (
	"net/http"
	"os"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dadaal/internal/api"
	"dadaal/internal/api/middleware"
	"dadaal/internal/dadaalapi"
	"dadaal/internal/ledger"
	"dadaal/internal/mailer"
	"dadaal/internal/payments"
	"dadaal/internal/worker"
)

var App *dadaalapi.App

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.String(429, "Too many requests. Try again in "+time.Until(info.ResetTime).String())
}

func ApiInit() { // Run Api Server
	App = dadaalapi.Init()
	logger := setupLogger()
	defer logger.Sync()
	api.Provider = payments.NewProviderClient()

	go mailerInit()
	go reconcilerInit(App)

	router := gin.Default()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	// Each ip can make at most 100 requests per second.
	store := ratelimit.RedisStore(&ratelimit.RedisOptions{
		RedisClient: redis.NewClient(&redis.Options{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       1,
		}),
		Rate:  time.Second,
		Limit: 100,
	})
	mw := ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://0.0.0.0:3000",
			"http://localhost:3000",
		},
		AllowHeaders:  []string{"Origin", "Access-Control-Allow-Origin", "Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With"},
		ExposeHeaders: []string{"Content-Length"},
		AllowMethods:  []string{"GET, POST, OPTIONS, PUT, DELETE"},
		MaxAge:        24 * time.Hour,
	}))
	router.Use(func(c *gin.Context) {
		c.Set("app", App)
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", mw, wsHandler)
	router.GET("/ws/", mw, wsHandler)
	auth := router.Group("/auth/")
	{
		auth.POST("/register", mw, api.Register)
		auth.POST("/register/", mw, api.Register)
		auth.POST("/login", mw, api.Login)
		auth.POST("/login/", mw, api.Login)
		auth.POST("/verify", mw, api.VerifyEmail)
		auth.POST("/verify/", mw, api.VerifyEmail)
		auth.POST("/forgot", mw, api.ForgotPassword)
		auth.POST("/forgot/", mw, api.ForgotPassword)
		auth.POST("/reset/:token", mw, api.ResetPassword)
		auth.POST("/reset/:token/", mw, api.ResetPassword)
	}
	router.POST("/referral/track", mw, api.TrackReferral)
	router.POST("/referral/track/", mw, api.TrackReferral)
	users := router.Group("/users/").Use(middleware.Auth())
	{
		users.GET("/me", mw, api.GetUser)
		users.GET("/me/", mw, api.GetUser)
		users.GET("/tx", mw, api.GetTransactionsList)
		users.GET("/tx/", mw, api.GetTransactionsList)
		users.GET("/ref", mw, api.GetReferrals)
		users.GET("/ref/", mw, api.GetReferrals)
	}
	pay := router.Group("/").Use(middleware.Auth())
	{
		pay.POST("/payment", mw, api.CreatePayment)
		pay.POST("/payment/", mw, api.CreatePayment)
		pay.POST("/premium/subscribe", mw, api.SubscribePremium)
		pay.POST("/premium/subscribe/", mw, api.SubscribePremium)
	}
	admin := router.Group("/admin/").Use(middleware.Auth(), middleware.Admin())
	{
		admin.GET("/users", mw, api.AdminListUsers)
		admin.GET("/users/", mw, api.AdminListUsers)
		admin.POST("/users/status", mw, api.ToggleUserStatus)
		admin.POST("/users/status/", mw, api.ToggleUserStatus)
		admin.DELETE("/users/:id", mw, api.DeleteUser)
		admin.DELETE("/users/:id/", mw, api.DeleteUser)
		admin.GET("/stats", mw, api.AdminStats)
		admin.GET("/stats/", mw, api.AdminStats)
	}
	zap.L().Info("Dadaal backend is up and listening to :8000")
	if err := router.Run(":8000"); err != nil {
		zap.L().Fatal("Failed to run Dadaal backend on :8000", zap.Error(err))
	}
}

// mailerInit runs the asynq consumer for the mail queue.
func mailerInit() {
	srv := dadaalapi.SetupAsynqServer()
	mux := mailer.NewMux(mailer.New())
	if err := srv.Run(mux); err != nil {
		zap.L().Fatal("mailer server failed", zap.Error(err))
	}
}

// reconcilerInit sweeps all cached balances against the transaction log on a
// fixed interval, on a bounded worker pool.
func reconcilerInit(app *dadaalapi.App) {
	pool := worker.NewPool(4)
	svc := ledger.New(app.Db, app.Rdb)
	dadaalapi.DoEvery(10*time.Minute, func(t time.Time) {
		checked, err := svc.Reconcile(ctx, pool)
		if err != nil {
			zap.L().Error("reconcile sweep failed", zap.Error(err))
			return
		}
		zap.L().Info("reconcile sweep finished", zap.Int("users", checked))
	})
}
