package dadaalapi

import (
	"context"
	"encoding/json"
	"os"
	"strconv"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type App struct {
	Rdb *redis.Client
	Db  *gorm.DB
	Aqc *asynq.Client
	Aqi *asynq.Inspector
}

type AppConfig struct {
	Settings AppSettings `json:"settings"`
}

type AppSettings struct {
	Commission CommissionSettings `json:"commission"`
	Referral   ReferralSettings   `json:"referral"`
	Prices     SettingCost        `json:"prices"`
	Limits     SettingLimit       `json:"limits"`
}

// CommissionSettings is the decision table for commission rates.
// Generic covers plain payments, the tiers cover affiliate/wholesale products.
type CommissionSettings struct {
	Generic   float64 `json:"generic"`
	Basic     float64 `json:"basic"`
	Silver    float64 `json:"silver"`
	Gold      float64 `json:"gold"`
	Wholesale float64 `json:"wholesale"`
}

type ReferralSettings struct {
	SignupBonus float64 `json:"signup_bonus"`
	ActionBonus float64 `json:"action_bonus"`
}

type SettingCost struct {
	PremiumMonthly float64 `json:"premium_monthly"`
}

type SettingLimit struct {
	MobileMoneyMin float64 `json:"mobile_money_min"`
	MobileMoneyMax float64 `json:"mobile_money_max"`
}

var (
	DefaultAppConfig *AppConfig
	CurrentAppConfig *AppConfig
)

func Init() *App {
	loadEnv()
	redisClient := setupRedis()
	db := setupDb()
	asynqClient := setupAsynqClient()
	asynqInspector := setupAsynqInspector()

	DefaultAppConfig = &AppConfig{
		Settings: AppSettings{
			Commission: CommissionSettings{
				Generic:   0.05,
				Basic:     0.08,
				Silver:    0.12,
				Gold:      0.15,
				Wholesale: 0.20,
			},
			Referral: ReferralSettings{
				SignupBonus: 5,
				ActionBonus: 0.25,
			},
			Prices: SettingCost{
				PremiumMonthly: 9.99,
			},
			Limits: SettingLimit{
				MobileMoneyMin: 1,
				MobileMoneyMax: 10000,
			},
		},
	}
	CurrentAppConfig = DefaultAppConfig

	app := &App{
		Rdb: redisClient,
		Db:  db,
		Aqc: asynqClient,
		Aqi: asynqInspector,
	}
	isSet := false
	appConfigRaw, _ := app.Rdb.Get(context.Background(), "app_config").Result()
	if len(appConfigRaw) > 0 {
		err := json.Unmarshal([]byte(appConfigRaw), &CurrentAppConfig)
		if err == nil {
			isSet = true
		}
	}
	if !isSet {
		currentConfig, _ := json.Marshal(DefaultAppConfig)
		app.Rdb.Set(context.Background(), "app_config", currentConfig, 0)
	}
	return app
}

func setupRedis() *redis.Client {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})
	return redisClient
}

func setupDb() *gorm.DB {
	dsn := os.Getenv("DB_DSN")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		panic("failed to connect to the db")
	}
	err = db.AutoMigrate(
		&User{},
		&Transaction{},
		&Referral{},
	)
	if err != nil {
		panic("failed to run migrations")
	}

	return db
}

func setupAsynqClient() *asynq.Client {
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	return asynqClient
}

func setupAsynqInspector() *asynq.Inspector {
	asynqInspector := asynq.NewInspector(asynq.RedisClientOpt{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	return asynqInspector
}

// SetupAsynqServer builds the consumer side for the mail queue.
func SetupAsynqServer() *asynq.Server {
	concurency, err := strconv.Atoi(os.Getenv("MAILER_CONCURRENCY"))
	if err != nil {
		concurency = 10
	}
	asynqServer := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		asynq.Config{
			Concurrency: concurency,
			Queues: map[string]int{
				"mail": 1,
			},
		},
	)
	return asynqServer
}

func loadEnv() {
	env := os.Getenv("APP_ENV")
	if "" == env {
		env = "development"
	}

	godotenv.Load(".env." + env + ".local")

	if "test" != env {
		godotenv.Load(".env.local")
	}
	godotenv.Load(".env." + env)
	godotenv.Load()
}
