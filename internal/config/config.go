package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultPriceFeedURL = "https://api.binance.com/api/v3/ticker/price"

type Config struct {
	HTTPAddr            string
	DBDSN               string
	JWTIssuer           string
	JWTSecret           string
	JWTTTL              time.Duration
	WebSocketOrigin     string
	AppMode             string
	LogLevel            string
	LogFormat           string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	RateLimitPerMinute  int
	TelegramBotToken    string
	TelegramAdminChatID string
	PriceFeedURL        string
	PriceFeedTimeout    time.Duration
	SweepInterval       time.Duration
	SweepBatch          int
	DepositTTL          time.Duration
	WithdrawalTTL       time.Duration
	AutoMigrate         bool
}

// Load reads the process environment, after merging an optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

func FromEnv(getenv func(string) string) (Config, error) {
	var c Config
	var missing []string
	required := func(key string) string {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	c.HTTPAddr = required("HTTP_ADDR")
	c.DBDSN = required("DB_DSN")
	c.JWTIssuer = required("JWT_ISSUER")
	c.JWTSecret = required("JWT_SECRET")
	if raw := required("JWT_TTL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return c, errors.New("invalid JWT_TTL: " + err.Error())
		}
		c.JWTTTL = d
	}

	c.WebSocketOrigin = withDefault(getenv("WS_ORIGIN"), "*")
	c.AppMode = strings.ToLower(withDefault(getenv("APP_MODE"), "development"))
	if c.AppMode != "development" && c.AppMode != "production" {
		return c, errors.New("invalid APP_MODE: use development or production")
	}
	c.LogLevel = withDefault(getenv("LOG_LEVEL"), "info")
	c.LogFormat = withDefault(getenv("LOG_FORMAT"), "json")

	c.RedisAddr = strings.TrimSpace(getenv("REDIS_ADDR"))
	c.RedisPassword = getenv("REDIS_PASSWORD")
	var err error
	if c.RedisDB, err = intEnv(getenv, "REDIS_DB", 0); err != nil {
		return c, err
	}
	if c.RateLimitPerMinute, err = intEnv(getenv, "RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return c, err
	}

	c.TelegramBotToken = strings.TrimSpace(getenv("TELEGRAM_BOT_TOKEN"))
	c.TelegramAdminChatID = strings.TrimSpace(getenv("TELEGRAM_ADMIN_CHAT_ID"))
	if c.AppMode == "production" && c.TelegramAdminChatID != "" && c.TelegramBotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}

	c.PriceFeedURL = withDefault(getenv("PRICE_FEED_URL"), defaultPriceFeedURL)
	if c.PriceFeedTimeout, err = durationEnv(getenv, "PRICE_FEED_TIMEOUT", 5*time.Second); err != nil {
		return c, err
	}
	if c.SweepInterval, err = durationEnv(getenv, "SWEEP_INTERVAL", 15*time.Second); err != nil {
		return c, err
	}
	if c.SweepBatch, err = intEnv(getenv, "SWEEP_BATCH", 100); err != nil {
		return c, err
	}
	if c.DepositTTL, err = durationEnv(getenv, "DEPOSIT_TTL", 30*time.Minute); err != nil {
		return c, err
	}
	if c.WithdrawalTTL, err = durationEnv(getenv, "WITHDRAWAL_TTL", 168*time.Hour); err != nil {
		return c, err
	}
	c.AutoMigrate = true
	if raw := strings.TrimSpace(getenv("AUTO_MIGRATE")); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return c, errors.New("invalid AUTO_MIGRATE")
		}
		c.AutoMigrate = b
	}

	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}

func withDefault(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}

func intEnv(getenv func(string) string, key string, def int) (int, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

func durationEnv(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}
