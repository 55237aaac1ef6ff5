package config

import (
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func baseEnv() map[string]string {
	return map[string]string{
		"HTTP_ADDR":  ":8080",
		"DB_DSN":     "postgres://localhost/norvia",
		"JWT_ISSUER": "norvia",
		"JWT_SECRET": "secret",
		"JWT_TTL":    "24h",
	}
}

func TestFromEnvDefaults(t *testing.T) {
	c, err := FromEnv(envMap(baseEnv()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.JWTTTL != 24*time.Hour {
		t.Errorf("JWTTTL = %v", c.JWTTTL)
	}
	if c.DepositTTL != 30*time.Minute {
		t.Errorf("DepositTTL = %v, want 30m", c.DepositTTL)
	}
	if c.PriceFeedTimeout != 5*time.Second {
		t.Errorf("PriceFeedTimeout = %v, want 5s", c.PriceFeedTimeout)
	}
	if c.PriceFeedURL != defaultPriceFeedURL {
		t.Errorf("PriceFeedURL = %q", c.PriceFeedURL)
	}
	if c.AppMode != "development" || !c.AutoMigrate || c.WebSocketOrigin != "*" {
		t.Errorf("unexpected defaults: %+v", c)
	}
	if c.RateLimitPerMinute != 120 || c.SweepBatch != 100 {
		t.Errorf("unexpected numeric defaults: %+v", c)
	}
}

func TestFromEnvReportsAllMissing(t *testing.T) {
	_, err := FromEnv(envMap(map[string]string{"HTTP_ADDR": ":8080"}))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"DB_DSN", "JWT_ISSUER", "JWT_SECRET", "JWT_TTL"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"JWT_TTL":        "tomorrow",
		"APP_MODE":       "staging",
		"SWEEP_INTERVAL": "-1s",
		"SWEEP_BATCH":    "many",
		"AUTO_MIGRATE":   "perhaps",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			env := baseEnv()
			env[key] = value
			if _, err := FromEnv(envMap(env)); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestProductionTelegramRequiresToken(t *testing.T) {
	env := baseEnv()
	env["APP_MODE"] = "production"
	env["TELEGRAM_ADMIN_CHAT_ID"] = "-100123"
	_, err := FromEnv(envMap(env))
	if err == nil || !strings.Contains(err.Error(), "TELEGRAM_BOT_TOKEN") {
		t.Fatalf("expected missing TELEGRAM_BOT_TOKEN, got %v", err)
	}
	env["TELEGRAM_BOT_TOKEN"] = "123:abc"
	if _, err := FromEnv(envMap(env)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
