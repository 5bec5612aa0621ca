package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func setRequired(t *testing.T) {
	t.Helper()
	for k, v := range map[string]string{
		"APP_ENV": "test", "APP_PORT": "8080", "JWT_SECRET": "s3cret",
		"DB_USER": "root", "DB_HOST": "127.0.0.1", "DB_PORT": "3306", "DB_NAME": "restaurant",
	} {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 25, cfg.DB.MaxOpenConns)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "BDT", cfg.Payment.Currency)
	assert.Equal(t, 15*time.Minute, cfg.Payment.TTL)
	assert.Equal(t, 11, cfg.Restaurant.OpeningHour)
	assert.Equal(t, 22, cfg.Restaurant.LastSeatingHour)
	assert.Equal(t, 2, cfg.Restaurant.DefaultDuration)
	assert.Equal(t, 10, cfg.Restaurant.LoyaltyUnit)
	assert.Equal(t, 5, cfg.RabbitMQ.MaxAttempts)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("PAYMENT_TTL", "10m")
	t.Setenv("AUTO_MIGRATE", "yes")
	t.Setenv("TELEGRAM_STAFF_CHAT_ID", "-1001234")
	t.Setenv("OPENING_HOUR", "not-a-number")

	cfg := Load()
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 10*time.Minute, cfg.Payment.TTL)
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, int64(-1001234), cfg.Notify.TelegramChatID)
	assert.Equal(t, 11, cfg.Restaurant.OpeningHour)
}

func TestRestaurantLocation(t *testing.T) {
	assert.Equal(t, "Asia/Dhaka", RestaurantConfig{TimeZone: "Asia/Dhaka"}.Location().String())
	assert.Equal(t, time.UTC, RestaurantConfig{TimeZone: "Mars/Olympus"}.Location())
}

func TestLoadRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "3s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	t.Setenv("RATE_LIMIT_BURST", "")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 15*time.Second, cfg.TTL)
}

func TestLoadCacheConfigMethods(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	cfg := LoadCacheConfig()
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, cfg.Methods)
	assert.Equal(t, 5*time.Second, cfg.TTL)
}
