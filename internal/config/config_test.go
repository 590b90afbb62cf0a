package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DISPATCH_BATCH_SIZE", "")
	t.Setenv("BUSINESS_TIMEZONE", "")
	t.Setenv("DISPATCH_SCHEDULE", "")

	cfg := Load()

	assert.Equal(t, 50, cfg.DispatchBatchSize)
	assert.Equal(t, "America/New_York", cfg.BusinessTimezone)
	assert.Equal(t, "@hourly", cfg.DispatchSchedule)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DISPATCH_BATCH_SIZE", "10")
	t.Setenv("DISPATCH_SEND_INTERVAL", "250ms")
	t.Setenv("SNS_VERIFY_SIGNATURE", "false")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MAX_ATTEMPTS", "not-a-number")

	cfg := Load()

	assert.Equal(t, 10, cfg.DispatchBatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.DispatchSendInterval)
	assert.False(t, cfg.SNSVerifySignature)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 3, cfg.MaxAttempts)
}
