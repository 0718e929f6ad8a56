package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("MAX_FRAME_SIZE_KB", "64")
	t.Setenv("AUTO_FINALIZE_GRACE", "-1s")
	t.Setenv("EXAM_CACHE_TTL", "not-a-duration")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, int64(64*1024), cfg.MaxFrameBytes)
	assert.Equal(t, -time.Second, cfg.AutoFinalizeGrace)
	assert.Equal(t, 6*time.Hour, cfg.ExamCacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "exam:abc:definition:v2", CacheKey.ExamDefinitionKey("abc"))
	assert.Equal(t, "exam:abc:monitor", CacheKey.ExamMonitorChannel("abc"))
	assert.Equal(t, "ratelimit:frames:7", CacheKey.FrameRateKey(7))
}
