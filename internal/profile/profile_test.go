package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	var p Profile
	p.FromEnv()

	assert.Equal(t, "localhost:6379", p.RedisAddr)
	assert.Equal(t, "cs", p.KeyPrefix)
	assert.Equal(t, 5*time.Minute, p.DefaultTTL)
	assert.Equal(t, 24*time.Hour, p.TagIndexTTL)
	assert.Equal(t, 30*time.Second, p.HeartbeatInterval)
	assert.Equal(t, 5*time.Minute, p.ReaperInterval)
	assert.Equal(t, 10*time.Minute, p.IdleTimeout)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("CACHESTREAM_REDIS_ADDR", "redis:7000")
	t.Setenv("CACHESTREAM_REDIS_DB", "3")
	t.Setenv("CACHESTREAM_DEFAULT_TTL", "90s")
	t.Setenv("CACHESTREAM_IDLE_TIMEOUT", "2m")

	var p Profile
	p.FromEnv()

	assert.Equal(t, "redis:7000", p.RedisAddr)
	assert.Equal(t, 3, p.RedisDB)
	assert.Equal(t, 90*time.Second, p.DefaultTTL)
	assert.Equal(t, 2*time.Minute, p.IdleTimeout)
}

func TestValidate(t *testing.T) {
	t.Run("DefaultsToDevSqlite", func(t *testing.T) {
		p := &Profile{Data: t.TempDir()}
		require.NoError(t, p.Validate())
		assert.Equal(t, "dev", p.Mode)
		assert.Equal(t, "sqlite", p.Driver)
		assert.Contains(t, p.DSN, "cachestream_dev.db")
		assert.NotEmpty(t, p.Secret)
	})

	t.Run("PostgresRequiresDSN", func(t *testing.T) {
		p := &Profile{Driver: "postgres"}
		assert.Error(t, p.Validate())
	})

	t.Run("ProdRequiresSecret", func(t *testing.T) {
		p := &Profile{Mode: "prod", Driver: "postgres", DSN: "postgres://localhost/cs"}
		assert.Error(t, p.Validate())

		p.Secret = "s3cret"
		assert.NoError(t, p.Validate())
	})
}
