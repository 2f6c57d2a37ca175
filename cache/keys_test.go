package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeKey(t *testing.T) {
	t.Run("AllParts", func(t *testing.T) {
		assert.Equal(t, "cs:tenant:t1:dash:stats", EncodeKey("dash:stats", "t1", "cs"))
	})

	t.Run("NoPrefix", func(t *testing.T) {
		assert.Equal(t, "tenant:t1:dash:stats", EncodeKey("dash:stats", "t1", ""))
	})

	t.Run("NoTenant", func(t *testing.T) {
		assert.Equal(t, "cs:dash:stats", EncodeKey("dash:stats", "", "cs"))
	})

	t.Run("DistinctTenantsDistinctKeys", func(t *testing.T) {
		assert.NotEqual(t, EncodeKey("k", "t1", "cs"), EncodeKey("k", "t2", "cs"))
	})
}

func TestEncodeTagKey(t *testing.T) {
	assert.Equal(t, "cs:tenant:t1:tag:dashboard", EncodeTagKey("dashboard", "t1", "cs"))
	assert.NotEqual(t, EncodeTagKey("dashboard", "t1", "cs"), EncodeTagKey("dashboard", "t2", "cs"))
}
