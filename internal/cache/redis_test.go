package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fredphp/yunwei/internal/config"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "yunwei:version:costs", Key("version", "costs"))
	assert.Equal(t, "yunwei:lock:waste", Key("lock", "waste"))
}

func TestNewUnreachable(t *testing.T) {
	_, err := New(config.RedisConfig{Host: "127.0.0.1", Port: 1, CacheTTL: time.Minute, LockTTL: time.Minute})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to redis")
}
