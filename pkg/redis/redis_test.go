package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()})), mr
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6379, cfg.Port)
	assert.Equal(t, 100, cfg.PoolSize)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestConfig_Addr(t *testing.T) {
	cfg := &Config{Host: "redis.example.com", Port: 6380}
	assert.Equal(t, "redis.example.com:6380", cfg.Addr())
}

func TestNewClient_InvalidConfig(t *testing.T) {
	cfg := &Config{
		Host:          "127.0.0.1",
		Port:          1,
		MaxRetries:    0,
		RetryInterval: 10 * time.Millisecond,
		DialTimeout:   200 * time.Millisecond,
	}

	client, err := NewClient(context.Background(), cfg)
	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestNewClient_Miniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.Host = mr.Host()
	cfg.Port = mustPort(t, mr.Port())

	client, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.HealthCheck(context.Background()))
}

func TestEvalWithFallback(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()
	script := `return redis.call("INCRBY", KEYS[1], ARGV[1])`

	v, err := client.EvalWithFallback(ctx, "incr", script, []string{"counter"}, 2).Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	// a flushed script cache is reloaded transparently
	mr.FlushAll()
	require.NoError(t, client.Client().ScriptFlush(ctx).Err())

	v, err = client.EvalWithFallback(ctx, "incr", script, []string{"counter"}, 3).Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func mustPort(t *testing.T, p string) int {
	t.Helper()
	n, err := strconv.Atoi(p)
	require.NoError(t, err)
	return n
}
