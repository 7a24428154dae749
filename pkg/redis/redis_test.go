package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	cfg := Config{URL: "redis://:secret@cache:6380/2", ReadTimeout: 4, WriteTimeout: 0, DialTimeout: 7, PoolSize: 20}
	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 4*time.Second, opts.ReadTimeout)
	assert.Zero(t, opts.WriteTimeout)
	assert.Equal(t, 7*time.Second, opts.DialTimeout)
	assert.Equal(t, 20, opts.PoolSize)

	_, err = (&Config{URL: "http://nope"}).Options()
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := Config{URL: "redis://" + mr.Addr() + "/0"}

	client, err := cfg.New(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewPingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := (&Config{URL: "redis://" + addr + "/0", DialTimeout: 1}).New(context.Background())
	assert.Error(t, err)
}
