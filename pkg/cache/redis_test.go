package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-approval-api/pkg/config"
)

func TestOptionsFromFields(t *testing.T) {
	opts, err := Options(config.RedisConfig{Host: "cache", Port: 6380, DB: 2, PoolSize: 4, DialTimeout: time.Second})

	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 4, opts.PoolSize)
	assert.Equal(t, time.Second, opts.DialTimeout)
}

func TestOptionsFromURL(t *testing.T) {
	opts, err := Options(config.RedisConfig{URL: "redis://:pw@cache:6379/3", Host: "ignored"})

	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 3, opts.DB)
}

func TestOptionsRejectsBadURL(t *testing.T) {
	_, err := Options(config.RedisConfig{URL: "http://cache"})

	assert.Error(t, err)
}
