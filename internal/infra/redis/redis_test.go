package redis

import (
	"testing"

	"github.com/sifan077/linkpulse/config"
	"github.com/stretchr/testify/assert"
)

func TestOptions(t *testing.T) {
	opts := Options(config.RedisConfig{})
	assert.Equal(t, "localhost:6379", opts.Addr)

	opts = Options(config.RedisConfig{Host: "cache", Port: 6380, Password: "pw", DB: 2})
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
}
