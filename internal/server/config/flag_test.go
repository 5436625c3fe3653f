package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	base := func() *Config {
		c := &Config{}
		c.LoadDefaults()
		return c
	}

	tests := []struct {
		expected    func() *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{"cmd",
				"-a", "127.0.0.1:9090", "-g", ":6000", "-d", "db", "-s", "secret",
				"-t", "30", "-l", "5", "-b", "bucket", "-e", "http://endpoint", "-r", "eu-west-1",
				"-f", "./frontend", "-v", "debug",
			},
			expected: func() *Config {
				c := base()
				c.HTTPAddr = "127.0.0.1:9090"
				c.GRPCAddr = ":6000"
				c.DatabaseDSN = "db"
				c.JWTSecret = "secret"
				c.SessionTTL = 30 * time.Minute
				c.LinkTokenTTL = 5 * time.Minute
				c.S3Bucket = "bucket"
				c.S3Endpoint = "http://endpoint"
				c.S3Region = "eu-west-1"
				c.FrontendDir = "./frontend"
				c.LogLevel = "debug"
				return c
			},
		},
		{
			name:     "config flag is ignored here",
			args:     []string{"cmd", "-c", "cfg.json", "-s", "k"},
			expected: func() *Config { c := base(); c.JWTSecret = "k"; return c },
		},
		{
			name:        "bad int panics",
			args:        []string{"cmd", "-t", "abc"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			config := base()

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config) })
				return
			}

			require.NotPanics(t, func() { parseFlags(config) })
			assert.Empty(t, cmp.Diff(tt.expected(), config))
		})
	}
}

func TestParseFlags_KeepsSubMinuteTTLWhenFlagAbsent(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"cmd"}

	c := &Config{SessionTTL: 90 * time.Second}
	parseFlags(c)
	assert.Equal(t, 90*time.Second, c.SessionTTL)
}
