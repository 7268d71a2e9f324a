package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	t.Run("set default option", func(t *testing.T) {
		c := NewConfig()

		require.Equal(t, "localhost:8080", c.ListenAddr)
		require.Equal(t, "info", c.LogLevel)
		require.Equal(t, "prod", c.Environment)
		require.Equal(t, "", c.SecretKey, "secret key should be empty by default")
		require.Zero(t, c.ReminderInterval, "reminder is disabled by default")
	})

	t.Run("load env", func(t *testing.T) {
		c := NewConfig()
		env := map[string]string{
			"RUN_ADDRESS":       "localhost:9000",
			"LOG_LEVEL":         "debug",
			"SECRET_KEY":        "secret",
			"ENVIRONMENT":       "dev",
			"REMINDER_INTERVAL": "1m",
		}

		err := c.LoadEnv(func(key string) string { return env[key] })

		require.NoError(t, err)
		require.Equal(t, "localhost:9000", c.ListenAddr)
		require.Equal(t, "debug", c.LogLevel)
		require.Equal(t, "secret", c.SecretKey)
		require.Equal(t, "dev", c.Environment)
		require.Equal(t, time.Minute, c.ReminderInterval)
	})

	t.Run("load env invalid duration", func(t *testing.T) {
		c := NewConfig()

		err := c.LoadEnv(func(key string) string {
			if key == "REMINDER_INTERVAL" {
				return "often"
			}
			return ""
		})

		require.ErrorContains(t, err, "REMINDER_INTERVAL")
	})

	t.Run("load dotenv", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SECRET_KEY=from-dotenv\nRUN_ADDRESS=localhost:7000\n"), 0o600))
		c := NewConfig()

		err := c.LoadDotEnv(func() (string, error) { return dir, nil })

		require.NoError(t, err)
		require.Equal(t, "from-dotenv", c.SecretKey)
		require.Equal(t, "localhost:7000", c.ListenAddr)
	})

	t.Run("missing dotenv is fine", func(t *testing.T) {
		c := NewConfig()

		err := c.LoadDotEnv(func() (string, error) { return t.TempDir(), nil })

		require.NoError(t, err)
	})

	t.Run("flags override env", func(t *testing.T) {
		c := NewConfig()
		require.NoError(t, c.LoadEnv(func(key string) string {
			if key == "SECRET_KEY" {
				return "from-env"
			}
			return ""
		}))

		err := c.ParseFlags([]string{"-s", "from-flag", "-a", "localhost:9999", "-r", "30s", "-e", "dev"})

		require.NoError(t, err)
		require.Equal(t, "from-flag", c.SecretKey)
		require.Equal(t, "localhost:9999", c.ListenAddr)
		require.Equal(t, 30*time.Second, c.ReminderInterval)
		require.Equal(t, "dev", c.Environment)
	})
}
