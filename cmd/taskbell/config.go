package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/taskbell/internal/logger"
	"github.com/nkiryanov/taskbell/internal/stompws"
)

const (
	defaultAPIURL       = "http://localhost:8080/api"
	defaultLoggingLevel = logger.LevelWarn
	defaultEnvironment  = logger.EnvDevelopment
	defaultTimeout      = 10 * time.Second
)

type Config struct {
	// API base url, every REST path and the websocket path are relative to it
	APIURL string

	// Websocket endpoint path
	WSPath string

	// Credential store dsn, file in user config dir if empty
	Credentials string

	LogLevel    string
	Environment string

	// Timeout of one API request
	Timeout time.Duration
}

func NewConfig() *Config {
	return &Config{
		APIURL:      defaultAPIURL,
		WSPath:      stompws.DefaultPath,
		LogLevel:    defaultLoggingLevel,
		Environment: defaultEnvironment,
		Timeout:     defaultTimeout,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"TASKBELL_API_URL":     setString(&c.APIURL),
		"TASKBELL_WS_PATH":     setString(&c.WSPath),
		"TASKBELL_CREDENTIALS": setString(&c.Credentials),
		"TASKBELL_TIMEOUT":     setDuration(&c.Timeout),
		"LOG_LEVEL":            setString(&c.LogLevel),
		"ENVIRONMENT":          setString(&c.Environment),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return nil
}

// ParseFlags parses flags and returns the command with its arguments
func (c *Config) ParseFlags(args []string) ([]string, error) {
	fs := pflag.NewFlagSet("taskbell", pflag.ContinueOnError)
	fs.SetInterspersed(false)

	fs.StringVarP(&c.APIURL, "api-url", "u", c.APIURL, "API base url")
	fs.StringVarP(&c.WSPath, "ws-path", "w", c.WSPath, "Websocket path relative to API url")
	fs.StringVarP(&c.Credentials, "credentials", "c", c.Credentials, "Credential store (file://, memory://, postgres://, redis://)")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.DurationVarP(&c.Timeout, "timeout", "t", c.Timeout, "Request timeout")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs.Args(), nil
}

func defaultCredentialsDSN() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return "file://" + filepath.Join(dir, "taskbell", "credentials.env"), nil
}
