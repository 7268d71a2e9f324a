package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nkiryanov/taskbell/internal/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Getenv, os.Getwd, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "taskbell:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, getenv func(string) string, getwd func() (string, error), args []string, stdin io.Reader, stdout io.Writer) error {
	c := NewConfig()
	if err := c.LoadDotEnv(getwd); err != nil {
		return fmt.Errorf("error while loading .env: %w", err)
	}
	if err := c.LoadEnv(getenv); err != nil {
		return err
	}
	rest, err := c.ParseFlags(args)
	if err != nil {
		return err
	}

	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return fmt.Errorf("error while initializing logger: %w", err)
	}

	app, err := NewApp(ctx, c, l, stdin, stdout)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			l.Warn("Failed to close credential store", "error", err)
		}
	}()

	return app.Dispatch(ctx, rest)
}
