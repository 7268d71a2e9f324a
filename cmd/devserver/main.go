package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nkiryanov/taskbell/internal/devserver"
	"github.com/nkiryanov/taskbell/internal/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Getenv, os.Getwd, os.Args[1:]); err != nil {
		slog.Error("Dev server stopped with error", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, getenv func(string) string, getwd func() (string, error), args []string) error {
	c := NewConfig()
	if err := c.LoadDotEnv(getwd); err != nil {
		return fmt.Errorf("error while loading .env: %w", err)
	}
	if err := c.LoadEnv(getenv); err != nil {
		return err
	}
	if err := c.ParseFlags(args); err != nil {
		return err
	}

	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return fmt.Errorf("error while initializing logger: %w", err)
	}

	srv, err := devserver.New(devserver.Config{
		SecretKey:        c.SecretKey,
		ReminderInterval: c.ReminderInterval,
	}, l)
	if err != nil {
		return err
	}

	return srv.ListenAndServe(ctx, c.ListenAddr)
}
