package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nkiryanov/taskbell/internal/credstore"
	"github.com/nkiryanov/taskbell/internal/logger"
	"github.com/nkiryanov/taskbell/internal/models"
	"github.com/nkiryanov/taskbell/internal/notification"
	"github.com/nkiryanov/taskbell/internal/probe"
	"github.com/nkiryanov/taskbell/internal/session"
	"github.com/nkiryanov/taskbell/internal/stompws"
)

var errNotSignedIn = errors.New("not signed in, run 'taskbell login' first")

type App struct {
	store   credstore.Store
	guard   *session.Guard
	source  *notification.RESTSource
	pubsub  *stompws.Client
	logger  logger.Logger
	in      io.Reader
	out     io.Writer
	probeFn func(ctx context.Context) (models.Profile, error)
}

func NewApp(ctx context.Context, c *Config, l logger.Logger, in io.Reader, out io.Writer) (*App, error) {
	dsn := c.Credentials
	if dsn == "" {
		var err error
		if dsn, err = defaultCredentialsDSN(); err != nil {
			return nil, err
		}
	}

	store, err := credstore.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("error while opening credential store: %w", err)
	}

	guard := session.New(session.Config{BaseURL: c.APIURL, Timeout: c.Timeout}, store, l)
	app := &App{
		store:  store,
		guard:  guard,
		source: notification.NewRESTSource(guard),
		pubsub: stompws.NewClient(stompws.Config{BaseURL: c.APIURL, Path: c.WSPath}, l, guard.AuthHeader),
		logger: l,
		in:     in,
		out:    out,
	}
	app.probeFn = func(ctx context.Context) (models.Profile, error) {
		return probe.Wait(ctx, guard, probe.DefaultPath, probe.Config{Logger: l})
	}
	return app, nil
}

func (a *App) Close() error {
	return a.store.Close()
}

type command struct {
	args  []string
	usage string
	run   func(a *App, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"login":    {args: []string{"email", "password"}, usage: "sign in", run: (*App).Login},
	"register": {args: []string{"username", "email", "password"}, usage: "create an account and sign in", run: (*App).Register},
	"logout":   {usage: "forget the session", run: (*App).Logout},
	"status":   {usage: "show subject and access token expiry", run: (*App).Status},
	"list":     {usage: "print notifications", run: (*App).List},
	"watch":    {usage: "print notifications as they arrive until interrupted; reads 'read <id>' and 'read-all' from stdin", run: (*App).Watch},
	"read":     {args: []string{"id"}, usage: "mark one notification read", run: (*App).Read},
	"read-all": {usage: "mark all notifications read", run: (*App).ReadAll},
	"ping":     {usage: "wait for the backend to answer", run: (*App).Ping},
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: taskbell [flags] <command> [args]")
	for _, name := range slices.Sorted(maps.Keys(commands)) {
		cmd := commands[name]
		line := name
		for _, arg := range cmd.args {
			line += " <" + arg + ">"
		}
		_, _ = fmt.Fprintf(w, "  %-34s %s\n", line, cmd.usage)
	}
}

// Dispatch runs the command named by args[0]
func (a *App) Dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		usage(a.out)
		return errors.New("command is required")
	}

	cmd, ok := commands[args[0]]
	if !ok {
		usage(a.out)
		return fmt.Errorf("unknown command %q", args[0])
	}
	if len(args)-1 != len(cmd.args) {
		return fmt.Errorf("%s expects %d argument(s), got %d", args[0], len(cmd.args), len(args)-1)
	}

	return cmd.run(a, ctx, args[1:])
}

func (a *App) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}

func (a *App) Login(ctx context.Context, args []string) error {
	creds, err := a.guard.Login(ctx, args[0], args[1])
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	a.printf("Signed in as %s\n", creds.UserID)
	return nil
}

func (a *App) Register(ctx context.Context, args []string) error {
	creds, err := a.guard.Register(ctx, args[0], args[1], args[2])
	if err != nil {
		return fmt.Errorf("register failed: %w", err)
	}
	a.printf("Registered and signed in as %s\n", creds.UserID)
	return nil
}

func (a *App) Logout(ctx context.Context, _ []string) error {
	if err := a.guard.Logout(ctx); err != nil {
		return err
	}
	a.printf("Signed out\n")
	return nil
}

func (a *App) Status(ctx context.Context, _ []string) error {
	subject, err := a.guard.Subject(ctx)
	if err != nil {
		return err
	}
	if !notification.ValidSubject(subject) {
		a.printf("Not signed in\n")
		return nil
	}

	a.printf("Subject: %s\n", subject)

	expiresAt, ok, err := a.guard.AccessExpiry(ctx)
	switch {
	case err != nil:
		return err
	case !ok:
		a.printf("Access token expires: unknown\n")
	case expiresAt.Before(time.Now()):
		a.printf("Access token expired: %s (refreshed on next request)\n", expiresAt.Local().Format(time.DateTime))
	default:
		a.printf("Access token expires: %s\n", expiresAt.Local().Format(time.DateTime))
	}
	return nil
}

func (a *App) subject(ctx context.Context) (string, error) {
	subject, err := a.guard.Subject(ctx)
	if err != nil {
		return "", err
	}
	if !notification.ValidSubject(subject) {
		return "", errNotSignedIn
	}
	return subject, nil
}

func (a *App) List(ctx context.Context, _ []string) error {
	subject, err := a.subject(ctx)
	if err != nil {
		return err
	}

	items, err := a.source.List(ctx, subject)
	if err != nil {
		return fmt.Errorf("fetch notifications: %w", err)
	}

	unread := 0
	for _, n := range items {
		if !n.Read {
			unread++
		}
		a.printf("%s\n", formatNotification(n))
	}
	a.printf("%d notification(s), %d unread\n", len(items), unread)
	return nil
}

func (a *App) Read(ctx context.Context, args []string) error {
	if _, err := a.subject(ctx); err != nil {
		return err
	}
	if err := a.source.MarkRead(ctx, models.ID(args[0])); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	a.printf("Marked %s read\n", args[0])
	return nil
}

func (a *App) ReadAll(ctx context.Context, _ []string) error {
	subject, err := a.subject(ctx)
	if err != nil {
		return err
	}
	if err := a.source.MarkAllRead(ctx, subject); err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	a.printf("Marked all read\n")
	return nil
}

func (a *App) Ping(ctx context.Context, _ []string) error {
	profile, err := a.probeFn(ctx)
	if err != nil {
		return fmt.Errorf("backend is not reachable: %w", err)
	}
	a.printf("Backend is up, signed in as %s <%s>\n", profile.Username, profile.Email)
	return nil
}

// Watch follows the session subject and prints new notifications until ctx is done.
// Lines 'read <id>' and 'read-all' on stdin mark notifications read through the channel
func (a *App) Watch(ctx context.Context, _ []string) error {
	if _, err := a.subject(ctx); err != nil {
		return err
	}

	channel := notification.NewChannel(a.source, a.pubsub, a.logger)

	var mu sync.Mutex
	seen := map[models.ID]bool{}
	lastState := notification.StateDisconnected

	cancel := channel.Subscribe(func(v notification.View) {
		mu.Lock()
		defer mu.Unlock()

		if v.State != lastState {
			lastState = v.State
			a.printf("-- %s\n", v.State)
		}

		// Cache is newest first, print oldest of the new ones first
		for _, n := range slices.Backward(v.Notifications) {
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			a.printf("%s\n", formatNotification(n))
		}
	})
	defer cancel()

	// Stop does not cancel read-state mutations, let them reach the backend
	defer channel.Wait()
	unbind := channel.Bind(ctx, a.guard)
	defer unbind()

	lines := scanLines(ctx, a.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			a.watchCommand(ctx, channel, line)
		}
	}
}

func (a *App) watchCommand(ctx context.Context, channel *notification.Channel, line string) {
	fields := strings.Fields(line)
	switch {
	case len(fields) == 0:
	case fields[0] == "read" && len(fields) == 2:
		channel.MarkRead(ctx, models.ID(fields[1]))
		a.printf("Marking %s read\n", fields[1])
	case fields[0] == "read-all" && len(fields) == 1:
		channel.MarkAllRead(ctx)
		a.printf("Marking all read\n")
	default:
		a.printf("Unknown input %q, expected 'read <id>' or 'read-all'\n", line)
	}
}

// scanLines sends lines of r until EOF or ctx is done
func scanLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	if r == nil {
		close(lines)
		return lines
	}

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func formatNotification(n models.Notification) string {
	mark := "*"
	if n.Read {
		mark = " "
	}

	line := fmt.Sprintf("%s %s  %s  %s", mark, n.ID, n.Timestamp, n.Title)
	if n.Content != "" {
		line += ": " + n.Content
	}
	return line
}
