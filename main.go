package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"medadmin/client"
	"medadmin/config"
	"medadmin/session"
	"medadmin/store"
)

const usageText = `medadmin - MedBuddy admin console

Usage:
  medadmin [flags] <command> [args]

Commands:
  login <email>            Authenticate against the backend
  logout                   End the session and clear credentials
  whoami                   Show the authenticated profile
  status                   Show session state
  refresh                  Force a silent token refresh
  users list               List users
  users get <id>           Show one user
  users block <id>         Block a user
  users unblock <id>       Unblock a user
  packages list            List subscription packages
  packages stats           Subscription statistics
  packages extend <userId> Extend a user's subscription
  packages cancel <userId> Cancel a user's subscription
  payments list            List payments
  payments get <orderCode> Show one payment
  dashboard                Dashboard aggregates
  watch                    Poll dashboard stats until interrupted

Flags:
`

func main() {
	configPath := flag.String("config", os.Getenv("MEDADMIN_CONFIG"), "Path to YAML config")
	logLevel := flag.String("log-level", "warn", "Logging level (debug, info, warn, error)")
	password := flag.String("password", "", "Password for login (prompted when empty)")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usageText)
		flag.PrintDefaults()
	}
	flag.Parse()

	level, err := parseLogLevel(*logLevel)
	if err != nil {
		log.Fatalf("invalid log level %q: %v", *logLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := run(cfg, logger, args, *password); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger, args []string, password string) error {
	st := store.NewFileStore(cfg.Storage.CredentialsPath, logger)

	api, err := client.New(client.Options{
		BaseURL:        cfg.API.BaseURL,
		Store:          st,
		Logger:         logger,
		RequestTimeout: cfg.API.RequestTimeout,
		RefreshTimeout: cfg.API.RefreshTimeout,
	})
	if err != nil {
		return err
	}

	ctrl := session.New(api, st, cfg.Refresh.CheckInterval, cfg.Refresh.ExpiryBuffer, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	command := args[0]

	// Login and logout work without an established session; everything
	// else bootstraps first so the guard has authoritative state.
	switch command {
	case "login":
		if len(args) < 2 {
			return fmt.Errorf("usage: medadmin login <email>")
		}
		return doLogin(ctx, ctrl, args[1], password)
	case "logout":
		ctrl.Logout(ctx)
		fmt.Println("logged out")
		return nil
	}

	ctrl.Bootstrap(ctx)

	verdict := session.Guard(ctrl.Snapshot(), strings.Join(args, " "), rolesFor(command)...)
	switch verdict.Decision {
	case session.DecisionLogin:
		return fmt.Errorf("not logged in; run: medadmin login <email>")
	case session.DecisionForbidden:
		return fmt.Errorf("access denied: your account lacks permission for %q", command)
	}

	switch command {
	case "whoami":
		return printJSON(ctrl.Snapshot().User)
	case "status":
		return doStatus(ctrl)
	case "refresh":
		if !ctrl.Refresh(ctx) {
			return fmt.Errorf("refresh failed")
		}
		fmt.Println("token refreshed")
		return nil
	case "users":
		return doUsers(ctx, api, args[1:])
	case "packages":
		return doPackages(ctx, api, args[1:])
	case "payments":
		return doPayments(ctx, api, args[1:])
	case "dashboard":
		return printEnvelope(api.Payments().DashboardStats(ctx))
	case "watch":
		return doWatch(api, ctrl)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// rolesFor maps commands to the roles allowed to run them. Session-only
// commands carry no role requirement.
func rolesFor(command string) []string {
	switch command {
	case "users", "packages", "payments", "dashboard", "watch":
		return []string{"admin"}
	default:
		return nil
	}
}

func doLogin(ctx context.Context, ctrl *session.Controller, email, password string) error {
	if password == "" {
		fmt.Fprint(os.Stderr, "password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimSpace(line)
	}

	result := ctrl.Login(ctx, email, password)
	if !result.OK {
		return fmt.Errorf("login failed: %s", result.Error)
	}
	fmt.Println("logged in as", email)
	return nil
}

func doStatus(ctrl *session.Controller) error {
	snap := ctrl.Snapshot()
	return printJSON(map[string]any{
		"authenticated": snap.AccessToken != "",
		"tokenExpired":  store.IsExpired(snap.AccessToken),
		"role":          session.ExtractRole(snap.User),
	})
}

func doUsers(ctx context.Context, api *client.Client, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: medadmin users list|get|block|unblock")
	}
	users := api.Users()
	switch args[0] {
	case "list":
		return printEnvelope(users.List(ctx, client.UserListParams{Limit: 50}))
	case "get":
		if len(args) < 2 {
			return fmt.Errorf("usage: medadmin users get <id>")
		}
		return printEnvelope(users.Get(ctx, args[1]))
	case "block":
		if len(args) < 2 {
			return fmt.Errorf("usage: medadmin users block <id>")
		}
		return printEnvelope(users.Block(ctx, args[1]))
	case "unblock":
		if len(args) < 2 {
			return fmt.Errorf("usage: medadmin users unblock <id>")
		}
		return printEnvelope(users.Unblock(ctx, args[1]))
	default:
		return fmt.Errorf("unknown users subcommand %q", args[0])
	}
}

func doPackages(ctx context.Context, api *client.Client, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: medadmin packages list|stats|extend|cancel")
	}
	packages := api.Packages()
	switch args[0] {
	case "list":
		return printEnvelope(packages.List(ctx, url.Values{}))
	case "stats":
		return printEnvelope(packages.Stats(ctx))
	case "extend":
		if len(args) < 2 {
			return fmt.Errorf("usage: medadmin packages extend <userId>")
		}
		return printEnvelope(packages.ExtendUserPackage(ctx, args[1]))
	case "cancel":
		if len(args) < 2 {
			return fmt.Errorf("usage: medadmin packages cancel <userId>")
		}
		return printEnvelope(packages.CancelUserPackage(ctx, args[1]))
	default:
		return fmt.Errorf("unknown packages subcommand %q", args[0])
	}
}

func doPayments(ctx context.Context, api *client.Client, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: medadmin payments list|get")
	}
	payments := api.Payments()
	switch args[0] {
	case "list":
		return printEnvelope(payments.List(ctx, url.Values{}))
	case "get":
		if len(args) < 2 {
			return fmt.Errorf("usage: medadmin payments get <orderCode>")
		}
		return printEnvelope(payments.ByOrderCode(ctx, args[1]))
	default:
		return fmt.Errorf("unknown payments subcommand %q", args[0])
	}
}

// doWatch polls dashboard stats until interrupted. The long-lived loop is
// where the proactive background refresh earns its keep.
func doWatch(api *client.Client, ctrl *session.Controller) error {
	stop := make(chan struct{})
	defer close(stop)
	ctrl.StartAutoRefresh(stop)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		env, err := api.Payments().DashboardStats(ctx)
		cancel()
		if err != nil {
			fmt.Fprintln(os.Stderr, "dashboard fetch failed:", err)
		} else if err := printEnvelope(env, nil); err != nil {
			return err
		}

		select {
		case <-ticker.C:
		case <-sig:
			return nil
		}
	}
}

func printEnvelope(env client.Envelope, err error) error {
	if err != nil {
		return err
	}
	if !env.Success && env.Message != "" {
		return fmt.Errorf("backend refused: %s", env.Message)
	}
	if len(env.Data) == 0 {
		fmt.Println("ok")
		return nil
	}
	var data any
	if jsonErr := json.Unmarshal(env.Data, &data); jsonErr != nil {
		fmt.Println(string(env.Data))
		return nil
	}
	return printJSON(data)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown level")
	}
}
