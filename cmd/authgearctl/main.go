// Command authgearctl signs a user in from the command line and keeps the
// session in a local credential store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/zitadel/logging"

	"github.com/authgear/authgear-sdk-ios-sub000/internal/config"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/authgear"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/cli"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/credstore"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/keystore"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/session"
)

var Version = "dev"

const usage = `usage: authgearctl <command> [flags]

commands:
  login       sign in with the browser
  anonymous   sign in as anonymous user
  whoami      print the signed in user
  token       print a fresh access token
  logout      sign out (-force ignores a failed revocation)
  version     print the version
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return errors.New("no command")
	}
	command, args := args[0], args[1:]
	switch command {
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	case "version":
		fmt.Fprintln(stdout, Version)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := cfg.NewLogger(os.Stderr)
	ctx = logging.ToContext(ctx, logger)

	c, closeStore, err := newContainer(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	defer c.Close()

	state, reason, err := c.Configure(ctx)
	if err != nil {
		return fmt.Errorf("configuring session: %w", err)
	}
	logger.Debug("session configured",
		slog.String("state", string(state)),
		slog.String("reason", string(reason)),
	)

	return runCommand(ctx, c, cfg, command, args, stdout)
}

func newContainer(cfg *config.Config, logger *slog.Logger) (*authgear.Container, func(), error) {
	var storeOpts []credstore.BoltOption
	hashKey, blockKey, err := cfg.SealingKeys()
	if err != nil {
		return nil, nil, err
	}
	if hashKey != nil {
		storeOpts = append(storeOpts, credstore.WithSealing(hashKey, blockKey))
	}
	store, err := credstore.OpenBolt(cfg.StorePath, storeOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("opening credential store: %w", err)
	}
	closeStore := func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing credential store", slog.Any("error", err))
		}
	}

	opts := []authgear.Option{
		authgear.WithName(cfg.Name),
		authgear.WithLogger(logger),
		authgear.WithCredentialStore(store),
		authgear.WithKeyStore(keystore.NewStoredKeyStore(store, "keys:"+cfg.Name)),
		authgear.WithAuthenticationSession(cli.NewLoopbackSession()),
		authgear.WithPlatform("cli"),
	}
	if cfg.ThirdParty {
		opts = append(opts, authgear.WithThirdParty())
	}
	c, err := authgear.New(cfg.ClientID, cfg.Endpoint, opts...)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return c, closeStore, nil
}

func runCommand(ctx context.Context, c *authgear.Container, cfg *config.Config, command string, args []string, stdout io.Writer) error {
	switch command {
	case "login":
		flags := flag.NewFlagSet("login", flag.ContinueOnError)
		sso := flags.Bool("sso", false, "share the browser session")
		if err := flags.Parse(args); err != nil {
			return err
		}
		userInfo, err := c.Authenticate(ctx, authgear.AuthenticateOptions{
			RedirectURI:  cli.RedirectURI(cfg.RedirectPort, cfg.RedirectPath),
			IsSSOEnabled: *sso,
		})
		if err != nil {
			return err
		}
		return printJSON(stdout, userInfo)
	case "anonymous":
		userInfo, err := c.AuthenticateAnonymously(ctx)
		if err != nil {
			return err
		}
		return printJSON(stdout, userInfo)
	case "whoami":
		if c.SessionState() != session.StateAuthenticated {
			return authgear.ErrUnauthenticatedUser
		}
		userInfo, err := c.FetchUserInfo(ctx)
		if err != nil {
			return err
		}
		return printJSON(stdout, userInfo)
	case "token":
		token, err := c.RefreshAccessTokenIfNeeded(ctx)
		if err != nil {
			return err
		}
		if token == "" {
			return authgear.ErrUnauthenticatedUser
		}
		fmt.Fprintln(stdout, token)
		return nil
	case "logout":
		flags := flag.NewFlagSet("logout", flag.ContinueOnError)
		force := flags.Bool("force", false, "clear the session even if revocation fails")
		if err := flags.Parse(args); err != nil {
			return err
		}
		return c.Logout(ctx, *force)
	default:
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
