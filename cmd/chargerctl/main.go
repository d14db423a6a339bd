// chargerctl is an operator console for a Shure SBRC/SBC charger.
//
// Usage:
//
//	chargerctl [-model sbrc] [-modules 1] <host[:port]>
//	chargerctl token -secret <secret> [-role operator] [-ttl 60m] <subject>
//
// The console connects straight to the charger, prints every change it
// reports and accepts commands (type "help"). The token subcommand mints a
// bearer token for the bridge's API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/joho/godotenv"

	"github.com/nerrad567/gray-logic-charger/internal/auth"
	"github.com/nerrad567/gray-logic-charger/internal/bridges/sbrc"
)

func main() {
	_ = godotenv.Load() //nolint:errcheck // Optional file

	var err error
	if len(os.Args) > 1 && os.Args[1] == "token" {
		err = runToken(os.Args[2:], os.Stdout)
	} else {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		err = runConsole(ctx, os.Args[1:])
		cancel()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runToken prints a signed access token. The secret defaults to
// GRAYLOGIC_JWT_SECRET so it never has to appear in shell history.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	secret := fs.String("secret", os.Getenv("GRAYLOGIC_JWT_SECRET"), "JWT signing secret")
	role := fs.String("role", string(auth.RoleOperator), "role: viewer, operator or admin")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: chargerctl token [-secret s] [-role r] [-ttl d] <subject>")
	}
	if *secret == "" {
		return errors.New("a secret is required (-secret or GRAYLOGIC_JWT_SECRET)")
	}
	if !auth.IsValidRole(auth.Role(*role)) {
		return fmt.Errorf("%w: %q", auth.ErrInvalidRole, *role)
	}

	token, err := auth.GenerateAccessToken(fs.Arg(0), auth.Role(*role), *secret, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func runConsole(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chargerctl", flag.ContinueOnError)
	modelID := fs.String("model", sbrc.DefaultModelID, "charger model: sbrc, sbc220 or sbc240")
	modules := fs.Int("modules", 1, "fitted modules (modular chargers only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: chargerctl [-model m] [-modules n] <host[:port]>")
	}

	model, err := sbrc.LookupModel(*modelID)
	if err != nil {
		return err
	}

	client, err := sbrc.Connect(ctx, sbrc.ClientConfig{Address: fs.Arg(0)})
	if err != nil {
		return err
	}
	defer client.Close() //nolint:errcheck // Best-effort on exit

	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "sbrc> ",
		HistoryFile: historyFilePath(),
	})
	if err != nil {
		return fmt.Errorf("readline init failed: %w", err)
	}
	defer rl.Close() //nolint:errcheck // Best-effort on exit

	con := newConsole(client, model, *modules, rl.Stdout())
	con.setReadline(rl)
	client.SetOnChange(con.printChange)

	con.printf("connected to %s (%s, %d bays); type 'help' for commands", fs.Arg(0), model.Label, con.activeBays())

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if quit := con.handle(ctx, line); quit {
			return nil
		}
	}
}

// historyFilePath returns the console history file under the user cache
// directory, or "" when there is none.
func historyFilePath() string {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	dir := filepath.Join(cacheDir, "chargerctl")
	_ = os.MkdirAll(dir, 0750) //nolint:errcheck // History is optional
	return filepath.Join(dir, "history")
}
