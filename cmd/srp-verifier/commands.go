package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fzdarsky/srp6a/internal/auth"
	"github.com/fzdarsky/srp6a/internal/config"
	"github.com/fzdarsky/srp6a/internal/logging"
	"github.com/fzdarsky/srp6a/pkg/protocol"
	"github.com/fzdarsky/srp6a/pkg/srp"
	"golang.org/x/term"
)

type command func(a *app, args []string) error

var commands = map[string]command{
	"add":    runAdd,
	"delete": runDelete,
	"list":   runList,
	"check":  runCheck,
}

// app carries the loaded configuration and the store shared by all commands.
type app struct {
	cfg    *config.Config
	params srp.Params
	store  *auth.FileStore
	logger *logging.Logger

	stdin        io.Reader
	stdout       io.Writer
	readPassword func(prompt string) ([]byte, error)
}

func newApp(opts globalOptions) (*app, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
	} else {
		cfg.ApplyEnv()
	}
	if opts.storePath != "" {
		cfg.Store.Path = opts.storePath
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	logger := logging.New(level, format)

	params, err := cfg.Params()
	if err != nil {
		return nil, fmt.Errorf("invalid srp configuration: %w", err)
	}

	store, err := auth.OpenFileStore(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	logger.Debug("verifier store opened", map[string]any{
		"path":       store.Path(),
		"identities": len(store.Identities()),
		"group":      params.Group.Name(),
	})

	return &app{
		cfg:          cfg,
		params:       params,
		store:        store,
		logger:       logger,
		stdin:        os.Stdin,
		stdout:       os.Stdout,
		readPassword: terminalPassword,
	}, nil
}

func runAdd(a *app, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fromStdin := fs.Bool("password-stdin", false, "Read the password from the first line of stdin")
	force := fs.Bool("force", false, "Replace an existing record")
	if err := fs.Parse(args); err != nil {
		return err
	}

	identity, err := identityArg(fs)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if _, err := a.store.Lookup(ctx, identity); err == nil && !*force {
		return fmt.Errorf("identity %q already exists (use --force to replace it)", identity)
	}

	password, err := a.password(*fromStdin, true)
	if err != nil {
		return err
	}

	rec, err := auth.NewRecord(a.params, identity, password, a.cfg.SRP.SaltLength)
	if err != nil {
		return err
	}
	if err := a.store.Put(ctx, rec); err != nil {
		return err
	}

	a.logger.Info("verifier provisioned", map[string]any{
		"identity": identity,
		"group":    rec.Group,
		"kdf":      a.cfg.SRP.KDF.Scheme,
		"store":    a.store.Path(),
	})
	fmt.Fprintf(a.stdout, "Registered %s\n", identity)
	return nil
}

func runDelete(a *app, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	identity, err := identityArg(fs)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if _, err := a.store.Lookup(ctx, identity); err != nil {
		return err
	}
	if err := a.store.Delete(ctx, identity); err != nil {
		return err
	}

	a.logger.Info("verifier removed", map[string]any{"identity": identity})
	fmt.Fprintf(a.stdout, "Removed %s\n", identity)
	return nil
}

func runList(a *app, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	for _, identity := range a.store.Identities() {
		rec, err := a.store.Lookup(ctx, identity)
		if err != nil {
			return err
		}
		group := rec.Group
		if group == "" {
			group = "-"
		}
		fmt.Fprintf(a.stdout, "%s\t%s\n", identity, group)
	}
	return nil
}

// runCheck authenticates against the store through the same Authenticator a
// server would run.
func runCheck(a *app, args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fromStdin := fs.Bool("password-stdin", false, "Read the password from the first line of stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	identity, err := identityArg(fs)
	if err != nil {
		return err
	}

	password, err := a.password(*fromStdin, false)
	if err != nil {
		return err
	}

	opts, err := a.authenticatorOptions()
	if err != nil {
		return err
	}
	authenticator, err := auth.NewAuthenticator(opts)
	if err != nil {
		return err
	}
	defer authenticator.Stop()

	if err := handshake(context.Background(), authenticator, a.params, identity, password); err != nil {
		resp := auth.ErrorResponse(err)
		fmt.Fprintf(a.stdout, "FAILED %s: %s\n", identity, resp.Code)
		return err
	}

	fmt.Fprintf(a.stdout, "OK %s\n", identity)
	return nil
}

// authenticatorOptions maps the handshake section onto the Authenticator.
func (a *app) authenticatorOptions() (auth.Options, error) {
	seed, err := a.cfg.FakeSeed()
	if err != nil {
		return auth.Options{}, err
	}
	ttl, err := a.cfg.GetHandshakeTTL()
	if err != nil {
		return auth.Options{}, err
	}
	lockout, err := a.cfg.GetLockout()
	if err != nil {
		return auth.Options{}, err
	}

	return auth.Options{
		Params:       a.params,
		Store:        a.store,
		HandshakeTTL: ttl,
		MaxFailures:  a.cfg.Handshake.MaxFailures,
		Lockout:      lockout,
		FakeSeed:     seed,
		SaltLength:   a.cfg.SRP.SaltLength,
		Logger:       a.logger,
	}, nil
}

// handshake runs a client session against authenticator and checks that both
// sides derived the same key.
func handshake(ctx context.Context, authenticator *auth.Authenticator, p srp.Params, identity, password string) error {
	client, A, err := srp.StartClient(p, identity, password)
	if err != nil {
		return err
	}
	defer client.Close()

	challenge, err := authenticator.Begin(ctx, &protocol.ClientHello{Identity: identity, A: A})
	if err != nil {
		return err
	}

	_, m1, err := client.ProcessChallenge(challenge.Salt, challenge.B)
	if err != nil {
		return err
	}

	result, err := authenticator.Finish(ctx, &protocol.ClientProof{HandshakeID: challenge.HandshakeID, M1: m1})
	if err != nil {
		return err
	}
	defer result.Key.Wipe()

	key, err := client.VerifyServerProof(result.Proof.M2)
	if err != nil {
		return err
	}
	defer key.Wipe()

	if !key.Equal(result.Key) {
		return errors.New("session keys differ")
	}
	return nil
}

func identityArg(fs *flag.FlagSet) (string, error) {
	if fs.NArg() != 1 {
		return "", fmt.Errorf("%s requires exactly one identity", fs.Name())
	}
	identity := fs.Arg(0)
	if err := (&protocol.ClientHello{Identity: identity, A: []byte{0}}).Validate(); err != nil {
		return "", err
	}
	return identity, nil
}

// password reads the password from stdin or the terminal. Terminal entry is
// confirmed when confirm is set.
func (a *app) password(fromStdin, confirm bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(a.stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		password := strings.TrimRight(line, "\r\n")
		if password == "" {
			return "", errors.New("empty password")
		}
		return password, nil
	}

	first, err := a.readPassword("Password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if len(first) == 0 {
		return "", errors.New("empty password")
	}
	if confirm {
		second, err := a.readPassword("Confirm password: ")
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		if string(first) != string(second) {
			return "", errors.New("passwords do not match")
		}
	}
	return string(first), nil
}

// terminalPassword prompts on stderr and reads without echo.
func terminalPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)
	return term.ReadPassword(int(os.Stdin.Fd()))
}
