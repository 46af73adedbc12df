// Package main provides the srp-verifier tool for provisioning SRP-6a verifier records.
//
// srp-verifier registers identities by storing a salt and verifier computed from
// a password, removes them, lists them, and checks a password against a stored
// record by running a complete handshake locally.
package main

import (
	"fmt"
	"os"
)

var (
	// version is set by build flags
	version = "dev"
	// commit is set by build flags
	commit = "none"
)

// globalOptions are flags accepted anywhere on the command line.
type globalOptions struct {
	configPath string
	storePath  string
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	args, command, opts, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		printUsage()
		os.Exit(1)
	}

	switch command {
	case "--help", "-h", "help", "":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("srp-verifier version %s (%s)\n", version, commit)
		os.Exit(0)
	}

	run, ok := commands[command]
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n\n", command)
		printUsage()
		os.Exit(1)
	}

	a, err := newApp(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(a, args); err != nil {
		a.logger.Error("command failed", map[string]any{
			"command": command,
			"error":   err.Error(),
		})
		os.Exit(1)
	}
}

// parseGlobalFlags extracts --config and --store, which may appear before or
// after the command, and returns the remaining args and the command.
// Examples:
//
//	srp-verifier --config /etc/srp6a/config.yaml add alice
//	srp-verifier add --store /tmp/verifiers.yaml alice
func parseGlobalFlags(args []string) ([]string, string, globalOptions, error) {
	remainingArgs := make([]string, 0, len(args))
	var command string
	var opts globalOptions

	for i := 0; i < len(args); i++ {
		arg := args[i]

		var target *string
		switch arg {
		case "--config", "-c":
			target = &opts.configPath
		case "--store", "-s":
			target = &opts.storePath
		}
		if target != nil {
			if i+1 >= len(args) {
				return nil, "", opts, fmt.Errorf("flag %s requires a value", arg)
			}
			i++
			*target = args[i]
			continue
		}

		// First non-flag argument is the command
		if command == "" && !isFlag(arg) {
			command = arg
			continue
		}

		remainingArgs = append(remainingArgs, arg)
	}

	return remainingArgs, command, opts, nil
}

// isFlag returns true if the argument looks like a flag (starts with -).
func isFlag(arg string) bool {
	return len(arg) > 0 && arg[0] == '-'
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `srp-verifier - provision SRP-6a verifier records

Usage:
  srp-verifier <command> [flags] [identity]

Available Commands:
  add       Register an identity (prompts for the password)
  delete    Remove an identity
  list      List registered identities
  check     Verify a password against the stored record

Global Flags:
  --config, -c PATH   Configuration file (defaults apply when omitted)
  --store, -s PATH    Verifier store, overrides store.path
  --help, -h          Show help information
  --version, -v       Show version information

Environment:
  SRP_STORE_PATH      Overrides store.path from the configuration file

Examples:
  # Register an identity interactively
  srp-verifier --config /etc/srp6a/config.yaml add alice

  # Register from a pipeline, replacing an existing record
  printf '%%s\n' "$PASSWORD" | srp-verifier add --password-stdin --force alice

  # Check a password
  srp-verifier check alice

`)
}
