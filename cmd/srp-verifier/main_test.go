package main

import (
	"reflect"
	"testing"
)

func TestParseGlobalFlags(t *testing.T) {
	tests := []struct {
		name            string
		input           []string
		expectedCommand string
		expectedArgs    []string
		expectedOpts    globalOptions
	}{
		{
			name:            "config before command",
			input:           []string{"--config", "/etc/srp6a/config.yaml", "add", "alice"},
			expectedCommand: "add",
			expectedArgs:    []string{"alice"},
			expectedOpts:    globalOptions{configPath: "/etc/srp6a/config.yaml"},
		},
		{
			name:            "store after command",
			input:           []string{"add", "-s", "/tmp/v.yaml", "--force", "alice"},
			expectedCommand: "add",
			expectedArgs:    []string{"--force", "alice"},
			expectedOpts:    globalOptions{storePath: "/tmp/v.yaml"},
		},
		{
			name:            "both at the end",
			input:           []string{"list", "-c", "/c.yaml", "--store", "/s.yaml"},
			expectedCommand: "list",
			expectedArgs:    []string{},
			expectedOpts:    globalOptions{configPath: "/c.yaml", storePath: "/s.yaml"},
		},
		{
			name:            "no global flags",
			input:           []string{"check", "--password-stdin", "bob"},
			expectedCommand: "check",
			expectedArgs:    []string{"--password-stdin", "bob"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, command, opts, err := parseGlobalFlags(tt.input)
			if err != nil {
				t.Fatalf("parseGlobalFlags() error = %v", err)
			}

			if command != tt.expectedCommand {
				t.Errorf("parseGlobalFlags() command = %v, want %v", command, tt.expectedCommand)
			}

			if !reflect.DeepEqual(args, tt.expectedArgs) {
				t.Errorf("parseGlobalFlags() args = %v, want %v", args, tt.expectedArgs)
			}

			if opts != tt.expectedOpts {
				t.Errorf("parseGlobalFlags() opts = %+v, want %+v", opts, tt.expectedOpts)
			}
		})
	}
}

func TestParseGlobalFlags_MissingValue(t *testing.T) {
	if _, _, _, err := parseGlobalFlags([]string{"add", "--config"}); err == nil {
		t.Error("parseGlobalFlags() expected error for flag without value")
	}
}
