package chat

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func parseFlags(t *testing.T, args ...string) *Config {
	t.Helper()
	cfg := DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	return cfg
}

func TestDefaults(t *testing.T) {
	t.Setenv(passphraseEnv, "")
	cfg := parseFlags(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate defaults: %v", err)
	}
	if cfg.Name != DefaultName {
		t.Fatalf("expected default name %q, got %q", DefaultName, cfg.Name)
	}
	if len(cfg.ListenAddrs) == 0 {
		t.Fatalf("expected default listen addrs")
	}
	if cfg.Settle != 0 || cfg.UseTUI || cfg.MDNS {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestFlagsOverrideDefaults(t *testing.T) {
	cfg := parseFlags(t, "--name", "alice", "--settle", "2s", "--mdns", "--listen", "/ip4/127.0.0.1/tcp/4001")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Name != "alice" || cfg.Settle != 2*time.Second || !cfg.MDNS {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if len(cfg.ListenAddrs) != 1 || cfg.ListenAddrs[0] != "/ip4/127.0.0.1/tcp/4001" {
		t.Fatalf("unexpected listen addrs: %v", cfg.ListenAddrs)
	}
}

func TestBlankNameFallsBackToDefault(t *testing.T) {
	cfg := parseFlags(t, "--name", "   ")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Name != DefaultName {
		t.Fatalf("expected %q, got %q", DefaultName, cfg.Name)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv(passphraseEnv, "")
	cases := map[string][]string{
		"negative settle":        {"--settle", "-1s"},
		"zero queue":             {"--queue", "0"},
		"unknown log level":      {"--log-level", "loud"},
		"passphrase no identity": {"--passphrase", "secret"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			if err := parseFlags(t, args...).Validate(); err == nil {
				t.Fatalf("expected error for %v", args)
			}
		})
	}
}

func TestPassphraseFromEnvironment(t *testing.T) {
	t.Setenv(passphraseEnv, "from-env")
	cfg := parseFlags(t, "--identity", filepath.Join(t.TempDir(), "id.db"))
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Passphrase != "from-env" {
		t.Fatalf("expected passphrase from env, got %q", cfg.Passphrase)
	}
}

func TestConfigureLoggingWritesToOutput(t *testing.T) {
	cfg := parseFlags(t, "--log-level", "info", "--no-color")
	var buf bytes.Buffer
	closer, err := ConfigureLogging(cfg, &buf)
	if err != nil {
		t.Fatalf("configure logging: %v", err)
	}
	defer closer.Close()

	log.Debug().Msg("hidden")
	log.Info().Msg("visible")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "visible") {
		t.Fatalf("unexpected log output: %q", out)
	}
}

func TestConfigureLoggingToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")
	cfg := parseFlags(t, "--log-level", "info", "--log-file", path)
	var buf bytes.Buffer
	closer, err := ConfigureLogging(cfg, &buf)
	if err != nil {
		t.Fatalf("configure logging: %v", err)
	}
	log.Info().Msg("to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("close log file: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected nothing on the fallback writer, got %q", buf.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Fatalf("log file missing entry: %q", data)
	}
}
