package chat

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

const (
	DefaultName     = "user"
	passphraseEnv   = "GOSSIP_CHAT_PASSPHRASE"
	defaultLogLevel = "warn"
)

var defaultListenAddrs = []string{
	"/ip4/0.0.0.0/udp/0/quic-v1",
	"/ip4/0.0.0.0/tcp/0",
}

// Config holds chat settings derived from CLI flags.
type Config struct {
	Name           string
	ListenAddrs    []string
	IdentityPath   string
	Passphrase     string
	Settle         time.Duration
	MDNS           bool
	QueueSize      int
	UseTUI         bool
	NoColor        bool
	TranscriptPath string
	LogLevel       string
	LogFile        string
}

// DefaultConfig returns a Config with every flag at its default.
func DefaultConfig() *Config {
	return &Config{
		Name:        DefaultName,
		ListenAddrs: append([]string(nil), defaultListenAddrs...),
		QueueSize:   256,
		LogLevel:    defaultLogLevel,
	}
}

// BindFlags registers the chat flags on fs.
func (cfg *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&cfg.Name, "name", cfg.Name, "display name announced to the room")
	fs.StringSliceVar(&cfg.ListenAddrs, "listen", cfg.ListenAddrs, "multiaddrs to listen on")
	fs.StringVar(&cfg.IdentityPath, "identity", cfg.IdentityPath, "path to a bolt db holding a persistent node identity (ephemeral when empty)")
	fs.StringVar(&cfg.Passphrase, "passphrase", cfg.Passphrase, "passphrase sealing the stored identity (or $"+passphraseEnv+")")
	fs.DurationVar(&cfg.Settle, "settle", cfg.Settle, "wait before the first presence announcement so the mesh can form")
	fs.BoolVar(&cfg.MDNS, "mdns", cfg.MDNS, "discover peers on the local network via mDNS")
	fs.IntVar(&cfg.QueueSize, "queue", cfg.QueueSize, "inbound event buffer size before events are dropped")
	fs.BoolVar(&cfg.UseTUI, "tui", cfg.UseTUI, "enable terminal UI mode")
	fs.BoolVar(&cfg.NoColor, "no-color", cfg.NoColor, "disable ANSI colors in CLI output")
	fs.StringVar(&cfg.TranscriptPath, "transcript", cfg.TranscriptPath, "also append room output as plain text to this file")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "diagnostic log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "write diagnostics to this file instead of stderr")
}

// Validate normalises the config and rejects unusable values.
func (cfg *Config) Validate() error {
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if len(cfg.ListenAddrs) == 0 {
		cfg.ListenAddrs = append([]string(nil), defaultListenAddrs...)
	}
	if cfg.Passphrase == "" {
		cfg.Passphrase = os.Getenv(passphraseEnv)
	}
	if cfg.Passphrase != "" && cfg.IdentityPath == "" {
		return errors.New("--passphrase requires --identity")
	}
	if cfg.Settle < 0 {
		return fmt.Errorf("--settle must not be negative, got %s", cfg.Settle)
	}
	if cfg.QueueSize <= 0 {
		return fmt.Errorf("--queue must be positive, got %d", cfg.QueueSize)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	return nil
}
