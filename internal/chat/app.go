// Package chat wires the transport, identity store, session and display
// into a runnable chat peer.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog/log"

	"gossip-chat/internal/crypto"
	"gossip-chat/internal/gossip"
	"gossip-chat/internal/protocol"
	"gossip-chat/internal/storage"
	"gossip-chat/internal/ticket"
	"gossip-chat/internal/ui"
)

const tuiStopTimeout = 2 * time.Second

// App owns one peer: its libp2p node, display and room session.
type App struct {
	Cfg *Config

	node    *gossip.Node
	session *protocol.Session
	sink    ui.Sink
	tui     *ui.TUIDisplay
	input   io.Reader

	transcript *os.File

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp loads the identity, starts the node and prepares a session. Output
// goes to out unless the TUI is enabled.
func NewApp(ctx context.Context, cfg *Config, in io.Reader, out io.Writer) (*App, error) {
	ctx, cancel := context.WithCancel(ctx)

	key, err := loadIdentity(cfg)
	if err != nil {
		cancel()
		return nil, err
	}

	var transcript *os.File
	if cfg.TranscriptPath != "" {
		transcript, err = os.OpenFile(cfg.TranscriptPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("open transcript: %w", err)
		}
	}

	node, err := gossip.NewNode(ctx, gossip.Options{
		ListenAddrs: cfg.ListenAddrs,
		PrivKey:     key,
		EnableMDNS:  cfg.MDNS,
		QueueSize:   cfg.QueueSize,
	})
	if err != nil {
		if transcript != nil {
			_ = transcript.Close()
		}
		cancel()
		return nil, err
	}

	a := &App{
		Cfg:        cfg,
		node:       node,
		input:      in,
		transcript: transcript,
		ctx:        ctx,
		cancel:     cancel,
	}
	if cfg.UseTUI {
		a.tui = ui.NewTUIDisplay(fmt.Sprintf("gossip-chat (%s)", cfg.Name), func(line string) {
			a.session.ProcessLine(a.ctx, line)
		})
		a.sink = a.tui
		a.input = nil
	} else {
		a.sink = ui.NewCLIDisplay(out, ui.ShouldUseColor(cfg.NoColor))
	}
	if transcript != nil {
		a.sink = ui.NewMultiSink(a.sink, ui.NewCLIDisplay(transcript, false))
	}

	a.session = protocol.NewSession(protocol.SessionOptions{
		Self:   node.ID(),
		Name:   cfg.Name,
		Sink:   a.sink,
		Settle: cfg.Settle,
	})
	log.Info().Str("peer", node.ID().String()).Str("name", cfg.Name).Msg("peer ready")
	return a, nil
}

func loadIdentity(cfg *Config) (p2pcrypto.PrivKey, error) {
	if cfg.IdentityPath == "" {
		return nil, nil
	}
	ks, err := storage.OpenKeyStore(cfg.IdentityPath, crypto.NewBox(cfg.Passphrase))
	if err != nil {
		return nil, err
	}
	defer ks.Close()
	key, created, err := ks.LoadOrCreate()
	if err != nil {
		return nil, fmt.Errorf("load identity from %s: %w", cfg.IdentityPath, err)
	}
	if created {
		log.Info().Str("path", cfg.IdentityPath).Msg("generated new identity")
	}
	return key, nil
}

// Sink exposes the active display.
func (a *App) Sink() ui.Sink { return a.sink }

// Session exposes the room session.
func (a *App) Session() *protocol.Session { return a.session }

// LocalTicket encodes topic together with this node's own address.
func (a *App) LocalTicket(topic gossip.TopicID) string {
	return ticket.Encode(topic, []peer.AddrInfo{a.node.AddrInfo()})
}

// Open joins the room.
func (a *App) Open(topic gossip.TopicID, bootstrap []peer.AddrInfo) error {
	return a.session.Open(a.ctx, a.node, topic, bootstrap)
}

// Run blocks until ctx is cancelled, the room closes or the TUI exits.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tuiErr := make(chan error, 1)
	if a.tui != nil {
		go func() {
			err := a.tui.Run(ctx)
			// Leaving the TUI ends the session.
			cancel()
			tuiErr <- err
		}()
	}

	err := a.session.Run(ctx, a.input)
	if a.tui != nil {
		a.tui.Stop()
		select {
		case terr := <-tuiErr:
			if terr != nil && err == nil {
				err = fmt.Errorf("tui: %w", terr)
			}
		case <-time.After(tuiStopTimeout):
			log.Warn().Msg("tui did not stop in time")
		}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown leaves the room and stops the node.
func (a *App) Shutdown() {
	a.cancel()
	if err := a.session.Close(); err != nil {
		log.Debug().Err(err).Msg("close session")
	}
	if err := a.node.Close(); err != nil {
		log.Debug().Err(err).Msg("close node")
	}
	if a.transcript != nil {
		_ = a.transcript.Close()
	}
}
