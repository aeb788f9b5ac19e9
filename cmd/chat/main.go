package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gossip-chat/internal/chat"
	"gossip-chat/internal/gossip"
	"gossip-chat/internal/ticket"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := chat.DefaultConfig()
	var logCloser io.Closer

	rootCmd := &cobra.Command{
		Use:           "gossip-chat",
		Short:         "Serverless chat rooms over libp2p gossipsub",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			closer, err := chat.ConfigureLogging(cfg, os.Stderr)
			if err != nil {
				return err
			}
			logCloser = closer
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				_ = logCloser.Close()
			}
		},
	}
	cfg.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "open",
			Short: "Open a new chat room and print its ticket",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				topic, err := gossip.NewTopicID()
				if err != nil {
					return fmt.Errorf("generate topic: %w", err)
				}
				return runRoom(cmd.Context(), cfg, topic, nil, true)
			},
		},
		&cobra.Command{
			Use:   "join <ticket>",
			Short: "Join a chat room from a ticket",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				t, err := ticket.Parse(strings.TrimSpace(args[0]))
				if err != nil {
					return fmt.Errorf("invalid ticket: %w", err)
				}
				return runRoom(cmd.Context(), cfg, t.Topic, t.Nodes, false)
			},
		},
	)
	return rootCmd
}

func runRoom(ctx context.Context, cfg *chat.Config, topic gossip.TopicID, bootstrap []peer.AddrInfo, printTicket bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := chat.NewApp(ctx, cfg, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	if printTicket {
		app.Sink().ShowSystem("ticket to join: " + app.LocalTicket(topic))
	}
	if err := app.Open(topic, bootstrap); err != nil {
		return err
	}
	err = app.Run(ctx)
	log.Info().Msg("shutting down")
	return err
}
