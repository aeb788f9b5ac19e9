// Package protocol implements the room session: presence announcements, chat
// broadcast and the dispatch of transport events to a UI sink.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog/log"

	"gossip-chat/internal/gossip"
	"gossip-chat/internal/message"
	"gossip-chat/internal/ui"
)

// State is the lifecycle stage of a Session.
type State int32

const (
	StateCreated State = iota
	StateSubscribing
	StateActive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrNotActive is returned by Run when the session never reached Active.
var ErrNotActive = errors.New("session is not active")

// Subscriber is the transport entry point: join a topic, dialing the given
// bootstrap peers.
type Subscriber interface {
	Subscribe(ctx context.Context, topic gossip.TopicID, bootstrap []peer.AddrInfo) (gossip.Topic, error)
}

// SessionOptions describes the dependencies needed to construct a Session.
type SessionOptions struct {
	Self    peer.ID
	Name    string
	Sink    ui.Sink
	Metrics *Metrics
	// Settle delays the first presence announcement after subscribing.
	Settle time.Duration
}

// Session is one chat room. The name cache is written only by HandleEvents;
// the input path never touches it.
type Session struct {
	self    peer.ID
	name    string
	sink    ui.Sink
	names   *NameCache
	metrics *Metrics
	settle  time.Duration

	state atomic.Int32
	topic gossip.Topic
}

func NewSession(opts SessionOptions) *Session {
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Session{
		self:    opts.Self,
		name:    opts.Name,
		sink:    opts.Sink,
		names:   NewNameCache(),
		metrics: metrics,
		settle:  opts.Settle,
	}
}

func (s *Session) State() State         { return State(s.state.Load()) }
func (s *Session) Names() *NameCache    { return s.names }
func (s *Session) Metrics() *Metrics    { return s.metrics }
func (s *Session) Self() peer.ID        { return s.self }
func (s *Session) setState(state State) { s.state.Store(int32(state)) }

// Open subscribes to topic and announces presence. A subscription failure is
// returned and leaves the session Terminated; a failed announcement is only
// reported. On success the session is Active.
func (s *Session) Open(ctx context.Context, sub Subscriber, topic gossip.TopicID, bootstrap []peer.AddrInfo) error {
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateSubscribing)) {
		return fmt.Errorf("open session: already %s", s.State())
	}
	t, err := sub.Subscribe(ctx, topic, bootstrap)
	if err != nil {
		s.setState(StateTerminated)
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	s.topic = t

	if s.settle > 0 {
		timer := time.NewTimer(s.settle)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		timer.Stop()
	}

	s.announce(ctx)
	s.setState(StateActive)
	return nil
}

// Run drives both activities until ctx is cancelled or the topic's event
// stream ends. input may be nil when lines arrive through ProcessLine from
// elsewhere, e.g. a TUI.
func (s *Session) Run(ctx context.Context, input io.Reader) error {
	if s.State() != StateActive {
		return ErrNotActive
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if input != nil {
		go s.ReadInput(ctx, input)
	}
	s.HandleEvents(ctx)
	log.Info().Str("metrics", s.metrics.Snapshot().String()).Msg("session ended")
	return nil
}

// Close leaves the topic.
func (s *Session) Close() error {
	s.setState(StateTerminated)
	if s.topic == nil {
		return nil
	}
	return s.topic.Close()
}

func (s *Session) announce(ctx context.Context) {
	if err := s.broadcast(ctx, message.AboutMe{From: s.self, Name: s.name}); err != nil {
		s.sink.ShowNotification(ui.Notification{Level: ui.LevelWarn, Text: fmt.Sprintf("presence announcement failed: %v", err)})
	}
}

func (s *Session) broadcast(ctx context.Context, body message.Body) error {
	payload, err := message.Encode(body)
	if err != nil {
		s.metrics.IncSendFailed()
		return err
	}
	if err := s.topic.Broadcast(ctx, payload); err != nil {
		s.metrics.IncSendFailed()
		log.Warn().Err(err).Msg("broadcast failed")
		return err
	}
	s.metrics.IncSent()
	return nil
}
