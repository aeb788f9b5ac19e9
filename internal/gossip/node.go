package gossip

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/rs/zerolog/log"
)

const (
	mdnsServiceName = "gossip-chat"
	dialTimeout     = 10 * time.Second
)

// Topic is the handle returned by a subscription: a broadcast primitive plus
// the inbound event stream. The stream is closed when the subscription ends.
type Topic interface {
	Broadcast(ctx context.Context, data []byte) error
	Events() <-chan Event
	Close() error
}

// Options configures a Node.
type Options struct {
	ListenAddrs []string
	PrivKey     crypto.PrivKey
	EnableMDNS  bool
	QueueSize   int
}

// Node wraps a libp2p host running GossipSub.
type Node struct {
	host      host.Host
	ps        *pubsub.PubSub
	mdns      mdns.Service
	dialer    *dialer
	queueSize int

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	topics map[string]*roomTopic
}

// NewNode starts a libp2p host and GossipSub router.
func NewNode(ctx context.Context, opts Options) (*Node, error) {
	ctx, cancel := context.WithCancel(ctx)

	hostOpts := []libp2p.Option{
		libp2p.ListenAddrStrings(opts.ListenAddrs...),
		libp2p.NATPortMap(),
		libp2p.EnableHolePunching(),
	}
	if opts.PrivKey != nil {
		hostOpts = append(hostOpts, libp2p.Identity(opts.PrivKey))
	}

	h, err := libp2p.New(hostOpts...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create libp2p host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		_ = h.Close()
		cancel()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}

	n := &Node{
		host:      h,
		ps:        ps,
		queueSize: opts.QueueSize,
		ctx:       ctx,
		cancel:    cancel,
		topics:    make(map[string]*roomTopic),
	}
	n.dialer = newDialer(ctx, h)
	go n.dialer.Run()

	if opts.EnableMDNS {
		n.mdns = mdns.NewMdnsService(h, mdnsServiceName, &mdnsNotifee{node: n})
		if err := n.mdns.Start(); err != nil {
			log.Warn().Err(err).Msg("mdns setup failed")
			n.mdns = nil
		}
	}

	log.Debug().Str("peer", h.ID().String()).Strs("addrs", multiaddrStrings(h)).Msg("node started")
	return n, nil
}

// ID returns the local peer identity.
func (n *Node) ID() peer.ID {
	return n.host.ID()
}

// AddrInfo returns the local node address, suitable for a ticket.
func (n *Node) AddrInfo() peer.AddrInfo {
	return peer.AddrInfo{ID: n.host.ID(), Addrs: n.host.Addrs()}
}

// Subscribe joins the topic, dialing the bootstrap peers first. Unreachable
// bootstrap peers are retried in the background; the subscription itself
// failing is returned to the caller.
func (n *Node) Subscribe(ctx context.Context, id TopicID, bootstrap []peer.AddrInfo) (Topic, error) {
	n.connectAll(ctx, bootstrap)

	n.mu.Lock()
	defer n.mu.Unlock()
	name := id.Name()
	if _, exists := n.topics[name]; exists {
		return nil, fmt.Errorf("already subscribed to %s", id)
	}

	topic, err := n.ps.Join(name)
	if err != nil {
		return nil, fmt.Errorf("join topic: %w", err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		_ = topic.Close()
		return nil, fmt.Errorf("subscribe to topic: %w", err)
	}
	handler, err := topic.EventHandler()
	if err != nil {
		sub.Cancel()
		_ = topic.Close()
		return nil, fmt.Errorf("topic event handler: %w", err)
	}

	rt := newRoomTopic(n, name, topic, sub, handler)
	n.topics[name] = rt
	rt.start()
	return rt, nil
}

func (n *Node) connectAll(ctx context.Context, peers []peer.AddrInfo) {
	var wg sync.WaitGroup
	for _, info := range peers {
		if info.ID == n.host.ID() {
			continue
		}
		wg.Add(1)
		go func(pi peer.AddrInfo) {
			defer wg.Done()
			dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
			defer cancel()
			if err := n.host.Connect(dialCtx, pi); err != nil {
				log.Warn().Err(err).Str("peer", ShortID(pi.ID)).Msg("connect to bootstrap peer")
				n.dialer.Add(pi)
				return
			}
			log.Debug().Str("peer", ShortID(pi.ID)).Msg("connected to bootstrap peer")
		}(info)
	}
	wg.Wait()
}

func (n *Node) forget(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.topics, name)
}

// Close tears down every subscription and the host.
func (n *Node) Close() error {
	n.mu.Lock()
	topics := make([]*roomTopic, 0, len(n.topics))
	for _, t := range n.topics {
		topics = append(topics, t)
	}
	n.mu.Unlock()
	for _, t := range topics {
		_ = t.Close()
	}
	if n.mdns != nil {
		_ = n.mdns.Close()
	}
	n.cancel()
	return n.host.Close()
}

func multiaddrStrings(h host.Host) []string {
	addrs := h.Addrs()
	out := make([]string, len(addrs))
	for i, addr := range addrs {
		out[i] = addr.String()
	}
	return out
}

// ShortID renders a compact form of a peer identity. Ed25519 peer IDs share
// a common prefix, so the tail is used.
func ShortID(id peer.ID) string {
	s := id.String()
	if len(s) > 10 {
		return s[len(s)-10:]
	}
	return s
}

// roomTopic adapts a GossipSub topic to the Topic interface.
type roomTopic struct {
	node    *Node
	name    string
	topic   *pubsub.Topic
	sub     *pubsub.Subscription
	handler *pubsub.TopicEventHandler
	queue   *eventQueue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func newRoomTopic(n *Node, name string, topic *pubsub.Topic, sub *pubsub.Subscription, handler *pubsub.TopicEventHandler) *roomTopic {
	ctx, cancel := context.WithCancel(n.ctx)
	return &roomTopic{
		node:    n,
		name:    name,
		topic:   topic,
		sub:     sub,
		handler: handler,
		queue:   newEventQueue(n.queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (t *roomTopic) start() {
	t.wg.Add(2)
	go t.readLoop()
	go t.peerLoop()
	go func() {
		t.wg.Wait()
		t.queue.close()
	}()
}

func (t *roomTopic) readLoop() {
	defer t.wg.Done()
	// Either loop ending means the subscription is gone.
	defer t.cancel()
	self := t.node.host.ID()
	for {
		msg, err := t.sub.Next(t.ctx)
		if err != nil {
			if t.ctx.Err() == nil && !errors.Is(err, pubsub.ErrSubscriptionCancelled) {
				log.Warn().Err(err).Str("topic", t.name).Msg("subscription ended")
			}
			return
		}
		if msg.ReceivedFrom == self {
			continue
		}
		t.queue.push(Received{
			Content:       msg.Data,
			From:          msg.GetFrom(),
			DeliveredFrom: msg.ReceivedFrom,
		})
	}
}

func (t *roomTopic) peerLoop() {
	defer t.wg.Done()
	defer t.cancel()
	for {
		evt, err := t.handler.NextPeerEvent(t.ctx)
		if err != nil {
			return
		}
		switch evt.Type {
		case pubsub.PeerJoin:
			t.queue.push(NeighborUp{Peer: evt.Peer})
		case pubsub.PeerLeave:
			t.queue.push(NeighborDown{Peer: evt.Peer})
		}
	}
}

func (t *roomTopic) Broadcast(ctx context.Context, data []byte) error {
	if err := t.topic.Publish(ctx, data); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (t *roomTopic) Events() <-chan Event {
	return t.queue.events()
}

// Close cancels the subscription and leaves the topic. The event stream is
// closed once both pump goroutines have exited.
func (t *roomTopic) Close() error {
	var err error
	t.once.Do(func() {
		t.cancel()
		t.sub.Cancel()
		t.handler.Cancel()
		t.wg.Wait()
		if dropped := t.queue.Dropped(); dropped > 0 {
			log.Warn().Uint64("dropped", dropped).Str("topic", t.name).Msg("events dropped while the consumer lagged")
		}
		err = t.topic.Close()
		t.node.forget(t.name)
	})
	return err
}

type mdnsNotifee struct {
	node *Node
}

func (m *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == m.node.host.ID() {
		return
	}
	ctx, cancel := context.WithTimeout(m.node.ctx, dialTimeout)
	defer cancel()
	if err := m.node.host.Connect(ctx, pi); err != nil {
		log.Debug().Err(err).Str("peer", ShortID(pi.ID)).Msg("mdns connect")
		return
	}
	log.Debug().Str("peer", ShortID(pi.ID)).Msg("discovered peer via mdns")
}
