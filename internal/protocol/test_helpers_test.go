package protocol

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"gossip-chat/internal/gossip"
	"gossip-chat/internal/message"
	"gossip-chat/internal/ui"
)

type recordingSink struct {
	mu            sync.Mutex
	lines         []string
	notifications []ui.Notification
	peerSnapshots [][]ui.Presence
}

func (s *recordingSink) ShowMessage(from, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, from+": "+text)
}

func (s *recordingSink) ShowSystem(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, "> "+text)
}

func (s *recordingSink) UpdatePeers(peers []ui.Presence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]ui.Presence, len(peers))
	copy(snapshot, peers)
	s.peerSnapshots = append(s.peerSnapshots, snapshot)
}

func (s *recordingSink) ShowNotification(n ui.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	s.lines = append(s.lines, "! "+n.Text)
}

func (s *recordingSink) linesCopy() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *recordingSink) notificationCopy() []ui.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ui.Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

var errSendFailed = errors.New("send failed")

type fakeTopic struct {
	mu       sync.Mutex
	sent     [][]byte
	failSend bool
	closed   bool
	events   chan gossip.Event
}

func newFakeTopic() *fakeTopic {
	return &fakeTopic{events: make(chan gossip.Event, 32)}
}

func (f *fakeTopic) Broadcast(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return errSendFailed
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeTopic) Events() <-chan gossip.Event { return f.events }

func (f *fakeTopic) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTopic) setFailSend(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSend = fail
}

func (f *fakeTopic) sentBodies(t *testing.T) []message.Body {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]message.Body, 0, len(f.sent))
	for _, payload := range f.sent {
		env, err := message.Decode(payload)
		if err != nil {
			t.Fatalf("sent payload does not decode: %v", err)
		}
		out = append(out, env.Body)
	}
	return out
}

type fakeSubscriber struct {
	topic     *fakeTopic
	err       error
	calls     int
	gotTopic  gossip.TopicID
	bootstrap []peer.AddrInfo
}

func (f *fakeSubscriber) Subscribe(_ context.Context, topic gossip.TopicID, bootstrap []peer.AddrInfo) (gossip.Topic, error) {
	f.calls++
	f.gotTopic = topic
	f.bootstrap = bootstrap
	if f.err != nil {
		return nil, f.err
	}
	return f.topic, nil
}

func newPeerID(t *testing.T) peer.ID {
	t.Helper()
	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		t.Fatalf("peer id: %v", err)
	}
	return id
}

func encodeBody(t *testing.T, body message.Body) []byte {
	t.Helper()
	payload, err := message.Encode(body)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return payload
}

// newTestSession returns an Active session over a fake topic.
func newTestSession(t *testing.T) (*Session, *recordingSink, *fakeTopic) {
	t.Helper()
	sink := &recordingSink{}
	topic := newFakeTopic()
	session := NewSession(SessionOptions{
		Self: newPeerID(t),
		Name: "tester",
		Sink: sink,
	})
	topicID, err := gossip.NewTopicID()
	if err != nil {
		t.Fatalf("topic: %v", err)
	}
	if err := session.Open(context.Background(), &fakeSubscriber{topic: topic}, topicID, nil); err != nil {
		t.Fatalf("open: %v", err)
	}
	return session, sink, topic
}

// runEvents feeds events through HandleEvents and waits for the stream to
// end.
func runEvents(t *testing.T, session *Session, topic *fakeTopic, events ...gossip.Event) {
	t.Helper()
	for _, ev := range events {
		topic.events <- ev
	}
	close(topic.events)
	done := make(chan struct{})
	go func() {
		session.HandleEvents(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event loop did not finish")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
