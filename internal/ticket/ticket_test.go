package ticket

import (
	"crypto/rand"
	"errors"
	"strings"
	"testing"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"gossip-chat/internal/gossip"
)

func newTopic(t *testing.T) gossip.TopicID {
	t.Helper()
	id, err := gossip.NewTopicID()
	if err != nil {
		t.Fatalf("NewTopicID: %v", err)
	}
	return id
}

func newAddrInfo(t *testing.T, addrs ...string) peer.AddrInfo {
	t.Helper()
	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		t.Fatalf("peer id: %v", err)
	}
	info := peer.AddrInfo{ID: id}
	for _, a := range addrs {
		maddr, err := multiaddr.NewMultiaddr(a)
		if err != nil {
			t.Fatalf("multiaddr %s: %v", a, err)
		}
		info.Addrs = append(info.Addrs, maddr)
	}
	return info
}

func assertSameNodes(t *testing.T, want, got []peer.AddrInfo) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("expected %d nodes, got %d", len(want), len(got))
	}
	for i := range want {
		if want[i].ID != got[i].ID {
			t.Fatalf("node %d: id %s != %s", i, got[i].ID, want[i].ID)
		}
		if len(want[i].Addrs) != len(got[i].Addrs) {
			t.Fatalf("node %d: expected %d addrs, got %d", i, len(want[i].Addrs), len(got[i].Addrs))
		}
		for j := range want[i].Addrs {
			if !want[i].Addrs[j].Equal(got[i].Addrs[j]) {
				t.Fatalf("node %d addr %d: %s != %s", i, j, got[i].Addrs[j], want[i].Addrs[j])
			}
		}
	}
}

func TestRoundTripPreservesNodeOrder(t *testing.T) {
	topic := newTopic(t)
	nodes := []peer.AddrInfo{
		newAddrInfo(t, "/ip4/10.0.0.2/udp/4001/quic-v1", "/ip4/10.0.0.2/tcp/4001"),
		newAddrInfo(t, "/ip6/::1/tcp/9000"),
		newAddrInfo(t),
	}
	text := Encode(topic, nodes)
	got, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Topic != topic {
		t.Fatalf("topic mismatch")
	}
	assertSameNodes(t, nodes, got.Nodes)
}

func TestRoundTripWithoutNodes(t *testing.T) {
	topic := newTopic(t)
	for _, nodes := range [][]peer.AddrInfo{nil, {}} {
		got, err := Parse(Encode(topic, nodes))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if got.Topic != topic || len(got.Nodes) != 0 {
			t.Fatalf("unexpected ticket %+v", got)
		}
	}
}

func TestEncodingIsCanonical(t *testing.T) {
	topic := newTopic(t)
	tk := Ticket{Topic: topic, Nodes: []peer.AddrInfo{newAddrInfo(t, "/ip4/127.0.0.1/tcp/1")}}
	text := tk.String()
	if strings.ContainsRune(text, '=') {
		t.Fatalf("ticket contains padding: %s", text)
	}
	if strings.ToLower(text) != text {
		t.Fatalf("ticket contains uppercase: %s", text)
	}
	if text != tk.String() {
		t.Fatalf("encoding is not deterministic")
	}
	again, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if again.String() != text {
		t.Fatalf("re-encoding changed the ticket")
	}
}

func TestParseIsCaseInsensitive(t *testing.T) {
	topic := newTopic(t)
	text := Encode(topic, nil)
	got, err := Parse(strings.ToUpper(text))
	if err != nil {
		t.Fatalf("Parse upper: %v", err)
	}
	if got.Topic != topic {
		t.Fatalf("topic mismatch")
	}
}

func TestParseRejectsInvalidCharacters(t *testing.T) {
	text := Encode(newTopic(t), nil)
	for _, bad := range []string{
		text[:5] + "1" + text[6:],
		text[:5] + "!" + text[6:],
		text + "=",
		text[:10] + "\n" + text[10:],
	} {
		_, err := Parse(bad)
		if !errors.Is(err, ErrInvalidEncoding) {
			t.Fatalf("expected ErrInvalidEncoding for %q, got %v", bad, err)
		}
	}
}

func TestParseRejectsNonCanonicalTrailingBits(t *testing.T) {
	const alphabet = "abcdefghijklmnopqrstuvwxyz234567"
	text := Encode(newTopic(t), nil)
	want, err := encoding.DecodeString(strings.ToUpper(text))
	if err != nil {
		t.Fatalf("decode canonical ticket: %v", err)
	}

	last := strings.IndexByte(alphabet, text[len(text)-1])
	var alias string
	for i := 0; i < len(alphabet); i++ {
		if i == last {
			continue
		}
		candidate := text[:len(text)-1] + string(alphabet[i])
		data, err := encoding.DecodeString(strings.ToUpper(candidate))
		if err == nil && string(data) == string(want) {
			alias = candidate
			break
		}
	}
	if alias == "" {
		t.Fatalf("ticket %q has no unused trailing bits to vary", text)
	}

	if _, err := Parse(alias); !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding for %q, got %v", alias, err)
	}
	if _, err := Parse(text); err != nil {
		t.Fatalf("canonical ticket rejected: %v", err)
	}
}

func TestParseRejectsPayloadWithoutTopic(t *testing.T) {
	text := strings.ToLower(encoding.EncodeToString([]byte(`{"nodes":[]}`)))
	_, err := Parse(text)
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestParseRejectsNonObjectPayload(t *testing.T) {
	text := strings.ToLower(encoding.EncodeToString([]byte("hello there")))
	_, err := Parse(text)
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if _, err := Parse(""); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for empty ticket, got %v", err)
	}
}
