// Package ticket encodes room invitations: a topic plus the addresses of
// peers already in the room, packed into a single copy/paste friendly string.
package ticket

import (
	"encoding/base32"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/libp2p/go-libp2p/core/peer"

	"gossip-chat/internal/gossip"
)

var (
	// ErrInvalidEncoding is returned for text outside the unpadded base-32
	// alphabet.
	ErrInvalidEncoding = errors.New("invalid ticket encoding")
	// ErrInvalidPayload is returned when the decoded bytes are not a ticket
	// object or lack a topic.
	ErrInvalidPayload = errors.New("invalid ticket payload")
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Ticket is an invitation to a room.
type Ticket struct {
	Topic gossip.TopicID
	Nodes []peer.AddrInfo
}

type wireTicket struct {
	Topic *gossip.TopicID `json:"topic"`
	Nodes []peer.AddrInfo `json:"nodes"`
}

// Encode renders topic and nodes as ticket text.
func Encode(topic gossip.TopicID, nodes []peer.AddrInfo) string {
	return Ticket{Topic: topic, Nodes: nodes}.String()
}

// String returns the canonical ticket text: lowercase, unpadded base-32 of
// the JSON object.
func (t Ticket) String() string {
	nodes := t.Nodes
	if nodes == nil {
		nodes = []peer.AddrInfo{}
	}
	topic := t.Topic
	data, err := json.Marshal(wireTicket{Topic: &topic, Nodes: nodes})
	if err != nil {
		// AddrInfo and TopicID always marshal.
		panic(fmt.Sprintf("ticket: marshal: %v", err))
	}
	return strings.ToLower(encoding.EncodeToString(data))
}

// Parse decodes ticket text. Input is case-insensitive.
func Parse(text string) (Ticket, error) {
	if strings.ContainsAny(text, "=\r\n") {
		return Ticket{}, fmt.Errorf("%w: padding or line break in ticket", ErrInvalidEncoding)
	}
	upper := strings.ToUpper(text)
	data, err := encoding.DecodeString(upper)
	if err != nil {
		return Ticket{}, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	// The decoder ignores unused trailing bits; only the canonical form is
	// accepted.
	if encoding.EncodeToString(data) != upper {
		return Ticket{}, fmt.Errorf("%w: non-canonical trailing bits", ErrInvalidEncoding)
	}
	var wire wireTicket
	if err := json.Unmarshal(data, &wire); err != nil {
		return Ticket{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if wire.Topic == nil {
		return Ticket{}, fmt.Errorf("%w: missing topic", ErrInvalidPayload)
	}
	nodes := wire.Nodes
	if nodes == nil {
		nodes = []peer.AddrInfo{}
	}
	return Ticket{Topic: *wire.Topic, Nodes: nodes}, nil
}
