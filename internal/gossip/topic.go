package gossip

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// topicPrefix namespaces GossipSub topic names so rooms never collide with
// other applications sharing the same libp2p network.
const topicPrefix = "/gossip-chat/1/"

// TopicID identifies one chat room. All participants of a room share it.
type TopicID [32]byte

// NewTopicID returns a fresh random topic.
func NewTopicID() (TopicID, error) {
	var id TopicID
	if _, err := rand.Read(id[:]); err != nil {
		return TopicID{}, fmt.Errorf("generate topic: %w", err)
	}
	return id, nil
}

func (t TopicID) String() string {
	return hex.EncodeToString(t[:])
}

// Name is the GossipSub topic name used for this room.
func (t TopicID) Name() string {
	return topicPrefix + t.String()
}

func (t TopicID) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TopicID) UnmarshalText(text []byte) error {
	if len(text) != hex.EncodedLen(len(t)) {
		return fmt.Errorf("topic must be %d hex characters, got %d", hex.EncodedLen(len(t)), len(text))
	}
	var id TopicID
	if _, err := hex.Decode(id[:], text); err != nil {
		return fmt.Errorf("topic: %w", err)
	}
	*t = id
	return nil
}
