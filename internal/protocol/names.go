package protocol

import (
	"sort"
	"strings"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"

	"gossip-chat/internal/gossip"
	"gossip-chat/internal/ui"
)

// NameCache maps peers to the display name from their latest AboutMe.
// Entries are never evicted: a peer that drops off and returns keeps its
// name.
type NameCache struct {
	mu    sync.RWMutex
	names map[peer.ID]string
}

func NewNameCache() *NameCache {
	return &NameCache{names: make(map[peer.ID]string)}
}

// Set records name for id and returns the previous name, if any.
func (c *NameCache) Set(id peer.ID, name string) (prev string, known bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, known = c.names[id]
	c.names[id] = name
	return prev, known
}

func (c *NameCache) Get(id peer.ID) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.names[id]
	return name, ok
}

// Label is the name to render for id: the cached display name, or a short
// form of the peer ID.
func (c *NameCache) Label(id peer.ID) string {
	if name, ok := c.Get(id); ok {
		return name
	}
	return gossip.ShortID(id)
}

func (c *NameCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}

// Snapshot lists known peers sorted by name.
func (c *NameCache) Snapshot() []ui.Presence {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := make([]ui.Presence, 0, len(c.names))
	for id, name := range c.names {
		list = append(list, ui.Presence{Name: name, Peer: gossip.ShortID(id)})
	}
	sort.Slice(list, func(i, j int) bool {
		return strings.ToLower(list[i].Name) < strings.ToLower(list[j].Name)
	})
	return list
}
