package gossip

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog/log"
)

const (
	dialQueueSize   = 128
	dialBackoff     = 5 * time.Second
	dialJitterRange = 2 * time.Second
	dialMaxAttempts = 5
)

type connector interface {
	Connect(ctx context.Context, pi peer.AddrInfo) error
}

// dialer retries bootstrap peers that could not be reached on the first try.
type dialer struct {
	ctx      context.Context
	conn     connector
	backoff  time.Duration
	jitter   time.Duration
	attempts int

	mu      sync.Mutex
	pending map[peer.ID]int

	queue chan peer.AddrInfo
}

func newDialer(ctx context.Context, conn connector) *dialer {
	return &dialer{
		ctx:      ctx,
		conn:     conn,
		backoff:  dialBackoff,
		jitter:   dialJitterRange,
		attempts: dialMaxAttempts,
		pending:  make(map[peer.ID]int),
		queue:    make(chan peer.AddrInfo, dialQueueSize),
	}
}

// Add schedules pi for redialing unless it is already pending.
func (d *dialer) Add(pi peer.AddrInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.pending[pi.ID]; exists {
		return
	}
	d.pending[pi.ID] = 0
	d.retryLater(pi)
}

// Pending reports the peers still waiting to be dialed.
func (d *dialer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Run processes redials until the dialer's context ends.
func (d *dialer) Run() {
	for {
		select {
		case <-d.ctx.Done():
			return
		case pi := <-d.queue:
			d.tryDial(pi)
		}
	}
}

func (d *dialer) tryDial(pi peer.AddrInfo) {
	dialCtx, cancel := context.WithTimeout(d.ctx, dialTimeout)
	err := d.conn.Connect(dialCtx, pi)
	cancel()

	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		log.Debug().Str("peer", ShortID(pi.ID)).Msg("redial succeeded")
		delete(d.pending, pi.ID)
		return
	}
	d.pending[pi.ID]++
	if d.pending[pi.ID] >= d.attempts {
		log.Warn().Err(err).Str("peer", ShortID(pi.ID)).Msg("giving up on bootstrap peer")
		delete(d.pending, pi.ID)
		return
	}
	d.retryLater(pi)
}

func (d *dialer) retryLater(pi peer.AddrInfo) {
	delay := d.backoff
	if d.jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(d.jitter)))
	}
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-d.ctx.Done():
			return
		case <-timer.C:
		}
		select {
		case d.queue <- pi:
		default:
			log.Warn().Str("peer", ShortID(pi.ID)).Msg("dial queue full, dropping")
			d.mu.Lock()
			delete(d.pending, pi.ID)
			d.mu.Unlock()
		}
	}()
}
