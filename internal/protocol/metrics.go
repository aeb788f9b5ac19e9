package protocol

import (
	"fmt"
	"sync"
)

// Metrics captures per-session counters for diagnostics.
type Metrics struct {
	mu           sync.Mutex
	sent         int
	sendFailed   int
	received     int
	decodeFailed int
	lagged       int
}

func NewMetrics() *Metrics { return &Metrics{} }

func (m *Metrics) IncSent()         { m.mu.Lock(); m.sent++; m.mu.Unlock() }
func (m *Metrics) IncSendFailed()   { m.mu.Lock(); m.sendFailed++; m.mu.Unlock() }
func (m *Metrics) IncReceived()     { m.mu.Lock(); m.received++; m.mu.Unlock() }
func (m *Metrics) IncDecodeFailed() { m.mu.Lock(); m.decodeFailed++; m.mu.Unlock() }
func (m *Metrics) IncLagged()       { m.mu.Lock(); m.lagged++; m.mu.Unlock() }

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Sent:         m.sent,
		SendFailed:   m.sendFailed,
		Received:     m.received,
		DecodeFailed: m.decodeFailed,
		Lagged:       m.lagged,
	}
}

// MetricsSnapshot is logged when a session ends.
type MetricsSnapshot struct {
	Sent         int
	SendFailed   int
	Received     int
	DecodeFailed int
	Lagged       int
}

func (s MetricsSnapshot) String() string {
	return fmt.Sprintf("sent=%d send_failed=%d received=%d decode_failed=%d lagged=%d",
		s.Sent, s.SendFailed, s.Received, s.DecodeFailed, s.Lagged)
}
