package protocol

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"gossip-chat/internal/gossip"
	"gossip-chat/internal/message"
	"gossip-chat/internal/ui"
)

// HandleEvents consumes the topic's event stream until ctx is cancelled or
// the stream ends. It is the only writer of the name cache.
func (s *Session) HandleEvents(ctx context.Context) {
	defer s.setState(StateTerminated)
	events := s.topic.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				s.sink.ShowSystem("topic closed")
				return
			}
			s.handleEvent(ev)
		}
	}
}

func (s *Session) handleEvent(ev gossip.Event) {
	switch ev := ev.(type) {
	case gossip.Received:
		s.handleReceived(ev)
	case gossip.NeighborUp:
		s.sink.ShowSystem(fmt.Sprintf("neighbor connected: %s", s.names.Label(ev.Peer)))
	case gossip.NeighborDown:
		s.sink.ShowSystem(fmt.Sprintf("neighbor disconnected: %s", s.names.Label(ev.Peer)))
	case gossip.Lagged:
		s.metrics.IncLagged()
		s.sink.ShowNotification(ui.Notification{
			Level: ui.LevelWarn,
			Text:  "message queue lagged, some messages may have been dropped",
		})
	default:
		log.Debug().Str("event", fmt.Sprintf("%T", ev)).Msg("ignoring unknown event")
	}
}

func (s *Session) handleReceived(ev gossip.Received) {
	env, err := message.Decode(ev.Content)
	if err != nil {
		s.metrics.IncDecodeFailed()
		log.Debug().Err(err).
			Str("from", gossip.ShortID(ev.From)).
			Str("via", gossip.ShortID(ev.DeliveredFrom)).
			Msg("discarding payload")
		return
	}
	s.metrics.IncReceived()

	switch body := env.Body.(type) {
	case message.AboutMe:
		// Every announcement after the first one for a peer is a rename,
		// even when the name is unchanged.
		prev, known := s.names.Set(body.From, body.Name)
		if known {
			s.sink.ShowSystem(fmt.Sprintf("%s renamed to %s", prev, body.Name))
		} else {
			s.sink.ShowSystem(fmt.Sprintf("%s joined as %s", gossip.ShortID(body.From), body.Name))
		}
		s.sink.UpdatePeers(s.names.Snapshot())
	case message.Message:
		s.sink.ShowMessage(s.names.Label(body.From), body.Text)
	}
}
