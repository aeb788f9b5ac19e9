package protocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"gossip-chat/internal/message"
	"gossip-chat/internal/ui"
)

// ReadInput broadcasts every non-blank line read from reader until EOF or
// ctx is cancelled.
func (s *Session) ReadInput(ctx context.Context, reader io.Reader) {
	buf := bufio.NewReader(reader)
	for ctx.Err() == nil {
		line, err := buf.ReadString('\n')
		if line != "" {
			s.ProcessLine(ctx, line)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn().Err(err).Msg("stdin read failed")
			}
			return
		}
	}
}

// ProcessLine sends line as a chat message. Blank lines are ignored and a
// failed send is reported without stopping the caller.
func (s *Session) ProcessLine(ctx context.Context, line string) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return
	}
	if s.topic == nil {
		return
	}
	if err := s.broadcast(ctx, message.Message{From: s.self, Text: line}); err != nil {
		s.sink.ShowNotification(ui.Notification{Level: ui.LevelError, Text: fmt.Sprintf("send failed: %v", err)})
	}
}
