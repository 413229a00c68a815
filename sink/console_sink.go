package sink

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/gookit/color"
)

var _ contract.EventSink = (*ConsoleSink)(nil)

const consolePrefix = "[Chat UDP]"

// ConsoleSink is the terminal front end of a client: chat lines with the
// sender highlighted, notices behind a prefix.
type ConsoleSink struct {
	mu     sync.Mutex
	out    io.Writer
	sender color.Style
	notice color.Style
	plain  bool
}

func NewConsoleSink(out io.Writer, plain bool) *ConsoleSink {
	return &ConsoleSink{
		out:    out,
		sender: color.New(color.FgGreen, color.OpBold),
		notice: color.New(color.FgCyan),
		plain:  plain,
	}
}

func (s *ConsoleSink) Consume(_ context.Context, e event.DomainEvent) error {
	var line string
	switch evt := e.(type) {
	case event.ChatReceived:
		if evt.Sender == "" {
			line = string(evt.Text)
			break
		}
		line = fmt.Sprintf("%s: %s", s.paint(s.sender, "["+string(evt.Sender)+"]"), evt.Text)
	case event.Notice:
		line = fmt.Sprintf("%s %s", s.paint(s.notice, consolePrefix), evt.Text)
	default:
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.out, line)
	return err
}

func (s *ConsoleSink) paint(style color.Style, text string) string {
	if s.plain {
		return text
	}
	return style.Render(text)
}
