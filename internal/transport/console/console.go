// Package console delivers notifications to a writer (stdout by default) and
// the log. It is the transport used when no chat platform is configured.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	kit "habitbell/internal/transport"
	logx "habitbell/pkg/logx"
)

type Sender struct {
	mu  sync.Mutex
	w   io.Writer
	log logx.Logger
	seq int
	now func() time.Time
}

var _ kit.Sender = (*Sender)(nil)

func New(w io.Writer, log logx.Logger) *Sender {
	if w == nil {
		w = os.Stdout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{w: w, log: log, now: time.Now}
}

func (s *Sender) Name() string { return "console" }

func (s *Sender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	stamp := s.now().Format("15:04:05")
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, ln := range lines {
		prefix := "         "
		if i == 0 {
			prefix = stamp + " "
		}
		if _, err := fmt.Fprintln(s.w, prefix+ln); err != nil {
			return kit.MessageRef{}, err
		}
	}
	s.log.Debug("notification written", logx.Int("seq", s.seq), logx.Int64("chat_id", to.ChatID))
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: s.seq}, nil
}
