// Package telegram delivers reminders through a Telegram bot and accepts
// slash commands (for example /checkin) from the configured chat.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "habitbell/internal/runtime/supervisor"
	kit "habitbell/internal/transport"
	logx "habitbell/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// AllowedChats restricts commands. Empty accepts any chat.
	AllowedChats []int64
	// Offline builds the bot without contacting Telegram.
	Offline bool
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	mu       sync.Mutex
	running  bool
	sup      *rtsup.Supervisor
	commands []tele.Command
}

var (
	_ kit.Sender   = (*Adapter)(nil)
	_ kit.Receiver = (*Adapter)(nil)
)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: cfg.PollTimeout},
		Offline: cfg.Offline,
		OnError: func(err error, c tele.Context) {
			log.Warn("telegram handler error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

func (a *Adapter) Name() string { return "telegram" }

// Handle registers /name. Call before Start.
func (a *Adapter) Handle(name, description string, h kit.CommandHandler) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	a.mu.Lock()
	a.commands = append(a.commands, tele.Command{Text: name, Description: description})
	a.mu.Unlock()

	a.bot.Handle("/"+name, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil {
			return nil
		}
		if !a.allowed(m.Chat.ID) {
			a.log.Debug("command from foreign chat ignored", logx.String("cmd", name), logx.Int64("chat_id", m.Chat.ID))
			return nil
		}
		cmd := kit.Command{Name: name, Args: strings.TrimSpace(m.Payload), ChatID: m.Chat.ID, At: m.Time()}
		if m.Sender != nil {
			cmd.FromID = m.Sender.ID
		}
		ctx, cancel := context.WithTimeout(a.context(), 15*time.Second)
		defer cancel()
		reply, err := h(ctx, cmd)
		if err != nil {
			a.log.Warn("command failed", logx.String("cmd", name), logx.Err(err))
			return c.Reply("Sorry, that didn't work: " + err.Error())
		}
		if reply == "" {
			return nil
		}
		return c.Reply(reply)
	})
}

func (a *Adapter) allowed(chatID int64) bool {
	if len(a.cfg.AllowedChats) == 0 {
		return true
	}
	for _, id := range a.cfg.AllowedChats {
		if id == chatID {
			return true
		}
	}
	return false
}

func (a *Adapter) context() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sup != nil {
		return a.sup.Context()
	}
	return context.Background()
}

// Start publishes the command menu and runs the long-poll loop.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = true
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.Comp("telegram"))),
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	cmds := append([]tele.Command(nil), a.commands...)
	a.mu.Unlock()

	if len(cmds) > 0 && !a.cfg.Offline {
		if err := a.bot.SetCommands(cmds); err != nil {
			a.log.Warn("set bot commands failed", logx.Err(err))
		}
	}

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	// bot.Start blocks until Stop; restart it if it returns early.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	sup := a.sup
	wasRunning := a.running
	a.sup = nil
	a.running = false
	a.mu.Unlock()
	if !wasRunning || sup == nil {
		return nil
	}
	sup.Cancel()

	// Long-poll may still be waiting; don't hold shutdown hostage.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		a.log.Warn("telegram stop error", logx.Err(err))
	}
	return nil
}

const textLimit = 4000

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}
	var first kit.MessageRef
	for i, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			DisableNotification:   opt.Silent,
			ThreadID:              to.ThreadID,
		})
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// splitText cuts text into chunks of at most limit runes, preferring newline
// boundaries that don't leave tiny chunks.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
