// Package bot is the Telegram front end: commands, menu buttons and replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/zunhub/zun/internal/chat"
	"github.com/zunhub/zun/internal/ledger"
	"github.com/zunhub/zun/internal/linking"
	"github.com/zunhub/zun/internal/middleware"
	"github.com/zunhub/zun/internal/store"
)

// Asker answers metered questions.
type Asker interface {
	Ask(ctx context.Context, userID, text string, opts ...chat.AskOption) (*chat.Reply, error)
}

// Linker links secondary bots.
type Linker interface {
	Link(ctx context.Context, userID, raw string) (*linking.Result, error)
}

// Profile is the assistant's self-description.
type Profile struct {
	BotName  string
	Birthday string
	Engine   string
	Storage  string
}

// Config configures the Telegram connection.
type Config struct {
	Token       string
	APIURL      string
	PollTimeout time.Duration
	// RequestTimeout bounds the work done for a single update.
	RequestTimeout time.Duration
	Profile        Profile
}

// Deps are the services the bot talks to.
type Deps struct {
	Ledger        *ledger.Ledger
	Linker        Linker
	Chat          Asker
	Registrations store.RegistrationStore
	Catalog       *Catalog
	Logger        *slog.Logger
}

// Bot routes Telegram updates to the services.
type Bot struct {
	tb            *tele.Bot
	ledger        *ledger.Ledger
	linker        Linker
	chat          Asker
	registrations store.RegistrationStore
	catalog       *Catalog
	profile       Profile
	timeout       time.Duration
	logger        *slog.Logger
}

// New connects to Telegram and registers the handlers.
func New(cfg Config, deps Deps) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram bot token not configured")
	}
	b := newBot(cfg, deps)

	tb, err := tele.NewBot(tele.Settings{
		URL:    cfg.APIURL,
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
		OnError: func(err error, c tele.Context) {
			log := b.logger
			if c != nil {
				log = middleware.GetLogger(c, b.logger)
			}
			log.Error("telegram handler error", "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	b.tb = tb

	b.logger.Info("telegram: connected", "bot", "@"+tb.Me.Username, "name", tb.Me.FirstName)

	b.register()
	return b, nil
}

func newBot(cfg Config, deps Deps) *Bot {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	catalog := deps.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	profile := cfg.Profile
	if profile.BotName == "" {
		profile.BotName = "Zun"
	}

	return &Bot{
		ledger:        deps.Ledger,
		linker:        deps.Linker,
		chat:          deps.Chat,
		registrations: deps.Registrations,
		catalog:       catalog,
		profile:       profile,
		timeout:       timeout,
		logger:        logger.With("component", "bot"),
	}
}

func (b *Bot) register() {
	b.tb.Use(
		middleware.Recoverer(b.logger),
		middleware.RequestID(b.logger),
		middleware.Logger(b.logger),
	)

	b.tb.Handle("/start", b.handleStart)
	b.tb.Handle("/link", b.handleLink)
	b.tb.Handle("/balance", b.handleBalance)
	b.tb.Handle("/stats", b.handleStats)
	b.tb.Handle("/help", b.handleStatic("help"))
	b.tb.Handle("/chat", b.handleStatic("chat_mode"))
	b.tb.Handle("/about", b.handleStatic("about"))

	b.tb.Handle(&btnChat, b.handleStatic("chat_mode"))
	b.tb.Handle(&btnLink, b.handleStatic("link_guide"))
	b.tb.Handle(&btnBalance, b.handleBalance)
	b.tb.Handle(&btnStats, b.handleStats)
	b.tb.Handle(&btnHelp, b.handleStatic("help"))
	b.tb.Handle(&btnAbout, b.handleStatic("about"))

	b.tb.Handle(&btnLinkGuide, b.handleLinkGuideCallback)
	b.tb.Handle(tele.OnText, b.handleText)
}

// Start polls for updates until Stop is called.
func (b *Bot) Start() {
	b.tb.Start()
}

// Stop ends polling.
func (b *Bot) Stop() {
	b.tb.Stop()
}

// Run polls until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		b.Start()
	}()

	select {
	case <-ctx.Done():
		b.Stop()
		<-stopped
		return nil
	case <-stopped:
		return errors.New("telegram poller stopped unexpectedly")
	}
}

func (b *Bot) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), b.timeout)
}

func senderID(c tele.Context) string {
	return strconv.FormatInt(c.Sender().ID, 10)
}

func (b *Bot) handleStart(c tele.Context) error {
	ctx, cancel := b.context()
	defer cancel()
	return b.deliver(c, b.startView(ctx, senderID(c), c.Sender().FirstName), false)
}

func (b *Bot) handleStatic(key string) tele.HandlerFunc {
	return func(c tele.Context) error {
		return b.deliver(c, b.staticView(key), false)
	}
}

func (b *Bot) handleBalance(c tele.Context) error {
	ctx, cancel := b.context()
	defer cancel()
	return b.deliver(c, b.balanceView(ctx, senderID(c)), false)
}

func (b *Bot) handleStats(c tele.Context) error {
	ctx, cancel := b.context()
	defer cancel()
	return b.deliver(c, b.statsView(ctx, senderID(c)), false)
}

func (b *Bot) handleLink(c tele.Context) error {
	ctx, cancel := b.context()
	defer cancel()

	_ = c.Notify(tele.Typing)
	return b.deliver(c, b.linkView(ctx, senderID(c), c.Message().Payload), true)
}

func (b *Bot) handleLinkGuideCallback(c tele.Context) error {
	_ = c.Respond()
	return b.deliver(c, b.staticView("link_guide"), false)
}

func (b *Bot) handleText(c tele.Context) error {
	text := c.Text()
	if strings.HasPrefix(text, "/") {
		return b.deliver(c, b.staticView("help"), false)
	}

	ctx, cancel := b.context()
	defer cancel()

	_ = c.Notify(tele.Typing)
	reply, err := b.chat.Ask(ctx, senderID(c), text, chat.WithFallbackNotice(func() {
		_ = c.Reply(b.catalog.Render("fallback_notice", nil))
		_ = c.Notify(tele.Typing)
	}))
	if err != nil {
		middleware.GetLogger(c, b.logger).Error("chat failed", "error", err)
		return b.deliver(c, b.staticView("retry_later"), true)
	}
	return b.deliver(c, b.answerView(reply), true)
}

// deliver sends v, retrying without Markdown if Telegram rejects the markup.
func (b *Bot) deliver(c tele.Context, v view, asReply bool) error {
	send := c.Send
	if asReply && c.Message() != nil {
		send = c.Reply
	}

	opts := make([]any, 0, 2)
	if v.markup != nil {
		opts = append(opts, v.markup)
	}
	if v.plain {
		return send(v.text, opts...)
	}

	err := send(v.text, append(opts, tele.ModeMarkdown)...)
	if err != nil && isParseError(err) {
		middleware.GetLogger(c, b.logger).Debug("markdown rejected, resending as plain text", "error", err)
		return send(v.text, opts...)
	}
	return err
}

func isParseError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "can't parse entities")
}
