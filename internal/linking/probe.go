package linking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// BotIdentity is what a successful probe learns about the linked bot.
type BotIdentity struct {
	Username    string
	DisplayName string
}

// Prober verifies a credential against the messaging platform.
type Prober interface {
	Probe(ctx context.Context, credential string) (*BotIdentity, error)
}

// TelegramProber checks a bot token with a getMe call.
type TelegramProber struct {
	apiURL  string
	timeout time.Duration
}

// NewTelegramProber creates a prober. An empty apiURL uses the public Bot API.
func NewTelegramProber(apiURL string, timeout time.Duration) *TelegramProber {
	return &TelegramProber{apiURL: apiURL, timeout: timeout}
}

type probeResult struct {
	identity *BotIdentity
	err      error
}

// Probe resolves the bot behind credential. The call is bounded both by ctx
// and by the prober's own HTTP timeout.
func (p *TelegramProber) Probe(ctx context.Context, credential string) (*BotIdentity, error) {
	done := make(chan probeResult, 1)

	go func() {
		// NewBot issues getMe unless Offline is set.
		b, err := tele.NewBot(tele.Settings{
			URL:    p.apiURL,
			Token:  credential,
			Client: &http.Client{Timeout: p.timeout},
		})
		if err != nil {
			done <- probeResult{err: probeError(err, credential)}
			return
		}
		done <- probeResult{identity: &BotIdentity{
			Username:    b.Me.Username,
			DisplayName: b.Me.FirstName,
		}}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("probe aborted: %w", ctx.Err())
	case res := <-done:
		return res.identity, res.err
	}
}

// ErrPlatformUnreachable reports that the Bot API could not be reached at all.
var ErrPlatformUnreachable = errors.New("telegram is unreachable")

// probeError turns a getMe failure into an error that is safe to log and
// show. Transport errors carry the request URL, which embeds the token.
func probeError(err error, credential string) error {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return errors.New(redactCredential(apiErr.Description, credential))
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %s", ErrPlatformUnreachable, redactCredential(urlErr.Err.Error(), credential))
	}
	return errors.New(redactCredential(err.Error(), credential))
}

func redactCredential(msg, credential string) string {
	if credential == "" {
		return msg
	}
	return strings.ReplaceAll(msg, credential, Fingerprint(credential))
}
