package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	"github.com/zunhub/zun/internal/chat"
	"github.com/zunhub/zun/internal/ledger"
	"github.com/zunhub/zun/internal/linking"
	"github.com/zunhub/zun/internal/model"
	"github.com/zunhub/zun/internal/store"
)

// maxMessageLength stays under Telegram's 4096 character limit.
const maxMessageLength = 4000

// view is one outgoing message.
type view struct {
	text   string
	markup *tele.ReplyMarkup
	// plain disables Markdown, for texts we do not control.
	plain bool
}

func (b *Bot) policyData() map[string]any {
	p := b.ledger.Policy()
	return map[string]any{
		"BotName":   b.profile.BotName,
		"Birthday":  b.profile.Birthday,
		"Engine":    b.profile.Engine,
		"Storage":   b.profile.Storage,
		"Bonus":     p.BonusUnit,
		"UnitCost":  p.UnitCost,
		"ResetDays": int(math.Round(p.ResetPeriod.Hours() / 24)),
	}
}

func (b *Bot) staticView(key string) view {
	return view{text: b.catalog.Render(key, b.policyData())}
}

func (b *Bot) startView(ctx context.Context, userID, name string) view {
	if _, err := b.ledger.GetOrCreate(ctx, userID); err != nil {
		b.logger.Warn("start without account", "user_id", userID, "error", err)
	}

	data := b.policyData()
	data["Name"] = name
	return view{text: b.catalog.Render("start", data), markup: mainMenu}
}

func (b *Bot) balanceView(ctx context.Context, userID string) view {
	if _, err := b.ledger.MaybeReset(ctx, userID); err != nil {
		return b.staticView("service_degraded")
	}
	acc, err := b.ledger.GetOrCreate(ctx, userID)
	if err != nil {
		return b.staticView("service_degraded")
	}

	unit := b.ledger.Policy().UnitCost
	v := view{text: b.catalog.Render("balance", map[string]any{
		"Balance":   acc.Balance,
		"Linked":    acc.LinkedCount(),
		"Questions": acc.TotalRequests,
		"Remaining": acc.RemainingRequests(unit),
		"Short":     !acc.CanAfford(unit),
		"Degraded":  acc.Degraded,
	})}
	if acc.LinkedCount() == 0 && !acc.Degraded {
		v.markup = linkGuideMarkup(b.catalog.Render("link_button", nil))
	}
	return v
}

func (b *Bot) statsView(ctx context.Context, userID string) view {
	acc, err := b.ledger.GetOrCreate(ctx, userID)
	if err != nil {
		return b.staticView("service_degraded")
	}
	if acc.LinkedCount() == 0 {
		return view{text: b.catalog.Render("stats_empty", b.policyData()), markup: mainMenu, plain: true}
	}

	return view{text: b.catalog.Render("stats", map[string]any{
		"Bots":      b.botList(ctx, acc),
		"Balance":   acc.Balance,
		"Questions": acc.TotalRequests,
	})}
}

// botList resolves each linked credential to its @username, numbering from 1.
func (b *Bot) botList(ctx context.Context, acc *model.Account) []string {
	lines := make([]string, 0, acc.LinkedCount())
	for i, credential := range acc.LinkedCredentials {
		n := i + 1
		reg, err := b.registrations.GetRegistration(ctx, credential)
		if err != nil && !errors.Is(err, store.ErrRegistrationNotFound) {
			b.logger.Warn("registration lookup failed", "credential", linking.Fingerprint(credential), "error", err)
		}
		if err != nil || reg.Handle() == "" {
			lines = append(lines, fmt.Sprintf("%d. Bot #%d", n, n))
			continue
		}
		lines = append(lines, fmt.Sprintf("%d. %s", n, escapeMarkdown(reg.Handle())))
	}
	return lines
}

func (b *Bot) linkView(ctx context.Context, userID, payload string) view {
	res, err := b.linker.Link(ctx, userID, payload)
	if err == nil {
		return view{text: b.catalog.Render("link_success", map[string]any{
			"Handle": escapeMarkdown(res.Handle()),
			"Bonus":  res.Bonus,
		})}
	}

	switch {
	case errors.Is(err, linking.ErrMissingCredential):
		return b.staticView("link_usage")
	case errors.Is(err, linking.ErrInvalidFormat):
		return view{text: b.catalog.Render("link_invalid_format", nil), plain: true}
	case errors.Is(err, linking.ErrInvalidCredential):
		return view{text: b.catalog.Render("link_invalid_credential", map[string]any{"Cause": probeCause(err)}), plain: true}
	case errors.Is(err, linking.ErrAlreadyLinked):
		return view{text: b.catalog.Render("link_duplicate", nil), plain: true}
	case errors.Is(err, linking.ErrLinkInProgress):
		return view{text: b.catalog.Render("link_in_progress", nil), plain: true}
	case errors.Is(err, linking.ErrLinkPending):
		return view{text: b.catalog.Render("link_pending", nil), plain: true}
	case errors.Is(err, linking.ErrUnavailable), errors.Is(err, ledger.ErrStoreUnavailable):
		return view{text: b.catalog.Render("link_unavailable", nil), plain: true}
	}

	b.logger.Error("link failed", "user_id", userID, "error", err)
	return b.staticView("retry_later")
}

// probeCause returns the platform's reason without our sentinel prefix.
func probeCause(err error) string {
	msg := err.Error()
	prefix := linking.ErrInvalidCredential.Error() + ": "
	return strings.TrimPrefix(msg, prefix)
}

func (b *Bot) noPointsView() view {
	return view{
		text:   b.catalog.Render("no_points", b.policyData()),
		markup: linkGuideMarkup(b.catalog.Render("link_button", nil)),
	}
}

func (b *Bot) answerView(reply *chat.Reply) view {
	switch reply.Outcome {
	case chat.OutcomeAnswered:
		text := truncate(reply.Text, maxMessageLength-100)
		key := "answer_footer"
		if reply.Degraded {
			key = "answer_degraded"
		}
		return view{text: b.catalog.Render(key, map[string]any{
			"Text":      text,
			"Balance":   reply.Balance,
			"Remaining": reply.Remaining,
		})}
	case chat.OutcomeInsufficient:
		return b.noPointsView()
	case chat.OutcomeEmpty:
		return view{text: b.catalog.Render("empty_answer", nil), plain: true}
	case chat.OutcomeBackendUnavailable:
		return view{text: b.catalog.Render("backend_unavailable", nil), plain: true}
	case chat.OutcomeRateLimited:
		return view{text: b.catalog.Render("rate_limited", map[string]any{
			"Seconds": int(math.Ceil(reply.RetryAfter.Seconds())),
		}), plain: true}
	case chat.OutcomeStoreUnavailable:
		return b.staticView("service_degraded")
	}
	return view{text: b.catalog.Render("retry_later", nil), plain: true}
}

// escapeMarkdown escapes the legacy Markdown control characters.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}
