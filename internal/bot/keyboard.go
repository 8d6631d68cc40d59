package bot

import tele "gopkg.in/telebot.v4"

// Menu labels.
const (
	LabelChat    = "💬 Chat with Zun"
	LabelLink    = "🔗 Link a bot"
	LabelBalance = "💰 My points"
	LabelStats   = "📊 Stats"
	LabelHelp    = "❓ Help"
	LabelAbout   = "👤 About Zun"
)

// CallbackLinkGuide is the inline button payload that opens the link guide.
const CallbackLinkGuide = "link_guide"

var (
	mainMenu = &tele.ReplyMarkup{ResizeKeyboard: true}

	btnChat    = mainMenu.Text(LabelChat)
	btnLink    = mainMenu.Text(LabelLink)
	btnBalance = mainMenu.Text(LabelBalance)
	btnStats   = mainMenu.Text(LabelStats)
	btnHelp    = mainMenu.Text(LabelHelp)
	btnAbout   = mainMenu.Text(LabelAbout)
)

func init() {
	mainMenu.Reply(
		mainMenu.Row(btnChat, btnLink),
		mainMenu.Row(btnBalance, btnStats),
		mainMenu.Row(btnHelp, btnAbout),
	)
}

// linkGuideMarkup returns an inline keyboard with a single link guide button.
func linkGuideMarkup(label string) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	btn := m.Data(label, CallbackLinkGuide)
	m.Inline(m.Row(btn))
	return m
}

// btnLinkGuide is registered to route the inline callback.
var btnLinkGuide = (&tele.ReplyMarkup{}).Data("", CallbackLinkGuide)
