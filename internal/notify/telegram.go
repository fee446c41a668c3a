package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramPresenter mirrors notifications to a Telegram chat, for reminders
// that must reach the user away from the machine. Cancel is a no-op: sent
// messages are left in the chat history.
type TelegramPresenter struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramPresenter(token string, chatID int64) (*TelegramPresenter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramPresenter{bot: bot, chatID: chatID}, nil
}

func (p *TelegramPresenter) PostRinging(s Snapshot) error {
	return p.send(fmt.Sprintf("🔔 <b>%s</b>\n\n%s", title(s), s.Body))
}

func (p *TelegramPresenter) PostMissed(s Snapshot) error {
	return p.send(fmt.Sprintf("⏰ <b>Missed: %s</b>\n\n%s", title(s), s.Body))
}

func (p *TelegramPresenter) PostSnoozed(s Snapshot) error {
	return p.send(fmt.Sprintf("💤 <b>Snoozed: %s</b>\n\n%s", title(s), s.Body))
}

func (p *TelegramPresenter) Cancel(id int64) error { return nil }

func (p *TelegramPresenter) send(text string) error {
	msg := tgbotapi.NewMessage(p.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := p.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
