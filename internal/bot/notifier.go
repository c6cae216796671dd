package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/d2avids/helper-bot/internal/match"
)

// Notifier — реализация match.Notifier поверх Telegram.
// Fire-and-forget: доставку не ждём, ошибки только логируем на вызывающей
// стороне ядра.
type Notifier struct {
	api             *tgbotapi.BotAPI
	moderatorChatID int64
	log             *zap.Logger
}

func NewNotifier(api *tgbotapi.BotAPI, moderatorChatID int64, log *zap.Logger) *Notifier {
	return &Notifier{api: api, moderatorChatID: moderatorChatID, log: log}
}

func (n *Notifier) PromptCandidates(_ context.Context, telegramID int64, cands []match.Candidate) error {
	var lines []string
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, c := range cands {
		label := fmt.Sprintf("%s (%s-%s)", c.HelperHandle, c.Start.Format("15:04"), c.End.Format("15:04"))
		lines = append(lines, "@"+label)
		btn := tgbotapi.NewInlineKeyboardButtonData(label, EncodeSelection(match.Selection{
			HelperID: c.HelperID,
			Start:    c.Start,
			End:      c.End,
		}))
		rows = append(rows, []tgbotapi.InlineKeyboardButton{btn})
	}

	msg := tgbotapi.NewMessage(telegramID,
		"Нашёл помощников на выбранное время:\n\n"+strings.Join(lines, "\n")+
			"\n\nСвяжитесь с ними, а после нажмите кнопку с пользователем, с которым удалось договориться:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, err := n.api.Send(msg)
	return err
}

func (n *Notifier) PromptConfirmation(_ context.Context, telegramID int64, counterpartHandle string, ref match.CheckRef) error {
	yes := match.ConfirmReply{Yes: true, RequesterTelegramID: ref.RequesterTelegramID, HelperID: ref.HelperID}
	no := match.ConfirmReply{Yes: false, RequesterTelegramID: ref.RequesterTelegramID, HelperID: ref.HelperID}

	msg := tgbotapi.NewMessage(telegramID,
		fmt.Sprintf("Удалось ли вам договориться с пользователем @%s? Пожалуйста, выберите \"Да\" или \"Нет\":", counterpartHandle))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("Да", EncodeConfirm(yes)),
			tgbotapi.NewInlineKeyboardButtonData("Нет", EncodeConfirm(no)),
		},
	)
	_, err := n.api.Send(msg)
	return err
}

func (n *Notifier) NotifyModerator(_ context.Context, requesterHandle, helperHandle string, start, end time.Time) error {
	text := fmt.Sprintf(
		"Проблема с подтверждением встречи.\n\n"+
			"Запросил помощь: @%s.\n"+
			"Предложил помощь: @%s.\n\n"+
			"Слот: %s - %s",
		requesterHandle, helperHandle,
		start.Format("2006-01-02 15:04"), end.Format("15:04"))
	_, err := n.api.Send(tgbotapi.NewMessage(n.moderatorChatID, text))
	return err
}
