package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/d2avids/helper-bot/internal/dialog"
	"github.com/d2avids/helper-bot/internal/domain"
	"github.com/d2avids/helper-bot/internal/match"
)

const (
	actionOffer = "Помочь"
	actionAsk   = "Попросить помощь"

	formatHint = "в формате YYYY-MM-DD HH:MM-HH:MM. Например, 2024-06-20 09:00-12:00"
)

var actionsKeyboard = tgbotapi.NewReplyKeyboard(
	[]tgbotapi.KeyboardButton{tgbotapi.NewKeyboardButton(actionOffer)},
	[]tgbotapi.KeyboardButton{tgbotapi.NewKeyboardButton(actionAsk)},
)

type Handler struct {
	api     *tgbotapi.BotAPI
	svc     *match.Service
	notify  *Notifier
	dialogs dialog.Store
	log     *zap.Logger
}

func NewHandler(api *tgbotapi.BotAPI, svc *match.Service, notify *Notifier, dialogs dialog.Store, log *zap.Logger) *Handler {
	return &Handler{api: api, svc: svc, notify: notify, dialogs: dialogs, log: log}
}

func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		h.HandleCallback(ctx, upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}

	msg := upd.Message
	// работаем только в личке
	if !msg.Chat.IsPrivate() {
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	chatID := msg.Chat.ID

	switch {
	case strings.HasPrefix(text, "/start"):
		_ = h.dialogs.Clear(ctx, chatID)
		h.replyWithKeyboard(chatID,
			fmt.Sprintf("Привет! Чем могу помочь? Выберите действие: %s или %s.", actionOffer, actionAsk))
		return
	case strings.HasPrefix(text, "/cancel"):
		_ = h.dialogs.Clear(ctx, chatID)
		h.reply(chatID, "Ок, отменил.")
		return
	case text == actionOffer:
		_ = h.dialogs.Set(ctx, chatID, dialog.StepAwaitOffer)
		h.reply(chatID, "Пожалуйста, укажите время, когда вы готовы помочь "+formatHint)
		return
	case text == actionAsk:
		_ = h.dialogs.Set(ctx, chatID, dialog.StepAwaitRequest)
		h.reply(chatID, "Пожалуйста, укажите время, когда вам нужна помощь "+formatHint)
		return
	}

	step, err := h.dialogs.Get(ctx, chatID)
	if err != nil {
		h.log.Warn("dialog state", zap.Int64("chat_id", chatID), zap.Error(err))
		step = dialog.StepIdle
	}

	switch step {
	case dialog.StepAwaitRequest:
		h.handleRequestSlot(ctx, msg)
	case dialog.StepAwaitOffer:
		h.handleOfferSlot(ctx, msg)
	default:
		h.replyWithKeyboard(chatID,
			fmt.Sprintf("Выберите действие: %s или %s.", actionOffer, actionAsk))
	}
}

func (h *Handler) handleRequestSlot(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	start, end, err := ParseTimeSlot(msg.Text)
	if err != nil {
		// остаёмся на том же шаге, перепрашиваем
		h.reply(chatID, "Неверный формат. Пожалуйста, укажите время "+formatHint)
		return
	}

	cands, err := h.svc.SubmitRequest(ctx, identity(msg.From), start, end)
	if err != nil {
		h.log.Error("submit request", zap.Int64("chat_id", chatID), zap.Error(err))
		h.reply(chatID, "Не получилось сохранить слот. Попробуйте ещё раз.")
		return
	}

	if len(cands) == 0 {
		_ = h.dialogs.Clear(ctx, chatID)
		h.reply(chatID, "К сожалению, на указанное время никого нет. "+
			"Продолжаю искать. Я уведомлю вас, как только кто-то найдётся.")
		return
	}

	_ = h.dialogs.Set(ctx, chatID, dialog.StepChoosing)
	if err := h.notify.PromptCandidates(ctx, chatID, cands); err != nil {
		h.log.Warn("send candidates", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (h *Handler) handleOfferSlot(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	start, end, err := ParseTimeSlot(msg.Text)
	if err != nil {
		h.reply(chatID, "Неверный формат. Пожалуйста, укажите время "+formatHint)
		return
	}

	if _, err := h.svc.SubmitOffer(ctx, identity(msg.From), start, end); err != nil {
		h.log.Error("submit offer", zap.Int64("chat_id", chatID), zap.Error(err))
		h.reply(chatID, "Не получилось сохранить слот. Попробуйте ещё раз.")
		return
	}

	_ = h.dialogs.Clear(ctx, chatID)
	h.reply(chatID, "Вы указали временной слот: "+msg.Text)
}

func (h *Handler) HandleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	// обязательно отвечаем Telegram
	defer h.api.Request(tgbotapi.NewCallback(q.ID, ""))

	if reply, ok := ParseConfirm(q.Data); ok {
		h.handleConfirmCallback(ctx, q, reply)
		return
	}
	if sel, ok := ParseSelection(q.Data); ok {
		h.handleSelectionCallback(ctx, q, sel)
		return
	}
	h.log.Warn("unknown callback data", zap.String("data", q.Data))
}

func (h *Handler) handleSelectionCallback(ctx context.Context, q *tgbotapi.CallbackQuery, sel match.Selection) {
	res, err := h.svc.SelectCandidate(ctx, q.From.ID, sel)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrCandidateGone),
		errors.Is(err, domain.ErrNoOverlappingRequest),
		errors.Is(err, domain.ErrConcurrentMatch):
		// кандидат устарел: без повтора, пользователь подаёт запрос заново
		h.editText(q, "Ошибка при подтверждении встречи. Слот не найден.")
		return
	default:
		h.log.Error("select candidate", zap.Int64("from", q.From.ID), zap.Error(err))
		h.editText(q, "Ошибка при подтверждении встречи. Пользователь не найден.")
		return
	}

	_ = h.dialogs.Clear(ctx, q.From.ID)
	h.editText(q, fmt.Sprintf(
		"Вы выбрали помощь от пользователя @%s.\n"+
			"Слот помощника: %s - %s\n"+
			"Ваш слот: %s - %s\n"+
			"Мы напомним вам через час после встречи для подтверждения.",
		res.HelperHandle,
		res.OfferStart.Format("2006-01-02 15:04"), res.OfferEnd.Format("15:04"),
		res.ReqStart.Format("2006-01-02 15:04"), res.ReqEnd.Format("15:04")))
}

func (h *Handler) handleConfirmCallback(ctx context.Context, q *tgbotapi.CallbackQuery, reply match.ConfirmReply) {
	res, err := h.svc.HandleConfirmation(ctx, reply)
	if err != nil {
		h.log.Error("handle confirmation", zap.Int64("from", q.From.ID), zap.Error(err))
		h.editText(q, "Ошибка при подтверждении встречи. Пользователь не найден.")
		return
	}

	if res.State == match.StateDisputed {
		h.editText(q, "Похоже, что что-то пошло не так. Я сообщу модератору для проверки.")
		return
	}
	h.editText(q, "Спасибо за подтверждение! Рады, что вы смогли помочь друг другу.")
}

func identity(from *tgbotapi.User) match.Identity {
	username := ""
	if from != nil {
		username = from.UserName
	}
	var tg int64
	if from != nil {
		tg = from.ID
	}
	return match.Identity{TelegramID: tg, Username: username}
}

func (h *Handler) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.api.Send(msg); err != nil {
		h.log.Warn("send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (h *Handler) replyWithKeyboard(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	kb := actionsKeyboard
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	msg.ReplyMarkup = kb
	if _, err := h.api.Send(msg); err != nil {
		h.log.Warn("send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (h *Handler) editText(q *tgbotapi.CallbackQuery, text string) {
	if q.Message == nil {
		return
	}
	edit := tgbotapi.NewEditMessageText(q.Message.Chat.ID, q.Message.MessageID, text)
	if _, err := h.api.Send(edit); err != nil {
		h.log.Warn("edit message", zap.Int64("chat_id", q.Message.Chat.ID), zap.Error(err))
	}
}
