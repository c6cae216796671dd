package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/d2avids/helper-bot/internal/domain"
)

// Service — матчер и конечный автомат подтверждения встречи.
type Service struct {
	runner Runner
	sched  Scheduler
	notify Notifier
	delay  time.Duration
	log    *zap.Logger
}

func NewService(runner Runner, sched Scheduler, notify Notifier, confirmDelay time.Duration, log *zap.Logger) *Service {
	return &Service{
		runner: runner,
		sched:  sched,
		notify: notify,
		delay:  confirmDelay,
		log:    log,
	}
}

// SubmitRequest сохраняет REQUEST-слот и возвращает пересекающиеся
// непомеченные офферы. Пустой список — не ошибка: проситель ждёт,
// следующий оффер сам его найдёт.
func (s *Service) SubmitRequest(ctx context.Context, from Identity, start, end time.Time) ([]Candidate, error) {
	var cands []Candidate
	err := s.runner.InTx(ctx, func(ctx context.Context, st Stores) error {
		user, err := st.Users.GetOrCreate(ctx, from.TelegramID, from.Username)
		if err != nil {
			return err
		}
		slot, err := domain.NewTimeSlot(user.ID, domain.KindRequest, start, end)
		if err != nil {
			return err
		}
		if err := st.Slots.Create(ctx, &slot); err != nil {
			return err
		}
		found, err := st.Slots.Candidates(ctx, domain.KindOffer, start, end)
		if err != nil {
			return err
		}
		for _, c := range found {
			cands = append(cands, Candidate{
				HelperID:     c.Slot.UserID,
				HelperHandle: c.OwnerHandle,
				Start:        c.Slot.Start,
				End:          c.Slot.End,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cands, nil
}

// SubmitOffer сохраняет OFFER-слот, находит пересекающиеся запросы и
// пушит каждому просителю кнопку с новым оффером. Возвращает число
// уведомлённых просителей.
func (s *Service) SubmitOffer(ctx context.Context, from Identity, start, end time.Time) (int, error) {
	var (
		offer      Candidate
		requesters []int64
	)
	err := s.runner.InTx(ctx, func(ctx context.Context, st Stores) error {
		user, err := st.Users.GetOrCreate(ctx, from.TelegramID, from.Username)
		if err != nil {
			return err
		}
		slot, err := domain.NewTimeSlot(user.ID, domain.KindOffer, start, end)
		if err != nil {
			return err
		}
		if err := st.Slots.Create(ctx, &slot); err != nil {
			return err
		}
		offer = Candidate{
			HelperID:     user.ID,
			HelperHandle: user.Handle(),
			Start:        slot.Start,
			End:          slot.End,
		}
		reqs, err := st.Slots.Candidates(ctx, domain.KindRequest, start, end)
		if err != nil {
			return err
		}
		for _, r := range reqs {
			requesters = append(requesters, r.OwnerTelegram)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, tg := range requesters {
		if err := s.notify.PromptCandidates(ctx, tg, []Candidate{offer}); err != nil {
			s.log.Warn("notify requester", zap.Int64("telegram_id", tg), zap.Error(err))
		}
	}
	return len(requesters), nil
}

// SelectionResult — данные для ответа просителю после выбора кандидата.
type SelectionResult struct {
	State        State
	HelperHandle string
	OfferStart   time.Time
	OfferEnd     time.Time
	ReqStart     time.Time
	ReqEnd       time.Time
	CheckAt      time.Time
}

// SelectCandidate — переход proposed → tentative → awaiting_confirmation.
// Помечается только слот просителя; оффер остаётся доступным другим
// просителям до фактического подтверждения.
func (s *Service) SelectCandidate(ctx context.Context, requesterTG int64, sel Selection) (SelectionResult, error) {
	var res SelectionResult
	err := s.runner.InTx(ctx, func(ctx context.Context, st Stores) error {
		offerSlot, err := st.Slots.ByOwnerTime(ctx, sel.HelperID, domain.KindOffer, sel.Start, sel.End)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrCandidateGone
		}
		if err != nil {
			return err
		}
		if offerSlot.Matched {
			return domain.ErrCandidateGone
		}

		reqSlot, err := st.Slots.LatestUnmatchedOverlap(ctx, requesterTG, domain.KindRequest, offerSlot.Start, offerSlot.End)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNoOverlappingRequest
		}
		if err != nil {
			return err
		}

		if err := st.Slots.MarkMatched(ctx, reqSlot.ID, offerSlot.UserID); err != nil {
			return err
		}

		helper, err := st.Users.ByID(ctx, sel.HelperID)
		if err != nil {
			return fmt.Errorf("helper lookup: %w", err)
		}

		checkAt := offerSlot.End
		if reqSlot.End.After(checkAt) {
			checkAt = reqSlot.End
		}
		res = SelectionResult{
			State:        StateTentative,
			HelperHandle: helper.Handle(),
			OfferStart:   offerSlot.Start,
			OfferEnd:     offerSlot.End,
			ReqStart:     reqSlot.Start,
			ReqEnd:       reqSlot.End,
			CheckAt:      checkAt.Add(s.delay),
		}
		return nil
	})
	if err != nil {
		return SelectionResult{}, err
	}

	// Планирование — единственный сайд-эффект перехода
	// tentative → awaiting_confirmation, вне транзакции события.
	ref := CheckRef{RequesterTelegramID: requesterTG, HelperID: sel.HelperID}
	if err := s.sched.Schedule(ctx, res.CheckAt, ref); err != nil {
		return SelectionResult{}, fmt.Errorf("schedule check: %w", err)
	}
	res.State = StateAwaitingConfirmation
	s.log.Info("match tentative, check scheduled",
		zap.Int64("requester_tg", requesterTG),
		zap.Int64("helper_id", sel.HelperID),
		zap.Time("check_at", res.CheckAt))
	return res, nil
}

// RunDeferredCheck — колбэк планировщика: спросить обе стороны,
// состоялась ли встреча. Падение поиска участника прерывает проверку,
// повторов нет.
func (s *Service) RunDeferredCheck(ctx context.Context, ref CheckRef) error {
	var requester, helper domain.User
	err := s.runner.InTx(ctx, func(ctx context.Context, st Stores) error {
		var err error
		if requester, err = st.Users.ByTelegramID(ctx, ref.RequesterTelegramID); err != nil {
			return fmt.Errorf("requester lookup: %w", err)
		}
		if helper, err = st.Users.ByID(ctx, ref.HelperID); err != nil {
			return fmt.Errorf("helper lookup: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.notify.PromptConfirmation(ctx, requester.TelegramID, helper.Handle(), ref); err != nil {
		s.log.Warn("prompt requester", zap.Int64("telegram_id", requester.TelegramID), zap.Error(err))
	}
	if err := s.notify.PromptConfirmation(ctx, helper.TelegramID, requester.Handle(), ref); err != nil {
		s.log.Warn("prompt helper", zap.Int64("telegram_id", helper.TelegramID), zap.Error(err))
	}
	return nil
}

// ConfirmResult — исход финального перехода.
type ConfirmResult struct {
	State           State
	RequesterHandle string
	HelperHandle    string
}

// HandleConfirmation — переход awaiting_confirmation → confirmed | disputed.
// Только здесь помечается слот помощника. Ответ любой из сторон финален;
// проигранная гонка за оффер логируется и не ломает исход.
func (s *Service) HandleConfirmation(ctx context.Context, reply ConfirmReply) (ConfirmResult, error) {
	var (
		res      ConfirmResult
		reqStart time.Time
		reqEnd   time.Time
	)
	err := s.runner.InTx(ctx, func(ctx context.Context, st Stores) error {
		reqSlot, err := st.Slots.LatestMatchedBy(ctx, reply.RequesterTelegramID, reply.HelperID)
		if err != nil {
			return fmt.Errorf("matched request lookup: %w", err)
		}
		reqStart, reqEnd = reqSlot.Start, reqSlot.End

		requester, err := st.Users.ByTelegramID(ctx, reply.RequesterTelegramID)
		if err != nil {
			return fmt.Errorf("requester lookup: %w", err)
		}
		helper, err := st.Users.ByID(ctx, reply.HelperID)
		if err != nil {
			return fmt.Errorf("helper lookup: %w", err)
		}

		helperSlot, err := st.Slots.EarliestUnmatchedOverlap(ctx, reply.HelperID, domain.KindOffer, reqSlot.Start, reqSlot.End)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// оффер уже закрыт (например, повторный ответ второй стороны)
		case err != nil:
			return err
		default:
			if err := st.Slots.MarkMatched(ctx, helperSlot.ID, requester.ID); err != nil {
				if !errors.Is(err, domain.ErrConcurrentMatch) {
					return err
				}
				s.log.Info("offer already taken concurrently", zap.Int64("slot_id", helperSlot.ID))
			}
		}

		res = ConfirmResult{
			State:           StateConfirmed,
			RequesterHandle: requester.Handle(),
			HelperHandle:    helper.Handle(),
		}
		if !reply.Yes {
			res.State = StateDisputed
		}
		return nil
	})
	if err != nil {
		return ConfirmResult{}, err
	}

	if res.State == StateDisputed {
		if err := s.notify.NotifyModerator(ctx, res.RequesterHandle, res.HelperHandle, reqStart, reqEnd); err != nil {
			s.log.Warn("notify moderator", zap.Error(err))
		}
	}
	return res, nil
}
