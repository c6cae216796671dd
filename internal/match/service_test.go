package match_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/d2avids/helper-bot/internal/domain"
	"github.com/d2avids/helper-bot/internal/match"
)

// memStore — UserDirectory и SlotStore в памяти с той же семантикой,
// что и Postgres-репозитории, включая CAS на matched.
type memStore struct {
	mu       sync.Mutex
	users    []domain.User
	slots    []*domain.TimeSlot
	nextUser int64
	nextSlot int64
}

func newMemStore() *memStore { return &memStore{} }

func (m *memStore) GetOrCreate(_ context.Context, telegramID int64, username string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, u := range m.users {
		if u.TelegramID == telegramID {
			m.users[i].Username = username
			return m.users[i], nil
		}
	}
	m.nextUser++
	u := domain.User{ID: m.nextUser, TelegramID: telegramID, Username: username, CreatedAt: time.Now()}
	m.users = append(m.users, u)
	return u, nil
}

func (m *memStore) ByID(_ context.Context, id int64) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (m *memStore) ByTelegramID(_ context.Context, telegramID int64) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.TelegramID == telegramID {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (m *memStore) Create(_ context.Context, s *domain.TimeSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSlot++
	s.ID = m.nextSlot
	s.CreatedAt = time.Now()
	cp := *s
	m.slots = append(m.slots, &cp)
	return nil
}

func overlaps(s *domain.TimeSlot, start, end time.Time) bool {
	return !s.Start.After(end) && !start.After(s.End)
}

func (m *memStore) Candidates(_ context.Context, kind domain.SlotKind, start, end time.Time) ([]match.CandidateSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []match.CandidateSlot
	for _, s := range m.slots {
		if s.Kind != kind || s.Matched || !overlaps(s, start, end) {
			continue
		}
		owner := m.userByIDLocked(s.UserID)
		out = append(out, match.CandidateSlot{Slot: *s, OwnerHandle: owner.Username, OwnerTelegram: owner.TelegramID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot.ID < out[j].Slot.ID })
	return out, nil
}

func (m *memStore) ByOwnerTime(_ context.Context, ownerID int64, kind domain.SlotKind, start, end time.Time) (domain.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		if s.UserID == ownerID && s.Kind == kind && s.Start.Equal(start) && s.End.Equal(end) {
			return *s, nil
		}
	}
	return domain.TimeSlot{}, domain.ErrNotFound
}

func (m *memStore) LatestUnmatchedOverlap(_ context.Context, ownerTelegramID int64, kind domain.SlotKind, start, end time.Time) (domain.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *domain.TimeSlot
	for _, s := range m.slots {
		owner := m.userByIDLocked(s.UserID)
		if owner.TelegramID != ownerTelegramID || s.Kind != kind || s.Matched || !overlaps(s, start, end) {
			continue
		}
		if found == nil || s.ID > found.ID {
			found = s
		}
	}
	if found == nil {
		return domain.TimeSlot{}, domain.ErrNotFound
	}
	return *found, nil
}

func (m *memStore) LatestMatchedBy(_ context.Context, ownerTelegramID int64, counterpartID int64) (domain.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *domain.TimeSlot
	for _, s := range m.slots {
		owner := m.userByIDLocked(s.UserID)
		if owner.TelegramID != ownerTelegramID || s.Kind != domain.KindRequest || !s.Matched {
			continue
		}
		if s.MatchedUserID == nil || *s.MatchedUserID != counterpartID {
			continue
		}
		if found == nil || s.ID > found.ID {
			found = s
		}
	}
	if found == nil {
		return domain.TimeSlot{}, domain.ErrNotFound
	}
	return *found, nil
}

func (m *memStore) EarliestUnmatchedOverlap(_ context.Context, ownerID int64, kind domain.SlotKind, start, end time.Time) (domain.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *domain.TimeSlot
	for _, s := range m.slots {
		if s.UserID != ownerID || s.Kind != kind || s.Matched || !overlaps(s, start, end) {
			continue
		}
		if found == nil || s.Start.Before(found.Start) {
			found = s
		}
	}
	if found == nil {
		return domain.TimeSlot{}, domain.ErrNotFound
	}
	return *found, nil
}

func (m *memStore) MarkMatched(_ context.Context, slotID, counterpartUserID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		if s.ID != slotID {
			continue
		}
		if s.Matched {
			return domain.ErrConcurrentMatch
		}
		s.Matched = true
		cp := counterpartUserID
		s.MatchedUserID = &cp
		return nil
	}
	return domain.ErrConcurrentMatch
}

func (m *memStore) userByIDLocked(id int64) domain.User {
	for _, u := range m.users {
		if u.ID == id {
			return u
		}
	}
	return domain.User{}
}

// fakeRunner исполняет fn напрямую: транзакционность проверяется
// интеграционно, не здесь.
type fakeRunner struct{ st match.Stores }

func (r fakeRunner) InTx(_ context.Context, fn func(context.Context, match.Stores) error) error {
	return fn(context.Background(), r.st)
}

type scheduled struct {
	At  time.Time
	Ref match.CheckRef
}

type fakeScheduler struct {
	mu   sync.Mutex
	jobs []scheduled
}

func (s *fakeScheduler) Schedule(_ context.Context, at time.Time, ref match.CheckRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, scheduled{At: at, Ref: ref})
	return nil
}

type prompt struct {
	TelegramID  int64
	Counterpart string
	Candidates  []match.Candidate
}

type moderatorNote struct {
	Requester, Helper string
	Start, End        time.Time
}

type fakeNotifier struct {
	mu           sync.Mutex
	candidates   []prompt
	confirms     []prompt
	moderatorLog []moderatorNote
}

func (n *fakeNotifier) PromptCandidates(_ context.Context, tg int64, cands []match.Candidate) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.candidates = append(n.candidates, prompt{TelegramID: tg, Candidates: cands})
	return nil
}

func (n *fakeNotifier) PromptConfirmation(_ context.Context, tg int64, counterpart string, _ match.CheckRef) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirms = append(n.confirms, prompt{TelegramID: tg, Counterpart: counterpart})
	return nil
}

func (n *fakeNotifier) NotifyModerator(_ context.Context, requester, helper string, start, end time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.moderatorLog = append(n.moderatorLog, moderatorNote{Requester: requester, Helper: helper, Start: start, End: end})
	return nil
}

type fixture struct {
	store  *memStore
	sched  *fakeScheduler
	notify *fakeNotifier
	svc    *match.Service
}

func newFixture() *fixture {
	store := newMemStore()
	sch := &fakeScheduler{}
	not := &fakeNotifier{}
	svc := match.NewService(
		fakeRunner{match.Stores{Users: store, Slots: store}},
		sch, not, time.Hour, zap.NewNop(),
	)
	return &fixture{store: store, sched: sch, notify: not, svc: svc}
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 6, 20, hour, minute, 0, 0, time.UTC)
}

func TestSubmitRequest_NoCandidates(t *testing.T) {
	f := newFixture()
	cands, err := f.svc.SubmitRequest(context.Background(), match.Identity{TelegramID: 100, Username: "x"}, at(9, 0), at(11, 0))
	if err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}
	if len(cands) != 0 {
		t.Errorf("expected no candidates, got %d", len(cands))
	}
}

func TestSubmitRequest_InvalidRange(t *testing.T) {
	f := newFixture()
	_, err := f.svc.SubmitRequest(context.Background(), match.Identity{TelegramID: 100, Username: "x"}, at(11, 0), at(9, 0))
	if !errors.Is(err, domain.ErrInvalidRange) {
		t.Errorf("got %v, want ErrInvalidRange", err)
	}
}

func TestSubmitRequest_FindsOverlappingOffers(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.SubmitOffer(ctx, match.Identity{TelegramID: 200, Username: "helper"}, at(10, 0), at(12, 0)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SubmitOffer(ctx, match.Identity{TelegramID: 300, Username: "busy"}, at(14, 0), at(15, 0)); err != nil {
		t.Fatal(err)
	}

	cands, err := f.svc.SubmitRequest(ctx, match.Identity{TelegramID: 100, Username: "x"}, at(9, 0), at(11, 0))
	if err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
	if cands[0].HelperHandle != "helper" || !cands[0].Start.Equal(at(10, 0)) {
		t.Errorf("unexpected candidate: %+v", cands[0])
	}
}

func TestSubmitOffer_NotifiesMatchingRequesters(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.SubmitRequest(ctx, match.Identity{TelegramID: 100, Username: "x"}, at(9, 0), at(11, 0)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SubmitRequest(ctx, match.Identity{TelegramID: 101, Username: "y"}, at(20, 0), at(21, 0)); err != nil {
		t.Fatal(err)
	}

	n, err := f.svc.SubmitOffer(ctx, match.Identity{TelegramID: 200, Username: "helper"}, at(10, 0), at(12, 0))
	if err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}
	if n != 1 {
		t.Errorf("notified %d requesters, want 1", n)
	}
	if len(f.notify.candidates) != 1 || f.notify.candidates[0].TelegramID != 100 {
		t.Fatalf("unexpected candidate prompts: %+v", f.notify.candidates)
	}
	got := f.notify.candidates[0].Candidates
	if len(got) != 1 || got[0].HelperHandle != "helper" {
		t.Errorf("unexpected candidates payload: %+v", got)
	}
}

func TestSelectCandidate_Gone(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.SubmitRequest(ctx, match.Identity{TelegramID: 100, Username: "x"}, at(9, 0), at(11, 0)); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.SelectCandidate(ctx, 100, match.Selection{HelperID: 999, Start: at(10, 0), End: at(12, 0)})
	if !errors.Is(err, domain.ErrCandidateGone) {
		t.Errorf("got %v, want ErrCandidateGone", err)
	}
	if len(f.sched.jobs) != 0 {
		t.Errorf("no check must be scheduled on failure")
	}
}

func TestSelectCandidate_NoOverlappingRequest(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.SubmitOffer(ctx, match.Identity{TelegramID: 200, Username: "helper"}, at(10, 0), at(12, 0)); err != nil {
		t.Fatal(err)
	}
	helper, err := f.store.ByTelegramID(ctx, 200)
	if err != nil {
		t.Fatal(err)
	}

	// у просителя нет пересекающегося запроса вовсе
	_, err = f.svc.SelectCandidate(ctx, 100, match.Selection{HelperID: helper.ID, Start: at(10, 0), End: at(12, 0)})
	if !errors.Is(err, domain.ErrNoOverlappingRequest) {
		t.Errorf("got %v, want ErrNoOverlappingRequest", err)
	}
}

func TestMatchedSlotNeverResurfaces(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.SubmitRequest(ctx, match.Identity{TelegramID: 100, Username: "x"}, at(9, 0), at(11, 0)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SubmitOffer(ctx, match.Identity{TelegramID: 200, Username: "helper"}, at(10, 0), at(12, 0)); err != nil {
		t.Fatal(err)
	}
	helper, _ := f.store.ByTelegramID(ctx, 200)
	if _, err := f.svc.SelectCandidate(ctx, 100, match.Selection{HelperID: helper.ID, Start: at(10, 0), End: at(12, 0)}); err != nil {
		t.Fatal(err)
	}

	// запрос X помечен и больше не должен всплывать для новых офферов
	n, err := f.svc.SubmitOffer(ctx, match.Identity{TelegramID: 300, Username: "late"}, at(9, 0), at(11, 0))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("matched request resurfaced: notified %d requesters", n)
	}
}

func TestConcurrentMark_OneWinner(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.SubmitOffer(ctx, match.Identity{TelegramID: 200, Username: "helper"}, at(10, 0), at(12, 0)); err != nil {
		t.Fatal(err)
	}
	slot := f.store.slots[0]

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.store.MarkMatched(ctx, slot.ID, int64(1000+i))
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrConcurrentMatch):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Errorf("wins=%d losses=%d, want 1/1", wins, losses)
	}
}

// Сценарий целиком: запрос без офферов → оффер будит просителя →
// выбор → проверка в 13:00 → ответ "нет" → эскалация модератору.
func TestEndToEnd_DisputeFlow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	x := match.Identity{TelegramID: 100, Username: "x"}
	y := match.Identity{TelegramID: 200, Username: "y"}

	cands, err := f.svc.SubmitRequest(ctx, x, at(9, 0), at(11, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 0 {
		t.Fatalf("expected empty candidate list, got %d", len(cands))
	}

	if _, err := f.svc.SubmitOffer(ctx, y, at(10, 0), at(12, 0)); err != nil {
		t.Fatal(err)
	}
	if len(f.notify.candidates) != 1 || f.notify.candidates[0].TelegramID != 100 {
		t.Fatalf("requester not notified: %+v", f.notify.candidates)
	}

	helper, _ := f.store.ByTelegramID(ctx, 200)
	res, err := f.svc.SelectCandidate(ctx, 100, match.Selection{HelperID: helper.ID, Start: at(10, 0), End: at(12, 0)})
	if err != nil {
		t.Fatal(err)
	}
	if res.State != match.StateAwaitingConfirmation {
		t.Errorf("state = %v, want awaiting_confirmation", res.State)
	}
	if len(f.sched.jobs) != 1 {
		t.Fatalf("expected 1 scheduled check, got %d", len(f.sched.jobs))
	}
	// max(11:00, 12:00) + 1h
	if want := at(13, 0); !f.sched.jobs[0].At.Equal(want) {
		t.Errorf("check at %v, want %v", f.sched.jobs[0].At, want)
	}

	// оффер помечается только после ответа, не при выборе
	offerSlot, err := f.store.ByOwnerTime(ctx, helper.ID, domain.KindOffer, at(10, 0), at(12, 0))
	if err != nil {
		t.Fatal(err)
	}
	if offerSlot.Matched {
		t.Error("offer slot must stay unmatched until confirmation")
	}

	ref := f.sched.jobs[0].Ref
	if err := f.svc.RunDeferredCheck(ctx, ref); err != nil {
		t.Fatal(err)
	}
	if len(f.notify.confirms) != 2 {
		t.Fatalf("expected both sides prompted, got %d", len(f.notify.confirms))
	}

	out, err := f.svc.HandleConfirmation(ctx, match.ConfirmReply{
		Yes:                 false,
		RequesterTelegramID: ref.RequesterTelegramID,
		HelperID:            ref.HelperID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.State != match.StateDisputed {
		t.Errorf("state = %v, want disputed", out.State)
	}

	offerSlot, _ = f.store.ByOwnerTime(ctx, helper.ID, domain.KindOffer, at(10, 0), at(12, 0))
	if !offerSlot.Matched {
		t.Error("offer slot must be matched after confirmation answer")
	}

	if len(f.notify.moderatorLog) != 1 {
		t.Fatalf("moderator not notified")
	}
	note := f.notify.moderatorLog[0]
	if note.Requester != "x" || note.Helper != "y" {
		t.Errorf("moderator note handles: %+v", note)
	}
	if !note.Start.Equal(at(9, 0)) || !note.End.Equal(at(11, 0)) {
		t.Errorf("moderator note range: %v - %v", note.Start, note.End)
	}
}

func TestHandleConfirmation_Yes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	x := match.Identity{TelegramID: 100, Username: "x"}
	y := match.Identity{TelegramID: 200, Username: "y"}

	if _, err := f.svc.SubmitRequest(ctx, x, at(9, 0), at(11, 0)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SubmitOffer(ctx, y, at(10, 0), at(12, 0)); err != nil {
		t.Fatal(err)
	}
	helper, _ := f.store.ByTelegramID(ctx, 200)
	if _, err := f.svc.SelectCandidate(ctx, 100, match.Selection{HelperID: helper.ID, Start: at(10, 0), End: at(12, 0)}); err != nil {
		t.Fatal(err)
	}

	out, err := f.svc.HandleConfirmation(ctx, match.ConfirmReply{Yes: true, RequesterTelegramID: 100, HelperID: helper.ID})
	if err != nil {
		t.Fatal(err)
	}
	if out.State != match.StateConfirmed {
		t.Errorf("state = %v, want confirmed", out.State)
	}
	if len(f.notify.moderatorLog) != 0 {
		t.Errorf("moderator must not be notified on yes")
	}

	// повторный ответ второй стороны: оффер уже закрыт, исход тот же
	out, err = f.svc.HandleConfirmation(ctx, match.ConfirmReply{Yes: true, RequesterTelegramID: 100, HelperID: helper.ID})
	if err != nil {
		t.Fatal(err)
	}
	if out.State != match.StateConfirmed {
		t.Errorf("duplicate answer state = %v, want confirmed", out.State)
	}
}

func TestHandleConfirmation_NoMatchedRequest(t *testing.T) {
	f := newFixture()
	_, err := f.svc.HandleConfirmation(context.Background(), match.ConfirmReply{Yes: true, RequesterTelegramID: 1, HelperID: 2})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
