package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/examguard-backend/internal/model"
)

// ─── Test doubles ───

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeStore struct {
	mu        sync.Mutex
	attempts  map[uuid.UUID]model.Attempt
	exams     map[uuid.UUID]model.Exam
	sessions  map[uuid.UUID]model.ExamSession
	questions map[uuid.UUID]model.Question
	responses map[uuid.UUID][]model.Response
	events    map[uuid.UUID][]model.ViolationEvent

	completeCalls     int
	listQuestionCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		attempts:  make(map[uuid.UUID]model.Attempt),
		exams:     make(map[uuid.UUID]model.Exam),
		sessions:  make(map[uuid.UUID]model.ExamSession),
		questions: make(map[uuid.UUID]model.Question),
		responses: make(map[uuid.UUID][]model.Response),
		events:    make(map[uuid.UUID][]model.ViolationEvent),
	}
}

func (s *fakeStore) GetAttempt(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := a
	return &cp, nil
}

func (s *fakeStore) SaveAttempt(_ context.Context, a *model.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[a.ID] = *a
	return nil
}

func (s *fakeStore) CompleteAttempt(_ context.Context, a *model.Attempt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completeCalls++
	stored := s.attempts[a.ID]
	if stored.FinishedAt != nil {
		return false, nil
	}
	s.attempts[a.ID] = *a
	return true, nil
}

func (s *fakeStore) GetExam(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exams[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := e
	return &cp, nil
}

func (s *fakeStore) GetSession(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := sess
	return &cp, nil
}

func (s *fakeStore) GetQuestion(_ context.Context, id uuid.UUID) (*model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := q
	return &cp, nil
}

func (s *fakeStore) ListQuestions(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listQuestionCalls++
	var out []model.Question
	for _, q := range s.questions {
		if q.ExamID == examID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *fakeStore) SaveResponse(_ context.Context, r *model.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.responses[r.AttemptID]
	for i := range list {
		if list[i].QuestionID == r.QuestionID {
			list[i] = *r
			return nil
		}
	}
	s.responses[r.AttemptID] = append(list, *r)
	return nil
}

func (s *fakeStore) ListResponses(_ context.Context, attemptID uuid.UUID) ([]model.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Response(nil), s.responses[attemptID]...), nil
}

func (s *fakeStore) AppendViolation(_ context.Context, ev *model.ViolationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.AttemptID] = append(s.events[ev.AttemptID], *ev)
	return nil
}

func (s *fakeStore) ClearViolations(_ context.Context, attemptID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, attemptID)
	return nil
}

type fakeNotifier struct {
	mu         sync.Mutex
	violations int
	finalized  int
}

func (n *fakeNotifier) ViolationRecorded(context.Context, *model.Attempt, *model.ViolationEvent, PolicyDecision) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.violations++
}

func (n *fakeNotifier) AttemptFinalized(context.Context, *model.Attempt, FinalizeTrigger) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finalized++
}

type fakeBlocker struct {
	mu      sync.Mutex
	blocked map[int]string
	calls   int
}

func newFakeBlocker() *fakeBlocker {
	return &fakeBlocker{blocked: make(map[int]string)}
}

func (b *fakeBlocker) IsBlocked(_ context.Context, studentID int) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blocked[studentID]
	return ok, nil
}

func (b *fakeBlocker) Block(_ context.Context, studentID int, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.blocked[studentID] = reason
	return nil
}

type fakeSettings struct{ threshold int }

func (s fakeSettings) AutoBlockThreshold(context.Context) int { return s.threshold }

// ─── Fixture ───

type fixture struct {
	coord     *Coordinator
	store     *fakeStore
	notifier  *fakeNotifier
	blocker   *fakeBlocker
	clock     *fakeClock
	attemptID uuid.UUID
	examID    uuid.UUID
	questions []uuid.UUID
}

func newFixture(t *testing.T, mutate func(*model.Exam), autoBlockThreshold int) *fixture {
	t.Helper()

	store := newFakeStore()
	clock := &fakeClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	notifier := &fakeNotifier{}
	blocker := newFakeBlocker()

	exam := model.Exam{
		ID:              uuid.New(),
		Title:           "Ujian Matematika",
		DurationMinutes: 60,
		Scoring:         model.ScoringOptions{PassingGrade: 70},
		Integrity: model.IntegrityConfig{
			AntiCheatEnabled: true,
			WarningThreshold: 3,
			MaxViolations:    5,
			AutoSubmitOnMax:  true,
		},
	}
	if mutate != nil {
		mutate(&exam)
	}
	store.exams[exam.ID] = exam

	session := model.ExamSession{
		ID:       uuid.New(),
		ExamID:   exam.ID,
		StartsAt: clock.now.Add(-time.Hour),
		EndsAt:   clock.now.Add(3 * time.Hour),
	}
	store.sessions[session.ID] = session

	var qids []uuid.UUID
	for i, d := range []model.Difficulty{model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard} {
		q := model.Question{
			ID:           uuid.New(),
			ExamID:       exam.ID,
			QuestionType: model.QuestionTypeSingleChoice,
			Points:       10,
			Difficulty:   d,
			AnswerKey:    model.AnswerKey{Choice: "A"},
			OrderNum:     i,
		}
		store.questions[q.ID] = q
		qids = append(qids, q.ID)
	}

	attempt := model.Attempt{
		ID:        uuid.New(),
		ExamID:    exam.ID,
		SessionID: session.ID,
		StudentID: 42,
		Status:    model.AttemptStatusNotStarted,
	}
	store.attempts[attempt.ID] = attempt

	coord := NewCoordinator(
		store, notifier, blocker, fakeSettings{threshold: autoBlockThreshold},
		clock, func() float64 { return 0 }, zerolog.Nop(),
	)

	return &fixture{
		coord:     coord,
		store:     store,
		notifier:  notifier,
		blocker:   blocker,
		clock:     clock,
		attemptID: attempt.ID,
		examID:    exam.ID,
		questions: qids,
	}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if _, err := f.coord.Start(context.Background(), f.attemptID); err != nil {
		t.Fatalf("start: %v", err)
	}
}

// ─── Tests ───

func TestCoordinatorStart(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()

	a, err := f.coord.Start(ctx, f.attemptID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if a.Status != model.AttemptStatusInProgress || a.StartedAt == nil {
		t.Fatalf("start left attempt in %s with StartedAt=%v", a.Status, a.StartedAt)
	}

	// Starting again is a no-op.
	if _, err := f.coord.Start(ctx, f.attemptID); err != nil {
		t.Fatalf("second start: %v", err)
	}

	// Starting a finalized attempt is rejected.
	if _, err := f.coord.Finalize(ctx, f.attemptID, TriggerStudentSubmit); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := f.coord.Start(ctx, f.attemptID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("start after finalize: err = %v, want ErrInvalidState", err)
	}
}

func TestCoordinatorSubmitAndScore(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	f.start(t)

	resp, err := f.coord.SubmitAnswer(ctx, f.attemptID, f.questions[0], model.SubmittedValue{Choice: "A"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.Verdict != model.VerdictCorrect || resp.PointsAwarded != 10 {
		t.Fatalf("resp = (%s, %v), want (CORRECT, 10)", resp.Verdict, resp.PointsAwarded)
	}

	// Wrong shape for the question type is a validation error.
	_, err = f.coord.SubmitAnswer(ctx, f.attemptID, f.questions[1], model.SubmittedValue{Choices: []string{"A", "B"}})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("shape mismatch: err = %v, want ErrValidation", err)
	}

	// A question from another exam does not resolve.
	_, err = f.coord.SubmitAnswer(ctx, f.attemptID, uuid.New(), model.SubmittedValue{Choice: "A"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign question: err = %v, want ErrNotFound", err)
	}
}

func TestCoordinatorSubmitAfterExpiryFinalizes(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	f.start(t)

	f.clock.Advance(61 * time.Minute)

	_, err := f.coord.SubmitAnswer(ctx, f.attemptID, f.questions[0], model.SubmittedValue{Choice: "A"})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expired submit: err = %v, want ErrInvalidState", err)
	}

	a, _ := f.store.GetAttempt(ctx, f.attemptID)
	if a.Status != model.AttemptStatusCompleted || a.FinishedAt == nil {
		t.Fatalf("expiry must finalize: status=%s finished=%v", a.Status, a.FinishedAt)
	}
}

func TestCoordinatorFinalizeIdempotent(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	f.start(t)

	if _, err := f.coord.SubmitAnswer(ctx, f.attemptID, f.questions[0], model.SubmittedValue{Choice: "A"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	const n = 16
	results := make([]*model.Attempt, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := f.coord.Finalize(ctx, f.attemptID, TriggerStudentSubmit)
			if err != nil {
				t.Errorf("finalize %d: %v", i, err)
				return
			}
			results[i] = a
		}(i)
	}
	wg.Wait()

	f.store.mu.Lock()
	completes := f.store.completeCalls
	f.store.mu.Unlock()
	if completes != 1 {
		t.Errorf("CompleteAttempt called %d times, want 1", completes)
	}

	f.notifier.mu.Lock()
	finalized := f.notifier.finalized
	f.notifier.mu.Unlock()
	if finalized != 1 {
		t.Errorf("finalized notification sent %d times, want 1", finalized)
	}

	for i, a := range results {
		if a == nil {
			continue
		}
		if a.ScoreValue != results[0].ScoreValue || a.Status != results[0].Status {
			t.Errorf("result %d diverges: (%v, %s) vs (%v, %s)", i, a.ScoreValue, a.Status, results[0].ScoreValue, results[0].Status)
		}
	}

	// One of three 10-point questions answered correctly.
	a, _ := f.store.GetAttempt(ctx, f.attemptID)
	if a.PointsPossible != 30 || a.PointsEarned != 10 {
		t.Errorf("aggregate = %v/%v, want 10/30", a.PointsEarned, a.PointsPossible)
	}
	if a.ScoreValue != 33.33 {
		t.Errorf("score = %v, want 33.33", a.ScoreValue)
	}
	if a.PassStatus != model.PassFailFailed {
		t.Errorf("pass status = %s, want FAILED", a.PassStatus)
	}
}

func TestCoordinatorFinalizePassAndPending(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	f.start(t)

	for _, qid := range f.questions {
		if _, err := f.coord.SubmitAnswer(ctx, f.attemptID, qid, model.SubmittedValue{Choice: "A"}); err != nil {
			t.Fatalf("submit: %v", err)
		}
		f.clock.Advance(10 * time.Minute)
	}

	a, err := f.coord.Finalize(ctx, f.attemptID, TriggerStudentSubmit)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if a.ScoreValue != 100 || a.PassStatus != model.PassFailPassed {
		t.Errorf("got (%v, %s), want (100, PASSED)", a.ScoreValue, a.PassStatus)
	}

	// An unreviewed essay holds the verdict at PENDING.
	g := newFixture(t, nil, 0)
	essay := model.Question{
		ID:           uuid.New(),
		ExamID:       g.examID,
		QuestionType: model.QuestionTypeEssay,
		Points:       10,
	}
	g.store.questions[essay.ID] = essay
	g.start(t)
	if _, err := g.coord.SubmitAnswer(ctx, g.attemptID, essay.ID, model.SubmittedValue{Text: "uraian"}); err != nil {
		t.Fatalf("submit essay: %v", err)
	}
	b, err := g.coord.Finalize(ctx, g.attemptID, TriggerStudentSubmit)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if b.PassStatus != model.PassFailPending {
		t.Errorf("pass status with pending essay = %s, want PENDING", b.PassStatus)
	}
}

func TestCoordinatorSubmitAfterFinalize(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	f.start(t)

	if _, err := f.coord.Finalize(ctx, f.attemptID, TriggerAdminTerminate); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	a, _ := f.store.GetAttempt(ctx, f.attemptID)
	if a.Status != model.AttemptStatusForceSubmitted {
		t.Fatalf("admin terminate status = %s, want FORCE_SUBMITTED", a.Status)
	}

	if _, err := f.coord.SubmitAnswer(ctx, f.attemptID, f.questions[0], model.SubmittedValue{Choice: "A"}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("submit after finalize: err = %v, want ErrInvalidState", err)
	}
	if _, err := f.coord.RecordViolation(ctx, f.attemptID, model.ViolationTabSwitch, nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("violation after finalize: err = %v, want ErrInvalidState", err)
	}
	if _, err := f.coord.Pause(ctx, f.attemptID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("pause after finalize: err = %v, want ErrInvalidState", err)
	}
}

func TestCoordinatorPauseResumeAccumulates(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	f.start(t)

	f.clock.Advance(10 * time.Minute)
	if _, err := f.coord.Pause(ctx, f.attemptID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	// Pausing again is a no-op.
	if _, err := f.coord.Pause(ctx, f.attemptID); err != nil {
		t.Fatalf("second pause: %v", err)
	}

	f.clock.Advance(20 * time.Minute)
	a, err := f.coord.Resume(ctx, f.attemptID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if a.PausedAccumMs != 20*60_000 {
		t.Fatalf("paused accum = %d, want %d", a.PausedAccumMs, 20*60_000)
	}
	// Resuming again is a no-op that does not double-count.
	a, err = f.coord.Resume(ctx, f.attemptID)
	if err != nil {
		t.Fatalf("second resume: %v", err)
	}
	if a.PausedAccumMs != 20*60_000 {
		t.Fatalf("second resume changed accum to %d", a.PausedAccumMs)
	}

	// 10 minutes of exam time used out of 60; the 20 paused minutes do
	// not count.
	remaining, err := f.coord.RemainingTimeMs(ctx, f.attemptID)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 50*60_000 {
		t.Errorf("remaining = %d, want %d", remaining, 50*60_000)
	}
}

func TestCoordinatorRemainingTimeExpiryFinalizes(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	f.start(t)

	f.clock.Advance(time.Hour + time.Second)
	remaining, err := f.coord.RemainingTimeMs(ctx, f.attemptID)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("remaining = %d, want 0", remaining)
	}

	a, _ := f.store.GetAttempt(ctx, f.attemptID)
	if !a.Status.Terminal() {
		t.Errorf("expiry poll must finalize, status = %s", a.Status)
	}

	// Terminal attempts report zero without erroring.
	if remaining, err := f.coord.RemainingTimeMs(ctx, f.attemptID); err != nil || remaining != 0 {
		t.Errorf("terminal remaining = (%d, %v), want (0, nil)", remaining, err)
	}
}

func TestCoordinatorViolationPolicy(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	f.start(t)

	for i := 0; i < 2; i++ {
		if _, err := f.coord.RecordViolation(ctx, f.attemptID, model.ViolationTabSwitch, nil); err != nil {
			t.Fatalf("violation %d: %v", i, err)
		}
	}
	a, _ := f.store.GetAttempt(ctx, f.attemptID)
	if a.Flagged {
		t.Fatal("flagged below warning threshold")
	}

	if _, err := f.coord.RecordViolation(ctx, f.attemptID, model.ViolationCopyPaste, nil); err != nil {
		t.Fatalf("third violation: %v", err)
	}
	a, _ = f.store.GetAttempt(ctx, f.attemptID)
	if !a.Flagged || a.FlagReason != "exceeded warning threshold (3 violations)" {
		t.Fatalf("warning flag = (%v, %q)", a.Flagged, a.FlagReason)
	}
	if a.ViolationTotal != 3 || a.ViolationCounts.Sum() != 3 {
		t.Fatalf("counters = total %d, sum %d", a.ViolationTotal, a.ViolationCounts.Sum())
	}

	// Violations 4 and 5: the fifth hits the max and force-submits.
	if _, err := f.coord.RecordViolation(ctx, f.attemptID, model.ViolationDevTools, nil); err != nil {
		t.Fatalf("fourth violation: %v", err)
	}
	if _, err := f.coord.RecordViolation(ctx, f.attemptID, model.ViolationDevTools, nil); err != nil {
		t.Fatalf("fifth violation: %v", err)
	}

	a, _ = f.store.GetAttempt(ctx, f.attemptID)
	if a.Status != model.AttemptStatusForceSubmitted {
		t.Errorf("status after max = %s, want FORCE_SUBMITTED", a.Status)
	}
	if a.FlagReason != "exceeded maximum (5/5)" {
		t.Errorf("flag reason = %q", a.FlagReason)
	}
	if len(f.store.events[f.attemptID]) != 5 {
		t.Errorf("persisted events = %d, want 5", len(f.store.events[f.attemptID]))
	}
}

func TestCoordinatorAutoBlockOnce(t *testing.T) {
	f := newFixture(t, func(e *model.Exam) {
		// Keep the per-exam policy out of the way.
		e.Integrity.WarningThreshold = 100
		e.Integrity.MaxViolations = 100
	}, 3)
	ctx := context.Background()
	f.start(t)

	for i := 0; i < 4; i++ {
		if _, err := f.coord.RecordViolation(ctx, f.attemptID, model.ViolationTabSwitch, nil); err != nil {
			t.Fatalf("violation %d: %v", i, err)
		}
	}

	f.blocker.mu.Lock()
	calls := f.blocker.calls
	reason := f.blocker.blocked[42]
	f.blocker.mu.Unlock()
	if calls != 1 {
		t.Errorf("Block called %d times, want 1", calls)
	}
	if reason != "auto-blocked: 3 violations (threshold 3)" {
		t.Errorf("block reason = %q", reason)
	}
}

func TestCoordinatorViolationAntiCheatDisabled(t *testing.T) {
	f := newFixture(t, func(e *model.Exam) {
		e.Integrity.AntiCheatEnabled = false
	}, 0)
	f.start(t)

	_, err := f.coord.RecordViolation(context.Background(), f.attemptID, model.ViolationTabSwitch, nil)
	if !errors.Is(err, ErrConfigurationDisabled) {
		t.Fatalf("err = %v, want ErrConfigurationDisabled", err)
	}
}

func TestCoordinatorClearViolations(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	f.start(t)

	for i := 0; i < 3; i++ {
		if _, err := f.coord.RecordViolation(ctx, f.attemptID, model.ViolationTabSwitch, nil); err != nil {
			t.Fatalf("violation: %v", err)
		}
	}

	a, err := f.coord.ClearViolations(ctx, f.attemptID)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if a.ViolationTotal != 0 || a.Flagged || len(f.store.events[f.attemptID]) != 0 {
		t.Errorf("clear left state: total=%d flagged=%v events=%d", a.ViolationTotal, a.Flagged, len(f.store.events[f.attemptID]))
	}

	sum, err := f.coord.GetIntegritySummary(ctx, f.attemptID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Total != 0 || sum.Flagged {
		t.Errorf("summary after clear = %+v", sum)
	}
}

func TestCoordinatorAdaptiveSelection(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, nil, 0)
		f.start(t)
		_, err := f.coord.NextAdaptiveQuestion(ctx, f.attemptID)
		if !errors.Is(err, ErrConfigurationDisabled) {
			t.Fatalf("err = %v, want ErrConfigurationDisabled", err)
		}
	})

	t.Run("no history starts at medium", func(t *testing.T) {
		f := newFixture(t, func(e *model.Exam) { e.AdaptiveMode = true }, 0)
		f.start(t)
		q, err := f.coord.NextAdaptiveQuestion(ctx, f.attemptID)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if q == nil || q.Difficulty != model.DifficultyMedium {
			t.Fatalf("first adaptive question difficulty = %v, want MEDIUM", q)
		}
	})

	t.Run("exhausted pool returns nil", func(t *testing.T) {
		f := newFixture(t, func(e *model.Exam) { e.AdaptiveMode = true }, 0)
		f.start(t)
		for _, qid := range f.questions {
			if _, err := f.coord.SubmitAnswer(ctx, f.attemptID, qid, model.SubmittedValue{Choice: "A"}); err != nil {
				t.Fatalf("submit: %v", err)
			}
		}
		q, err := f.coord.NextAdaptiveQuestion(ctx, f.attemptID)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if q != nil {
			t.Fatalf("exhausted pool returned %v", q)
		}
	})
}

func TestCoordinatorBehaviorFlagsAfterFinalize(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	f.start(t)

	// Add enough questions for a streak, answered one second apart with
	// alternating keys so only the fast heuristic fires.
	var qids []uuid.UUID
	for i := 0; i < 7; i++ {
		q := model.Question{
			ID:           uuid.New(),
			ExamID:       f.examID,
			QuestionType: model.QuestionTypeSingleChoice,
			Points:       5,
			AnswerKey:    model.AnswerKey{Choice: "A"},
		}
		f.store.questions[q.ID] = q
		qids = append(qids, q.ID)
	}
	keys := []string{"A", "B", "C", "D"}
	for i, qid := range qids {
		if _, err := f.coord.SubmitAnswer(ctx, f.attemptID, qid, model.SubmittedValue{Choice: keys[i%4]}); err != nil {
			t.Fatalf("submit: %v", err)
		}
		f.clock.Advance(time.Second)
	}

	a, err := f.coord.Finalize(ctx, f.attemptID, TriggerStudentSubmit)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	found := false
	for _, bf := range a.BehaviorFlags {
		if bf.Type == FlagFastCompletion {
			found = true
		}
	}
	if !found {
		t.Fatal("fast_completion flag missing after finalize")
	}
	if !a.Flagged {
		t.Error("high-severity behavior flag must set the attempt flag")
	}

	stored, _ := f.store.GetAttempt(ctx, f.attemptID)
	if len(stored.BehaviorFlags) == 0 {
		t.Error("behavior flags not persisted")
	}
}

func TestCoordinatorFinalizeLoadsQuestionsOnce(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	f.start(t)

	if _, err := f.coord.SubmitAnswer(ctx, f.attemptID, f.questions[0], model.SubmittedValue{Choice: "A"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	f.store.mu.Lock()
	before := f.store.listQuestionCalls
	f.store.mu.Unlock()

	if _, err := f.coord.Finalize(ctx, f.attemptID, TriggerStudentSubmit); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	f.store.mu.Lock()
	calls := f.store.listQuestionCalls - before
	f.store.mu.Unlock()
	if calls != 1 {
		t.Errorf("finalize loaded questions %d times, want 1", calls)
	}
}

func TestCoordinatorLockFreedAfterFinalize(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	f.start(t)

	if _, err := f.coord.Finalize(ctx, f.attemptID, TriggerStudentSubmit); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	held := 0
	f.coord.locks.Range(func(_, _ any) bool {
		held++
		return true
	})
	if held != 0 {
		t.Errorf("%d mutex entries retained after finalize, want 0", held)
	}

	// A late caller gets a fresh mutex and the terminal check.
	if _, err := f.coord.SubmitAnswer(ctx, f.attemptID, f.questions[0], model.SubmittedValue{Choice: "A"}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("submit after finalize: err = %v, want ErrInvalidState", err)
	}

	held = 0
	f.coord.locks.Range(func(_, _ any) bool {
		held++
		return true
	})
	if held != 0 {
		t.Errorf("%d mutex entries retained after rejected late call, want 0", held)
	}
}
