package session

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestTransitionNoOpOnSameState(t *testing.T) {
	s := New(1, RoleManager)
	if s.State != StateWaitingJob {
		t.Fatalf("manager session should start in waiting_job, got %s", s.State)
	}

	if !s.Transition(StateWaitingJob, zap.NewNop()) {
		t.Fatalf("transition to current state must be a no-op, not an error")
	}
}

func TestTransitionLegalPath(t *testing.T) {
	s := New(1, RoleManager)

	steps := []State{
		StateExtractingJob,
		StateInterviewingManager,
		StateManagerMandatoryFields,
		StateWaitingManagerDecision,
		StateContactShared,
	}

	for _, next := range steps {
		if !s.Transition(next, zap.NewNop()) {
			t.Fatalf("expected legal transition %s -> %s", s.State, next)
		}
	}

	if s.State != StateContactShared {
		t.Fatalf("expected contact_shared, got %s", s.State)
	}
}

func TestTransitionIllegalKeepsState(t *testing.T) {
	s := New(2, RoleCandidate)
	if s.State != StateWaitingResume {
		t.Fatalf("candidate session should start in waiting_resume, got %s", s.State)
	}

	if s.Transition(StateContactShared, zap.NewNop()) {
		t.Fatalf("waiting_resume -> contact_shared must be rejected")
	}

	if s.State != StateWaitingResume {
		t.Fatalf("rejected transition must not change state, got %s", s.State)
	}
}

func TestContactSharedIsTerminal(t *testing.T) {
	s := New(3, RoleCandidate)
	s.State = StateContactShared

	for _, target := range []State{StateWaitingResume, StateInterviewingCandidate, StateWaitingCandidateDecision} {
		if s.Transition(target, zap.NewNop()) {
			t.Fatalf("contact_shared must not transition to %s", target)
		}
	}
}

func TestRecordAnswerAdvancesCursor(t *testing.T) {
	s := New(4, RoleCandidate)
	s.State = StateInterviewingCandidate
	s.StartInterview([]string{"q1", "q2"})

	if s.CurrentQuestion != "q1" {
		t.Fatalf("expected q1 outstanding, got %q", s.CurrentQuestion)
	}

	if !s.RecordAnswer("a1", zap.NewNop()) {
		t.Fatalf("expected answer to be accepted")
	}

	if s.CurrentQuestion != "q2" {
		t.Fatalf("expected cursor to advance to q2, got %q", s.CurrentQuestion)
	}

	if !s.RecordAnswer("a2", zap.NewNop()) {
		t.Fatalf("expected answer to be accepted")
	}

	if !s.InterviewDone() {
		t.Fatalf("expected interview to be done")
	}

	if s.CurrentQuestion != "" {
		t.Fatalf("no question should be outstanding after the last answer")
	}
}

func TestStartFollowUpKeepsAnswers(t *testing.T) {
	s := New(6, RoleCandidate)
	s.State = StateInterviewingCandidate
	s.StartInterview([]string{"q1", "q2"})
	s.RecordAnswer("a1", zap.NewNop())
	s.RecordAnswer("a2", zap.NewNop())

	s.StartFollowUp([]string{"f1"})

	if len(s.Answers) != 2 {
		t.Fatalf("follow-up plan must keep prior answers, got %d", len(s.Answers))
	}
	if s.CurrentQuestion != "f1" || s.QuestionIndex != 0 {
		t.Fatalf("follow-up cursor not reset: question=%q index=%d", s.CurrentQuestion, s.QuestionIndex)
	}

	if !s.RecordAnswer("fa1", zap.NewNop()) {
		t.Fatalf("expected follow-up answer to be accepted")
	}
	if len(s.Answers) != 3 {
		t.Fatalf("follow-up answer must append, got %d", len(s.Answers))
	}
	if !s.InterviewDone() {
		t.Fatalf("expected follow-up plan to be done")
	}
}

func TestRecordAnswerWithoutQuestionIsRejected(t *testing.T) {
	s := New(5, RoleCandidate)
	s.State = StateInterviewingCandidate

	if s.RecordAnswer("out of nowhere", zap.NewNop()) {
		t.Fatalf("advancing with no active question must be rejected")
	}

	if len(s.Answers) != 0 {
		t.Fatalf("rejected answer must not be recorded")
	}
}

func TestQuestionOutstandingRequiresInterviewState(t *testing.T) {
	s := New(6, RoleCandidate)
	s.CurrentQuestion = "leftover"

	if s.QuestionOutstanding() {
		t.Fatalf("question must not count as outstanding outside interview states")
	}

	s.State = StateInterviewingCandidate
	if !s.QuestionOutstanding() {
		t.Fatalf("expected outstanding question in interviewing_candidate")
	}
}

type memStore struct {
	sessions map[int64]*Session
	getErr   error
	saves    int
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[int64]*Session)}
}

func (m *memStore) GetSession(_ context.Context, userID int64) (*Session, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *memStore) SaveSession(_ context.Context, s *Session) error {
	m.saves++
	m.sessions[s.UserID] = s.Clone()
	return nil
}

func TestManagerCreatesFreshSession(t *testing.T) {
	store := newMemStore()
	mgr := NewManager(store, 4, zap.NewNop())

	s, err := mgr.Hydrate(context.Background(), 42, RoleManager)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.State != StateWaitingJob {
		t.Fatalf("expected waiting_job, got %s", s.State)
	}

	if store.saves != 1 {
		t.Fatalf("fresh session must be persisted immediately, saves=%d", store.saves)
	}
}

func TestManagerReadsThroughCache(t *testing.T) {
	store := newMemStore()
	mgr := NewManager(store, 4, zap.NewNop())

	if _, err := mgr.Hydrate(context.Background(), 42, RoleManager); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A store failure is invisible while the cache holds the session.
	store.getErr = errors.New("store down")
	s, err := mgr.Hydrate(context.Background(), 42, RoleManager)
	if err != nil {
		t.Fatalf("expected cache hit, got %v", err)
	}
	if s.UserID != 42 {
		t.Fatalf("unexpected session: %+v", s)
	}
}

func TestManagerEvictsOldestBeyondCapacity(t *testing.T) {
	store := newMemStore()
	mgr := NewManager(store, 2, zap.NewNop())

	for _, id := range []int64{1, 2, 3} {
		if _, err := mgr.Hydrate(context.Background(), id, RoleCandidate); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// User 1 was evicted; a store outage now surfaces for it but not for 3.
	store.getErr = errors.New("store down")

	if _, err := mgr.Hydrate(context.Background(), 1, RoleCandidate); err == nil {
		t.Fatalf("expected store error for evicted user")
	}

	if _, err := mgr.Hydrate(context.Background(), 3, RoleCandidate); err != nil {
		t.Fatalf("expected cache hit for recent user, got %v", err)
	}
}

func TestManagerPersistUpdatesCache(t *testing.T) {
	store := newMemStore()
	mgr := NewManager(store, 4, zap.NewNop())

	s, err := mgr.Hydrate(context.Background(), 7, RoleCandidate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Transition(StateExtractingResume, zap.NewNop())
	if err := mgr.Persist(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := mgr.Hydrate(context.Background(), 7, RoleCandidate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.State != StateExtractingResume {
		t.Fatalf("cache must reflect the persisted state, got %s", got.State)
	}

	if persisted := store.sessions[7]; persisted.State != StateExtractingResume {
		t.Fatalf("store must reflect the persisted state, got %s", persisted.State)
	}
}
