package session

import (
	"time"

	"go.uber.org/zap"
)

// Session is the single source of truth for what happens to the next inbound
// event from a user. The persisted copy is authoritative; in-memory copies
// are a cache with last-write-wins semantics.
type Session struct {
	UserID          int64
	State           State
	Role            Role
	CurrentQuestion string
	LastBotMessage  string

	// ProfileText is the job description or resume content collected during
	// intake, kept verbatim for matching and review.
	ProfileText string

	// Interview payload.
	Plan          []string
	QuestionIndex int
	Answers       []string
	PendingFields []string

	// Decision handshake.
	Accepted     bool
	PeerAccepted bool
	PeerUserID   int64

	// Paused suspends interview advancement until the user resumes.
	Paused bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a fresh session in the intake state for the role.
func New(userID int64, role Role) *Session {
	now := time.Now().UTC()
	return &Session{
		UserID:    userID,
		State:     InitialStateFor(role),
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition requests a move to the target state. A request to the current
// state is a no-op. An illegal move is rejected and logged; the session is
// never corrupted by it.
func (s *Session) Transition(to State, logger *zap.Logger) bool {
	if s.State == to {
		return true
	}

	if !CanTransition(s.State, to) {
		if logger != nil {
			logger.Warn("illegal state transition rejected",
				zap.Int64("user_id", s.UserID),
				zap.String("from", string(s.State)),
				zap.String("to", string(to)),
			)
		}
		return false
	}

	s.State = to
	s.UpdatedAt = time.Now().UTC()
	return true
}

// StartInterview installs the question plan and asks the first question.
func (s *Session) StartInterview(plan []string) {
	s.Plan = append([]string(nil), plan...)
	s.QuestionIndex = 0
	s.Answers = nil
	if len(s.Plan) > 0 {
		s.CurrentQuestion = s.Plan[0]
	} else {
		s.CurrentQuestion = ""
	}
	s.UpdatedAt = time.Now().UTC()
}

// StartFollowUp installs a new question plan while keeping every answer
// already given. Used when the main interview flows into a follow-up stage.
func (s *Session) StartFollowUp(plan []string) {
	answers := s.Answers
	s.StartInterview(plan)
	s.Answers = answers
}

// RecordAnswer stores the answer for the current question and advances the
// cursor. Advancing with no active question is rejected and logged.
func (s *Session) RecordAnswer(answer string, logger *zap.Logger) bool {
	if s.CurrentQuestion == "" {
		if logger != nil {
			logger.Warn("answer rejected: no active question",
				zap.Int64("user_id", s.UserID),
				zap.String("state", string(s.State)),
			)
		}
		return false
	}

	s.Answers = append(s.Answers, answer)
	s.QuestionIndex++
	if s.QuestionIndex < len(s.Plan) {
		s.CurrentQuestion = s.Plan[s.QuestionIndex]
	} else {
		s.CurrentQuestion = ""
	}
	s.UpdatedAt = time.Now().UTC()
	return true
}

// InterviewDone reports whether every planned question has been answered.
func (s *Session) InterviewDone() bool {
	return len(s.Plan) > 0 && s.QuestionIndex >= len(s.Plan)
}

// QuestionOutstanding reports whether a structured interview question is
// currently waiting for an answer.
func (s *Session) QuestionOutstanding() bool {
	return s.CurrentQuestion != "" && IsInterviewState(s.State)
}

// Clone returns a deep copy so cache readers never alias the cached value.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	dup := *s
	dup.Plan = append([]string(nil), s.Plan...)
	dup.Answers = append([]string(nil), s.Answers...)
	dup.PendingFields = append([]string(nil), s.PendingFields...)
	return &dup
}
