package session

// State is a node of the per-user conversation state machine.
type State string

const (
	StateWaitingJob               State = "waiting_job"
	StateExtractingJob            State = "extracting_job"
	StateInterviewingManager      State = "interviewing_manager"
	StateManagerMandatoryFields   State = "manager_mandatory_fields"
	StateWaitingResume            State = "waiting_resume"
	StateExtractingResume         State = "extracting_resume"
	StateInterviewingCandidate    State = "interviewing_candidate"
	StateCandidateMandatoryFields State = "candidate_mandatory_fields"
	StateWaitingCandidateDecision State = "waiting_candidate_decision"
	StateWaitingManagerDecision   State = "waiting_manager_decision"
	StateContactShared            State = "contact_shared"
)

// Role distinguishes the two sides of the marketplace.
type Role string

const (
	RoleCandidate Role = "candidate"
	RoleManager   Role = "manager"
	RoleUnknown   Role = "unknown"
)

// transitions is the fixed adjacency of the state machine. A request outside
// this table is rejected; a request to the current state is a no-op.
var transitions = map[State][]State{
	StateWaitingJob:               {StateExtractingJob, StateInterviewingManager, StateWaitingResume},
	StateExtractingJob:            {StateInterviewingManager, StateWaitingJob},
	StateInterviewingManager:      {StateManagerMandatoryFields, StateWaitingManagerDecision},
	StateManagerMandatoryFields:   {StateWaitingManagerDecision},
	StateWaitingResume:            {StateExtractingResume, StateInterviewingCandidate, StateWaitingJob},
	StateExtractingResume:         {StateInterviewingCandidate, StateWaitingResume},
	StateInterviewingCandidate:    {StateCandidateMandatoryFields, StateWaitingCandidateDecision},
	StateCandidateMandatoryFields: {StateWaitingCandidateDecision},
	StateWaitingCandidateDecision: {StateContactShared},
	StateWaitingManagerDecision:   {StateContactShared},
	StateContactShared:            {},
}

// CanTransition reports whether moving from one state to another is legal.
// Staying in place is always legal.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsIntakeState reports whether the state accepts job/resume intake.
func IsIntakeState(s State) bool {
	switch s {
	case StateWaitingJob, StateExtractingJob, StateWaitingResume, StateExtractingResume:
		return true
	default:
		return false
	}
}

// IsInterviewState reports whether a structured interview question can be
// outstanding in the state.
func IsInterviewState(s State) bool {
	switch s {
	case StateInterviewingManager, StateInterviewingCandidate,
		StateManagerMandatoryFields, StateCandidateMandatoryFields:
		return true
	default:
		return false
	}
}

// InitialStateFor returns the intake state a fresh session starts in.
func InitialStateFor(role Role) State {
	if role == RoleManager {
		return StateWaitingJob
	}
	return StateWaitingResume
}
