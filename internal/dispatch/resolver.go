// Package dispatch maps a routing decision plus the current session onto
// exactly one named action.
package dispatch

import (
	"github.com/mavrk/jobvine/internal/routing"
	"github.com/mavrk/jobvine/internal/session"
)

// Action names the single downstream handler a turn is dispatched to.
type Action string

const (
	ActionProcessDocument        Action = "process_document"
	ActionTranscribeVoice        Action = "transcribe_voice"
	ActionProcessPastedText      Action = "process_pasted_text"
	ActionProcessInterviewAnswer Action = "process_interview_answer"
	ActionInterviewClarify       Action = "interview_clarify"
	ActionMatchingCommand        Action = "matching_command"
	ActionControl                Action = "control"
	ActionMetaReply              Action = "meta_reply"
	ActionComplaintReply         Action = "complaint_reply"
	ActionSmalltalkReply         Action = "smalltalk_reply"
	ActionOtherReply             Action = "other_reply"
)

// Resolve picks the action for a decision. Route-carried mappings always win;
// the advisory conversation_intent is consulted only for the ambiguous OTHER
// route, and clarify/complaint intents map to interview-specific actions only
// while a question is outstanding.
func Resolve(decision *routing.Decision, s *session.Session) Action {
	switch decision.Route {
	case routing.RouteDoc:
		return ActionProcessDocument
	case routing.RouteVoice:
		return ActionTranscribeVoice
	case routing.RouteJDText, routing.RouteResumeText:
		return ActionProcessPastedText
	case routing.RouteInterviewAnswer:
		return ActionProcessInterviewAnswer
	case routing.RouteMatchingCommand:
		return ActionMatchingCommand
	case routing.RouteControl:
		return ActionControl
	case routing.RouteMeta:
		return ActionMetaReply
	case routing.RouteOfftopic:
		return ActionOtherReply
	}

	questionActive := s != nil && s.QuestionOutstanding()

	switch decision.ConversationIntent {
	case "CLARIFY":
		if questionActive {
			return ActionInterviewClarify
		}
		return ActionOtherReply
	case "COMPLAINT":
		if questionActive {
			return ActionInterviewClarify
		}
		return ActionComplaintReply
	case "SMALLTALK":
		return ActionSmalltalkReply
	case "META":
		return ActionMetaReply
	default:
		return ActionOtherReply
	}
}
