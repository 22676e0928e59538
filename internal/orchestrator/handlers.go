package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mavrk/jobvine/internal/dispatch"
	"github.com/mavrk/jobvine/internal/interview"
	"github.com/mavrk/jobvine/internal/routing"
	"github.com/mavrk/jobvine/internal/session"
)

// apply executes the resolved action against the session. Actions that only
// talk (meta, smalltalk, clarifications) never move the state machine.
func (o *Orchestrator) apply(ctx context.Context, log *zap.Logger, s *session.Session, decision *routing.Decision, action dispatch.Action, ev InboundEvent) {
	switch action {
	case dispatch.ActionProcessDocument:
		o.handleDocument(ctx, log, s, decision, ev)

	case dispatch.ActionTranscribeVoice:
		o.handleVoice(ctx, log, s, ev)

	case dispatch.ActionProcessPastedText:
		o.handlePastedText(ctx, log, s, decision, ev)

	case dispatch.ActionProcessInterviewAnswer:
		// The route classifier only sees this when the interview-scoped
		// classifier was bypassed (voice transcript, restored session).
		// The cursor moves under the same conditions as on that path.
		if s.Paused {
			o.reply(ctx, log, s, ev.ChatID, pausedReply)
			return
		}
		if !decision.ShouldAdvance {
			o.reply(ctx, log, s, ev.ChatID, decision.Reply)
			return
		}
		o.advanceInterview(ctx, log, s, ev.Text, decision.Reply, ev.ChatID)

	case dispatch.ActionMatchingCommand:
		o.handleMatching(ctx, log, s, decision, ev)

	case dispatch.ActionControl:
		o.applyControl(ctx, log, s, decision.ControlType, decision.Reply, ev.ChatID)

	case dispatch.ActionInterviewClarify,
		dispatch.ActionMetaReply,
		dispatch.ActionComplaintReply,
		dispatch.ActionSmalltalkReply,
		dispatch.ActionOtherReply:
		o.reply(ctx, log, s, ev.ChatID, decision.Reply)

	default:
		log.Warn("unhandled action", zap.String("action", string(action)))
		o.reply(ctx, log, s, ev.ChatID, decision.Reply)
	}
}

func (o *Orchestrator) handleDocument(ctx context.Context, log *zap.Logger, s *session.Session, decision *routing.Decision, ev InboundEvent) {
	if o.extractor == nil {
		o.reply(ctx, log, s, ev.ChatID, extractionFailedReply)
		return
	}

	extracting := session.StateExtractingResume
	if s.Role == session.RoleManager {
		extracting = session.StateExtractingJob
	}
	s.Transition(extracting, log)

	text, err := o.extractor.ExtractText(ctx, ev.FileID)
	if err != nil || strings.TrimSpace(text) == "" {
		log.Warn("document extraction failed", zap.String("file_id", ev.FileID), zap.Error(err))
		// Roll back to the waiting state so the user can try again.
		s.Transition(waitingStateFor(s.Role), log)
		o.reply(ctx, log, s, ev.ChatID, extractionFailedReply)
		return
	}

	s.ProfileText = strings.TrimSpace(text)
	o.beginInterview(ctx, log, s, decision.Reply, ev.ChatID)
}

func (o *Orchestrator) handleVoice(ctx context.Context, log *zap.Logger, s *session.Session, ev InboundEvent) {
	if o.transcriber == nil {
		o.reply(ctx, log, s, ev.ChatID, transcribeFailedReply)
		return
	}

	transcript, err := o.transcriber.Transcribe(ctx, ev.FileID)
	if err != nil || strings.TrimSpace(transcript) == "" {
		log.Warn("voice transcription failed", zap.String("file_id", ev.FileID), zap.Error(err))
		o.reply(ctx, log, s, ev.ChatID, transcribeFailedReply)
		return
	}

	if s.QuestionOutstanding() {
		cls := o.intents.Classify(ctx, s.CurrentQuestion, transcript)
		o.applyInterviewDecision(ctx, log, s, cls, ev.ChatID)
		return
	}

	// Outside the interview a transcript is handled like a typed message.
	decision, err := o.router.Classify(ctx, routing.Context{
		State:          string(s.State),
		Role:           string(s.Role),
		HasText:        true,
		Text:           transcript,
		ActiveQuestion: s.CurrentQuestion,
		LastBotMessage: s.LastBotMessage,
	})
	if err != nil {
		log.Warn("route classification unavailable for transcript", zap.Error(err))
		o.reply(ctx, log, s, ev.ChatID, apologyReply)
		return
	}
	o.apply(ctx, log, s, decision, dispatch.Resolve(decision, s), InboundEvent{
		EventID: ev.EventID,
		UserID:  ev.UserID,
		ChatID:  ev.ChatID,
		Kind:    KindText,
		Text:    transcript,
	})
}

// handlePastedText treats a long pasted job description or resume as intake.
// A JD paste from a user we assumed to be a candidate flips the role.
func (o *Orchestrator) handlePastedText(ctx context.Context, log *zap.Logger, s *session.Session, decision *routing.Decision, ev InboundEvent) {
	// A snippet the classifier flagged as not worth ingesting gets a plain
	// reply; intake starts only on a real paste.
	if !decision.ShouldProcessTextAsDocument {
		o.reply(ctx, log, s, ev.ChatID, decision.Reply)
		return
	}

	if decision.Route == routing.RouteJDText && s.Role != session.RoleManager {
		s.Role = session.RoleManager
		s.Transition(session.StateWaitingJob, log)
	}
	if decision.Route == routing.RouteResumeText && s.Role != session.RoleCandidate {
		s.Role = session.RoleCandidate
		s.Transition(session.StateWaitingResume, log)
	}

	s.ProfileText = strings.TrimSpace(ev.Text)
	o.beginInterview(ctx, log, s, decision.Reply, ev.ChatID)
}

// beginInterview moves intake into the interviewing state, installs the plan
// and asks the first question in the same message as the acknowledgement.
func (o *Orchestrator) beginInterview(ctx context.Context, log *zap.Logger, s *session.Session, ack string, chatID int64) {
	interviewing := session.StateInterviewingCandidate
	if s.Role == session.RoleManager {
		interviewing = session.StateInterviewingManager
	}
	if !s.Transition(interviewing, log) {
		o.reply(ctx, log, s, chatID, apologyReply)
		return
	}

	s.StartInterview(interview.PlanFor(s.Role))
	o.reply(ctx, log, s, chatID, joinReply(ack, s.CurrentQuestion))
}

// applyInterviewDecision executes an interview-scoped classification. Only an
// ANSWER with should_advance moves the cursor; everything else replies in
// place.
func (o *Orchestrator) applyInterviewDecision(ctx context.Context, log *zap.Logger, s *session.Session, cls *interview.Classification, chatID int64) {
	log.Info("interview intent",
		zap.String("intent", string(cls.Intent)),
		zap.Bool("should_advance", cls.ShouldAdvance),
		zap.Bool("fallback", cls.Fallback),
	)

	if cls.Intent == interview.IntentControl {
		o.applyControl(ctx, log, s, cls.ControlType, cls.Reply, chatID)
		return
	}

	if s.Paused {
		o.reply(ctx, log, s, chatID, pausedReply)
		return
	}

	if cls.Intent == interview.IntentAnswer && cls.ShouldAdvance {
		o.advanceInterview(ctx, log, s, "", cls.Reply, chatID)
		return
	}

	o.reply(ctx, log, s, chatID, cls.Reply)
}

// advanceInterview records the answer, asks the next question or, when the
// plan is exhausted, moves on to mandatory fields and then the decision
// stage.
func (o *Orchestrator) advanceInterview(ctx context.Context, log *zap.Logger, s *session.Session, answer, ack string, chatID int64) {
	if answer == "" {
		answer = "(recorded)"
	}
	if !s.RecordAnswer(answer, log) {
		o.reply(ctx, log, s, chatID, apologyReply)
		return
	}

	if !s.InterviewDone() {
		o.reply(ctx, log, s, chatID, joinReply(ack, s.CurrentQuestion))
		return
	}

	switch s.State {
	case session.StateInterviewingManager, session.StateInterviewingCandidate:
		mandatory := session.StateCandidateMandatoryFields
		if s.Role == session.RoleManager {
			mandatory = session.StateManagerMandatoryFields
		}
		s.Transition(mandatory, log)
		s.PendingFields = interview.MandatoryFieldsFor(s.Role)
		s.StartFollowUp(fieldPrompts(s.PendingFields))
		o.reply(ctx, log, s, chatID, joinReply(ack, s.CurrentQuestion))

	case session.StateManagerMandatoryFields, session.StateCandidateMandatoryFields:
		decision := session.StateWaitingCandidateDecision
		if s.Role == session.RoleManager {
			decision = session.StateWaitingManagerDecision
		}
		s.Transition(decision, log)
		s.PendingFields = nil
		o.reply(ctx, log, s, chatID, joinReply(ack, decisionPromptReply))

	default:
		o.reply(ctx, log, s, chatID, ack)
	}
}

func (o *Orchestrator) handleMatching(ctx context.Context, log *zap.Logger, s *session.Session, decision *routing.Decision, ev InboundEvent) {
	if o.matching == nil {
		o.reply(ctx, log, s, ev.ChatID, matchingFailedReply)
		return
	}

	summary, err := o.matching.Command(ctx, s, decision.MatchingIntent)
	if err != nil {
		log.Warn("matching command failed", zap.String("intent", decision.MatchingIntent), zap.Error(err))
		o.reply(ctx, log, s, ev.ChatID, matchingFailedReply)
		return
	}
	o.reply(ctx, log, s, ev.ChatID, summary)
}

// applyControl toggles the pause flag and routes the restart flow. The state
// machine itself is only touched by restart.
func (o *Orchestrator) applyControl(ctx context.Context, log *zap.Logger, s *session.Session, controlType, reply string, chatID int64) {
	switch controlType {
	case "pause", "stop":
		s.Paused = true
	case "resume":
		s.Paused = false
		if s.QuestionOutstanding() {
			reply = joinReply(reply, s.CurrentQuestion)
		}
	case "restart":
		fresh := session.New(s.UserID, s.Role)
		*s = *fresh
	}
	o.reply(ctx, log, s, chatID, reply)
}

// handleDecisionMessage consumes yes/no style replies while a user is waiting
// on a match decision. It reports whether the message was consumed.
func (o *Orchestrator) handleDecisionMessage(ctx context.Context, log *zap.Logger, s *session.Session, ev InboundEvent) bool {
	verdict, ok := parseVerdict(ev.Text)
	if !ok {
		return false
	}

	if !verdict {
		s.Accepted = false
		o.reply(ctx, log, s, ev.ChatID, "Understood, I'll pass that along and keep looking for you.")
		return true
	}

	s.Accepted = true
	if !s.PeerAccepted {
		o.reply(ctx, log, s, ev.ChatID, "Noted. I'll let you know the moment the other side decides.")
		o.notifyPeer(ctx, log, s.PeerUserID, peerAcceptedNotice, func(peer *session.Session) {
			peer.PeerAccepted = true
		})
		return true
	}

	s.Transition(session.StateContactShared, log)
	o.reply(ctx, log, s, ev.ChatID, contactSharedReply)
	o.notifyPeer(ctx, log, s.PeerUserID, contactSharedReply, func(peer *session.Session) {
		peer.PeerAccepted = true
		peer.Transition(session.StateContactShared, log)
	})
	return true
}

// notifyPeer applies a mutation to the other side's session and sends them an
// unsolicited message, throttled so a burst of decisions cannot flood anyone.
func (o *Orchestrator) notifyPeer(ctx context.Context, log *zap.Logger, peerID int64, text string, mutate func(*session.Session)) {
	if peerID == 0 {
		return
	}

	peer, err := o.sessions.Hydrate(ctx, peerID, session.RoleCandidate)
	if err != nil {
		log.Error("peer session hydration failed", zap.Int64("peer_id", peerID), zap.Error(err))
		return
	}
	if mutate != nil {
		mutate(peer)
	}

	if o.notices == nil || o.notices.Allow(peerID) {
		peer.LastBotMessage = text
		o.send(ctx, log, peerID, text)
	} else {
		log.Warn("peer notification suppressed by rate limit", zap.Int64("peer_id", peerID))
	}
	o.persist(ctx, log, peer)
}

func isDecisionState(s session.State) bool {
	return s == session.StateWaitingCandidateDecision || s == session.StateWaitingManagerDecision
}

func waitingStateFor(role session.Role) session.State {
	if role == session.RoleManager {
		return session.StateWaitingJob
	}
	return session.StateWaitingResume
}

var acceptWords = map[string]bool{
	"yes": true, "accept": true, "deal": true, "sure": true,
	"да": true, "давай": true, "согласен": true, "согласна": true,
}

var declineWords = map[string]bool{
	"no": true, "pass": true, "decline": true, "skip": true,
	"нет": true, "не": true, "откажусь": true,
}

func parseVerdict(text string) (accepted, ok bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.TrimRight(normalized, ".!")
	if acceptWords[normalized] {
		return true, true
	}
	if declineWords[normalized] {
		return false, true
	}
	return false, false
}

func joinReply(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

func fieldPrompts(fields []string) []string {
	prompts := make([]string, 0, len(fields))
	for _, f := range fields {
		prompts = append(prompts, fmt.Sprintf("One more thing: what is your %s?", f))
	}
	return prompts
}
