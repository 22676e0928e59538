// Package orchestrator drives one inbound conversation event through
// deduplication, session hydration, classification and dispatch, and sends
// the resulting replies.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mavrk/jobvine/internal/dedup"
	"github.com/mavrk/jobvine/internal/dispatch"
	"github.com/mavrk/jobvine/internal/interview"
	"github.com/mavrk/jobvine/internal/ratelimit"
	"github.com/mavrk/jobvine/internal/routing"
	"github.com/mavrk/jobvine/internal/session"
	"github.com/mavrk/jobvine/internal/telegram"
)

// EventKind names the payload shape of an inbound event.
type EventKind string

const (
	KindText     EventKind = "text"
	KindDocument EventKind = "document"
	KindVoice    EventKind = "voice"
	KindOther    EventKind = "other"
)

// InboundEvent is the transport-agnostic form of one user message.
type InboundEvent struct {
	EventID int64
	UserID  int64
	ChatID  int64
	Kind    EventKind
	Text    string
	FileID  string
}

// Transport delivers outbound messages to the user.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// DocumentExtractor turns an uploaded file into plain text.
type DocumentExtractor interface {
	ExtractText(ctx context.Context, fileID string) (string, error)
}

// VoiceTranscriber turns a voice note into plain text.
type VoiceTranscriber interface {
	Transcribe(ctx context.Context, fileID string) (string, error)
}

// MatchingEngine executes matching commands against the user's live session
// and returns the user-facing summary. Changes to the session are persisted
// by the turn that invoked the command, never by the engine itself.
type MatchingEngine interface {
	Command(ctx context.Context, s *session.Session, intent string) (string, error)
}

type routeClassifier interface {
	Classify(ctx context.Context, rctx routing.Context) (*routing.Decision, error)
}

type intentClassifier interface {
	Classify(ctx context.Context, question, message string) *interview.Classification
}

// Canned replies for turns that never reach the oracle, or where the oracle
// produced nothing usable.
const (
	apologyReply          = "Sorry, I'm having trouble on my side right now. Your progress is saved, please try again in a moment."
	extractionFailedReply = "I couldn't read that file. Please send it as a PDF or DOCX, or paste the text directly."
	transcribeFailedReply = "I couldn't make out that voice message. Could you type it instead?"
	matchingFailedReply   = "Matching isn't available right now. Your profile is saved, I'll keep looking."
	pausedReply           = "The interview is paused. Send \"resume\" whenever you're ready to continue."
	decisionPromptReply   = "That's everything I needed. I'll let you know as soon as there's a match to decide on."
	contactSharedReply    = "It's a match on both sides. I've shared contacts, good luck!"
	peerAcceptedNotice    = "Good news: the other side accepted. Reply \"yes\" to share contacts, or \"no\" to pass."
	unsupportedKindReply  = "I can work with text, documents and voice messages. Stickers and the rest go over my head."
)

// Orchestrator owns the per-event pipeline. It is safe for concurrent use;
// per-user ordering is the storage layer's last-write-wins.
type Orchestrator struct {
	gate        *dedup.Gate
	sessions    *session.Manager
	router      routeClassifier
	intents     intentClassifier
	transport   Transport
	extractor   DocumentExtractor
	transcriber VoiceTranscriber
	matching    MatchingEngine
	limiter     *ratelimit.Limiter
	notices     *ratelimit.Limiter
	logger      *zap.Logger
}

// Config carries the collaborators for New. Extractor, Transcriber, Matching
// and the limiters are optional; the rest are required.
type Config struct {
	Gate        *dedup.Gate
	Sessions    *session.Manager
	Router      routeClassifier
	Intents     intentClassifier
	Transport   Transport
	Extractor   DocumentExtractor
	Transcriber VoiceTranscriber
	Matching    MatchingEngine
	Limiter     *ratelimit.Limiter
	// Notices throttles unsolicited peer notifications separately from the
	// inbound message limit.
	Notices *ratelimit.Limiter
	Logger  *zap.Logger
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Gate == nil || cfg.Sessions == nil || cfg.Router == nil || cfg.Intents == nil || cfg.Transport == nil {
		return nil, fmt.Errorf("orchestrator: gate, sessions, router, intents and transport are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		gate:        cfg.Gate,
		sessions:    cfg.Sessions,
		router:      cfg.Router,
		intents:     cfg.Intents,
		transport:   cfg.Transport,
		extractor:   cfg.Extractor,
		transcriber: cfg.Transcriber,
		matching:    cfg.Matching,
		limiter:     cfg.Limiter,
		notices:     cfg.Notices,
		logger:      logger,
	}, nil
}

// HandleUpdate adapts a raw Telegram update into the pipeline. It implements
// telegram.UpdateHandler and never panics the webhook goroutine.
func (o *Orchestrator) HandleUpdate(ctx context.Context, update telegram.Update) {
	if update.Message == nil || update.Message.From == nil {
		o.logger.Debug("update without message dropped", zap.Int64("update_id", update.UpdateID))
		return
	}

	msg := update.Message
	ev := InboundEvent{
		EventID: update.UpdateID,
		UserID:  msg.From.ID,
		ChatID:  msg.Chat.ID,
		Kind:    KindOther,
		Text:    msg.Text,
	}
	switch {
	case msg.Document != nil:
		ev.Kind = KindDocument
		ev.FileID = msg.Document.FileID
		ev.Text = msg.Caption
	case msg.Voice != nil:
		ev.Kind = KindVoice
		ev.FileID = msg.Voice.FileID
	case strings.TrimSpace(msg.Text) != "":
		ev.Kind = KindText
	}

	o.ProcessEvent(ctx, ev)
}

// ProcessEvent runs one event end to end. Every path that touches the session
// persists it exactly once, after the turn's reply has been chosen.
func (o *Orchestrator) ProcessEvent(ctx context.Context, ev InboundEvent) {
	log := o.logger.With(
		zap.String("trace_id", uuid.NewString()),
		zap.Int64("event_id", ev.EventID),
		zap.Int64("user_id", ev.UserID),
	)

	if !o.gate.ShouldProcess(ctx, ev.EventID, ev.UserID) {
		log.Debug("duplicate event dropped")
		return
	}

	if o.limiter != nil && !o.limiter.Allow(ev.UserID) {
		log.Warn("rate limit exceeded, event dropped")
		return
	}

	s, err := o.sessions.Hydrate(ctx, ev.UserID, session.RoleCandidate)
	if err != nil {
		log.Error("session hydration failed", zap.Error(err))
		o.send(ctx, log, ev.ChatID, apologyReply)
		return
	}

	if ev.Kind == KindOther {
		o.reply(ctx, log, s, ev.ChatID, unsupportedKindReply)
		o.persist(ctx, log, s)
		return
	}

	if ev.Kind == KindText && isDecisionState(s.State) {
		if o.handleDecisionMessage(ctx, log, s, ev) {
			o.persist(ctx, log, s)
			return
		}
	}

	if ev.Kind == KindText && s.QuestionOutstanding() {
		cls := o.intents.Classify(ctx, s.CurrentQuestion, ev.Text)
		o.applyInterviewDecision(ctx, log, s, cls, ev.ChatID)
		o.persist(ctx, log, s)
		return
	}

	decision, err := o.router.Classify(ctx, routing.Context{
		State:          string(s.State),
		Role:           string(s.Role),
		HasText:        ev.Kind == KindText && ev.Text != "",
		HasDocument:    ev.Kind == KindDocument,
		HasVoice:       ev.Kind == KindVoice,
		Text:           ev.Text,
		ActiveQuestion: s.CurrentQuestion,
		LastBotMessage: s.LastBotMessage,
	})
	if err != nil {
		// No decision means no state change. Apologize and hold position.
		log.Warn("route classification unavailable", zap.Error(err))
		o.reply(ctx, log, s, ev.ChatID, apologyReply)
		o.persist(ctx, log, s)
		return
	}

	action := dispatch.Resolve(decision, s)
	log.Info("turn dispatched",
		zap.String("route", string(decision.Route)),
		zap.String("action", string(action)),
		zap.String("state", string(s.State)),
	)

	o.apply(ctx, log, s, decision, action, ev)
	o.persist(ctx, log, s)
}

func (o *Orchestrator) persist(ctx context.Context, log *zap.Logger, s *session.Session) {
	if err := o.sessions.Persist(ctx, s); err != nil {
		log.Error("session persist failed", zap.Error(err))
	}
}

// reply sends text and records it as the session's last bot message so the
// next turn's classifier can detect verbatim echoes.
func (o *Orchestrator) reply(ctx context.Context, log *zap.Logger, s *session.Session, chatID int64, text string) {
	s.LastBotMessage = text
	o.send(ctx, log, chatID, text)
}

func (o *Orchestrator) send(ctx context.Context, log *zap.Logger, chatID int64, text string) {
	if err := o.transport.SendMessage(ctx, chatID, text); err != nil {
		log.Error("send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
