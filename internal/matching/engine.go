// Package matching pairs candidates with hiring managers once both sides
// have finished their interviews.
package matching

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mavrk/jobvine/internal/session"
)

// SessionStore is the slice of storage the engine needs. The caller's own
// session is never written here: the engine mutates it in place and the
// caller persists it with the rest of the turn.
type SessionStore interface {
	SaveSession(ctx context.Context, rec *session.Session) error
	ListSessions(ctx context.Context) ([]*session.Session, error)
}

const helpText = "Matching commands: \"find matches\" pairs you with the other side, \"show status\" reports where you stand, \"pause matching\" and \"resume matching\" control visibility."

// Engine is a deliberately simple matcher: first unpaired profile of the
// opposite role wins. Scoring belongs to a later stage.
type Engine struct {
	store  SessionStore
	logger *zap.Logger
}

func New(store SessionStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, logger: logger}
}

// Command executes one matching intent against the caller's live session and
// returns the reply text. Changes to me are left for the caller to persist.
func (e *Engine) Command(ctx context.Context, me *session.Session, intent string) (string, error) {
	switch intent {
	case "run":
		return e.run(ctx, me)
	case "show":
		return show(me), nil
	case "pause":
		me.Paused = true
		return "Matching is paused. You won't be offered to anyone until you resume.", nil
	case "resume":
		me.Paused = false
		return "Matching is back on. I'll let you know when there's someone to meet.", nil
	default:
		return helpText, nil
	}
}

func (e *Engine) run(ctx context.Context, me *session.Session) (string, error) {
	if !eligible(me) {
		return "You're not ready for matching yet. Let's finish the interview first.", nil
	}
	if me.PeerUserID != 0 {
		return "You already have a match waiting for a decision. Send \"yes\" or \"no\" first.", nil
	}

	all, err := e.store.ListSessions(ctx)
	if err != nil {
		return "", fmt.Errorf("list sessions: %w", err)
	}

	for _, other := range all {
		if other.UserID == me.UserID || other.Role == me.Role {
			continue
		}
		if !eligible(other) || other.PeerUserID != 0 {
			continue
		}

		other.PeerUserID = me.UserID
		if err := e.store.SaveSession(ctx, other); err != nil {
			return "", fmt.Errorf("save peer session: %w", err)
		}
		me.PeerUserID = other.UserID

		e.logger.Info("match created",
			zap.Int64("user_id", me.UserID),
			zap.Int64("peer_id", other.UserID),
		)
		return "I found a potential match. Reply \"yes\" to accept or \"no\" to pass.", nil
	}

	return "No matches on the other side yet. I'll keep looking and ping you.", nil
}

func show(me *session.Session) string {
	switch {
	case me.State == session.StateContactShared:
		return "You have a confirmed match and contacts were shared."
	case me.PeerUserID != 0 && me.Accepted && !me.PeerAccepted:
		return "You accepted your match, waiting on the other side."
	case me.PeerUserID != 0 && me.PeerAccepted && !me.Accepted:
		return "Your match accepted. The decision is yours, \"yes\" or \"no\"."
	case me.PeerUserID != 0:
		return "You have a match waiting for a decision."
	case me.Paused:
		return "Matching is paused for you. Send \"resume matching\" to come back."
	case eligible(me):
		return "Your profile is complete, no match yet. I'll keep looking."
	default:
		return "Your profile isn't complete yet, so matching hasn't started."
	}
}

// eligible reports whether a profile is complete enough to be offered to the
// other side.
func eligible(s *session.Session) bool {
	if s == nil || s.Paused {
		return false
	}
	switch s.State {
	case session.StateWaitingCandidateDecision, session.StateWaitingManagerDecision:
		return true
	default:
		return false
	}
}
