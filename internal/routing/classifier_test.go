package routing

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mavrk/jobvine/internal/ai/safecall"
	"go.uber.org/zap"
)

type stubInvoker struct {
	result     safecall.Result
	lastPrompt string
}

func (s *stubInvoker) CallJSON(_ context.Context, req safecall.JSONRequest) safecall.Result {
	s.lastPrompt = req.Prompt
	return s.result
}

func okResult(data map[string]any) safecall.Result {
	return safecall.Result{OK: true, Data: data}
}

func validDecisionData() map[string]any {
	return map[string]any{
		"route":                           "JD_TEXT",
		"reply":                           "Got it, reading the job description now.",
		"should_advance":                  false,
		"should_process_text_as_document": true,
	}
}

func TestClassifyEmbedsContext(t *testing.T) {
	stub := &stubInvoker{result: okResult(validDecisionData())}
	c := NewClassifier(stub, zap.NewNop())

	decision, err := c.Classify(context.Background(), Context{
		State:   "waiting_job",
		Role:    "manager",
		HasText: true,
		Text:    "We are hiring a senior Go engineer...",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if decision.Route != RouteJDText {
		t.Fatalf("expected JD_TEXT, got %s", decision.Route)
	}

	if !decision.ShouldProcessTextAsDocument {
		t.Fatalf("expected should_process_text_as_document to survive for JD_TEXT")
	}

	if !strings.Contains(stub.lastPrompt, `"state": "waiting_job"`) {
		t.Fatalf("prompt should embed the context json, got: %s", stub.lastPrompt)
	}
}

func TestClassifyPropagatesOracleFailure(t *testing.T) {
	stub := &stubInvoker{result: safecall.Result{
		OK:   false,
		Code: safecall.CodeTimeout,
		Err:  errors.New("deadline exceeded"),
	}}
	c := NewClassifier(stub, zap.NewNop())

	_, err := c.Classify(context.Background(), Context{State: "waiting_job"})
	if err == nil {
		t.Fatalf("expected error")
	}

	var oerr *OracleError
	if !errors.As(err, &oerr) {
		t.Fatalf("expected *OracleError, got %T", err)
	}

	if oerr.Code != safecall.CodeTimeout {
		t.Fatalf("expected timeout code, got %s", oerr.Code)
	}
}

func TestClassifyRejectsVerbatimRepeat(t *testing.T) {
	data := validDecisionData()
	data["route"] = "META"
	data["reply"] = "What else can I help with?"
	stub := &stubInvoker{result: okResult(data)}
	c := NewClassifier(stub, zap.NewNop())

	_, err := c.Classify(context.Background(), Context{
		State:          "waiting_job",
		LastBotMessage: "What else can I help with?",
	})
	if err == nil {
		t.Fatalf("expected verbatim repeat to be rejected")
	}
}

func TestNormalizeRejectsUnknownRoute(t *testing.T) {
	data := validDecisionData()
	data["route"] = "BANANA"

	if _, err := Normalize(data); err == nil {
		t.Fatalf("expected unknown route to fail")
	}
}

func TestNormalizeUppercasesRoute(t *testing.T) {
	data := validDecisionData()
	data["route"] = "jd_text"

	decision, err := Normalize(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if decision.Route != RouteJDText {
		t.Fatalf("expected JD_TEXT, got %s", decision.Route)
	}
}

func TestNormalizeForcesCoOccurrence(t *testing.T) {
	data := map[string]any{
		"route":                           "OTHER",
		"meta_type":                       "timing",
		"control_type":                    "pause",
		"matching_intent":                 "run",
		"reply":                           "Hmm, let me think.",
		"should_advance":                  false,
		"should_process_text_as_document": true,
	}

	decision, err := Normalize(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if decision.MetaType != "" {
		t.Fatalf("meta_type must be cleared for OTHER, got %q", decision.MetaType)
	}
	if decision.ControlType != "" {
		t.Fatalf("control_type must be cleared for OTHER, got %q", decision.ControlType)
	}
	if decision.MatchingIntent != "" {
		t.Fatalf("matching_intent must be cleared for OTHER, got %q", decision.MatchingIntent)
	}
	if decision.ShouldProcessTextAsDocument {
		t.Fatalf("document flag must be forced false outside text intake routes")
	}
}

func TestNormalizeKeepsOwnedSubIntent(t *testing.T) {
	data := map[string]any{
		"route":                           "META",
		"meta_type":                       "TIMING",
		"reply":                           "About ten minutes.",
		"should_advance":                  false,
		"should_process_text_as_document": false,
	}

	decision, err := Normalize(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if decision.MetaType != "timing" {
		t.Fatalf("expected timing, got %q", decision.MetaType)
	}
}

func TestNormalizeDefaultsUnknownSubIntent(t *testing.T) {
	data := map[string]any{
		"route":                           "CONTROL",
		"control_type":                    "self_destruct",
		"reply":                           "Here is what I can do.",
		"should_advance":                  false,
		"should_process_text_as_document": false,
	}

	decision, err := Normalize(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if decision.ControlType != "help" {
		t.Fatalf("unknown control_type should fall back to help, got %q", decision.ControlType)
	}
}

func TestNormalizeRequiresReply(t *testing.T) {
	data := validDecisionData()
	data["reply"] = "   "

	if _, err := Normalize(data); err == nil {
		t.Fatalf("expected empty reply to fail")
	}
}

func TestNormalizeRequiresBooleans(t *testing.T) {
	data := validDecisionData()
	data["should_advance"] = "maybe"

	if _, err := Normalize(data); err == nil {
		t.Fatalf("expected non-boolean should_advance to fail")
	}
}

func TestNormalizeDerivesConversationIntent(t *testing.T) {
	data := map[string]any{
		"route":                           "MATCHING_COMMAND",
		"matching_intent":                 "run",
		"reply":                           "Starting matching.",
		"should_advance":                  false,
		"should_process_text_as_document": false,
	}

	decision, err := Normalize(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if decision.ConversationIntent != "MATCHING" {
		t.Fatalf("expected derived MATCHING intent, got %q", decision.ConversationIntent)
	}
}
