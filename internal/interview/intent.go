package interview

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/mavrk/jobvine/internal/ai/safecall"
	"github.com/mavrk/jobvine/internal/utils"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

// Intent is the closed vocabulary of interview-scoped outcomes.
type Intent string

const (
	IntentAnswer   Intent = "ANSWER"
	IntentMeta     Intent = "META"
	IntentControl  Intent = "CONTROL"
	IntentOfftopic Intent = "OFFTOPIC"
)

var knownIntents = map[Intent]bool{
	IntentAnswer:   true,
	IntentMeta:     true,
	IntentControl:  true,
	IntentOfftopic: true,
}

// Classification is the decision for one message sent while an interview
// question is outstanding.
type Classification struct {
	Intent        Intent
	MetaType      string
	ControlType   string
	Reply         string
	ShouldAdvance bool
	// Fallback marks decisions produced by the rule table instead of the oracle.
	Fallback bool
}

//go:embed intent_prompt.md
var intentPromptTemplate string

const (
	intentMaxTokens     = 512
	defaultMaxLogLength = 200
)

const intentSchemaHint = `{
  "intent": "ANSWER|META|CONTROL|OFFTOPIC",
  "meta_type": "timing|language|format|privacy|other|null",
  "control_type": "pause|resume|restart|help|stop|null",
  "reply": "non-empty string",
  "should_advance": false
}`

type jsonCaller interface {
	CallJSON(ctx context.Context, req safecall.JSONRequest) safecall.Result
}

// Classifier decides what one interview-time message is. Unlike the route
// classifier it always produces a decision: when the oracle is unavailable
// the deterministic rule table takes over.
type Classifier struct {
	invoker   jsonCaller
	logger    *zap.Logger
	maxLogLen int
}

func NewClassifier(invoker jsonCaller, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		invoker:   invoker,
		logger:    logger,
		maxLogLen: defaultMaxLogLength,
	}
}

// Classify runs the oracle classification with the filler guard on top, and
// the rule-based fallback underneath.
func (c *Classifier) Classify(ctx context.Context, question, message string) *Classification {
	payload, err := json.Marshal(map[string]string{
		"question": question,
		"message":  message,
	})
	if err != nil {
		// Marshalling two strings cannot realistically fail; keep the turn alive anyway.
		return FallbackClassify(message)
	}

	prompt := strings.ReplaceAll(intentPromptTemplate, "{{CONTEXT_JSON}}", string(payload))

	res := c.invoker.CallJSON(ctx, safecall.JSONRequest{
		Prompt:     prompt,
		MaxTokens:  intentMaxTokens,
		SchemaHint: intentSchemaHint,
	})
	if !res.OK {
		c.logger.Warn("intent oracle unavailable, using rule-based fallback",
			zap.String("error_code", string(res.Code)),
			zap.String("message_preview", utils.TruncateForLog(message, c.maxLogLen)),
			zap.Error(res.Err),
		)
		return FallbackClassify(message)
	}

	cls, err := normalizeIntent(res.Data)
	if err != nil {
		c.logger.Warn("intent oracle returned malformed decision, using rule-based fallback",
			zap.Error(err),
		)
		return FallbackClassify(message)
	}

	// The oracle is not trusted to catch trivial non-answers.
	if cls.Intent == IntentAnswer && IsFiller(message) {
		c.logger.Debug("downgrading filler answer to meta",
			zap.String("message", utils.TruncateForLog(message, c.maxLogLen)),
		)
		cls.Intent = IntentMeta
		cls.MetaType = "format"
		cls.ShouldAdvance = false
		if cls.Reply == "" {
			cls.Reply = fillerReply
		}
	}

	return cls
}

type rawIntent struct {
	Intent        string `mapstructure:"intent"`
	MetaType      string `mapstructure:"meta_type"`
	ControlType   string `mapstructure:"control_type"`
	Reply         string `mapstructure:"reply"`
	ShouldAdvance bool   `mapstructure:"should_advance"`
}

func normalizeIntent(data map[string]any) (*Classification, error) {
	var raw rawIntent
	if err := mapstructure.WeakDecode(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding intent decision: %w", err)
	}

	intent := Intent(strings.ToUpper(strings.TrimSpace(raw.Intent)))
	if !knownIntents[intent] {
		return nil, fmt.Errorf("unknown interview intent %q", intent)
	}

	cls := &Classification{
		Intent:        intent,
		Reply:         strings.TrimSpace(raw.Reply),
		ShouldAdvance: raw.ShouldAdvance,
	}

	// Advancing is only meaningful for answers.
	if intent != IntentAnswer {
		cls.ShouldAdvance = false
	}

	if intent == IntentMeta {
		cls.MetaType = strings.ToLower(strings.TrimSpace(raw.MetaType))
		if cls.MetaType == "" {
			cls.MetaType = "other"
		}
	}
	if intent == IntentControl {
		cls.ControlType = strings.ToLower(strings.TrimSpace(raw.ControlType))
		if cls.ControlType == "" {
			cls.ControlType = "help"
		}
	}

	return cls, nil
}
