package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/mavrk/jobvine/internal/ai/safecall"
	"github.com/mavrk/jobvine/internal/utils"
	"go.uber.org/zap"
)

//go:embed route_prompt.md
var routePromptTemplate string

const (
	classifyMaxTokens = 768

	defaultMaxLogLength = 200
)

// Context carries everything the classifier is allowed to see about the
// current turn. Text is expected to be language-normalized upstream.
type Context struct {
	State          string `json:"state"`
	Role           string `json:"role"`
	HasText        bool   `json:"has_text"`
	HasDocument    bool   `json:"has_document"`
	HasVoice       bool   `json:"has_voice"`
	Text           string `json:"text,omitempty"`
	ActiveQuestion string `json:"active_question,omitempty"`
	LastBotMessage string `json:"last_bot_message,omitempty"`
}

// OracleError is returned when the oracle call itself failed. The caller has
// no safe default decision here and must apply its own fallback policy.
type OracleError struct {
	Code safecall.ErrorCode
	Err  error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("route classification failed (%s): %v", e.Code, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

type jsonCaller interface {
	CallJSON(ctx context.Context, req safecall.JSONRequest) safecall.Result
}

// Classifier turns freeform conversational context into a normalized routing
// decision.
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

// Classify builds the routing prompt from rctx, invokes the oracle and
// normalizes the result. An *OracleError means no decision was produced; the
// classifier never fabricates one.
func (c *Classifier) Classify(ctx context.Context, rctx Context) (*Decision, error) {
	payload, err := json.MarshalIndent(rctx, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal routing context: %w", err)
	}

	prompt := strings.ReplaceAll(routePromptTemplate, "{{CONTEXT_JSON}}", string(payload))

	c.logger.Debug("route classification request",
		zap.String("state", rctx.State),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("text_preview", utils.TruncateForLog(rctx.Text, c.maxLogLen)),
	)

	res := c.invoker.CallJSON(ctx, safecall.JSONRequest{
		Prompt:     prompt,
		MaxTokens:  classifyMaxTokens,
		SchemaHint: routeSchemaHint,
	})
	if !res.OK {
		return nil, &OracleError{Code: res.Code, Err: res.Err}
	}

	decision, err := Normalize(res.Data)
	if err != nil {
		return nil, err
	}

	last := strings.TrimSpace(rctx.LastBotMessage)
	if last != "" && strings.EqualFold(strings.TrimSpace(decision.Reply), last) {
		return nil, fmt.Errorf("oracle repeated the previous bot message verbatim")
	}

	c.logger.Debug("route classification result",
		zap.String("route", string(decision.Route)),
		zap.String("conversation_intent", decision.ConversationIntent),
		zap.Bool("should_advance", decision.ShouldAdvance),
	)

	return decision, nil
}

const routeSchemaHint = `{
  "route": "DOC|VOICE|JD_TEXT|RESUME_TEXT|INTERVIEW_ANSWER|META|CONTROL|MATCHING_COMMAND|OFFTOPIC|OTHER",
  "meta_type": "timing|language|format|privacy|other|null",
  "control_type": "pause|resume|restart|help|stop|null",
  "matching_intent": "run|show|pause|resume|help|null",
  "reply": "non-empty string",
  "should_advance": false,
  "should_process_text_as_document": false
}`
