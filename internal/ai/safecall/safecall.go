package safecall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"github.com/mavrk/jobvine/internal/ai"
	"github.com/mavrk/jobvine/internal/utils"
	"go.uber.org/zap"
)

// ErrorCode classifies an expected oracle failure. The invoker never returns
// a plain error for these classes; callers branch on the code.
type ErrorCode string

const (
	CodeTimeout             ErrorCode = "timeout"
	CodeTransientFailure    ErrorCode = "transient_failure"
	CodeLLMFailure          ErrorCode = "llm_failure"
	CodeJSONParseFailed     ErrorCode = "json_parse_failed"
	CodeSchemaInvalid       ErrorCode = "schema_invalid"
	CodeMissingPrecondition ErrorCode = "missing_precondition"
)

// Result is the tagged outcome of a safe oracle call. Exactly one of the two
// shapes is meaningful: OK with Data/Text, or !OK with Code and Err.
type Result struct {
	OK   bool
	Data map[string]any
	Text string
	Code ErrorCode
	Err  error
}

// JSONRequest describes a JSON-shaped oracle call.
type JSONRequest struct {
	Prompt     string
	MaxTokens  int
	SchemaHint string
	// Timeout overrides the invoker default when positive.
	Timeout time.Duration
	// Validate rejects parsed objects that violate the caller's contract.
	Validate func(map[string]any) error
}

// TextRequest describes a free-text oracle call.
type TextRequest struct {
	Prompt    string
	MaxTokens int
	Timeout   time.Duration
}

const (
	defaultTimeout    = 25 * time.Second
	retryBackoff      = 500 * time.Millisecond
	defaultMaxLogLen  = 200
	repairMaxTokens   = 1024
	repairHintMissing = "a single JSON object"
)

//go:embed repair_prompt.md
var repairTemplate string

// Invoker wraps an ai.Oracle with a timeout, a single transport-level retry
// and, for JSON calls, a single content-level repair attempt.
type Invoker struct {
	oracle    ai.Oracle
	persona   string
	timeout   time.Duration
	logger    *zap.Logger
	maxLogLen int
}

// New creates an Invoker. persona is the global system persona required for
// any oracle call; an empty persona makes every call fail with
// missing_precondition.
func New(oracle ai.Oracle, persona string, timeout time.Duration, logger *zap.Logger) *Invoker {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Invoker{
		oracle:    oracle,
		persona:   strings.TrimSpace(persona),
		timeout:   timeout,
		logger:    logger,
		maxLogLen: defaultMaxLogLen,
	}
}

// CallJSON performs a JSON-shaped oracle call: attempt, classify failure,
// retry once, then a single repair pass when the output is not parseable.
func (i *Invoker) CallJSON(ctx context.Context, req JSONRequest) Result {
	if i.persona == "" {
		return failure(CodeMissingPrecondition, errors.New("system persona is not configured"))
	}

	prompt := i.persona + "\n\n" + req.Prompt

	raw, code, err := i.generateWithRetry(ctx, jsonCall, prompt, req.MaxTokens, req.Timeout)
	if err != nil {
		return failure(code, err)
	}

	data, parseErr := ParseJSONSpan(raw)
	if parseErr != nil {
		i.logger.Warn("oracle output is not parseable json, attempting repair",
			zap.String("raw_preview", utils.TruncateForLog(raw, i.maxLogLen)),
			zap.Error(parseErr),
		)

		data, parseErr = i.repair(ctx, req, raw)
		if parseErr != nil {
			return failure(CodeJSONParseFailed, parseErr)
		}
	}

	if req.Validate != nil {
		if err := req.Validate(data); err != nil {
			return failure(CodeSchemaInvalid, err)
		}
	}

	return Result{OK: true, Data: data}
}

// CallText performs a free-text oracle call with the same timeout and
// retry-once shape, without any JSON handling.
func (i *Invoker) CallText(ctx context.Context, req TextRequest) Result {
	if i.persona == "" {
		return failure(CodeMissingPrecondition, errors.New("system persona is not configured"))
	}

	prompt := i.persona + "\n\n" + req.Prompt

	raw, code, err := i.generateWithRetry(ctx, textCall, prompt, req.MaxTokens, req.Timeout)
	if err != nil {
		return failure(code, err)
	}

	return Result{OK: true, Text: raw}
}

type callKind int

const (
	jsonCall callKind = iota
	textCall
)

// generateWithRetry is the explicit attempt -> classify -> retry-once
// combinator. The second attempt happens only for timeout or transient
// failures and retries are never chained.
func (i *Invoker) generateWithRetry(ctx context.Context, kind callKind, prompt string, maxTokens int, timeout time.Duration) (string, ErrorCode, error) {
	raw, err := i.attempt(ctx, kind, prompt, maxTokens, timeout)
	if err == nil {
		return raw, "", nil
	}

	code := Classify(err)
	if code != CodeTimeout && code != CodeTransientFailure {
		return "", code, err
	}

	i.logger.Warn("oracle call failed, retrying once",
		zap.String("error_code", string(code)),
		zap.Error(err),
	)

	if waitErr := utils.WaitFor(ctx, retryBackoff); waitErr != nil {
		return "", code, err
	}

	raw, err = i.attempt(ctx, kind, prompt, maxTokens, timeout)
	if err == nil {
		return raw, "", nil
	}

	return "", Classify(err), err
}

// attempt runs one oracle call under a bounded timeout. The timeout cancels
// only the wait; a slow upstream call may still finish after the caller has
// moved on and its result is discarded.
func (i *Invoker) attempt(ctx context.Context, kind callKind, prompt string, maxTokens int, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = i.timeout
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		raw string
		err error
	}

	done := make(chan outcome, 1)
	go func() {
		var raw string
		var err error
		switch kind {
		case jsonCall:
			raw, err = i.oracle.GenerateStructuredJSON(cctx, prompt, maxTokens)
		default:
			raw, err = i.oracle.GenerateAssistantReply(cctx, prompt, maxTokens)
		}
		done <- outcome{raw: raw, err: err}
	}()

	select {
	case <-cctx.Done():
		return "", cctx.Err()
	case out := <-done:
		return out.raw, out.err
	}
}

// repair issues exactly one follow-up call that feeds the schema hint and the
// malformed output back to the oracle. The repair reuses the already spent
// tokens instead of re-asking the original question, so it gets no transport
// retry of its own.
func (i *Invoker) repair(ctx context.Context, req JSONRequest, malformed string) (map[string]any, error) {
	hint := strings.TrimSpace(req.SchemaHint)
	if hint == "" {
		hint = repairHintMissing
	}

	prompt := strings.ReplaceAll(repairTemplate, "{{SCHEMA_HINT}}", hint)
	prompt = strings.ReplaceAll(prompt, "{{RAW_OUTPUT}}", malformed)

	raw, err := i.attempt(ctx, jsonCall, prompt, repairMaxTokens, req.Timeout)
	if err != nil {
		return nil, fmt.Errorf("repair call: %w", err)
	}

	i.logger.Debug("repair call response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, i.maxLogLen)),
	)

	return ParseJSONSpan(raw)
}

func failure(code ErrorCode, err error) Result {
	return Result{OK: false, Code: code, Err: err}
}

// ParseJSONSpan locates the top-level {...} span in raw model output, after
// stripping markdown fences, and parses it into a map.
func ParseJSONSpan(raw string) (map[string]any, error) {
	cleaned := stripFences(raw)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no json object found in oracle output")
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &data); err != nil {
		return nil, fmt.Errorf("parse oracle output: %w", err)
	}

	return data, nil
}

func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

// Classify maps an oracle-level error to its failure class. Timeouts and
// transient conditions (network resets, 429/5xx, rate-limit wording) are
// retryable; anything else is a hard llm_failure.
func Classify(err error) ErrorCode {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return CodeTransientFailure
		}
	}

	return CodeLLMFailure
}

var transientMarkers = []string{
	"429",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"rate-limit",
	"resource exhausted",
	"resource_exhausted",
	"quota",
	"overloaded",
	"unavailable",
	"connection reset",
	"connection refused",
	"broken pipe",
	"eof",
	"temporar",
}
