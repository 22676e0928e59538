package safecall

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

type stubOracle struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
	delay     time.Duration
}

func (s *stubOracle) next(prompt string) (string, error) {
	idx := s.calls
	s.calls++
	s.prompts = append(s.prompts, prompt)

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	var err error
	if idx < len(s.errs) {
		err = s.errs[idx]
	}
	if err != nil {
		return "", err
	}

	if idx < len(s.responses) {
		return s.responses[idx], nil
	}
	return "", errors.New("stub exhausted")
}

func (s *stubOracle) GenerateStructuredJSON(_ context.Context, prompt string, _ int) (string, error) {
	return s.next(prompt)
}

func (s *stubOracle) GenerateAssistantReply(_ context.Context, prompt string, _ int) (string, error) {
	return s.next(prompt)
}

func newInvoker(oracle *stubOracle) *Invoker {
	return New(oracle, "You are a recruiting assistant.", time.Second, zap.NewNop())
}

func TestCallJSONParsesCleanResponse(t *testing.T) {
	oracle := &stubOracle{responses: []string{`{"route": "META", "reply": "hi"}`}}
	inv := newInvoker(oracle)

	res := inv.CallJSON(context.Background(), JSONRequest{Prompt: "classify this"})
	if !res.OK {
		t.Fatalf("expected ok result, got code %s: %v", res.Code, res.Err)
	}

	if res.Data["route"] != "META" {
		t.Fatalf("unexpected route: %v", res.Data["route"])
	}

	if oracle.calls != 1 {
		t.Fatalf("expected exactly one oracle call, got %d", oracle.calls)
	}
}

func TestCallJSONExtractsSpanFromProse(t *testing.T) {
	oracle := &stubOracle{responses: []string{"Sure, here is the result:\n```json\n{\"route\": \"DOC\"}\n```\nHope that helps."}}
	inv := newInvoker(oracle)

	res := inv.CallJSON(context.Background(), JSONRequest{Prompt: "classify"})
	if !res.OK {
		t.Fatalf("expected ok result, got code %s: %v", res.Code, res.Err)
	}

	if res.Data["route"] != "DOC" {
		t.Fatalf("unexpected route: %v", res.Data["route"])
	}
}

func TestCallJSONRepairsMalformedOutput(t *testing.T) {
	oracle := &stubOracle{responses: []string{
		"route is META, reply is hi",
		`{"route": "META"}`,
	}}
	inv := newInvoker(oracle)

	res := inv.CallJSON(context.Background(), JSONRequest{Prompt: "classify", SchemaHint: `{"route": "..."}`})
	if !res.OK {
		t.Fatalf("expected repaired result, got code %s: %v", res.Code, res.Err)
	}

	if oracle.calls != 2 {
		t.Fatalf("expected original call plus one repair, got %d calls", oracle.calls)
	}

	repairPrompt := oracle.prompts[1]
	if !strings.Contains(repairPrompt, "route is META, reply is hi") {
		t.Fatalf("repair prompt should embed the malformed output, got: %s", repairPrompt)
	}
	if !strings.Contains(repairPrompt, `{"route": "..."}`) {
		t.Fatalf("repair prompt should embed the schema hint, got: %s", repairPrompt)
	}
}

func TestCallJSONFailsAfterSingleRepairAttempt(t *testing.T) {
	oracle := &stubOracle{responses: []string{
		"not json at all",
		"still not json",
		`{"route": "META"}`,
	}}
	inv := newInvoker(oracle)

	res := inv.CallJSON(context.Background(), JSONRequest{Prompt: "classify"})
	if res.OK {
		t.Fatalf("expected failure")
	}

	if res.Code != CodeJSONParseFailed {
		t.Fatalf("expected json_parse_failed, got %s", res.Code)
	}

	if oracle.calls != 2 {
		t.Fatalf("expected exactly one repair attempt, got %d calls", oracle.calls)
	}
}

func TestCallJSONRetriesOnceOnTransientFailure(t *testing.T) {
	oracle := &stubOracle{
		errs:      []error{errors.New("http 429: rate limit exceeded"), nil},
		responses: []string{"", `{"route": "META"}`},
	}
	inv := newInvoker(oracle)

	res := inv.CallJSON(context.Background(), JSONRequest{Prompt: "classify"})
	if !res.OK {
		t.Fatalf("expected success after retry, got code %s: %v", res.Code, res.Err)
	}

	if oracle.calls != 2 {
		t.Fatalf("expected two calls, got %d", oracle.calls)
	}
}

func TestCallJSONDoesNotChainRetries(t *testing.T) {
	oracle := &stubOracle{
		errs: []error{
			errors.New("http 503: service unavailable"),
			errors.New("http 503: service unavailable"),
			nil,
		},
	}
	inv := newInvoker(oracle)

	res := inv.CallJSON(context.Background(), JSONRequest{Prompt: "classify"})
	if res.OK {
		t.Fatalf("expected failure after a single retry")
	}

	if res.Code != CodeTransientFailure {
		t.Fatalf("expected transient_failure, got %s", res.Code)
	}

	if oracle.calls != 2 {
		t.Fatalf("retries must not chain: expected 2 calls, got %d", oracle.calls)
	}
}

func TestCallJSONDoesNotRetryHardFailure(t *testing.T) {
	oracle := &stubOracle{errs: []error{errors.New("invalid api key")}}
	inv := newInvoker(oracle)

	res := inv.CallJSON(context.Background(), JSONRequest{Prompt: "classify"})
	if res.OK {
		t.Fatalf("expected failure")
	}

	if res.Code != CodeLLMFailure {
		t.Fatalf("expected llm_failure, got %s", res.Code)
	}

	if oracle.calls != 1 {
		t.Fatalf("hard failures must not retry: expected 1 call, got %d", oracle.calls)
	}
}

func TestCallJSONTimesOut(t *testing.T) {
	oracle := &stubOracle{
		delay:     200 * time.Millisecond,
		responses: []string{`{"route": "META"}`, `{"route": "META"}`},
	}
	inv := newInvoker(oracle)

	res := inv.CallJSON(context.Background(), JSONRequest{
		Prompt:  "classify",
		Timeout: 20 * time.Millisecond,
	})
	if res.OK {
		t.Fatalf("expected timeout failure")
	}

	if res.Code != CodeTimeout {
		t.Fatalf("expected timeout, got %s (%v)", res.Code, res.Err)
	}
}

func TestCallJSONSchemaValidation(t *testing.T) {
	oracle := &stubOracle{responses: []string{`{"route": 42}`}}
	inv := newInvoker(oracle)

	res := inv.CallJSON(context.Background(), JSONRequest{
		Prompt: "classify",
		Validate: func(data map[string]any) error {
			if _, ok := data["route"].(string); !ok {
				return fmt.Errorf("route must be a string")
			}
			return nil
		},
	})
	if res.OK {
		t.Fatalf("expected schema failure")
	}

	if res.Code != CodeSchemaInvalid {
		t.Fatalf("expected schema_invalid, got %s", res.Code)
	}
}

func TestCallJSONRequiresPersona(t *testing.T) {
	oracle := &stubOracle{responses: []string{`{"route": "META"}`}}
	inv := New(oracle, "", time.Second, zap.NewNop())

	res := inv.CallJSON(context.Background(), JSONRequest{Prompt: "classify"})
	if res.OK {
		t.Fatalf("expected failure without persona")
	}

	if res.Code != CodeMissingPrecondition {
		t.Fatalf("expected missing_precondition, got %s", res.Code)
	}

	if oracle.calls != 0 {
		t.Fatalf("oracle must not be called without persona")
	}
}

func TestCallTextSkipsJSONHandling(t *testing.T) {
	oracle := &stubOracle{responses: []string{"plain reply, no json here"}}
	inv := newInvoker(oracle)

	res := inv.CallText(context.Background(), TextRequest{Prompt: "say hi"})
	if !res.OK {
		t.Fatalf("expected ok, got code %s: %v", res.Code, res.Err)
	}

	if res.Text != "plain reply, no json here" {
		t.Fatalf("unexpected text: %q", res.Text)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: CodeTimeout},
		{name: "wrapped deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: CodeTimeout},
		{name: "rate limit", err: errors.New("429 Too Many Requests"), want: CodeTransientFailure},
		{name: "reset", err: errors.New("read tcp: connection reset by peer"), want: CodeTransientFailure},
		{name: "server error", err: errors.New("googleapi: Error 503: overloaded"), want: CodeTransientFailure},
		{name: "hard", err: errors.New("invalid argument"), want: CodeLLMFailure},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestParseJSONSpan(t *testing.T) {
	data, err := ParseJSONSpan("noise before {\"a\": 1} noise after")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data["a"].(float64) != 1 {
		t.Fatalf("unexpected data: %v", data)
	}

	if _, err := ParseJSONSpan("no braces here"); err == nil {
		t.Fatalf("expected error for missing span")
	}
}
