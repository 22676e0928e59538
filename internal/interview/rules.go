package interview

import (
	"regexp"
	"strings"
	"unicode"
)

// Fallback replies are deterministic so the bot stays coherent with the
// oracle down.
const (
	fillerReply   = "Could you answer in a full sentence? A couple of details is enough."
	timingReply   = "The interview usually takes about ten minutes, a handful of questions."
	languageReply = "You can answer in any language, text or voice, whatever is easier."
	helpReply     = "Answer the current question, or send pause, restart or stop to control the interview."
	clarifyReply  = "Let me rephrase the question."
)

// rule is one (predicate, decision) pair of the fallback table.
type rule struct {
	name   string
	match  func(string) bool
	decide func() *Classification
}

// fallbackRules is evaluated top to bottom; the first match wins. Order is
// the precedence: control beats meta beats filler, and only then a message
// counts as an answer.
var fallbackRules = []rule{
	{
		name:  "control",
		match: matchAny(`(?i)^/?(pause|resume|restart|stop|help)\b`, `(?i)(останови|стоп|пауза|помощь)`),
		decide: func() *Classification {
			return &Classification{Intent: IntentControl, ControlType: "help", Reply: helpReply, Fallback: true}
		},
	},
	{
		name:  "timing",
		match: matchAny(`(?i)\bhow (long|much time|many questions)\b`, `(?i)\b(when|how soon)\b.*\?`, `(?i)(сколько|долго|как быстро)`),
		decide: func() *Classification {
			return &Classification{Intent: IntentMeta, MetaType: "timing", Reply: timingReply, Fallback: true}
		},
	},
	{
		name:  "language_voice",
		match: matchAny(`(?i)\b(language|in english|in russian|voice|audio)\b`, `(?i)(голос|язык|по-русски|по-английски)`),
		decide: func() *Classification {
			return &Classification{Intent: IntentMeta, MetaType: "language", Reply: languageReply, Fallback: true}
		},
	},
	{
		name:  "help",
		match: matchAny(`(?i)\b(help|what (can|do) you|how does this work)\b`, `(?i)(что (ты )?умеешь|как это работает)`),
		decide: func() *Classification {
			return &Classification{Intent: IntentControl, ControlType: "help", Reply: helpReply, Fallback: true}
		},
	},
	{
		name:  "clarify",
		match: matchAny(`(?i)\b(what do you mean|don'?t understand|can you (rephrase|repeat)|clarify)\b`, `(?i)(не понял|не понимаю|повтори|поясни|в смысле)`),
		decide: func() *Classification {
			return &Classification{Intent: IntentMeta, MetaType: "format", Reply: clarifyReply, Fallback: true}
		},
	},
	{
		name:  "filler",
		match: IsFiller,
		decide: func() *Classification {
			return &Classification{Intent: IntentMeta, MetaType: "format", Reply: fillerReply, Fallback: true}
		},
	},
}

// FallbackClassify decides the intent without the oracle. Anything the rule
// table does not catch is treated as an answer that advances the interview.
func FallbackClassify(message string) *Classification {
	for _, r := range fallbackRules {
		if r.match(message) {
			return r.decide()
		}
	}

	return &Classification{Intent: IntentAnswer, ShouldAdvance: true, Fallback: true}
}

// fillerTokens is the closed list of trivial non-answers. Matching is
// case-insensitive on the trimmed message.
var fillerTokens = map[string]bool{
	"ok":      true,
	"okay":    true,
	"k":       true,
	"kk":      true,
	"yes":     true,
	"yep":     true,
	"yeah":    true,
	"sure":    true,
	"fine":    true,
	"good":    true,
	"да":      true,
	"ага":     true,
	"угу":     true,
	"ок":      true,
	"окей":    true,
	"хорошо":  true,
	"ладно":   true,
	"понял":   true,
	"понятно": true,
	"+":       true,
}

// IsFiller reports whether the raw message is a trivial non-answer: a token
// from the closed list, or punctuation/symbols only.
func IsFiller(message string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(message))
	if trimmed == "" {
		return true
	}

	if fillerTokens[trimmed] {
		return true
	}

	for _, r := range trimmed {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func matchAny(patterns ...string) func(string) bool {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return func(message string) bool {
		for _, re := range compiled {
			if re.MatchString(message) {
				return true
			}
		}
		return false
	}
}
