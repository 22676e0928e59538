package routing

import (
	"fmt"
	"strings"
)

// Route is the closed vocabulary of top-level routing outcomes.
type Route string

const (
	RouteDoc             Route = "DOC"
	RouteVoice           Route = "VOICE"
	RouteJDText          Route = "JD_TEXT"
	RouteResumeText      Route = "RESUME_TEXT"
	RouteInterviewAnswer Route = "INTERVIEW_ANSWER"
	RouteMeta            Route = "META"
	RouteControl         Route = "CONTROL"
	RouteMatchingCommand Route = "MATCHING_COMMAND"
	RouteOfftopic        Route = "OFFTOPIC"
	RouteOther           Route = "OTHER"
)

var knownRoutes = map[Route]bool{
	RouteDoc:             true,
	RouteVoice:           true,
	RouteJDText:          true,
	RouteResumeText:      true,
	RouteInterviewAnswer: true,
	RouteMeta:            true,
	RouteControl:         true,
	RouteMatchingCommand: true,
	RouteOfftopic:        true,
	RouteOther:           true,
}

var knownMetaTypes = map[string]bool{
	"timing":   true,
	"language": true,
	"format":   true,
	"privacy":  true,
	"other":    true,
}

var knownControlTypes = map[string]bool{
	"pause":   true,
	"resume":  true,
	"restart": true,
	"help":    true,
	"stop":    true,
}

var knownMatchingIntents = map[string]bool{
	"run":    true,
	"show":   true,
	"pause":  true,
	"resume": true,
	"help":   true,
}

// Decision is the normalized routing decision. Field co-occurrence is
// enforced by Normalize, never trusted from the oracle: MetaType is set only
// for META routes, ControlType only for CONTROL, MatchingIntent only for
// MATCHING_COMMAND.
type Decision struct {
	Route                       Route
	ConversationIntent          string
	MetaType                    string
	ControlType                 string
	MatchingIntent              string
	Reply                       string
	ShouldAdvance               bool
	ShouldProcessTextAsDocument bool
}

// Normalize validates raw oracle output and produces a Decision whose
// structural invariants hold. A route outside the closed set is a contract
// violation and yields an error rather than a guessed decision.
func Normalize(data map[string]any) (*Decision, error) {
	route := Route(strings.ToUpper(strings.TrimSpace(coerceString(data["route"]))))
	if !knownRoutes[route] {
		return nil, fmt.Errorf("oracle returned unknown route %q", route)
	}

	reply := strings.TrimSpace(coerceString(data["reply"]))
	if reply == "" {
		return nil, fmt.Errorf("oracle returned empty reply for route %s", route)
	}

	shouldAdvance, ok := coerceBool(data["should_advance"])
	if !ok {
		return nil, fmt.Errorf("should_advance is not a boolean: %v", data["should_advance"])
	}

	asDocument, ok := coerceBool(data["should_process_text_as_document"])
	if !ok {
		return nil, fmt.Errorf("should_process_text_as_document is not a boolean: %v", data["should_process_text_as_document"])
	}

	d := &Decision{
		Route:         route,
		Reply:         reply,
		ShouldAdvance: shouldAdvance,
	}

	d.ConversationIntent = strings.ToUpper(strings.TrimSpace(coerceString(data["conversation_intent"])))
	if d.ConversationIntent == "" {
		d.ConversationIntent = intentFromRoute(route)
	}

	if route == RouteMeta {
		d.MetaType = normalizeEnum(data["meta_type"], knownMetaTypes, "other")
	}
	if route == RouteControl {
		d.ControlType = normalizeEnum(data["control_type"], knownControlTypes, "help")
	}
	if route == RouteMatchingCommand {
		d.MatchingIntent = normalizeEnum(data["matching_intent"], knownMatchingIntents, "help")
	}

	// Text intake routes are the only ones allowed to treat the message body
	// as a document.
	if route == RouteJDText || route == RouteResumeText {
		d.ShouldProcessTextAsDocument = asDocument
	}

	return d, nil
}

func intentFromRoute(route Route) string {
	switch route {
	case RouteMeta:
		return "META"
	case RouteControl:
		return "CONTROL"
	case RouteMatchingCommand:
		return "MATCHING"
	case RouteInterviewAnswer:
		return "ANSWER"
	case RouteOfftopic:
		return "SMALLTALK"
	default:
		return "OTHER"
	}
}

func normalizeEnum(v any, allowed map[string]bool, fallback string) string {
	value := strings.ToLower(strings.TrimSpace(coerceString(v)))
	if allowed[value] {
		return value
	}
	return fallback
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

func coerceBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		lower := strings.ToLower(strings.TrimSpace(val))
		if lower == "true" || lower == "yes" {
			return true, true
		}
		if lower == "false" || lower == "no" {
			return false, true
		}
		return false, false
	default:
		return false, false
	}
}
