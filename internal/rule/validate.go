package rule

import (
	"fmt"

	"github.com/kestrelsec/kestrel/internal/primitive"
)

// Validation error codes (V100-V199).
const (
	ErrEmptyRuleName      = "V100" // rule name is required
	ErrDuplicateRule      = "V101" // duplicate rule name in document
	ErrNoPrimitives       = "V102" // rule declares no primitives
	ErrEmptyNodeName      = "V103" // primitive local name is required
	ErrDuplicateNodeName  = "V104" // duplicate local name in rule
	ErrUnknownType        = "V105" // primitive type not registered
	ErrReservedEventName  = "V106" // source event uses a reserved name
	ErrUnknownEdgeTarget  = "V107" // ConnectTo names an undefined primitive
	ErrSelfLoop           = "V108" // primitive connects to itself
	ErrGeneratorCount     = "V109" // rule needs exactly one EventGenerator
	ErrGeneratorConnectTo = "V110" // EventGenerator has outbound edges
)

// ValidationError reports one structural defect in a rule document.
type ValidationError struct {
	Code    string
	Rule    string
	Subject string
	Message string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Rule == "":
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	case e.Subject == "":
		return fmt.Sprintf("[%s] rule %q: %s", e.Code, e.Rule, e.Message)
	default:
		return fmt.Sprintf("[%s] rule %q: %s: %s", e.Code, e.Rule, e.Subject, e.Message)
	}
}

func vErr(code, ruleName, subject, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Rule: ruleName, Subject: subject,
		Message: fmt.Sprintf(format, args...)}
}

// Validate performs the structural checks that need no engine state:
// naming, edge integrity, type existence, and generator arity. Macro
// parsing, configuration validation, topology, and inbound-edge coverage
// happen in the compiler, which has the meta event and live instances.
// Returns all defects found.
func Validate(doc *Document) []error {
	var errs []error
	seenRules := make(map[string]bool)

	for ri := range doc.Rules {
		r := &doc.Rules[ri]
		if r.RuleName == "" {
			errs = append(errs, vErr(ErrEmptyRuleName, "", "", "rule %d: RuleName is required", ri))
			continue
		}
		if seenRules[r.RuleName] {
			errs = append(errs, vErr(ErrDuplicateRule, r.RuleName, "", "declared twice in one document"))
			continue
		}
		seenRules[r.RuleName] = true
		errs = append(errs, validateRule(r)...)
	}
	return errs
}

func validateRule(r *Rule) []error {
	var errs []error

	if len(r.Primitives) == 0 {
		return append(errs, vErr(ErrNoPrimitives, r.RuleName, "", "declares no primitives"))
	}

	names := make(map[string]bool, len(r.Primitives))
	for _, n := range r.Primitives {
		if n.Name == "" {
			errs = append(errs, vErr(ErrEmptyNodeName, r.RuleName, n.Type, "primitive Name is required"))
			continue
		}
		if names[n.Name] {
			errs = append(errs, vErr(ErrDuplicateNodeName, r.RuleName, n.Name, "local name declared twice"))
			continue
		}
		names[n.Name] = true
	}

	generators := 0
	for _, n := range r.Primitives {
		if !primitive.Known(n.Type) {
			errs = append(errs, vErr(ErrUnknownType, r.RuleName, n.Name,
				"unknown primitive type %q (registered: %v)", n.Type, primitive.Kinds()))
			continue
		}
		if n.Type == primitive.KindEventGenerator {
			generators++
			if len(n.ConnectTo) > 0 {
				errs = append(errs, vErr(ErrGeneratorConnectTo, r.RuleName, n.Name,
					"EventGenerator is terminal and cannot connect onward"))
			}
		}
		for to := range n.ConnectTo {
			if to == n.Name {
				errs = append(errs, vErr(ErrSelfLoop, r.RuleName, n.Name, "connects to itself"))
				continue
			}
			if !names[to] {
				errs = append(errs, vErr(ErrUnknownEdgeTarget, r.RuleName, n.Name,
					"connects to undefined primitive %q", to))
			}
		}
	}
	if generators != 1 {
		errs = append(errs, vErr(ErrGeneratorCount, r.RuleName, "",
			"exactly one EventGenerator required, found %d", generators))
	}

	for _, se := range r.SourceEvents {
		if se.EventName == SyntheticSourceName {
			errs = append(errs, vErr(ErrReservedEventName, r.RuleName, "",
				"the empty event name is reserved"))
		}
		for to := range se.ConnectTo {
			if !names[to] {
				errs = append(errs, vErr(ErrUnknownEdgeTarget, r.RuleName, se.EventName,
					"connects to undefined primitive %q", to))
			}
		}
	}
	return errs
}
