package engine

import (
	"errors"
	"fmt"
)

// Compile error codes (C200-C299).
const (
	ErrCodeRuleExists     = "C200" // rule name already installed
	ErrCodeCycle          = "C201" // primitive graph has a cycle
	ErrCodeSetupRejected  = "C202" // primitive rejected its configuration
	ErrCodeBadMacro       = "C203" // signal parameter macro failed to parse
	ErrCodeNotTargetable  = "C204" // edge into a self-driven primitive
	ErrCodeUntargeted     = "C205" // primitive has no inbound edge
	ErrCodeNoNegative     = "C206" // edge from a sender lacking the requested output (negative or primary)
	ErrCodeEventCollision = "C207" // derived event already produced by another rule
)

// CompileError reports a rule that failed to compile into the live graph.
type CompileError struct {
	Code string
	Rule string
	Node string
	Err  error
}

func (e *CompileError) Error() string {
	switch {
	case e.Node == "":
		return fmt.Sprintf("[%s] rule %q: %v", e.Code, e.Rule, e.Err)
	default:
		return fmt.Sprintf("[%s] rule %q: node %q: %v", e.Code, e.Rule, e.Node, e.Err)
	}
}

func (e *CompileError) Unwrap() error { return e.Err }

func compileErr(code, rule, node, format string, args ...any) *CompileError {
	return &CompileError{Code: code, Rule: rule, Node: node, Err: fmt.Errorf(format, args...)}
}

// IsCompileError reports whether err is (or wraps) a CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}
