package primitive

import (
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/kestrelsec/kestrel/internal/signal"
)

// StringFilter matching methods.
const (
	MethodMatchSingle      = "MatchSingle"
	MethodMatchList        = "MatchList"
	MethodDictionarySearch = "DictionarySearch"
)

// StringFilter conditions (besides the shared Equals).
const (
	CondContains   = "Contains"
	CondStartsWith = "StartsWith"
	CondEndsWith   = "EndsWith"
	CondRegex      = "Regex"
)

// fold performs Unicode case folding for the filter's case-insensitive
// comparisons. A Caser is stateful, so one is created per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

// StringFilter routes a string input to its primary source on match and to
// its negative source otherwise.
//
// Non-regex comparisons are case-insensitive (Unicode case folding).
// DictionarySearch folds the input and probes a pre-folded key set, which
// keeps large match lists O(1) per input. SubstringPos trims the input
// before matching; a position beyond the input length is a non-match.
type StringFilter struct {
	base
	target *signal.Target
	src    *signal.Source
	neg    *signal.Source

	method       string
	condition    string
	substringPos int
	matchTo      []string

	folded     []string
	dictionary map[string]struct{}
	patterns   []*regexp.Regexp
}

func newStringFilter(env *Env) *StringFilter {
	f := &StringFilter{base: base{kind: KindStringFilter, env: env}}
	f.target = signal.NewTarget(f, f.onSignal)
	f.src = signal.NewSource(f, KindStringFilter, env.logger())
	f.neg = signal.NewSource(f, KindStringFilter+"/negative", env.logger())
	return f
}

// Setup implements Primitive.
func (f *StringFilter) Setup(cfg Config, _ map[string]Primitive) error {
	method, err := cfg.requireString(f.kind, "Method")
	if err != nil {
		return err
	}
	switch method {
	case MethodMatchSingle, MethodMatchList, MethodDictionarySearch:
	default:
		return cfgErr(f.kind, "Method", "unknown method %q", method)
	}

	pos, err := cfg.optionalInt(f.kind, "SubstringPos", 0)
	if err != nil {
		return err
	}
	if pos < 0 {
		return cfgErr(f.kind, "SubstringPos", "must not be negative, got %d", pos)
	}

	matchTo, err := cfg.stringList(f.kind, "MatchTo")
	if err != nil {
		return err
	}
	if method == MethodMatchSingle && len(matchTo) != 1 {
		return cfgErr(f.kind, "MatchTo", "MatchSingle requires exactly one value, got %d", len(matchTo))
	}

	condition := ""
	if method == MethodDictionarySearch {
		if _, present := cfg["Condition"]; present {
			return cfgErr(f.kind, "Condition", "not applicable to DictionarySearch")
		}
	} else {
		condition, err = cfg.requireString(f.kind, "Condition")
		if err != nil {
			return err
		}
		switch condition {
		case CondEquals, CondContains, CondStartsWith, CondEndsWith, CondRegex:
		default:
			return cfgErr(f.kind, "Condition", "unknown condition %q", condition)
		}
	}

	f.method = method
	f.condition = condition
	f.substringPos = int(pos)
	f.matchTo = matchTo

	switch {
	case method == MethodDictionarySearch:
		f.dictionary = make(map[string]struct{}, len(matchTo))
		for _, m := range matchTo {
			f.dictionary[fold(m)] = struct{}{}
		}
	case condition == CondRegex:
		f.patterns = make([]*regexp.Regexp, len(matchTo))
		for i, m := range matchTo {
			re, err := regexp.Compile(m)
			if err != nil {
				return cfgErr(f.kind, "MatchTo", "invalid regular expression %q: %v", m, err)
			}
			f.patterns[i] = re
		}
	default:
		f.folded = make([]string, len(matchTo))
		for i, m := range matchTo {
			f.folded[i] = fold(m)
		}
	}
	return nil
}

// SameConfig implements Primitive.
func (f *StringFilter) SameConfig(cfg Config, _ map[string]Primitive) bool {
	method, err := cfg.optionalString(f.kind, "Method", "")
	if err != nil || method != f.method {
		return false
	}
	condition, err := cfg.optionalString(f.kind, "Condition", "")
	if err != nil || condition != f.condition {
		return false
	}
	pos, err := cfg.optionalInt(f.kind, "SubstringPos", 0)
	if err != nil || int(pos) != f.substringPos {
		return false
	}
	matchTo, err := cfg.stringList(f.kind, "MatchTo")
	return err == nil && slices.Equal(matchTo, f.matchTo)
}

func (f *StringFilter) Target() *signal.Target   { return f.target }
func (f *StringFilter) Source() *signal.Source   { return f.src }
func (f *StringFilter) Negative() *signal.Source { return f.neg }

func (f *StringFilter) onSignal(param, context any) {
	input, ok := param.(string)
	if !ok {
		f.warn("string filter parameter is not a string", "param", param)
		return
	}
	if f.matches(input) {
		f.src.Trigger(context)
	} else {
		f.neg.Trigger(context)
	}
}

func (f *StringFilter) matches(input string) bool {
	if f.substringPos > 0 {
		if f.substringPos > len(input) {
			return false
		}
		input = input[f.substringPos:]
	}
	if f.method == MethodDictionarySearch {
		_, hit := f.dictionary[fold(input)]
		return hit
	}
	if f.condition == CondRegex {
		for _, re := range f.patterns {
			if re.MatchString(input) {
				return true
			}
		}
		return false
	}
	folded := fold(input)
	for _, m := range f.folded {
		var hit bool
		switch f.condition {
		case CondEquals:
			hit = folded == m
		case CondContains:
			hit = strings.Contains(folded, m)
		case CondStartsWith:
			hit = strings.HasPrefix(folded, m)
		case CondEndsWith:
			hit = strings.HasSuffix(folded, m)
		}
		if hit {
			return true
		}
	}
	return false
}

// IntegerFilter routes an integer input to primary or negative depending
// on a comparison against CompareTo.
type IntegerFilter struct {
	base
	target *signal.Target
	src    *signal.Source
	neg    *signal.Source

	condition string
	compareTo []int64
}

func newIntegerFilter(env *Env) *IntegerFilter {
	f := &IntegerFilter{base: base{kind: KindIntegerFilter, env: env}}
	f.target = signal.NewTarget(f, f.onSignal)
	f.src = signal.NewSource(f, KindIntegerFilter, env.logger())
	f.neg = signal.NewSource(f, KindIntegerFilter+"/negative", env.logger())
	return f
}

// Setup implements Primitive.
func (f *IntegerFilter) Setup(cfg Config, _ map[string]Primitive) error {
	condition, err := cfg.requireString(f.kind, "Condition")
	if err != nil {
		return err
	}
	switch condition {
	case CondLessThan, CondEquals, CondGreaterThan, CondOneOf:
	default:
		return cfgErr(f.kind, "Condition", "unknown condition %q", condition)
	}
	compareTo, present, err := cfg.intList(f.kind, "CompareTo")
	if err != nil {
		return err
	}
	if !present {
		return cfgErr(f.kind, "CompareTo", "required")
	}
	if condition != CondOneOf && len(compareTo) != 1 {
		return cfgErr(f.kind, "CompareTo", "%s requires a single value, got %d", condition, len(compareTo))
	}
	f.condition = condition
	f.compareTo = compareTo
	return nil
}

// SameConfig implements Primitive.
func (f *IntegerFilter) SameConfig(cfg Config, _ map[string]Primitive) bool {
	condition, err := cfg.optionalString(f.kind, "Condition", "")
	if err != nil || condition != f.condition {
		return false
	}
	compareTo, present, err := cfg.intList(f.kind, "CompareTo")
	return err == nil && present && slices.Equal(compareTo, f.compareTo)
}

func (f *IntegerFilter) Target() *signal.Target   { return f.target }
func (f *IntegerFilter) Source() *signal.Source   { return f.src }
func (f *IntegerFilter) Negative() *signal.Source { return f.neg }

func (f *IntegerFilter) onSignal(param, context any) {
	value, ok := asInt(param)
	if !ok {
		f.warn("integer filter parameter is not an integer", "param", param)
		return
	}
	var match bool
	switch f.condition {
	case CondLessThan:
		match = value < f.compareTo[0]
	case CondEquals:
		match = value == f.compareTo[0]
	case CondGreaterThan:
		match = value > f.compareTo[0]
	case CondOneOf:
		match = slices.Contains(f.compareTo, value)
	}
	if match {
		f.src.Trigger(context)
	} else {
		f.neg.Trigger(context)
	}
}

var (
	_ Primitive = (*StringFilter)(nil)
	_ Primitive = (*IntegerFilter)(nil)
)
