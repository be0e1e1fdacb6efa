package rule

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// documentSchema constrains the shape of a rule document before it is
// decoded into the typed model. Field-level semantics (known primitive
// types, edge integrity, parameter ranges) are checked later; this catches
// structural mistakes with positions the typed decode would blur.
const documentSchema = `
#Edge: {
	SignalParameter?:   _
	TriggerOnNegative?: bool
}

#SourceEvent: {
	EventName:  string & !=""
	ConnectTo?: {[string]: #Edge}
}

#Node: {
	Type:        string & !=""
	Name:        string & !=""
	Parameters?: {[string]: _}
	ConnectTo?:  {[string]: #Edge}
}

#Rule: {
	RuleName:      string & !=""
	SourceEvents?: [...#SourceEvent]
	Primitives:    [...#Node]
}

Rules?: [...#Rule]
`

var (
	schemaOnce  sync.Once
	schemaValue cue.Value
	schemaErr   error
)

func compiledSchema() (cue.Value, error) {
	schemaOnce.Do(func() {
		ctx := cuecontext.New()
		schemaValue = ctx.CompileString(documentSchema)
		schemaErr = schemaValue.Err()
	})
	return schemaValue, schemaErr
}

// checkSchema unifies the raw decoded document with the embedded schema.
func checkSchema(raw any) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("internal schema error: %w", err)
	}
	value := schema.Context().Encode(raw)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	unified := schema.Unify(value)
	if err := unified.Err(); err != nil {
		return err
	}
	return unified.Validate(cue.Concrete(true))
}
