package rule

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseError reports a malformed rule document.
type ParseError struct {
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parsing rules: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("parsing rules: %s", e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes a rule document from text. The encoding is YAML; JSON
// documents decode unchanged. The document shape is checked against the
// embedded CUE schema before the typed decode.
func Parse(text []byte) (*Document, error) {
	var raw any
	if err := yaml.Unmarshal(text, &raw); err != nil {
		return nil, &ParseError{Message: "invalid document", Err: err}
	}
	if raw == nil {
		return &Document{}, nil
	}
	if err := checkSchema(raw); err != nil {
		return nil, &ParseError{Message: "document does not match schema", Err: err}
	}

	var doc Document
	if err := yaml.Unmarshal(text, &doc); err != nil {
		return nil, &ParseError{Message: "invalid document", Err: err}
	}
	return &doc, nil
}
