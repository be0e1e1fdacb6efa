package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlDoc = `
Rules:
  - RuleName: script-from-notepad
    SourceEvents:
      - EventName: FileCreated
        ConnectTo:
          creator-filter:
            SignalParameter: "#MACRO#Context.Event.creator"
    Primitives:
      - Type: StringFilter
        Name: creator-filter
        Parameters:
          Method: MatchSingle
          Condition: Equals
          MatchTo: notepad.exe
        ConnectTo:
          alert:
            SignalParameter: 1
      - Type: EventGenerator
        Name: alert
        Parameters:
          NewEventName: MaliciousScriptExec
`

func TestParse_YAML(t *testing.T) {
	doc, err := Parse([]byte(yamlDoc))
	require.NoError(t, err)
	require.Len(t, doc.Rules, 1)

	r := doc.Rules[0]
	assert.Equal(t, "script-from-notepad", r.RuleName)
	require.Len(t, r.SourceEvents, 1)
	assert.Equal(t, "FileCreated", r.SourceEvents[0].EventName)

	edge := r.SourceEvents[0].ConnectTo["creator-filter"]
	assert.Equal(t, "#MACRO#Context.Event.creator", edge.SignalParameter)
	assert.False(t, edge.TriggerOnNegative)

	require.Len(t, r.Primitives, 2)
	assert.Equal(t, "StringFilter", r.Primitives[0].Type)
	assert.Equal(t, "notepad.exe", r.Primitives[0].Parameters["MatchTo"])
}

func TestParse_JSONIsYAMLSubset(t *testing.T) {
	doc, err := Parse([]byte(`{
		"Rules": [{
			"RuleName": "r1",
			"Primitives": [
				{"Type": "EventGenerator", "Name": "gen",
				 "Parameters": {"NewEventName": "X"}}
			]
		}]
	}`))
	require.NoError(t, err)
	require.Len(t, doc.Rules, 1)
	assert.Equal(t, "r1", doc.Rules[0].RuleName)
}

func TestParse_EmptyDocument(t *testing.T) {
	doc, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, doc.Rules)
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("Rules: [unclosed"))
	require.Error(t, err)
	var pe *ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestParse_SchemaViolations(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"rules not a list", `Rules: 42`},
		{"rule name not a string", `Rules: [{RuleName: 99, Primitives: []}]`},
		{"empty rule name", `Rules: [{RuleName: "", Primitives: []}]`},
		{"primitive type missing", `Rules: [{RuleName: r, Primitives: [{Name: x}]}]`},
		{"negative flag not bool", `
Rules:
  - RuleName: r
    Primitives:
      - Type: StringFilter
        Name: a
        ConnectTo:
          b: {TriggerOnNegative: "yes"}
      - Type: EventGenerator
        Name: b
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			require.Error(t, err)
			var pe *ParseError
			assert.ErrorAs(t, err, &pe)
		})
	}
}
