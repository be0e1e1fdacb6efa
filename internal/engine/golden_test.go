package engine

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

// Golden tests pin the deterministic graph description. Regenerate with:
//
//	go test ./internal/engine -update
func TestDescribe_GoldenSingleRule(t *testing.T) {
	eng, _ := newTestEngine(t)
	require.NoError(t, eng.AddRules(notepadRule))

	g := goldie.New(t)
	g.Assert(t, "single_rule", []byte(eng.Describe()))
}

func TestDescribe_GoldenSharedFilter(t *testing.T) {
	eng, _ := newTestEngine(t)
	require.NoError(t, eng.AddRules(notepadRule))
	require.NoError(t, eng.AddRules(`
Rules:
  - RuleName: notepad-seen-too
    SourceEvents:
      - EventName: ProcStart
        ConnectTo:
          name-filter:
            SignalParameter: "#MACRO#Context.Event.name"
    Primitives:
      - Type: StringFilter
        Name: name-filter
        Parameters:
          Method: MatchSingle
          Condition: Equals
          MatchTo: notepad.exe
        ConnectTo:
          gen: {}
      - Type: EventGenerator
        Name: gen
        Parameters: {NewEventName: NotepadSeenToo}
`))

	g := goldie.New(t)
	g.Assert(t, "shared_filter", []byte(eng.Describe()))
}
