package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsec/kestrel/event"
)

const cliRules = `
Rules:
  - RuleName: notepad-seen
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
        Parameters:
          NewEventName: NotepadSeen
          Properties:
            name: "#MACRO#Context.Event.name"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand_ValidRules(t *testing.T) {
	rules := writeFile(t, "rules.yaml", cliRules)

	out, err := runCommand(t, "", "validate", rules)
	require.NoError(t, err)
	assert.Contains(t, out, "rules valid")
	assert.Contains(t, out, "notepad-seen -> NotepadSeen")
}

func TestValidateCommand_InvalidRules(t *testing.T) {
	rules := writeFile(t, "rules.yaml", `
Rules:
  - RuleName: broken
    Primitives:
      - Type: FluxCapacitor
        Name: x
`)
	_, err := runCommand(t, "", "validate", rules)
	assert.Error(t, err)
}

func TestRunCommand_PrintsDerivedEvents(t *testing.T) {
	rules := writeFile(t, "rules.yaml", cliRules)
	events := `{"name": "ProcStart", "props": {"name": "notepad.exe"}}
{"name": "ProcStart", "props": {"name": "calc.exe"}}
`
	out, err := runCommand(t, events, "run", rules)
	require.NoError(t, err)
	assert.Contains(t, out, "derived: NotepadSeen")
	assert.Equal(t, 1, strings.Count(out, "derived:"))
}

func TestRunCommand_RecordsJournal(t *testing.T) {
	rules := writeFile(t, "rules.yaml", cliRules)
	journalPath := filepath.Join(t.TempDir(), "journal.db")
	events := `{"name": "ProcStart", "props": {"name": "notepad.exe"}}` + "\n"

	_, err := runCommand(t, events, "run", rules, "--journal", journalPath)
	require.NoError(t, err)

	out, err := runCommand(t, "", "journal", journalPath)
	require.NoError(t, err)
	assert.Contains(t, out, "ProcStart")
	assert.Contains(t, out, "NotepadSeen")

	hostOnly, err := runCommand(t, "", "journal", journalPath, "--host-only")
	require.NoError(t, err)
	assert.NotContains(t, hostOnly, "NotepadSeen")
}

func TestRootCommand_RejectsBadFormat(t *testing.T) {
	_, err := runCommand(t, "", "--format", "xml", "validate", "nope.yaml")
	assert.Error(t, err)
}

func TestReadEvents_NormalizesNumbers(t *testing.T) {
	meta := event.NewAutoMeta()
	events, err := readEvents(strings.NewReader(
		`{"name": "X", "props": {"pid": 42, "ratio": 0.5, "label": "a"}}`+"\n"), meta)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, int64(42), events[0].GetNamed("pid"))
	assert.Equal(t, 0.5, events[0].GetNamed("ratio"))
	assert.Equal(t, "a", events[0].GetNamed("label"))
}

func TestReadEvents_Errors(t *testing.T) {
	meta := event.NewAutoMeta()

	_, err := readEvents(strings.NewReader("{not json}\n"), meta)
	assert.Error(t, err)

	_, err = readEvents(strings.NewReader(`{"props": {}}`+"\n"), meta)
	assert.Error(t, err, "missing event name")
}
