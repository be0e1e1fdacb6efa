package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_RecordAndRead(t *testing.T) {
	j := openTemp(t)

	require.NoError(t, j.Record(1, "tok-1", "ProcStart", false))
	require.NoError(t, j.Record(2, "tok-2", "NotepadSeen", true))
	require.NoError(t, j.Record(3, "tok-3", "ProcExit", false))

	entries, err := j.Entries(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, Entry{Seq: 1, Token: "tok-1", Name: "ProcStart"}, entries[0])
	assert.True(t, entries[1].Derived)
}

func TestJournal_HostOnlyFiltersDerived(t *testing.T) {
	j := openTemp(t)

	require.NoError(t, j.Record(1, "a", "In", false))
	require.NoError(t, j.Record(2, "b", "Derived", true))

	entries, err := j.Entries(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "In", entries[0].Name)
}

func TestJournal_DuplicateSeqIgnored(t *testing.T) {
	j := openTemp(t)

	require.NoError(t, j.Record(1, "a", "In", false))
	require.NoError(t, j.Record(1, "b", "Other", false))

	entries, err := j.Entries(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "In", entries[0].Name)
}

func TestJournal_OpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j1.Record(1, "a", "In", false))
	require.NoError(t, j1.Close())

	j2, err := Open(path)
	require.NoError(t, err)
	defer j2.Close()

	entries, err := j2.Entries(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
