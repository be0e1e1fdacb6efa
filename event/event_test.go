package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_Define_StableIDs(t *testing.T) {
	s := NewSchema()

	a := s.Define("path")
	b := s.Define("pid")
	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)

	// Redefining returns the original id.
	assert.Equal(t, a, s.Define("path"))
	assert.Equal(t, "path", s.PropertyName(a))
}

func TestSchema_ID_Unknown(t *testing.T) {
	s := NewSchema()
	assert.Negative(t, s.ID("nope"))
	assert.Equal(t, "", s.PropertyName(7))
}

func TestMapEvent_PropertyRoundTrip(t *testing.T) {
	meta := NewMeta("path", "pid")

	ev := meta.NewInstance("FileCreated")
	require.NotNil(t, ev)
	assert.Equal(t, "FileCreated", ev.Name())

	id := ev.PropertyID("path")
	require.GreaterOrEqual(t, id, 0)
	ev.Set(id, "script1.ps1")
	assert.Equal(t, "script1.ps1", ev.Get(id))

	// Instances share the meta's id space.
	other := meta.NewInstance("FileCreated")
	assert.Nil(t, other.Get(id))
	assert.Equal(t, id, other.PropertyID("path"))
}

func TestMapEvent_UnknownProperty(t *testing.T) {
	meta := NewMeta("path")
	assert.Negative(t, meta.PropertyID("creator"))
	assert.Nil(t, meta.Get(42))
}

func TestMapEvent_Properties_Snapshot(t *testing.T) {
	meta := NewMeta("path", "pid")
	ev := New(meta.Schema(), "FileCreated")
	ev.SetNamed("path", "a.ps1")
	ev.SetNamed("pid", int64(7))

	props := ev.Properties()
	assert.Equal(t, map[string]any{"path": "a.ps1", "pid": int64(7)}, props)

	assert.Equal(t, "a.ps1", ev.GetNamed("path"))
	assert.Nil(t, ev.GetNamed("never-defined"))
}

func TestAutoMeta_DefinesOnDemand(t *testing.T) {
	meta := NewAutoMeta()

	id := meta.PropertyID("anything")
	assert.GreaterOrEqual(t, id, 0)
	assert.Equal(t, id, meta.PropertyID("anything"))

	// Instances resolve the same ids but do not auto-define.
	ev := meta.NewInstance("X")
	assert.Equal(t, id, ev.PropertyID("anything"))
}
