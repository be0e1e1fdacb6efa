package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/kestrelsec/kestrel/event"
)

// eventLine is one JSONL input record: {"name": "...", "props": {...}}.
type eventLine struct {
	Name  string         `json:"name"`
	Props map[string]any `json:"props"`
}

// readEvents decodes a JSONL event stream into MapEvents over the meta
// event's schema. Blank lines are skipped; json.Number keeps integers
// integral.
func readEvents(r io.Reader, meta *event.AutoMeta) ([]*event.MapEvent, error) {
	var out []*event.MapEvent
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var el eventLine
		if err := dec.Decode(&el); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if el.Name == "" {
			return nil, fmt.Errorf("line %d: event name is required", lineNo)
		}
		ev := event.New(meta.Schema(), el.Name)
		for k, v := range el.Props {
			ev.SetNamed(k, normalizeJSON(v))
		}
		out = append(out, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeJSON converts json.Number to int64 where possible so integer
// filters and macros see integers, not strings or floats.
func normalizeJSON(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		for i := range t {
			t[i] = normalizeJSON(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = normalizeJSON(t[k])
		}
		return t
	}
	return v
}
