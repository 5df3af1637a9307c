package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// vertexKeys are the record keys owned by Vertex and StoredVertex. Any other
// key found in a record lands in Extra.
var vertexKeys = map[string]bool{
	"id":                true,
	"title":             true,
	"description":       true,
	"thumbnail_path":    true,
	"parent_id":         true,
	"workspace_id":      true,
	"kind":              true,
	"tags":              true,
	"created_at":        true,
	"updated_at":        true,
	"children_behavior": true,
	"children_layout":   true,
	"references":        true,
	"asset_directory":   true,
	"is_corrupt":        true,
}

type (
	vertexFields       Vertex
	storedVertexFields StoredVertex
)

// UnmarshalJSON decodes a vertex record. Unknown keys are kept in Extra and
// an unparsable timestamp is left zero.
func (v *Vertex) UnmarshalJSON(data []byte) error {
	known, extra, err := splitVertexRecord(data)
	if err != nil || known == nil {
		return err
	}
	var f vertexFields
	if err := json.Unmarshal(known, &f); err != nil {
		return err
	}
	f.Extra = extra
	*v = Vertex(f)
	return nil
}

// UnmarshalJSON decodes a stored record. Unknown keys are kept in Extra,
// derived location keys are dropped and an unparsable timestamp is left zero.
func (s *StoredVertex) UnmarshalJSON(data []byte) error {
	known, extra, err := splitVertexRecord(data)
	if err != nil || known == nil {
		return err
	}
	var f storedVertexFields
	if err := json.Unmarshal(known, &f); err != nil {
		return err
	}
	f.Extra = extra
	*s = StoredVertex(f)
	return nil
}

// MarshalJSON writes the known fields followed by Extra.
func (s StoredVertex) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(storedVertexFields(s))
	if err != nil || len(s.Extra) == 0 {
		return data, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for k, raw := range s.Extra {
		if vertexKeys[k] {
			continue
		}
		fields[k] = raw
	}
	return json.Marshal(fields)
}

// splitVertexRecord separates the known keys of a record from the rest.
// Unknown values are compacted so a rewrite does not change them.
// It returns a nil known slice for a JSON null.
func splitVertexRecord(data []byte) ([]byte, map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, nil, err
	}
	if fields == nil {
		return nil, nil, nil
	}
	var extra map[string]json.RawMessage
	for k, raw := range fields {
		if vertexKeys[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, nil, err
		}
		extra[k] = buf.Bytes()
		delete(fields, k)
	}
	for _, k := range []string{"created_at", "updated_at"} {
		if raw, ok := fields[k]; ok && !validTime(raw) {
			delete(fields, k)
		}
	}
	known, err := json.Marshal(fields)
	if err != nil {
		return nil, nil, err
	}
	return known, extra, nil
}

func validTime(raw json.RawMessage) bool {
	var t time.Time
	return json.Unmarshal(raw, &t) == nil
}

func cloneExtra(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, raw := range m {
		out[k] = append(json.RawMessage(nil), raw...)
	}
	return out
}
