package gateway

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Shape names the envelope a collection response arrived in
type Shape string

const (
	ShapeBareArray      Shape = "bare_array"
	ShapeNestedData     Shape = "data_object"
	ShapeDataArray      Shape = "data_array"
	ShapeKeyedArray     Shape = "keyed_array"
	ShapeUnrecognized   Shape = "unrecognized"
	shapeSingleNested   Shape = "data_keyed_entity"
	shapeSingleEnvelope Shape = "data_entity"
	shapeSingleKeyed    Shape = "keyed_entity"
	shapeSingleBare     Shape = "bare_entity"
)

// NormalizeCollection extracts the ordered records of kind from a response
// body. Shapes are tried in a fixed order:
//
//  1. [ ... ]
//  2. {"success": .., "data": {"<kind>": [ ... ], "pagination": ..}}
//  3. {"success": .., "data": [ ... ]}
//  4. {"<kind>": [ ... ]}
//
// Anything else yields an empty slice and ShapeUnrecognized.
func NormalizeCollection(body []byte, kind string) ([]json.RawMessage, Shape) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return []json.RawMessage{}, ShapeUnrecognized
	}

	if body[0] == '[' {
		if records, ok := decodeArray(body); ok {
			return records, ShapeBareArray
		}
		return []json.RawMessage{}, ShapeUnrecognized
	}

	obj, ok := decodeObject(body)
	if !ok {
		return []json.RawMessage{}, ShapeUnrecognized
	}

	if data, ok := obj["data"]; ok {
		if inner, ok := decodeObject(data); ok {
			if raw, ok := inner[kind]; ok {
				if records, ok := decodeArray(raw); ok {
					return records, ShapeNestedData
				}
			}
		}
		if records, ok := decodeArray(data); ok {
			return records, ShapeDataArray
		}
	}

	if raw, ok := obj[kind]; ok {
		if records, ok := decodeArray(raw); ok {
			return records, ShapeKeyedArray
		}
	}

	return []json.RawMessage{}, ShapeUnrecognized
}

// NormalizeOne extracts a single record of kind. Accepted shapes, in order:
//
//  1. {"success": .., "data": {"<singular>": {..}}}
//  2. {"success": .., "data": {..}}
//  3. {"<singular>": {..}}
//  4. a bare object
//
// A candidate is only taken when it carries a non-empty "id", so wrappers and
// acknowledgements such as {"message": "deleted"} are not mistaken for the
// entity. ok is false when no shape yields one.
func NormalizeOne(body []byte, kind string) (json.RawMessage, Shape, bool) {
	body = bytes.TrimSpace(body)
	obj, ok := decodeObject(body)
	if !ok {
		return nil, ShapeUnrecognized, false
	}

	if data, ok := obj["data"]; ok {
		if inner, ok := decodeObject(data); ok {
			if raw, ok := inner[singular(kind)]; ok && hasID(raw) {
				return raw, shapeSingleNested, true
			}
		}
		if hasID(data) {
			return data, shapeSingleEnvelope, true
		}
	}
	if raw, ok := obj[singular(kind)]; ok && hasID(raw) {
		return raw, shapeSingleKeyed, true
	}
	if _, ok := obj["success"]; ok {
		// an envelope without an entity, e.g. {"success": true}
		return nil, ShapeUnrecognized, false
	}
	if hasID(body) {
		return body, shapeSingleBare, true
	}
	return nil, ShapeUnrecognized, false
}

// hasID reports whether raw is an object with a non-empty id
func hasID(raw json.RawMessage) bool {
	obj, ok := decodeObject(raw)
	if !ok {
		return false
	}
	id, ok := obj["id"]
	if !ok {
		return false
	}
	switch strings.TrimSpace(string(id)) {
	case "", "null", `""`:
		return false
	}
	return true
}

// errorMessage pulls a human readable message out of an error body
func errorMessage(body []byte) string {
	obj, ok := decodeObject(bytes.TrimSpace(body))
	if !ok {
		return strings.TrimSpace(string(body))
	}
	if raw, ok := obj["error"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	if raw, ok := obj["message"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
	}
	return ""
}

func singular(kind string) string {
	return strings.TrimSuffix(kind, "s")
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func decodeObject(raw []byte) (map[string]json.RawMessage, bool) {
	if !isObject(raw) {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func decodeArray(raw []byte) ([]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, false
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	return records, true
}
