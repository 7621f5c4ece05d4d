package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Id types must round-trip through JSON: integers, strings and structs of
// those work. Implement Codec for anything else and pass it via WithCodec.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the codec of new indexes. Existing serializations are decoded
// with the codec named in their header.
var Default Codec = GoJSON{}
