package codec

import json "github.com/goccy/go-json"

// JSON uses goccy/go-json. Numbers decode as float64, matching what the
// gateway hands to the store.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
