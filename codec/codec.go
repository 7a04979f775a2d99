package codec

import "fmt"

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Snapshot is the value shape the entity store persists.
type Snapshot = map[string]any

// ForSnapshots returns the snapshot codec registered under name.
// Known names: "json" (default), "cbor", "msgpack", "protobuf".
func ForSnapshots(name string) (Codec[Snapshot], error) {
	switch name {
	case "", "json":
		return JSON[Snapshot]{}, nil
	case "cbor":
		return NewCBOR[Snapshot](CBOROptions{Deterministic: true})
	case "msgpack":
		return Msgpack[Snapshot]{}, nil
	case "protobuf", "proto":
		return StructPB{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}
