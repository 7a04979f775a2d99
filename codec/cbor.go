package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// CBOROptions tune the CBOR snapshot codec.
type CBOROptions struct {
	// Deterministic sorts map keys (RFC 8949 core deterministic encoding), so
	// equal snapshots encode to equal bytes.
	Deterministic bool
	// MaxNesting bounds decode depth; 0 => library default (32).
	MaxNesting int
}

// CBOR stores values with fxamacker/cbor. Build it with NewCBOR; the zero
// value has no modes. Nested maps decode as map[string]any so a snapshot
// comes back with the shape it had when it was written.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[Snapshot] = CBOR[Snapshot]{}

func NewCBOR[V any](o CBOROptions) (CBOR[V], error) {
	eo := cbor.PreferredUnsortedEncOptions()
	if o.Deterministic {
		eo = cbor.CoreDetEncOptions()
	}
	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	dm, err := cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		MaxNestedLevels: o.MaxNesting,
	}.DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

func (c CBOR[V]) Encode(v V) ([]byte, error) { return c.enc.Marshal(v) }

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	if err := c.dec.Unmarshal(b, &v); err != nil {
		var zero V
		return zero, err
	}
	return v, nil
}
