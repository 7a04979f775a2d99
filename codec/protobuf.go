package codec

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// StructPB stores snapshots as google.protobuf.Struct. Only JSON-shaped
// values are accepted (nil, bool, numbers, string, []any, map[string]any);
// every number comes back as float64.
type StructPB struct{}

var _ Codec[Snapshot] = StructPB{}

func (StructPB) Encode(v Snapshot) ([]byte, error) {
	st, err := structpb.NewStruct(v)
	if err != nil {
		return nil, err
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(st)
}

func (StructPB) Decode(b []byte) (Snapshot, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(b, &st); err != nil {
		return nil, err
	}
	return st.AsMap(), nil
}
