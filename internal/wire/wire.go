package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version    byte = 1
	kindEntity byte = 1
	kindQuery  byte = 2
)

var (
	ErrCorrupt = errors.New("entcache: corrupt entry")
	magic4     = [...]byte{'E', 'N', 'T', 'C'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Entity: magic(4) | ver(1) | kind(1=entity) | gen(u64 be) | vlen(u32 be) | payload(vlen)
func EncodeEntity(gen uint64, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 8 + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntity)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], gen)
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// DecodeEntity rejects trailing bytes: a frame is exactly header + payload.
func DecodeEntity(b []byte) (gen uint64, payload []byte, err error) {
	const hdr = 4 + 1 + 1 + 8 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindEntity {
		return 0, nil, ErrCorrupt
	}
	off := 6

	gen = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off {
		return 0, nil, ErrCorrupt
	}
	return gen, b[off:], nil
}

// Member is one entity of a cached list query, with the entity generation
// observed when the list was written.
type Member struct {
	Key string
	Gen uint64
}

// Query:
//
//	magic(4) | ver(1) | kind(2=query) | queryGen(u64 be) | n(u32 be)
//	keyLen(u16 be) | key(keyLen) | gen(u64 be)  * n
func EncodeQuery(queryGen uint64, members []Member) ([]byte, error) {
	total := 4 + 1 + 1 + 8 + 4
	for _, m := range members {
		if l := len(m.Key); l == 0 || l > 0xFFFF {
			return nil, errors.New("entcache: invalid member key length")
		}
		total += 2 + len(m.Key) + 8
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindQuery)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], queryGen)
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(members)))
	buf.Write(u4[:])

	for _, m := range members {
		binary.BigEndian.PutUint16(u2[:], uint16(len(m.Key)))
		buf.Write(u2[:])
		buf.WriteString(m.Key)

		binary.BigEndian.PutUint64(u8[:], m.Gen)
		buf.Write(u8[:])
	}
	return buf.Bytes(), nil
}

func DecodeQuery(b []byte) (queryGen uint64, members []Member, err error) {
	const hdr = 4 + 1 + 1 + 8 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindQuery {
		return 0, nil, ErrCorrupt
	}
	off := 6

	queryGen = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// each member needs at least 2+1+8 bytes
	if n > (len(b)-off)/11 {
		return 0, nil, ErrCorrupt
	}

	members = make([]Member, 0, n)
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return 0, nil, ErrCorrupt
		}
		klen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if klen == 0 || klen > len(b)-off {
			return 0, nil, ErrCorrupt
		}
		key := string(b[off : off+klen])
		off += klen

		if off+8 > len(b) {
			return 0, nil, ErrCorrupt
		}
		g := binary.BigEndian.Uint64(b[off : off+8])
		off += 8

		members = append(members, Member{Key: key, Gen: g})
	}
	if off != len(b) {
		return 0, nil, ErrCorrupt
	}
	return queryGen, members, nil
}
