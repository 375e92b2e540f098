package encoding

import (
	"encoding/binary"
	"fmt"
)

// bcsEncodeULEB128 writes length as an unsigned LEB128 varint, matching
// BCS's vector-length prefix. No third-party BCS implementation appears
// anywhere in the retrieved example pack, so this sequence encoding is
// hand-rolled directly against the wire shape pinned by the regression
// vectors rather than against any library's API.
func bcsEncodeULEB128(length int) []byte {
	var out []byte
	n := uint64(length)
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if n == 0 {
			break
		}
	}
	return out
}

// bcsEncodeU8Vec serializes a BCS vector<u8>.
func bcsEncodeU8Vec(elems []uint8) []byte {
	buf := bcsEncodeULEB128(len(elems))
	return append(buf, elems...)
}

// bcsEncodeU64Vec serializes a BCS vector<u64>: ULEB128 length followed
// by each element as a fixed 8-byte little-endian integer.
func bcsEncodeU64Vec(elems []uint64) []byte {
	buf := bcsEncodeULEB128(len(elems))
	for _, v := range elems {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v)
		buf = append(buf, b...)
	}
	return buf
}

// bcsEncodeStringVec serializes a BCS vector<string>: ULEB128 length
// followed by each string as an ULEB128 byte-length prefix and its raw
// UTF-8 bytes.
func bcsEncodeStringVec(elems []string) ([]byte, error) {
	buf := bcsEncodeULEB128(len(elems))
	for _, s := range elems {
		if len(s) > 0x0fffffff {
			return nil, fmt.Errorf("encoding: string too long for BCS length prefix")
		}
		buf = append(buf, bcsEncodeULEB128(len(s))...)
		buf = append(buf, []byte(s)...)
	}
	return buf, nil
}
