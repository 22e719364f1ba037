package storage

import (
	"encoding/binary"
	"fmt"
)

// Key schema:
//
//	seq                    → last assigned sequence (8 bytes, big-endian)
//	patch:<len><symbol><seq> → PatchRecord (JSON)
//
// len is the uvarint byte length of symbol, so one symbol's prefix never
// matches another that merely starts with it. seq is big-endian so a prefix
// scan walks records in submission order.
const (
	prefixPatch = "patch:"
)

func kSeq() []byte { return []byte("seq") }

func patchPrefix(symbol string) []byte {
	k := make([]byte, 0, len(prefixPatch)+binary.MaxVarintLen64+len(symbol))
	k = append(k, prefixPatch...)
	k = binary.AppendUvarint(k, uint64(len(symbol)))
	return append(k, symbol...)
}

func patchKey(symbol string, seq uint64) []byte {
	return append(patchPrefix(symbol), seqBytes(seq)...)
}

func seqBytes(seq uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], seq)
	return k[:]
}

func parseSeq(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("sequence: want 8 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// keyUpperBound returns the exclusive upper bound for a prefix scan, nil when
// the prefix is all 0xff and no bound exists
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	for i := len(bound) - 1; i >= 0; i-- {
		bound[i]++
		if bound[i] != 0 {
			return bound[:i+1]
		}
	}
	return nil
}
