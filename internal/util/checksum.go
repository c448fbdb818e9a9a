package util

import (
	"encoding/binary"
	"hash/crc32"
)

// CRC32 (IEEE) record checksums for the snapshot file format.

var crc32Table = crc32.MakeTable(crc32.IEEE)

// Checksum computes a CRC32 checksum for the given data.
func Checksum(data []byte) uint32 {
	return crc32.Checksum(data, crc32Table)
}

// SealRecord appends a little-endian 4-byte checksum to the payload.
// Format: [payload][checksum (4 bytes)]
func SealRecord(payload []byte) []byte {
	out := make([]byte, len(payload)+4)
	copy(out, payload)
	binary.LittleEndian.PutUint32(out[len(payload):], Checksum(payload))
	return out
}

// OpenRecord validates the trailing checksum and returns the payload.
// Returns (payload, false) when the record is too short or the checksum
// does not match.
func OpenRecord(sealed []byte) ([]byte, bool) {
	if len(sealed) < 4 {
		return nil, false
	}
	payload := sealed[:len(sealed)-4]
	want := binary.LittleEndian.Uint32(sealed[len(sealed)-4:])
	if Checksum(payload) != want {
		return nil, false
	}
	return payload, true
}
