// Package subblocktest builds subblock-framed payloads for tests of the
// packages that decode them.
package subblocktest

import "encoding/binary"

// Encode serializes one (ID, big-endian length, payload) block. Payloads
// longer than 0xFFFF are truncated.
func Encode(id byte, payload []byte) []byte {
	if len(payload) > 0xFFFF {
		payload = payload[:0xFFFF]
	}
	result := make([]byte, 3+len(payload))
	result[0] = id
	binary.BigEndian.PutUint16(result[1:3], uint16(len(payload)))
	copy(result[3:], payload)
	return result
}
