package subblock

import "encoding/binary"

// HeaderSize is the size of the ID byte plus the big-endian length.
const HeaderSize = 3

// Block is one (ID, length, payload) triple from a device response.
type Block struct {
	ID      byte
	Payload []byte
}

// ReadBlock reads one block from the start of data.
// Returns the block and the bytes following it. ok is false if the header
// or the declared payload runs past the end of data.
func ReadBlock(data []byte) (block Block, remaining []byte, ok bool) {
	if len(data) < HeaderSize {
		return Block{}, data, false
	}
	n := int(binary.BigEndian.Uint16(data[1:3]))
	if HeaderSize+n > len(data) {
		return Block{}, data, false
	}
	return Block{ID: data[0], Payload: data[HeaderSize : HeaderSize+n]}, data[HeaderSize+n:], true
}

// Decode reads up to count consecutive blocks.
// Parsing stops early at the first truncated block; complete reports
// whether all count blocks were present.
func Decode(data []byte, count int) (blocks []Block, complete bool) {
	for i := 0; i < count; i++ {
		block, rest, ok := ReadBlock(data)
		if !ok {
			return blocks, false
		}
		blocks = append(blocks, block)
		data = rest
	}
	return blocks, true
}
