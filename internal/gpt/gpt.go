// Package gpt reads, edits and rebuilds GUID partition tables as returned by
// the flash app, and merges them with partition descriptors.
package gpt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/bigbag/ufptool/internal/protocol"
)

const headerMarker = "EFI PART"

// Header field offsets, relative to the marker.
const (
	hdrSize           = 0x0C
	hdrCRC            = 0x10
	hdrFirstUsable    = 0x28
	hdrLastUsable     = 0x30
	hdrMaxEntries     = 0x50
	hdrEntrySize      = 0x54
	hdrTableCRC       = 0x58
	hdrMinLength      = 0x5C
	entryTypeGUID     = 0x00
	entryGUID         = 0x10
	entryFirst        = 0x20
	entryLast         = 0x28
	entryAttributes   = 0x30
	entryName         = 0x38
	entryNameLength   = 0x48
	entryMinimumBytes = entryName + entryNameLength
)

// Table is an in-memory GPT. Partitions keep their insertion order.
type Table struct {
	Partitions []*Partition

	FirstUsableSector uint64
	LastUsableSector  uint64

	buf           []byte
	sectorSize    uint32
	headerOffset  uint32
	headerSize    uint32
	tableOffset   uint32
	tableSize     uint32
	entrySize     uint32
	maxPartitions uint32

	changed bool
}

// Parse decodes a GPT from buf. The header is located by its marker and the
// entry table is expected one sector after it. Entries are read until the
// first one with an empty name.
func Parse(buf []byte, sectorSize uint32) (*Table, error) {
	idx := bytes.Index(buf, []byte(headerMarker))
	if idx < 0 {
		return nil, ErrHeaderNotFound
	}
	if idx+hdrMinLength > len(buf) {
		return nil, ErrTableOutOfBounds
	}

	h := buf[idx:]
	t := &Table{
		buf:               buf,
		sectorSize:        sectorSize,
		headerOffset:      uint32(idx),
		headerSize:        binary.LittleEndian.Uint32(h[hdrSize:]),
		tableOffset:       uint32(idx) + sectorSize,
		FirstUsableSector: binary.LittleEndian.Uint64(h[hdrFirstUsable:]),
		LastUsableSector:  binary.LittleEndian.Uint64(h[hdrLastUsable:]),
		maxPartitions:     binary.LittleEndian.Uint32(h[hdrMaxEntries:]),
		entrySize:         binary.LittleEndian.Uint32(h[hdrEntrySize:]),
	}
	if t.entrySize < entryMinimumBytes {
		return nil, fmt.Errorf("bad GPT: partition entry size 0x%X is too small", t.entrySize)
	}
	tableSize := uint64(t.maxPartitions) * uint64(t.entrySize)
	if uint64(idx)+uint64(sectorSize)+tableSize > uint64(len(buf)) ||
		uint64(t.headerOffset)+uint64(t.headerSize) > uint64(len(buf)) {
		return nil, ErrTableOutOfBounds
	}
	t.tableSize = uint32(tableSize)

	for off := t.tableOffset; off < t.tableOffset+t.tableSize; off += t.entrySize {
		e := buf[off : off+t.entrySize]
		name := protocol.TrimString(protocol.DecodeUTF16LE(e[entryName : entryName+entryNameLength]))
		if name == "" {
			break
		}
		p := NewPartition(name,
			binary.LittleEndian.Uint64(e[entryFirst:]),
			binary.LittleEndian.Uint64(e[entryLast:]))
		p.TypeGUID, _ = protocol.GUID(e, entryTypeGUID)
		p.GUID, _ = protocol.GUID(e, entryGUID)
		p.Attributes = binary.LittleEndian.Uint64(e[entryAttributes:])
		t.Partitions = append(t.Partitions, p)
	}
	return t, nil
}

// SectorSize returns the sector size the table was read with.
func (t *Table) SectorSize() uint32 {
	return t.sectorSize
}

// MaxPartitions returns the number of entries the table can hold.
func (t *Table) MaxPartitions() uint32 {
	return t.maxPartitions
}

// HasChanged reports whether the last merge, or a backup restore since,
// altered the table.
func (t *Table) HasChanged() bool {
	return t.changed
}

// Partition looks up a partition by name, ignoring case.
func (t *Table) Partition(name string) *Partition {
	for _, p := range t.Partitions {
		if p.is(name) {
			return p
		}
	}
	return nil
}

// Add appends p to the table.
func (t *Table) Add(p *Partition) {
	t.Partitions = append(t.Partitions, p)
	t.changed = true
}

// Remove drops p from the table. It reports whether p was present.
func (t *Table) Remove(p *Partition) bool {
	for i, c := range t.Partitions {
		if c == p {
			t.Partitions = append(t.Partitions[:i], t.Partitions[i+1:]...)
			t.changed = true
			return true
		}
	}
	return false
}

// Bytes returns the underlying GPT buffer as last rebuilt.
func (t *Table) Bytes() []byte {
	return t.buf
}

// Rebuild re-encodes every partition into the entry table and refreshes the
// table and header checksums. The table checksum is written before the
// header checksum is computed, because the header covers it.
func (t *Table) Rebuild() ([]byte, error) {
	if t.buf == nil {
		return nil, ErrNoBuffer
	}
	if uint32(len(t.Partitions)) > t.maxPartitions {
		return nil, fmt.Errorf("%w: %d entries, %d slots", ErrTableFull, len(t.Partitions), t.maxPartitions)
	}

	table := t.buf[t.tableOffset : t.tableOffset+t.tableSize]
	clear(table)

	off := uint32(0)
	for _, p := range t.Partitions {
		e := table[off : off+t.entrySize]
		protocol.PutGUID(e, entryTypeGUID, p.TypeGUID)
		protocol.PutGUID(e, entryGUID, p.GUID)
		binary.LittleEndian.PutUint64(e[entryFirst:], p.FirstSector())
		binary.LittleEndian.PutUint64(e[entryLast:], p.LastSector())
		binary.LittleEndian.PutUint64(e[entryAttributes:], p.Attributes)
		name := protocol.EncodeUTF16LE(p.Name)
		if len(name) > entryNameLength {
			name = name[:entryNameLength]
		}
		copy(e[entryName:entryName+entryNameLength], name)
		off += t.entrySize
	}

	h := t.buf[t.headerOffset:]
	binary.LittleEndian.PutUint32(h[hdrTableCRC:], crc32.ChecksumIEEE(table))
	binary.LittleEndian.PutUint32(h[hdrCRC:], 0)
	binary.LittleEndian.PutUint32(h[hdrCRC:], crc32.ChecksumIEEE(h[:t.headerSize]))

	return t.buf, nil
}

// maxLastSector returns the highest last sector in the table.
func (t *Table) maxLastSector() uint64 {
	var highest uint64
	for _, p := range t.Partitions {
		if p.LastSector() > highest {
			highest = p.LastSector()
		}
	}
	return highest
}
