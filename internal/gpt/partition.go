package gpt

import (
	"strings"

	"github.com/google/uuid"
)

// Partition is one GPT entry. The sector range is kept as a first/last pair
// plus an optional explicit size; every setter leaves
// LastSector == FirstSector + SizeInSectors - 1 using the value it was given
// as the source of truth.
type Partition struct {
	Name       string
	TypeGUID   uuid.UUID
	GUID       uuid.UUID
	Attributes uint64

	first uint64
	last  uint64
	size  uint64 // explicit size override, 0 when derived from first/last
}

// NewPartition returns a partition spanning first..last inclusive.
func NewPartition(name string, first, last uint64) *Partition {
	return &Partition{Name: name, first: first, last: last}
}

// FirstSector returns the first sector of the partition.
func (p *Partition) FirstSector() uint64 { return p.first }

// LastSector returns the last sector of the partition (inclusive).
func (p *Partition) LastSector() uint64 { return p.last }

// SizeInSectors returns the explicit size if one was set, otherwise the
// length of the first..last range.
func (p *Partition) SizeInSectors() uint64 {
	if p.size != 0 {
		return p.size
	}
	if p.last < p.first {
		return 0
	}
	return p.last - p.first + 1
}

// SetFirstSector moves the start of the partition. An explicit size is kept,
// so the partition is relocated; otherwise the last sector stays put.
func (p *Partition) SetFirstSector(v uint64) {
	p.first = v
	if p.size != 0 {
		p.last = v + p.size - 1
	}
}

// SetLastSector moves the end of the partition and drops any explicit size.
func (p *Partition) SetLastSector(v uint64) {
	p.last = v
	p.size = 0
}

// SetSizeInSectors resizes the partition from its current first sector.
func (p *Partition) SetSizeInSectors(v uint64) {
	p.size = v
	if v == 0 {
		p.last = p.first
		return
	}
	p.last = p.first + v - 1
}

// Overlaps reports whether the sector ranges of p and o intersect.
func (p *Partition) Overlaps(o *Partition) bool {
	return p.first <= o.last && p.last >= o.first
}

// Volume returns the Windows volume path of the partition.
func (p *Partition) Volume() string {
	return `\\?\Volume{` + p.GUID.String() + `}\`
}

func (p *Partition) is(name string) bool {
	return strings.EqualFold(p.Name, name)
}

func (p *Partition) clone() *Partition {
	c := *p
	return &c
}
