package gpt

import (
	"sort"

	"github.com/google/uuid"
)

// ChunkSectors is the flash erase block size, in sectors, that dynamic
// partitions are aligned to when chunk rounding is requested.
const ChunkSectors = 0x100

// firstFreeSectorEmpty is where dynamic partitions start in an empty table.
const firstFreeSectorEmpty = 0x5000

// Merge applies a partition descriptor to t, optionally backed by an archive
// of partition images, and rebuilds the GPT buffer if t has one.
//
// Partitions present in the archive that sit at the end of the disk and are
// not pinned by the descriptor are treated as dynamic: they are removed and
// appended again after all fixed placements, sized by their image. Any
// partition overlapping a placed descriptor partition is dropped.
//
// HasChanged reports afterwards whether anything was altered. On error t may
// be partially modified.
func (t *Table) Merge(desc *Table, archive Archive, roundToChunks bool) error {
	t.changed = false
	sectorSize := uint64(t.sectorSize)
	if sectorSize == 0 {
		sectorSize = 512
	}

	imageSectors := func(name string) (uint64, bool) {
		if archive == nil {
			return 0, false
		}
		n, ok := archive.ImageSize(name)
		if !ok {
			return 0, false
		}
		return uint64(n) / sectorSize, true
	}
	// Images shorter than a sector would be placed with zero length.
	checkImage := func(name string) error {
		if sectors, ok := imageSectors(name); ok && sectors == 0 {
			return partitionError(name, "image smaller than one sector")
		}
		return nil
	}

	// Resolve descriptor bounds against the current table and the archive.
	entries := make([]*Partition, 0, len(desc.Partitions))
	var dynamic []*Partition
	for _, d := range desc.Partitions {
		d = d.clone()
		current := t.Partition(d.Name)
		if err := checkImage(d.Name); err != nil {
			return err
		}

		if sectors, ok := imageSectors(d.Name); ok {
			switch {
			case d.LastSector() == 0 && current == nil && d.FirstSector() == 0:
				// Image only: placed with the dynamic partitions.
				p := &Partition{Name: d.Name, TypeGUID: d.TypeGUID, GUID: d.GUID, Attributes: d.Attributes}
				if p.GUID == uuid.Nil {
					p.GUID = uuid.New()
				}
				dynamic = append(dynamic, p)
				t.changed = true
				continue
			case d.LastSector() == 0:
				if d.FirstSector() != 0 {
					d.SetSizeInSectors(sectors)
				}
			case d.SizeInSectors() != sectors:
				return partitionError(d.Name,
					"inconsistent length: the archive image is 0x%X sectors, the descriptor specifies 0x%X",
					sectors, d.SizeInSectors())
			}
		} else if current == nil {
			if d.LastSector() == 0 {
				return partitionError(d.Name,
					"unknown length: the last sector is 0 and the partition does not exist on the device")
			}
		} else {
			// Without an image the partition cannot be relocated.
			if d.FirstSector() != 0 && d.FirstSector() != current.FirstSector() {
				return partitionError(d.Name,
					"incorrect location: boundaries changed but no image is provided to relocate it")
			}
			if d.LastSector() != 0 && d.LastSector() != current.LastSector() {
				return partitionError(d.Name,
					"incorrect length: boundaries changed but no image is provided to relocate it")
			}
			d.SetFirstSector(current.FirstSector())
			d.SetLastSector(current.LastSector())
		}
		entries = append(entries, d)
	}

	// Collect the trailing run of archive-backed partitions not pinned by
	// the descriptor.
	if archive != nil {
		sorted := make([]*Partition, len(t.Partitions))
		copy(sorted, t.Partitions)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].FirstSector() < sorted[j].FirstSector()
		})
		var trailing []*Partition
		for i := len(sorted) - 1; i >= 0; i-- {
			p := sorted[i]
			if _, ok := imageSectors(p.Name); !ok {
				break
			}
			if d := desc.Partition(p.Name); d != nil && d.FirstSector() != 0 {
				break
			}
			trailing = append([]*Partition{p}, trailing...)
		}
		for _, p := range trailing {
			if err := checkImage(p.Name); err != nil {
				return err
			}
		}
		for _, p := range trailing {
			t.removePartition(p)
		}
		dynamic = append(trailing, dynamic...)
	}
	isDynamic := func(name string) bool {
		for _, p := range dynamic {
			if p.is(name) {
				return true
			}
		}
		return false
	}

	var lowestSector uint64
	if dpp := t.Partition("DPP"); dpp != nil {
		lowestSector = dpp.LastSector() + 1
	}

	for _, d := range entries {
		if isDynamic(d.Name) {
			continue
		}

		current := t.Partition(d.Name)
		first := d.FirstSector()
		if first == 0 && current != nil {
			first = current.FirstSector()
		}
		if first < lowestSector && !d.is("DPP") {
			return partitionError(d.Name, "bad sector alignment: the partition is located before DPP")
		}

		if current == nil {
			if first == 0 {
				return partitionError(d.Name,
					"unknown location: the first sector is 0 and the partition does not exist on the device")
			}
			current = &Partition{Name: d.Name}
			t.Partitions = append(t.Partitions, current)
			t.changed = true
		}
		if d.FirstSector() != 0 && d.FirstSector() != current.FirstSector() {
			current.SetFirstSector(d.FirstSector())
			t.changed = true
		}
		if d.LastSector() != 0 && d.LastSector() != current.LastSector() {
			current.SetLastSector(d.LastSector())
			t.changed = true
		}
		if d.Attributes != 0 && d.Attributes != current.Attributes {
			current.Attributes = d.Attributes
			t.changed = true
		}

		typeChanged := d.TypeGUID != uuid.Nil && d.TypeGUID != current.TypeGUID
		if typeChanged {
			current.TypeGUID = d.TypeGUID
			t.changed = true
		}
		switch {
		case d.GUID != uuid.Nil && d.GUID != current.GUID:
			current.GUID = d.GUID
			t.changed = true
		case current.GUID == uuid.Nil || typeChanged:
			current.GUID = uuid.New()
			t.changed = true
		}

		for i := len(t.Partitions) - 1; i >= 0; i-- {
			if p := t.Partitions[i]; p != current && current.Overlaps(p) {
				t.Partitions = append(t.Partitions[:i], t.Partitions[i+1:]...)
				t.changed = true
			}
		}
	}

	if archive != nil {
		// Images replacing a partition in place must fit before the next one.
		for _, p := range t.Partitions {
			sectors, ok := imageSectors(p.Name)
			if !ok {
				continue
			}
			if sectors == 0 {
				return checkImage(p.Name)
			}
			limit := p.SizeInSectors()
			if next := t.nextPartition(p); next != nil {
				limit = next.FirstSector() - p.FirstSector()
			}
			if sectors > limit {
				return partitionError(p.Name,
					"incorrect length: the archive image is 0x%X sectors but only 0x%X are available",
					sectors, limit)
			}
			if p.SizeInSectors() != sectors {
				p.SetSizeInSectors(sectors)
				t.changed = true
			}
		}

		firstFree := uint64(firstFreeSectorEmpty)
		if len(t.Partitions) > 0 {
			firstFree = t.maxLastSector() + 1
		}
		if roundToChunks {
			firstFree = alignUp(firstFree, ChunkSectors)
		}
		for _, p := range dynamic {
			sectors, _ := imageSectors(p.Name)
			oldFirst, oldLast := p.FirstSector(), p.LastSector()
			p.SetFirstSector(firstFree)
			p.SetSizeInSectors(sectors)
			if p.FirstSector() != oldFirst || p.LastSector() != oldLast {
				t.changed = true
			}
			t.Partitions = append(t.Partitions, p)

			firstFree += sectors
			if roundToChunks {
				firstFree = alignUp(firstFree, ChunkSectors)
			}
		}
	}

	if t.buf == nil {
		return nil
	}
	_, err := t.Rebuild()
	return err
}

// removePartition drops p without marking the table changed.
func (t *Table) removePartition(p *Partition) {
	for i, c := range t.Partitions {
		if c == p {
			t.Partitions = append(t.Partitions[:i], t.Partitions[i+1:]...)
			return
		}
	}
}

// nextPartition returns the partition starting closest after p.
func (t *Table) nextPartition(p *Partition) *Partition {
	var next *Partition
	for _, c := range t.Partitions {
		if c.FirstSector() > p.FirstSector() && (next == nil || c.FirstSector() < next.FirstSector()) {
			next = c
		}
	}
	return next
}

func alignUp(v, align uint64) uint64 {
	if r := v % align; r != 0 {
		return v + align - r
	}
	return v
}
