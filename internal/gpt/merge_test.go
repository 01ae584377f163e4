package gpt

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapArchive maps entry names to image lengths in bytes.
type mapArchive map[string]int64

func (a mapArchive) ImageSize(name string) (int64, bool) {
	for entry, size := range a {
		if MatchImageName(entry, name) {
			return size, true
		}
	}
	return 0, false
}

func sectors(n int64) int64 {
	return n * testSectorSize
}

func baseTable(t *testing.T) *Table {
	return testTable(t,
		testPartition("SBL1", 0x100, 0x1FF),
		testPartition("UEFI", 0x200, 0x3FF),
		testPartition("DATA", 0x4000, 0x7FFF),
	)
}

func descriptor(parts ...*Partition) *Table {
	return &Table{Partitions: parts}
}

func assertNoOverlap(t *testing.T, tbl *Table) {
	t.Helper()
	for i, a := range tbl.Partitions {
		for _, b := range tbl.Partitions[i+1:] {
			assert.False(t, a.Overlaps(b), "%s [0x%X-0x%X] overlaps %s [0x%X-0x%X]",
				a.Name, a.FirstSector(), a.LastSector(), b.Name, b.FirstSector(), b.LastSector())
		}
	}
}

func TestMergeNewPartition(t *testing.T) {
	tbl := baseTable(t)

	err := tbl.Merge(descriptor(NewPartition("X", 0x1000, 0x1FFF)), nil, false)
	require.NoError(t, err)
	assert.True(t, tbl.HasChanged())

	x := tbl.Partition("X")
	require.NotNil(t, x)
	assert.Equal(t, uint64(0x1000), x.FirstSector())
	assert.Equal(t, uint64(0x1FFF), x.LastSector())
	assert.NotEqual(t, uuid.Nil, x.GUID)

	// The rebuilt buffer carries the new entry.
	again, err := Parse(tbl.Bytes(), testSectorSize)
	require.NoError(t, err)
	require.NotNil(t, again.Partition("X"))
	assert.Equal(t, x.GUID, again.Partition("X").GUID)
}

func TestMergeUnknownLength(t *testing.T) {
	tbl := baseTable(t)

	err := tbl.Merge(descriptor(NewPartition("Y", 0x1000, 0)), nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown length")

	var perr *PartitionError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "Y", perr.Partition)
}

func TestMergeIsIdempotent(t *testing.T) {
	tbl := baseTable(t)
	desc := descriptor(
		NewPartition("X", 0x1000, 0x1FFF),
		NewPartition("UEFI", 0, 0),
	)

	require.NoError(t, tbl.Merge(desc, nil, false))
	require.True(t, tbl.HasChanged())
	first := append([]byte(nil), tbl.Bytes()...)

	require.NoError(t, tbl.Merge(desc, nil, false))
	assert.False(t, tbl.HasChanged())
	assert.Equal(t, first, tbl.Bytes())
}

func TestMergeRemovesOverlappingPartitions(t *testing.T) {
	tbl := testTable(t,
		testPartition("SBL1", 0x100, 0x1FF),
		testPartition("A", 0x1000, 0x17FF),
		testPartition("B", 0x1800, 0x27FF),
		testPartition("C", 0x2800, 0x2FFF),
	)

	require.NoError(t, tbl.Merge(descriptor(NewPartition("X", 0x1400, 0x1FFF)), nil, false))

	assert.Nil(t, tbl.Partition("A"))
	assert.Nil(t, tbl.Partition("B"))
	assert.NotNil(t, tbl.Partition("C"))
	assert.NotNil(t, tbl.Partition("SBL1"))
	assertNoOverlap(t, tbl)
}

func TestMergeRejectsRelocationWithoutImage(t *testing.T) {
	tests := []struct {
		name string
		part *Partition
		want string
	}{
		{"moved", NewPartition("UEFI", 0x300, 0), "incorrect location"},
		{"resized", NewPartition("UEFI", 0x200, 0x4FF), "incorrect length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := baseTable(t)
			err := tbl.Merge(descriptor(tt.part), nil, false)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMergeRespectsDPP(t *testing.T) {
	tbl := testTable(t,
		testPartition("SBL1", 0x100, 0x1FF),
		testPartition("DPP", 0x800, 0xFFF),
	)

	err := tbl.Merge(descriptor(NewPartition("Z", 0x400, 0x7FF)), nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before DPP")

	require.NoError(t, tbl.Merge(descriptor(NewPartition("Z", 0x1000, 0x17FF)), nil, false))
	assert.NotNil(t, tbl.Partition("Z"))
}

func TestMergeSizesFromArchive(t *testing.T) {
	tbl := testTable(t,
		testPartition("SBL1", 0x100, 0x1FF),
		testPartition("DATA", 0x4000, 0x7FFF),
		testPartition("MAIN", 0x8000, 0x8FFF),
	)
	archive := mapArchive{"MAIN.bin": sectors(0x400)}

	require.NoError(t, tbl.Merge(descriptor(NewPartition("MAIN", 0, 0)), archive, false))

	main := tbl.Partition("MAIN")
	require.NotNil(t, main)
	assert.Equal(t, uint64(0x400), main.SizeInSectors())
	assert.Equal(t, uint64(0x8000), main.FirstSector())
	assert.Equal(t, uint64(0x83FF), main.LastSector())
	assert.True(t, tbl.HasChanged())
}

func TestMergeAppendsImageOnlyPartition(t *testing.T) {
	tbl := baseTable(t)
	archive := mapArchive{"NEW.img": sectors(0x200)}

	require.NoError(t, tbl.Merge(descriptor(NewPartition("NEW", 0, 0)), archive, false))

	p := tbl.Partition("NEW")
	require.NotNil(t, p)
	assert.Equal(t, uint64(0x8000), p.FirstSector())
	assert.Equal(t, uint64(0x200), p.SizeInSectors())
	assert.NotEqual(t, uuid.Nil, p.GUID)
	assertNoOverlap(t, tbl)
}

func TestMergeInconsistentImageLength(t *testing.T) {
	tbl := baseTable(t)
	archive := mapArchive{"X.bin": sectors(0x10)}

	err := tbl.Merge(descriptor(NewPartition("X", 0x1000, 0x1FFF)), archive, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inconsistent length")
}

func TestMergeRejectsImageSmallerThanSector(t *testing.T) {
	tests := []struct {
		name    string
		desc    *Table
		archive mapArchive
		want    string
	}{
		{
			name:    "image only",
			desc:    descriptor(NewPartition("A", 0, 0), NewPartition("B", 0, 0)),
			archive: mapArchive{"A.bin": 100, "B.bin": 100},
			want:    "A",
		},
		{
			name:    "trailing",
			desc:    descriptor(),
			archive: mapArchive{"DATA.bin": 100},
			want:    "DATA",
		},
		{
			name:    "in place",
			desc:    descriptor(),
			archive: mapArchive{"UEFI.bin": testSectorSize - 1},
			want:    "UEFI",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := baseTable(t)
			err := tbl.Merge(tt.desc, tt.archive, false)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "smaller than one sector")

			var perr *PartitionError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.want, perr.Partition)
		})
	}
}

func TestMergeNewPartitionNeedsFirstSector(t *testing.T) {
	tbl := baseTable(t)

	err := tbl.Merge(descriptor(NewPartition("Z", 0, 0x1FFF)), nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown location")
	assert.Nil(t, tbl.Partition("Z"))
}

func TestMergeImageMustFitSlot(t *testing.T) {
	packed := func(t *testing.T) *Table {
		return testTable(t,
			testPartition("SBL1", 0x100, 0x1FF),
			testPartition("UEFI", 0x200, 0x3FF),
			testPartition("PLAT", 0x400, 0x7FF),
			testPartition("DATA", 0x4000, 0x7FFF),
		)
	}

	t.Run("too large", func(t *testing.T) {
		tbl := packed(t)
		err := tbl.Merge(descriptor(), mapArchive{"UEFI.bin": sectors(0x300)}, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "only 0x200 are available")
	})

	t.Run("shrinks", func(t *testing.T) {
		tbl := packed(t)
		require.NoError(t, tbl.Merge(descriptor(), mapArchive{"UEFI.bin": sectors(0x100)}, false))
		assert.Equal(t, uint64(0x2FF), tbl.Partition("UEFI").LastSector())
		assert.True(t, tbl.HasChanged())
	})
}

func TestMergeAlignsDynamicPartitions(t *testing.T) {
	tbl := testTable(t,
		testPartition("SBL1", 0x100, 0x1FF),
		testPartition("DATA", 0x3000, 0x4000),
		testPartition("MAIN", 0x5000, 0x5FFF),
		testPartition("EXTRA", 0x6000, 0x60FF),
	)
	archive := mapArchive{
		"MAIN.bin":  sectors(0x123),
		"extra.img": sectors(0x10),
	}

	require.NoError(t, tbl.Merge(descriptor(), archive, true))

	main, extra := tbl.Partition("MAIN"), tbl.Partition("EXTRA")
	require.NotNil(t, main)
	require.NotNil(t, extra)
	assert.Equal(t, uint64(0x4100), main.FirstSector())
	assert.Equal(t, uint64(0x4300), extra.FirstSector())
	for _, p := range []*Partition{main, extra} {
		assert.Zero(t, p.FirstSector()%ChunkSectors, "%s not aligned", p.Name)
	}
	assertNoOverlap(t, tbl)

	// Without rounding the partitions are packed.
	tbl = testTable(t,
		testPartition("DATA", 0x3000, 0x4000),
		testPartition("MAIN", 0x5000, 0x5FFF),
	)
	require.NoError(t, tbl.Merge(descriptor(), mapArchive{"MAIN.bin": sectors(0x123)}, false))
	assert.Equal(t, uint64(0x4001), tbl.Partition("MAIN").FirstSector())
}

func TestMergeKeepsPinnedPartitionsStatic(t *testing.T) {
	tbl := testTable(t,
		testPartition("DATA", 0x3000, 0x3FFF),
		testPartition("MAIN", 0x5000, 0x5FFF),
	)
	archive := mapArchive{"MAIN.bin": sectors(0x800)}

	require.NoError(t, tbl.Merge(descriptor(NewPartition("MAIN", 0x5000, 0)), archive, false))

	main := tbl.Partition("MAIN")
	assert.Equal(t, uint64(0x5000), main.FirstSector())
	assert.Equal(t, uint64(0x57FF), main.LastSector())
}

func TestMergeGUIDs(t *testing.T) {
	otherType := uuid.MustParse("de94bba4-06d1-4d40-a16a-bfd50179d6ac")

	t.Run("descriptor GUID applied", func(t *testing.T) {
		tbl := baseTable(t)
		want := uuid.New()
		d := NewPartition("UEFI", 0, 0)
		d.GUID = want

		require.NoError(t, tbl.Merge(descriptor(d), nil, false))
		assert.Equal(t, want, tbl.Partition("UEFI").GUID)
		assert.True(t, tbl.HasChanged())
	})

	t.Run("type change regenerates GUID", func(t *testing.T) {
		tbl := baseTable(t)
		old := tbl.Partition("UEFI").GUID
		d := NewPartition("UEFI", 0, 0)
		d.TypeGUID = otherType

		require.NoError(t, tbl.Merge(descriptor(d), nil, false))
		uefi := tbl.Partition("UEFI")
		assert.Equal(t, otherType, uefi.TypeGUID)
		assert.NotEqual(t, old, uefi.GUID)
	})

	t.Run("unchanged GUID kept", func(t *testing.T) {
		tbl := baseTable(t)
		old := tbl.Partition("UEFI").GUID

		require.NoError(t, tbl.Merge(descriptor(NewPartition("UEFI", 0, 0)), nil, false))
		assert.Equal(t, old, tbl.Partition("UEFI").GUID)
		assert.False(t, tbl.HasChanged())
	})
}

func TestMergeAttributes(t *testing.T) {
	tbl := baseTable(t)
	d := NewPartition("DATA", 0, 0)
	d.Attributes = 0x8000000000000001

	require.NoError(t, tbl.Merge(descriptor(d), nil, false))
	assert.Equal(t, uint64(0x8000000000000001), tbl.Partition("DATA").Attributes)
	assert.True(t, tbl.HasChanged())
}
