package gpt

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDescriptor = `<?xml version="1.0" encoding="utf-8"?>
<Partitions>
  <Partition>
    <Name>MMOS</Name>
    <PartitionTypeGuid>ebd0a0a2-b9e5-4433-87c0-68b6b72699c7</PartitionTypeGuid>
    <PartitionGuid>{27a47557-8243-4c8e-9d30-846844c29c52}</PartitionGuid>
    <FirstSector>0x0000000000010000</FirstSector>
    <LastSector>0x000000000001FFFF</LastSector>
    <Attributes>0x8000000000000000</Attributes>
  </Partition>
  <Partition>
    <Name>MainOS</Name>
    <FirstSector>0</FirstSector>
    <LastSector>0x0</LastSector>
  </Partition>
</Partitions>
`

func TestParseDescriptor(t *testing.T) {
	desc, err := ParseDescriptor(strings.NewReader(sampleDescriptor))
	require.NoError(t, err)
	require.Len(t, desc.Partitions, 2)

	mmos := desc.Partitions[0]
	assert.Equal(t, "MMOS", mmos.Name)
	assert.Equal(t, basicDataType, mmos.TypeGUID)
	assert.Equal(t, uuid.MustParse("27a47557-8243-4c8e-9d30-846844c29c52"), mmos.GUID)
	assert.Equal(t, uint64(0x10000), mmos.FirstSector())
	assert.Equal(t, uint64(0x1FFFF), mmos.LastSector())
	assert.Equal(t, uint64(0x10000), mmos.SizeInSectors())
	assert.Equal(t, uint64(0x8000000000000000), mmos.Attributes)

	mainOS := desc.Partitions[1]
	assert.Equal(t, uuid.Nil, mainOS.TypeGUID)
	assert.Equal(t, uuid.Nil, mainOS.GUID)
	assert.Zero(t, mainOS.FirstSector())
	assert.Zero(t, mainOS.LastSector())
	assert.Zero(t, mainOS.Attributes)

	_, err = desc.Rebuild()
	assert.ErrorIs(t, err, ErrNoBuffer)
}

func TestParseDescriptorErrors(t *testing.T) {
	tests := []struct {
		name string
		xml  string
	}{
		{"not xml", "EFI PART"},
		{"missing name", `<Partitions><Partition><FirstSector>0x1</FirstSector></Partition></Partitions>`},
		{"bad sector", `<Partitions><Partition><Name>A</Name><FirstSector>0xZZ</FirstSector></Partition></Partitions>`},
		{"bad guid", `<Partitions><Partition><Name>A</Name><PartitionGuid>nope</PartitionGuid></Partition></Partitions>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDescriptor(strings.NewReader(tt.xml))
			assert.Error(t, err)
		})
	}
}

func TestWriteDescriptorRoundTrip(t *testing.T) {
	tbl := testTable(t,
		testPartition("SBL1", 0x100, 0x1FF),
		testPartition("UEFI", 0x200, 0x3FF),
	)
	tbl.Partitions[1].Attributes = 0x1000000000000000

	var buf bytes.Buffer
	require.NoError(t, WriteDescriptor(&buf, tbl))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.Contains(t, out, "<FirstSector>0x0000000000000100</FirstSector>")
	assert.Contains(t, out, "<Attributes>0x1000000000000000</Attributes>")

	desc, err := ParseDescriptor(&buf)
	require.NoError(t, err)
	require.Len(t, desc.Partitions, len(tbl.Partitions))
	for i, want := range tbl.Partitions {
		got := desc.Partitions[i]
		assert.Equal(t, want.Name, got.Name)
		assert.Equal(t, want.TypeGUID, got.TypeGUID)
		assert.Equal(t, want.GUID, got.GUID)
		assert.Equal(t, want.FirstSector(), got.FirstSector())
		assert.Equal(t, want.LastSector(), got.LastSector())
		assert.Equal(t, want.Attributes, got.Attributes)
	}
}
