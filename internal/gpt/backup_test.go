package gpt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestoreBackupPartitions(t *testing.T) {
	tbl := testTable(t,
		testPartition("BACKUP_SBL1", 0x100, 0x1FF),
		testPartition("SBL1", 0x5000, 0x50FF),
		testPartition("UEFI", 0x600, 0x7FF),
		testPartition("BACKUP_UEFI", 0x800, 0x9FF),
		testPartition("TZ", 0xA00, 0xAFF),
	)

	require.NoError(t, tbl.RestoreBackupPartitions(DefaultBackupThreshold))
	assert.True(t, tbl.HasChanged())

	sbl1, backup := tbl.Partition("SBL1"), tbl.Partition("BACKUP_SBL1")
	assert.Equal(t, uint64(0x100), sbl1.FirstSector())
	assert.Equal(t, uint64(0x1FF), sbl1.LastSector())
	assert.Equal(t, uint64(0x5000), backup.FirstSector())
	assert.Equal(t, uint64(0x50FF), backup.LastSector())

	// Already in order.
	assert.Equal(t, uint64(0x600), tbl.Partition("UEFI").FirstSector())
}

func TestRestoreBackupPartitionsThreshold(t *testing.T) {
	tbl := testTable(t,
		testPartition("SBL1", 0x100, 0x1FF),
		testPartition("UEFI", 0xF000, 0xF400),
	)

	err := tbl.RestoreBackupPartitions(DefaultBackupThreshold)
	require.ErrorIs(t, err, ErrUnsupportedLayout)
	assert.Contains(t, err.Error(), "UEFI")

	assert.NoError(t, tbl.RestoreBackupPartitions(0x10000))
	assert.False(t, tbl.HasChanged())
}
