package gpt

import "fmt"

// DefaultBackupThreshold is the first sector the legacy v1 programmer cannot
// write to when restoring boot chain partitions.
const DefaultBackupThreshold = 0xF400

// BackupPartitions are the boot chain partitions that have a "BACKUP_" twin.
var BackupPartitions = []string{"SBL1", "SBL2", "SBL3", "UEFI", "TZ", "RPM", "WINSECAPP"}

// RestoreBackupPartitions puts each boot chain partition back below its
// BACKUP_ twin, swapping their sector ranges when updates have exchanged
// them. Every primary partition present must end below threshold.
func (t *Table) RestoreBackupPartitions(threshold uint64) error {
	for _, name := range BackupPartitions {
		p := t.Partition(name)
		if p == nil {
			continue
		}
		if b := t.Partition("BACKUP_" + name); b != nil && p.FirstSector() > b.FirstSector() {
			first, last := p.FirstSector(), p.LastSector()
			p.SetFirstSector(b.FirstSector())
			p.SetLastSector(b.LastSector())
			b.SetFirstSector(first)
			b.SetLastSector(last)
			t.changed = true
		}
		if p.LastSector() >= threshold {
			return fmt.Errorf("%w: %s ends at sector 0x%X, beyond 0x%X", ErrUnsupportedLayout, p.Name, p.LastSector(), threshold)
		}
	}
	return nil
}
