package gpt

import (
	"errors"
	"fmt"
)

var (
	// ErrHeaderNotFound is returned when the buffer has no "EFI PART" marker.
	ErrHeaderNotFound = errors.New("bad GPT: header marker \"EFI PART\" not found")

	// ErrTableOutOfBounds is returned when the header describes a table larger
	// than the buffer it was read from.
	ErrTableOutOfBounds = errors.New("bad GPT: table sizes exceed the provided buffer")

	// ErrUnsupportedLayout is returned by RestoreBackupPartitions when a
	// primary partition ends beyond the legacy programmer threshold.
	ErrUnsupportedLayout = errors.New("unsupported partition layout")

	// ErrNoBuffer is returned when rebuilding a table that was not parsed
	// from a device buffer, e.g. one read from a descriptor.
	ErrNoBuffer = errors.New("table has no GPT buffer")

	// ErrTableFull is returned when more partitions exist than table entries.
	ErrTableFull = errors.New("too many partitions for the GPT table")
)

// PartitionError reports a merge failure caused by one partition.
type PartitionError struct {
	Partition string
	Reason    string
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("partition %q: %s", e.Partition, e.Reason)
}

func partitionError(name, format string, args ...interface{}) error {
	return &PartitionError{Partition: name, Reason: fmt.Sprintf(format, args...)}
}
