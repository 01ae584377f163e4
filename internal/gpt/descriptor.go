package gpt

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

type xmlPartitions struct {
	XMLName    xml.Name       `xml:"Partitions"`
	Partitions []xmlPartition `xml:"Partition"`
}

type xmlPartition struct {
	Name              string `xml:"Name"`
	PartitionTypeGuid string `xml:"PartitionTypeGuid"`
	PartitionGuid     string `xml:"PartitionGuid"`
	FirstSector       string `xml:"FirstSector"`
	LastSector        string `xml:"LastSector"`
	Attributes        string `xml:"Attributes"`
}

// ParseDescriptor reads a partition descriptor document. The returned table
// has no GPT buffer: it can be merged into a device table or written back,
// but not rebuilt. Sector and attribute fields of 0 mean unspecified.
func ParseDescriptor(r io.Reader) (*Table, error) {
	var doc xmlPartitions
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse partition descriptor: %w", err)
	}

	t := &Table{}
	for _, x := range doc.Partitions {
		name := strings.TrimSpace(x.Name)
		if name == "" {
			return nil, fmt.Errorf("partition descriptor: entry without a name")
		}
		p := &Partition{Name: name}

		var err error
		if p.TypeGUID, err = parseGUID(x.PartitionTypeGuid); err != nil {
			return nil, partitionError(name, "invalid type GUID: %v", err)
		}
		if p.GUID, err = parseGUID(x.PartitionGuid); err != nil {
			return nil, partitionError(name, "invalid GUID: %v", err)
		}
		first, err := parseHex(x.FirstSector)
		if err != nil {
			return nil, partitionError(name, "invalid first sector: %v", err)
		}
		last, err := parseHex(x.LastSector)
		if err != nil {
			return nil, partitionError(name, "invalid last sector: %v", err)
		}
		if p.Attributes, err = parseHex(x.Attributes); err != nil {
			return nil, partitionError(name, "invalid attributes: %v", err)
		}
		p.SetFirstSector(first)
		p.SetLastSector(last)
		t.Partitions = append(t.Partitions, p)
	}
	return t, nil
}

// WriteDescriptor renders the partitions of t as a descriptor document.
func WriteDescriptor(w io.Writer, t *Table) error {
	doc := xmlPartitions{}
	for _, p := range t.Partitions {
		doc.Partitions = append(doc.Partitions, xmlPartition{
			Name:              p.Name,
			PartitionTypeGuid: p.TypeGUID.String(),
			PartitionGuid:     p.GUID.String(),
			FirstSector:       formatHex(p.FirstSector()),
			LastSector:        formatHex(p.LastSector()),
			Attributes:        formatHex(p.Attributes),
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to write partition descriptor: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func parseGUID(s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(strings.Trim(s, "{}"))
}

func parseHex(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if len(s) > 1 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	return strconv.ParseUint(s, 16, 64)
}

func formatHex(v uint64) string {
	return fmt.Sprintf("0x%016X", v)
}
