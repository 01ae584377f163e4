// Package ffu reads the layout of FFU firmware images: the chunk size, the
// length of the combined headers that precede the payload, and the target
// platform. Catalog, hash table and signature verification are left to the
// device.
package ffu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bigbag/ufptool/internal/protocol"
)

const (
	securitySignature = "SignedImage "
	imageSignature    = "ImageFlash  "

	securityHeaderSize = 32
	imageHeaderSize    = 24
	storeHeaderV1Size  = 248
	storeHeaderV2Extra = 14
	platformIDLength   = 192
)

var (
	// ErrInvalidImage is returned when a header signature or size is wrong.
	ErrInvalidImage = errors.New("invalid FFU image")
)

// StoreHeader holds the fields of the store header the tool reports.
type StoreHeader struct {
	UpdateType               uint32
	MajorVersion             uint16
	MinorVersion             uint16
	FullFlashMajorVersion    uint16
	FullFlashMinorVersion    uint16
	PlatformID               string
	BlockSize                uint32
	WriteDescriptorCount     uint32
	WriteDescriptorLength    uint32
	ValidateDescriptorCount  uint32
	ValidateDescriptorLength uint32
	NumberOfStores           uint16
	StoreIndex               uint16
	StorePayloadSize         uint64
}

// Image is an FFU file opened for flashing. It implements io.ReaderAt over
// the whole file.
type Image struct {
	r    io.ReaderAt
	size int64

	chunkSize  int
	headerSize uint64
	store      StoreHeader

	closer io.Closer
}

// Open opens and parses the FFU file at name.
func Open(name string) (*Image, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat image: %w", err)
	}
	img, err := New(f, fi.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	img.closer = f
	return img, nil
}

// New parses the headers of an FFU image of the given size.
func New(r io.ReaderAt, size int64) (*Image, error) {
	img := &Image{r: r, size: size}

	// Security header, catalog and hash table.
	sec, err := img.read(0, securityHeaderSize)
	if err != nil {
		return nil, err
	}
	if string(sec[4:16]) != securitySignature {
		return nil, fmt.Errorf("%w: security header signature %q", ErrInvalidImage, sec[4:16])
	}
	chunkKB := binary.LittleEndian.Uint32(sec[16:])
	if chunkKB == 0 {
		return nil, fmt.Errorf("%w: chunk size is 0", ErrInvalidImage)
	}
	img.chunkSize = int(chunkKB) * 1024
	catalogSize := binary.LittleEndian.Uint32(sec[24:])
	hashTableSize := binary.LittleEndian.Uint32(sec[28:])
	offset := img.align(uint64(binary.LittleEndian.Uint32(sec[0:])) + uint64(catalogSize) + uint64(hashTableSize))

	// Image header and manifest.
	ih, err := img.read(offset, imageHeaderSize)
	if err != nil {
		return nil, err
	}
	if string(ih[4:16]) != imageSignature {
		return nil, fmt.Errorf("%w: image header signature %q", ErrInvalidImage, ih[4:16])
	}
	manifestLength := binary.LittleEndian.Uint32(ih[16:])
	offset += img.align(uint64(binary.LittleEndian.Uint32(ih[0:])) + uint64(manifestLength))

	// Store header with its descriptors.
	sh, err := img.read(offset, storeHeaderV1Size+storeHeaderV2Extra)
	if err != nil {
		sh, err = img.read(offset, storeHeaderV1Size)
		if err != nil {
			return nil, err
		}
	}
	img.store = parseStoreHeader(sh)
	storeLength := uint64(storeHeaderV1Size)
	if img.store.MajorVersion >= 2 {
		if len(sh) < storeHeaderV1Size+storeHeaderV2Extra {
			return nil, fmt.Errorf("%w: truncated v2 store header", ErrInvalidImage)
		}
		pathLength := binary.LittleEndian.Uint16(sh[storeHeaderV1Size+12:])
		storeLength += storeHeaderV2Extra + uint64(pathLength)*2
	}
	storeLength += uint64(img.store.ValidateDescriptorLength) + uint64(img.store.WriteDescriptorLength)
	offset += img.align(storeLength)

	if offset > uint64(size) {
		return nil, fmt.Errorf("%w: headers (0x%X bytes) exceed file size", ErrInvalidImage, offset)
	}
	img.headerSize = offset
	return img, nil
}

func parseStoreHeader(b []byte) StoreHeader {
	le := binary.LittleEndian
	h := StoreHeader{
		UpdateType:               le.Uint32(b[0:]),
		MajorVersion:             le.Uint16(b[4:]),
		MinorVersion:             le.Uint16(b[6:]),
		FullFlashMajorVersion:    le.Uint16(b[8:]),
		FullFlashMinorVersion:    le.Uint16(b[10:]),
		PlatformID:               protocol.TrimString(string(b[12 : 12+platformIDLength])),
		BlockSize:                le.Uint32(b[204:]),
		WriteDescriptorCount:     le.Uint32(b[208:]),
		WriteDescriptorLength:    le.Uint32(b[212:]),
		ValidateDescriptorCount:  le.Uint32(b[216:]),
		ValidateDescriptorLength: le.Uint32(b[220:]),
		NumberOfStores:           1,
	}
	if h.MajorVersion >= 2 && len(b) >= storeHeaderV1Size+storeHeaderV2Extra {
		h.NumberOfStores = le.Uint16(b[248:])
		h.StoreIndex = le.Uint16(b[250:])
		h.StorePayloadSize = le.Uint64(b[252:])
	}
	return h
}

func (img *Image) read(off uint64, n int) ([]byte, error) {
	if off+uint64(n) > uint64(img.size) {
		return nil, fmt.Errorf("%w: header at 0x%X runs past end of file", ErrInvalidImage, off)
	}
	b := make([]byte, n)
	if _, err := img.r.ReadAt(b, int64(off)); err != nil {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}
	return b, nil
}

// align rounds n up to the chunk size.
func (img *Image) align(n uint64) uint64 {
	c := uint64(img.chunkSize)
	if r := n % c; r != 0 {
		return n + c - r
	}
	return n
}

// ChunkSize returns the image chunk size in bytes.
func (img *Image) ChunkSize() int { return img.chunkSize }

// HeaderSize returns the length of the combined headers preceding the payload.
func (img *Image) HeaderSize() uint64 { return img.headerSize }

// TotalChunkCount returns the file length in whole chunks.
func (img *Image) TotalChunkCount() uint64 { return uint64(img.size) / uint64(img.chunkSize) }

// Size returns the file length in bytes.
func (img *Image) Size() int64 { return img.size }

// Store returns the decoded store header.
func (img *Image) Store() StoreHeader { return img.store }

// PlatformID returns the platform the image was built for.
func (img *Image) PlatformID() string { return img.store.PlatformID }

// ReadAt implements io.ReaderAt.
func (img *Image) ReadAt(p []byte, off int64) (int, error) {
	return img.r.ReadAt(p, off)
}

// Close closes the underlying file if the image was opened by name.
func (img *Image) Close() error {
	if img.closer == nil {
		return nil
	}
	return img.closer.Close()
}
