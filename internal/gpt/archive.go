package gpt

import (
	"archive/zip"
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"path"
	"strings"

	"go.uber.org/multierr"
)

// Archive is a collection of partition images addressed by partition name.
type Archive interface {
	// ImageSize returns the uncompressed length in bytes of the image
	// matching name.
	ImageSize(name string) (int64, bool)
}

// MatchImageName reports whether an archive entry name refers to the
// partition name: an exact case-insensitive match, or one with a single
// trailing extension such as "MAIN.bin".
func MatchImageName(entry, name string) bool {
	base := path.Base(entry)
	if strings.EqualFold(base, name) {
		return true
	}
	ext := path.Ext(base)
	return ext != "" && strings.EqualFold(strings.TrimSuffix(base, ext), name)
}

// ZipArchive serves partition images from a zip file. Entries may be stored
// raw or gzip compressed; gzip entries report their decompressed length.
type ZipArchive struct {
	r      *zip.Reader
	closer io.Closer
	sizes  map[*zip.File]int64
}

// OpenZipArchive opens the zip file at name.
func OpenZipArchive(name string) (*ZipArchive, error) {
	rc, err := zip.OpenReader(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return &ZipArchive{r: &rc.Reader, closer: rc, sizes: make(map[*zip.File]int64)}, nil
}

// NewZipArchive reads a zip archive from r.
func NewZipArchive(r io.ReaderAt, size int64) (*ZipArchive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	return &ZipArchive{r: zr, sizes: make(map[*zip.File]int64)}, nil
}

// Close releases the archive file, if it was opened by name.
func (a *ZipArchive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// ImageSize implements Archive.
func (a *ZipArchive) ImageSize(name string) (int64, bool) {
	f := a.find(name)
	if f == nil {
		return 0, false
	}
	if n, ok := a.sizes[f]; ok {
		return n, true
	}
	n, err := imageLength(f)
	if err != nil {
		n = int64(f.UncompressedSize64)
	}
	a.sizes[f] = n
	return n, true
}

// Open returns a reader over the decompressed image matching name.
func (a *ZipArchive) Open(name string) (io.ReadCloser, error) {
	f := a.find(name)
	if f == nil {
		return nil, fmt.Errorf("no image for partition %q in archive", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(rc)
	if !isGzip(br) {
		return readCloser{br, rc}, nil
	}
	gz, err := gzip.NewReader(br)
	if err != nil {
		rc.Close()
		return nil, err
	}
	return readCloser{gz, multiCloser{gz, rc}}, nil
}

func (a *ZipArchive) find(name string) *zip.File {
	for _, f := range a.r.File {
		if !f.FileInfo().IsDir() && MatchImageName(f.Name, name) {
			return f
		}
	}
	return nil
}

// imageLength counts the decompressed bytes of a gzip entry, or returns the
// stored length of a raw one.
func imageLength(f *zip.File) (int64, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	br := bufio.NewReader(rc)
	if !isGzip(br) {
		return int64(f.UncompressedSize64), nil
	}
	gz, err := gzip.NewReader(br)
	if err != nil {
		return 0, err
	}
	defer gz.Close()
	return io.Copy(io.Discard, gz)
}

func isGzip(br *bufio.Reader) bool {
	magic, err := br.Peek(2)
	return err == nil && magic[0] == 0x1f && magic[1] == 0x8b
}

type readCloser struct {
	io.Reader
	io.Closer
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var err error
	for _, c := range m {
		err = multierr.Append(err, c.Close())
	}
	return err
}
