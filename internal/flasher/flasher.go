package flasher

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/bigbag/ufptool/internal/protocol"
	"github.com/bigbag/ufptool/internal/ufp"
)

// Conn is the request/response pipe the flasher talks through. *ufp.Device
// satisfies it.
type Conn interface {
	Send(ctx context.Context, req []byte) error
	SendAndReceive(ctx context.Context, req []byte) ([]byte, error)
}

// Image is an FFU image source. *ffu.Image satisfies it.
type Image interface {
	io.ReaderAt
	ChunkSize() int
	TotalChunkCount() uint64
	HeaderSize() uint64
	Size() int64
}

// FlashFlags are passed to the device in the options byte of header packets.
type FlashFlags byte

const (
	Normal                FlashFlags = 0
	SkipPlatformIDCheck   FlashFlags = 1 << 0
	SkipSignatureCheck    FlashFlags = 1 << 1
	SkipHash              FlashFlags = 1 << 2
	VerifyWrite           FlashFlags = 1 << 3
	SkipWrite             FlashFlags = 1 << 4
	ForceSynchronousWrite FlashFlags = 1 << 5
	FlashToRAM            FlashFlags = 1 << 6
)

// Options control a single FFU transfer.
type Options struct {
	Flags FlashFlags

	// ResetAfter reboots the device once the last packet was accepted.
	ResetAfter bool
}

// Phase names the part of the image being transferred.
type Phase string

const (
	PhaseHeader  Phase = "header"
	PhasePayload Phase = "payload"
)

// Progress is reported after every packet.
type Progress struct {
	Phase      Phase
	Completed  uint64
	Total      uint64
	Percentage int
}

// ProgressCallback is called to report flash progress.
type ProgressCallback func(Progress)

// Flasher streams FFU images to a device in flash mode.
type Flasher struct {
	conn     Conn
	info     *ufp.DeviceInfo
	progress ProgressCallback
	logger   ufp.Logger
}

// Option configures a Flasher.
type Option func(*Flasher)

// WithLogger sets the logger used for transfer tracing.
func WithLogger(logger ufp.Logger) Option {
	return func(f *Flasher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New creates a Flasher for conn. info is the capability record negotiated
// for this session; it selects the protocol and the v2 part size.
func New(conn Conn, info *ufp.DeviceInfo, opts ...Option) *Flasher {
	f := &Flasher{conn: conn, info: info, logger: ufp.NopLogger()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetProgressCallback sets the progress callback function.
func (f *Flasher) SetProgressCallback(cb ProgressCallback) {
	f.progress = cb
}

// reportProgress calls the progress callback if set.
func (f *Flasher) reportProgress(phase Phase, completed, total uint64) {
	if f.progress != nil {
		f.progress(Progress{
			Phase:      phase,
			Completed:  completed,
			Total:      total,
			Percentage: percentage(completed, total),
		})
	}
}

// percentage truncates and never exceeds 100.
func percentage(completed, total uint64) int {
	if total == 0 {
		return 0
	}
	p := completed * 100 / total
	if p > 100 {
		p = 100
	}
	return int(p)
}

// SelectProtocol picks the transfer protocol once from the capability mask.
func SelectProtocol(info *ufp.DeviceInfo, flags FlashFlags) (uint16, error) {
	if info == nil || !info.SupportsProtocol(protocol.ProtocolSyncV1) && !info.SupportsProtocol(protocol.ProtocolSyncV2) {
		return 0, ErrNoSupportedProtocol
	}
	switch {
	case !info.SupportsProtocol(protocol.ProtocolSyncV2):
		return protocol.ProtocolSyncV1, nil
	case info.SupportsProtocol(protocol.ProtocolAsyncV3) && flags&ForceSynchronousWrite == 0:
		return protocol.ProtocolAsyncV3, nil
	default:
		return protocol.ProtocolSyncV2, nil
	}
}

// FlashFFU transfers img: the combined header first, then the payload in
// file order. Any device-reported error aborts the transfer and leaves the
// device partially flashed.
func (f *Flasher) FlashFFU(ctx context.Context, img Image, opts Options) error {
	proto, err := SelectProtocol(f.info, opts.Flags)
	if err != nil {
		return err
	}
	if img.ChunkSize() <= 0 {
		return fmt.Errorf("invalid chunk size %d", img.ChunkSize())
	}
	if img.HeaderSize() > uint64(img.Size()) {
		return fmt.Errorf("header size 0x%X exceeds image size 0x%X", img.HeaderSize(), img.Size())
	}

	f.logger.Info("flashing image",
		"protocol", protocolName(proto),
		"chunk_size", img.ChunkSize(),
		"header_size", img.HeaderSize(),
		"chunks", img.TotalChunkCount(),
		"options", byte(opts.Flags))

	t := &transfer{Flasher: f, img: img, options: byte(opts.Flags), total: img.TotalChunkCount()}
	switch proto {
	case protocol.ProtocolSyncV1:
		err = t.flashV1(ctx)
	case protocol.ProtocolSyncV2:
		err = t.flashV2(ctx)
	default:
		err = t.flashV3(ctx)
	}
	if err != nil {
		return err
	}

	if opts.ResetAfter {
		// The device drops off the bus while rebooting.
		if err := f.conn.Send(ctx, []byte(protocol.RebootSignature)); err != nil {
			f.logger.Debug("reset after flash", "error", err)
		}
	}
	return nil
}

// Ramboot loads img into device memory and boots it without writing storage.
func (f *Flasher) Ramboot(ctx context.Context, img Image, flags FlashFlags) error {
	return f.FlashFFU(ctx, img, Options{Flags: flags | FlashToRAM})
}

// transfer is the state of one FlashFFU call.
type transfer struct {
	*Flasher
	img     Image
	options byte

	position uint64
	count    uint64
	total    uint64
}

func (t *transfer) progressByte() byte {
	return byte(percentage(t.count, t.total))
}

// read returns the next n bytes of the image, or fewer at the end.
func (t *transfer) read(n uint64) ([]byte, error) {
	if remaining := uint64(t.img.Size()) - t.position; remaining < n {
		n = remaining
	}
	buf := make([]byte, n)
	got, err := t.img.ReadAt(buf, int64(t.position))
	if err != nil && !(errors.Is(err, io.EOF) && uint64(got) == n) {
		return nil, fmt.Errorf("failed to read image at 0x%X: %w", t.position, err)
	}
	t.position += n
	return buf, nil
}

func (t *transfer) flashV1(ctx context.Context) error {
	header, err := t.read(t.img.HeaderSize())
	if err != nil {
		return err
	}
	t.count++
	if err := t.send(ctx, protocol.FfuHeaderV1(header, t.progressByte(), t.options)); err != nil {
		return fmt.Errorf("failed to send header: %w", err)
	}
	t.reportProgress(PhaseHeader, t.count, t.total)

	return t.streamPayload(ctx, uint64(t.img.ChunkSize()), func(chunk []byte, _ uint32) []byte {
		return protocol.FfuPayloadV1(chunk, t.progressByte(), 0)
	})
}

func (t *transfer) flashV2(ctx context.Context) error {
	part, err := t.writeBufferSize()
	if err != nil {
		return err
	}
	if err := t.sendHeaderV2(ctx, part); err != nil {
		return err
	}
	return t.streamPayload(ctx, part, func(chunk []byte, _ uint32) []byte {
		return protocol.FfuPayloadV2(chunk, t.progressByte(), 0)
	})
}

func (t *transfer) flashV3(ctx context.Context) error {
	part, err := t.writeBufferSize()
	if err != nil {
		return err
	}
	if err := t.sendHeaderV2(ctx, part); err != nil {
		return err
	}
	return t.streamPayload(ctx, uint64(t.img.ChunkSize()), func(chunk []byte, index uint32) []byte {
		return protocol.FfuPayloadV3(chunk, index, crc32.ChecksumIEEE(chunk), t.progressByte(), 0)
	})
}

func (t *transfer) writeBufferSize() (uint64, error) {
	if t.info.WriteBufferSize == 0 {
		return 0, errors.New("device reported a zero write buffer size")
	}
	return uint64(t.info.WriteBufferSize), nil
}

// sendHeaderV2 sends the combined header in parts of at most size bytes.
func (t *transfer) sendHeaderV2(ctx context.Context, size uint64) error {
	headerSize := t.img.HeaderSize()
	chunkSize := uint64(t.img.ChunkSize())
	for t.position < headerSize {
		n := size
		if headerSize-t.position < n {
			n = headerSize - t.position
		}
		offset := t.position
		part, err := t.read(n)
		if err != nil {
			return err
		}
		t.count += n / chunkSize

		err = t.send(ctx, protocol.FfuHeaderV2(part, uint32(headerSize), uint32(offset), t.progressByte(), t.options))
		if err != nil {
			if errors.Is(err, ErrV2Unsupported) {
				return err
			}
			return fmt.Errorf("failed to send header part at 0x%X: %w", offset, err)
		}
		t.reportProgress(PhaseHeader, t.count, t.total)
	}
	return nil
}

// streamPayload sends the rest of the image in packets of at most size
// bytes, built by packet from the data and its ordinal.
func (t *transfer) streamPayload(ctx context.Context, size uint64, packet func([]byte, uint32) []byte) error {
	chunkSize := uint64(t.img.ChunkSize())
	end := uint64(t.img.Size())
	var index uint32
	for t.position < end {
		offset := t.position
		data, err := t.read(size)
		if err != nil {
			return err
		}
		if size == chunkSize {
			t.count++
		} else {
			t.count += uint64(len(data)) / chunkSize
		}

		if err := t.send(ctx, packet(data, index)); err != nil {
			return fmt.Errorf("failed to send payload at 0x%X: %w", offset, err)
		}
		t.logger.Debug("payload accepted", "offset", offset, "length", len(data), "index", index)
		t.reportProgress(PhasePayload, t.count, t.total)
		index++
	}
	return nil
}

// send performs one packet exchange and checks the result word.
func (t *transfer) send(ctx context.Context, req []byte) error {
	resp, err := t.conn.SendAndReceive(ctx, req)
	if err != nil {
		return err
	}
	if resp == nil {
		return ufp.ErrNoResponse
	}
	sub, _ := protocol.Uint32(req, 0x0C)
	if sub == protocol.SubblockHeaderV2 && len(resp) == 4 {
		return ErrV2Unsupported
	}
	code, ok := protocol.ResultCode(resp)
	if !ok {
		return fmt.Errorf("%w: %d bytes", ErrShortResponse, len(resp))
	}
	if code != protocol.ResultOK {
		t.logger.Error("device rejected packet", "code", code, "diagnosis", protocol.ErrorMessage(code))
		return &FlashError{Code: code}
	}
	return nil
}

func protocolName(p uint16) string {
	switch p {
	case protocol.ProtocolSyncV1:
		return "sync v1"
	case protocol.ProtocolSyncV2:
		return "sync v2"
	case protocol.ProtocolAsyncV3:
		return "async v3"
	default:
		return fmt.Sprintf("0x%04X", p)
	}
}
