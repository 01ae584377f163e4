package ufp

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigbag/ufptool/internal/protocol"
)

func TestReadParam(t *testing.T) {
	ctx := context.Background()

	t.Run("payload", func(t *testing.T) {
		d, ft := newTestDevice(paramResponse([]byte("RM-1045_1.0")))
		b, ok := d.ReadParam(ctx, ParamPlatformID)
		require.True(t, ok)
		assert.Equal(t, []byte("RM-1045_1.0"), b)

		require.Len(t, ft.requests, 1)
		assert.Equal(t, []byte("NOKXFR\x00DPI\x00"), ft.requests[0])
	})

	t.Run("short response", func(t *testing.T) {
		d, _ := newTestDevice([]byte("NOKXFR\x00DPI\x00"))
		_, ok := d.ReadParam(ctx, ParamPlatformID)
		assert.False(t, ok)
	})

	t.Run("declared length too long", func(t *testing.T) {
		resp := paramResponse([]byte{1, 2, 3})
		resp[protocol.ParamLengthOffset] = 10
		d, _ := newTestDevice(resp)
		_, ok := d.ReadParam(ctx, ParamPlatformID)
		assert.False(t, ok)
	})

	t.Run("transport failure", func(t *testing.T) {
		d, _ := newTestDevice()
		_, ok := d.ReadParam(ctx, ParamPlatformID)
		assert.False(t, ok)
	})

	t.Run("empty payload", func(t *testing.T) {
		d, _ := newTestDevice(paramResponse(nil))
		b, ok := d.ReadParam(ctx, "ZZZZ")
		assert.True(t, ok)
		assert.Empty(t, b)
	})
}

func TestFixedLengthDecoders(t *testing.T) {
	ctx := context.Background()

	d, _ := newTestDevice(paramResponse([]byte{0x00, 0x3A, 0x00, 0x00}))
	v, ok := d.ReadEmmcSize(ctx)
	assert.True(t, ok)
	assert.Equal(t, uint32(0x3A0000), v)

	// Wrong length is absence, not an error.
	d, _ = newTestDevice(paramResponse([]byte{0x00, 0x3A, 0x00}))
	_, ok = d.ReadEmmcSize(ctx)
	assert.False(t, ok)

	d, _ = newTestDevice(paramResponse([]byte{0, 0, 0, 0, 0, 0x10, 0, 0}))
	mem, ok := d.ReadSystemMemorySize(ctx)
	assert.True(t, ok)
	assert.Equal(t, uint64(0x100000), mem)

	d, _ = newTestDevice(paramResponse([]byte{0x00, 0x01}))
	async, ok := d.ReadAsyncSupport(ctx)
	assert.True(t, ok)
	assert.True(t, async)

	d, _ = newTestDevice(paramResponse([]byte{0x03, 0x04}))
	speed, ok := d.ReadUSBSpeed(ctx)
	assert.True(t, ok)
	assert.Equal(t, USBSpeed{Current: 3, Max: 4}, speed)
}

func TestReadDeviceID(t *testing.T) {
	want := uuid.MustParse("01234567-89ab-cdef-0123-456789abcdef")
	payload := make([]byte, 16)
	protocol.PutGUID(payload, 0, want)

	d, _ := newTestDevice(paramResponse(payload))
	got, ok := d.ReadDeviceID(context.Background())
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestReadFlashAppInfo(t *testing.T) {
	ctx := context.Background()

	d, _ := newTestDevice(paramResponse([]byte{2, 1, 3, 2, 20, 0}))
	info, ok := d.ReadFlashAppInfo(ctx)
	require.True(t, ok)
	assert.Equal(t, FlashAppInfo{ProtocolMajor: 1, ProtocolMinor: 3, Major: 2, Minor: 20}, info)

	d, _ = newTestDevice(paramResponse([]byte{1, 1, 3, 2, 20, 0}))
	_, ok = d.ReadFlashAppInfo(ctx)
	assert.False(t, ok)
}

func TestReadAppType(t *testing.T) {
	ctx := context.Background()

	d, _ := newTestDevice(paramResponse([]byte{1}))
	assert.Equal(t, AppTypeUFP, d.ReadAppType(ctx))

	d, _ = newTestDevice()
	assert.Equal(t, AppTypeUnknown, d.ReadAppType(ctx))
}

func TestReadResetProtection(t *testing.T) {
	d, _ := newTestDevice(paramResponse([]byte{1, 0, 0, 0, 2, 0, 0, 0, 5}))
	rp, ok := d.ReadResetProtection(context.Background())
	require.True(t, ok)
	assert.Equal(t, ResetProtection{Enabled: true, MajorVersion: 2, MinorVersion: 5}, rp)
}

func TestReadStringParamTrimsNUL(t *testing.T) {
	d, _ := newTestDevice(paramResponse([]byte("Qualcomm\x00\x00")))
	s, ok := d.ReadProcessorManufacturer(context.Background())
	require.True(t, ok)
	assert.Equal(t, "Qualcomm", s)
}

func targetingPayload(fields ...string) []byte {
	var b []byte
	for _, f := range fields {
		b = append(b, byte(len(f)>>8), byte(len(f)))
	}
	for _, f := range fields {
		b = append(b, f...)
	}
	return b
}

func TestReadTargetingInfo(t *testing.T) {
	payload := targetingPayload("Microsoft", "Lumia", "RM-1085", "1.0", "SKU", "MS", "Board")
	d, _ := newTestDevice(paramResponse(payload))

	ti, ok := d.ReadTargetingInfo(context.Background())
	require.True(t, ok)
	assert.Equal(t, TargetingInfo{
		Manufacturer:          "Microsoft",
		Family:                "Lumia",
		ProductName:           "RM-1085",
		ProductVersion:        "1.0",
		SKUNumber:             "SKU",
		BaseboardManufacturer: "MS",
		BaseboardProduct:      "Board",
	}, ti)

	// A field running past the payload makes the whole record absent.
	truncated := payload[:len(payload)-1]
	d, _ = newTestDevice(paramResponse(truncated))
	_, ok = d.ReadTargetingInfo(context.Background())
	assert.False(t, ok)
}

func TestReadUEFIVariable(t *testing.T) {
	vendor := uuid.MustParse("8be4df61-93ca-11d2-aa0d-00e098032b8c")
	payload := []byte{0, 0, 0, 7, 0, 0, 0, 3, 'a', 'b', 'c'}

	d, ft := newTestDevice(paramResponse(payload))
	v, ok := d.ReadUEFIVariable(context.Background(), vendor, "Boot", 0x100)
	require.True(t, ok)
	assert.Equal(t, uint32(7), v.Attributes)
	assert.Equal(t, []byte("abc"), v.Data)

	req := ft.requests[0]
	assert.True(t, protocol.HasSignature(req, "NOKXFR"))
	assert.Equal(t, []byte("GUFV"), req[7:11])
	gotVendor, _ := protocol.GUID(req, 15)
	assert.Equal(t, vendor, gotVendor)
	size, _ := protocol.Uint32(req, 31)
	assert.Equal(t, uint32(0x100), size)
	nameLen, _ := protocol.Uint32(req, 35)
	assert.Equal(t, uint32(10), nameLen)
	assert.Equal(t, "Boot", protocol.DecodeUTF16LE(req[39:]))
	assert.Len(t, req, 39+10)
}

func TestReadLogSizeRequest(t *testing.T) {
	d, ft := newTestDevice(paramResponse([]byte{0, 0, 0, 0, 0, 0, 0x12, 0x34}))
	size, ok := d.ReadLogSize(context.Background(), LogServicing)
	require.True(t, ok)
	assert.Equal(t, uint64(0x1234), size)

	req := ft.requests[0]
	assert.Len(t, req, 0x10)
	assert.Equal(t, []byte("LZ\x00\x00"), req[7:11])
	assert.Equal(t, byte(LogServicing), req[15])
}

func TestReadFileSize(t *testing.T) {
	d, ft := newTestDevice(paramResponse([]byte{0, 0, 0, 0, 0, 0, 0x40, 0}))
	size, ok := d.ReadFileSize(context.Background(), "EFIESP", `\efi\boot.efi`)
	require.True(t, ok)
	assert.Equal(t, uint64(0x4000), size)

	req := ft.requests[0]
	assert.Equal(t, "EFIESP", protocol.DecodeUTF16LE(req[15:87]))
	assert.Equal(t, `\efi\boot.efi`, protocol.DecodeUTF16LE(req[87:]))

	long := "ABCDEFGHIJKLMNOPQRSTUVWXYZABCDEFGHIJ"
	_, ok = d.ReadFileSize(context.Background(), long, "x")
	assert.False(t, ok)
	assert.Len(t, ft.requests, 1)
}

func TestSendAndReceiveErrors(t *testing.T) {
	ft := &fakeTransport{respond: func([]byte) ([]byte, error) { return nil, nil }}
	d := New(ft)
	_, err := d.SendAndReceive(context.Background(), []byte("NOKI"))
	assert.ErrorIs(t, err, ErrNoResponse)

	boom := errors.New("pipe stalled")
	ft.respond = func([]byte) ([]byte, error) { return nil, boom }
	_, err = d.SendAndReceive(context.Background(), []byte("NOKI"))
	assert.ErrorIs(t, err, boom)
}
