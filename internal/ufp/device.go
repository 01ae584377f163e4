package ufp

import (
	"context"
	"sync"
)

// Transport is a raw request/response pipe to a device in flash mode.
type Transport interface {
	// Send writes a request without waiting for an answer.
	Send(ctx context.Context, req []byte) error

	// SendAndReceive writes a request and returns the device's answer.
	SendAndReceive(ctx context.Context, req []byte) ([]byte, error)
}

// Device is a UFP session over a single transport. It allows exactly one
// outstanding request at a time and caches the info query result.
type Device struct {
	transport Transport
	config    Config

	mu   sync.Mutex
	info *DeviceInfo
}

// New creates a Device on top of an open transport.
func New(t Transport, opts ...Option) *Device {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &Device{transport: t, config: config}
}

// TransferBufferSize returns the configured response ceiling.
func (d *Device) TransferBufferSize() int {
	return d.config.TransferBufferSize
}

// SendAndReceive performs one serialized request/response exchange.
func (d *Device) SendAndReceive(ctx context.Context, req []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	resp, err := d.transport.SendAndReceive(ctx, req)
	if err != nil {
		d.config.Logger.Debug("exchange failed", "request", requestName(req), "error", err)
		return nil, err
	}
	if resp == nil {
		return nil, ErrNoResponse
	}
	return resp, nil
}

// Send writes a request that the device does not answer.
func (d *Device) Send(ctx context.Context, req []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.transport.Send(ctx, req)
}

// query is SendAndReceive for read operations: transport failures are
// reported as an absent response.
func (d *Device) query(ctx context.Context, req []byte) []byte {
	resp, err := d.SendAndReceive(ctx, req)
	if err != nil {
		return nil
	}
	return resp
}

func requestName(req []byte) string {
	n := len(req)
	if n > 7 {
		n = 7
	}
	for i := 0; i < n; i++ {
		if req[i] < 'A' || req[i] > 'Z' {
			n = i
			break
		}
	}
	return string(req[:n])
}
