package ufp

import (
	"context"
	"errors"
	"sync"

	"github.com/bigbag/ufptool/internal/protocol"
)

var errNotScripted = errors.New("no response scripted")

// fakeTransport records every request and replays scripted responses.
type fakeTransport struct {
	mu        sync.Mutex
	requests  [][]byte
	sendOnly  [][]byte
	responses [][]byte
	respond   func(req []byte) ([]byte, error)
	sendErr   error
}

func (f *fakeTransport) Send(_ context.Context, req []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendOnly = append(f.sendOnly, append([]byte(nil), req...))
	return f.sendErr
}

func (f *fakeTransport) SendAndReceive(_ context.Context, req []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, append([]byte(nil), req...))
	if f.respond != nil {
		return f.respond(req)
	}
	if len(f.responses) == 0 {
		return nil, errNotScripted
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

// paramResponse wraps payload the way the flash app answers NOKXFR.
func paramResponse(payload []byte) []byte {
	resp := make([]byte, protocol.ParamPayloadOffset+len(payload))
	copy(resp, protocol.ReadParamSignature)
	resp[protocol.ParamLengthOffset] = byte(len(payload))
	copy(resp[protocol.ParamPayloadOffset:], payload)
	return resp
}

func newTestDevice(responses ...[]byte) (*Device, *fakeTransport) {
	ft := &fakeTransport{responses: responses}
	return New(ft), ft
}
