package detect

import (
	"context"
	"errors"
	"testing"

	"github.com/bigbag/ufptool/internal/subblock/subblocktest"
	"github.com/bigbag/ufptool/internal/ufp"
)

type scriptedTransport struct {
	responses [][]byte
}

func (s *scriptedTransport) Send(context.Context, []byte) error { return nil }

func (s *scriptedTransport) SendAndReceive(context.Context, []byte) ([]byte, error) {
	if len(s.responses) == 0 {
		return nil, errors.New("no response")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func infoResponse(app byte, blocks ...[]byte) []byte {
	resp := append([]byte("NOKV"), 0, app, 1, 3, 2, 20, byte(len(blocks)))
	for _, b := range blocks {
		resp = append(resp, b...)
	}
	return resp
}

func TestProbe(t *testing.T) {
	tr := &scriptedTransport{responses: [][]byte{
		[]byte("NOKI"),
		infoResponse(2, subblocktest.Encode(0x05, []byte("Nokia.MSM8960.P6036.1.2\x00"))),
	}}

	result, err := Probe(context.Background(), tr)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if !result.CanFlash {
		t.Errorf("CanFlash = false, want true")
	}
	if result.App != ufp.AppFlash {
		t.Errorf("App = %d, want %d", result.App, ufp.AppFlash)
	}
	if result.AppVersion != "2.20" {
		t.Errorf("AppVersion = %q, want %q", result.AppVersion, "2.20")
	}
	if result.PlatformID != "Nokia.MSM8960.P6036.1.2" {
		t.Errorf("PlatformID = %q", result.PlatformID)
	}
}

func TestProbeFallsBackToPlatformParam(t *testing.T) {
	param := []byte("NOKXFR\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x05P6036")
	tr := &scriptedTransport{responses: [][]byte{
		[]byte("NOKI"),
		infoResponse(1),
		param,
	}}

	result, err := Probe(context.Background(), tr)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if result.CanFlash {
		t.Errorf("CanFlash = true for a non-flash app")
	}
	if result.AppVersion != "" {
		t.Errorf("AppVersion = %q, want empty", result.AppVersion)
	}
	if result.PlatformID != "P6036" {
		t.Errorf("PlatformID = %q, want %q", result.PlatformID, "P6036")
	}
}

func TestProbeNoHello(t *testing.T) {
	tr := &scriptedTransport{responses: [][]byte{[]byte("NOKU")}}
	if _, err := Probe(context.Background(), tr); err == nil {
		t.Error("Probe() succeeded on a device that did not echo the hello")
	}

	if _, err := Probe(context.Background(), &scriptedTransport{}); err == nil {
		t.Error("Probe() succeeded without any response")
	}
}
