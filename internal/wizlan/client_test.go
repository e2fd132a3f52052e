package wizlan

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"
)

// startFakeBulb runs a UDP responder on the loopback interface. The
// handler receives each decoded request and returns the raw reply, or
// nil for no reply.
func startFakeBulb(t *testing.T, handler func(req request) []byte) int {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("failed to start fake bulb: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, maxDatagramSize)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			var req request
			if err := json.Unmarshal(buf[:n], &req); err != nil {
				continue
			}
			if reply := handler(req); reply != nil {
				conn.WriteToUDP(reply, addr)
			}
		}
	}()

	return conn.LocalAddr().(*net.UDPAddr).Port
}

func systemConfigReply(mac, moduleName string) []byte {
	reply, _ := json.Marshal(map[string]any{
		"method": "getSystemConfig",
		"env":    "pro",
		"result": map[string]any{
			"mac":        mac,
			"homeId":     649,
			"roomId":     12,
			"moduleName": moduleName,
			"fwVersion":  "1.21.4",
		},
	})
	return reply
}

func TestTypeFromModuleName(t *testing.T) {
	tests := []struct {
		name         string
		moduleName   string
		wantClass    BulbClass
		wantChannels int
	}{
		{"rgb single white", "ESP01_SHRGB1C_31", ClassRGB, 1},
		{"rgb double white", "ESP20_SHRGB2C_01", ClassRGB, 2},
		{"rgbww", "ESP14_SHRGBWW_01", ClassRGB, 2},
		{"tunable white", "ESP56_SHTW3_01", ClassTunableWhite, 2},
		{"dimmable white", "ESP03_SHDW1_31", ClassDimmable, 1},
		{"socket", "ESP25_SOCKET_01", ClassDimmable, 1},
		{"unknown family", "ESP99_FOO_01", ClassUnknown, 0},
		{"no separators", "SHRGB1C", ClassRGB, 1},
		{"empty", "", ClassUnknown, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TypeFromModuleName(tt.moduleName)
			if got.Class != tt.wantClass {
				t.Errorf("Class = %v, want %v", got.Class, tt.wantClass)
			}
			if got.WhiteChannels != tt.wantChannels {
				t.Errorf("WhiteChannels = %d, want %d", got.WhiteChannels, tt.wantChannels)
			}
			if got.ModuleName != tt.moduleName {
				t.Errorf("ModuleName = %q, want %q", got.ModuleName, tt.moduleName)
			}
		})
	}
}

func TestConn_GetSystemConfig(t *testing.T) {
	port := startFakeBulb(t, func(req request) []byte {
		if req.Method != "getSystemConfig" {
			return nil
		}
		return systemConfigReply("a8bb50d46a9f", "ESP01_SHRGB1C_31")
	})

	client := NewClient(ClientConfig{Port: port, Timeout: 2 * time.Second})
	conn, err := client.Dial(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	cfg, err := conn.GetSystemConfig(context.Background())
	if err != nil {
		t.Fatalf("GetSystemConfig() error = %v", err)
	}
	if cfg.Mac != "a8bb50d46a9f" {
		t.Errorf("Mac = %q, want %q", cfg.Mac, "a8bb50d46a9f")
	}
	if cfg.ModuleName != "ESP01_SHRGB1C_31" {
		t.Errorf("ModuleName = %q, want %q", cfg.ModuleName, "ESP01_SHRGB1C_31")
	}
}

func TestConn_Identify(t *testing.T) {
	port := startFakeBulb(t, func(req request) []byte {
		return systemConfigReply("A8:BB:50:D4:6A:9F", "ESP20_SHRGB2C_01")
	})

	client := NewClient(ClientConfig{Port: port, Timeout: 2 * time.Second})
	conn, err := client.Dial(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	bt, mac, err := conn.Identify(context.Background())
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if bt.Class != ClassRGB || bt.WhiteChannels != 2 {
		t.Errorf("Identify() type = %+v, want RGB with 2 white channels", bt)
	}
	if mac != "A8:BB:50:D4:6A:9F" {
		t.Errorf("Identify() mac = %q, want raw bulb value", mac)
	}
}

func TestConn_Timeout(t *testing.T) {
	// A bulb that never answers.
	port := startFakeBulb(t, func(req request) []byte { return nil })

	client := NewClient(ClientConfig{Port: port, Timeout: 100 * time.Millisecond})
	conn, err := client.Dial(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	_, err = conn.GetSystemConfig(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("GetSystemConfig() error = %v, want ErrTimeout", err)
	}
}

func TestConn_BulbError(t *testing.T) {
	port := startFakeBulb(t, func(req request) []byte {
		reply, _ := json.Marshal(map[string]any{
			"method": req.Method,
			"error":  map[string]any{"code": -32601, "message": "Method not found"},
		})
		return reply
	})

	client := NewClient(ClientConfig{Port: port, Timeout: 2 * time.Second})
	conn, err := client.Dial(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	_, err = conn.GetModelConfig(context.Background())
	if !errors.Is(err, ErrBulbError) {
		t.Errorf("GetModelConfig() error = %v, want ErrBulbError", err)
	}
}

func TestConn_SkipsUnrelatedDatagrams(t *testing.T) {
	// A bulb that pushes an unrelated notification before the real reply.
	responder, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("failed to start fake bulb: %v", err)
	}
	t.Cleanup(func() { responder.Close() })

	go func() {
		buf := make([]byte, maxDatagramSize)
		n, addr, err := responder.ReadFromUDP(buf)
		if err != nil || n == 0 {
			return
		}
		push, _ := json.Marshal(map[string]any{
			"method": "syncPilot",
			"result": map[string]any{"mac": "ffffffffffff"},
		})
		responder.WriteToUDP(push, addr)
		responder.WriteToUDP(systemConfigReply("a8bb50d46a9f", "ESP01_SHRGB1C_31"), addr)
	}()

	port := responder.LocalAddr().(*net.UDPAddr).Port

	client := NewClient(ClientConfig{Port: port, Timeout: 2 * time.Second})
	conn, err := client.Dial(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	cfg, err := conn.GetSystemConfig(context.Background())
	if err != nil {
		t.Fatalf("GetSystemConfig() error = %v", err)
	}
	if cfg.Mac != "a8bb50d46a9f" {
		t.Errorf("Mac = %q, want %q", cfg.Mac, "a8bb50d46a9f")
	}
}
