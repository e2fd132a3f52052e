package wizlan

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"
)

func registrationReply(mac string) []byte {
	reply, _ := json.Marshal(map[string]any{
		"method": "registration",
		"env":    "pro",
		"result": map[string]any{"mac": mac, "success": true},
	})
	return reply
}

// startFakeResponder listens for a registration probe and sends each of
// the given datagrams back to the prober.
func startFakeResponder(t *testing.T, replies ...[]byte) int {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("failed to start responder: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, maxDatagramSize)
		_, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		for _, reply := range replies {
			conn.WriteToUDP(reply, addr)
		}
	}()

	return conn.LocalAddr().(*net.UDPAddr).Port
}

func TestScanner_Scan_NoAnswers(t *testing.T) {
	// Nothing listens on the target port; the scan must still return
	// cleanly with an empty, non-nil slice.
	scanner := NewScanner(ScannerConfig{Port: 59321})

	bulbs, err := scanner.Scan(context.Background(), "127.0.0.1", 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if bulbs == nil {
		t.Fatal("Scan() returned nil slice, want empty slice")
	}
	if len(bulbs) != 0 {
		t.Errorf("Scan() found %d bulbs, want 0", len(bulbs))
	}
}

func TestScanner_Scan_FindsBulbs(t *testing.T) {
	port := startFakeResponder(t,
		registrationReply("a8bb50d46a9f"),
		registrationReply("a8bb50aabbcc"),
	)
	scanner := NewScanner(ScannerConfig{Port: port})

	bulbs, err := scanner.Scan(context.Background(), "127.0.0.1", 300*time.Millisecond)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(bulbs) != 2 {
		t.Fatalf("Scan() found %d bulbs, want 2", len(bulbs))
	}
	if bulbs[0].MACAddress != "a8bb50d46a9f" || bulbs[1].MACAddress != "a8bb50aabbcc" {
		t.Errorf("Scan() macs = %v, want answer order preserved", bulbs)
	}
	if bulbs[0].IPAddress != "127.0.0.1" {
		t.Errorf("IPAddress = %q, want %q", bulbs[0].IPAddress, "127.0.0.1")
	}
}

func TestScanner_Scan_DedupesByMAC(t *testing.T) {
	// The same bulb answering every re-broadcast must appear once, and
	// MAC formatting differences must not defeat the dedupe.
	port := startFakeResponder(t,
		registrationReply("a8bb50d46a9f"),
		registrationReply("A8:BB:50:D4:6A:9F"),
		registrationReply("A8BB50D46A9F"),
	)
	scanner := NewScanner(ScannerConfig{Port: port})

	bulbs, err := scanner.Scan(context.Background(), "127.0.0.1", 300*time.Millisecond)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(bulbs) != 1 {
		t.Fatalf("Scan() found %d bulbs, want 1", len(bulbs))
	}
	if bulbs[0].MACAddress != "a8bb50d46a9f" {
		t.Errorf("MACAddress = %q, want normalised %q", bulbs[0].MACAddress, "a8bb50d46a9f")
	}
}

func TestScanner_Scan_IgnoresMalformedAnswers(t *testing.T) {
	port := startFakeResponder(t,
		[]byte("not json at all"),
		registrationReply("zz:zz:zz:zz:zz:zz"),
		registrationReply("a8bb50d46a9f"),
	)
	scanner := NewScanner(ScannerConfig{Port: port})

	bulbs, err := scanner.Scan(context.Background(), "127.0.0.1", 300*time.Millisecond)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(bulbs) != 1 {
		t.Fatalf("Scan() found %d bulbs, want 1", len(bulbs))
	}
}

func TestScanner_Scan_CancelledContext(t *testing.T) {
	port := startFakeResponder(t, registrationReply("a8bb50d46a9f"))
	scanner := NewScanner(ScannerConfig{Port: port})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := scanner.Scan(ctx, "127.0.0.1", 5*time.Second)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Scan() took %v after cancellation, want prompt return", elapsed)
	}
}
