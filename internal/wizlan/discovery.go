package wizlan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/luxbind/wiz-core/internal/identity"
)

// probesPerScan is how many times the registration broadcast is re-sent
// across the scan window. Bulbs that miss the first datagram usually
// answer a later one.
const probesPerScan = 3

// registrationParams mirrors the probe payload bulbs expect. The phone
// fields are placeholders; register=false means "answer, do not pair".
type registrationParams struct {
	PhoneMac string `json:"phoneMac"`
	Register bool   `json:"register"`
	PhoneIP  string `json:"phoneIp"`
	ID       string `json:"id"`
}

// registrationResult is the part of a discovery answer we care about.
type registrationResult struct {
	Mac     string `json:"mac"`
	Success bool   `json:"success"`
}

// Scanner broadcasts discovery probes and collects answering bulbs.
type Scanner struct {
	port   int
	logger Logger
}

// ScannerConfig holds Scanner settings.
type ScannerConfig struct {
	// Port is the bulb UDP port. Zero means DefaultPort.
	Port int
}

// NewScanner creates a discovery scanner.
func NewScanner(cfg ScannerConfig) *Scanner {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	return &Scanner{
		port:   cfg.Port,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the scanner.
func (s *Scanner) SetLogger(logger Logger) {
	s.logger = logger
}

// Scan broadcasts a registration probe to broadcastAddr and collects
// answers until the window elapses or ctx is cancelled. Each scan uses
// a fresh socket. Results are deduplicated by MAC with the last seen IP
// winning. Zero answers is a normal outcome: an empty slice and a nil
// error.
func (s *Scanner) Scan(ctx context.Context, broadcastAddr string, window time.Duration) ([]DiscoveredBulb, error) {
	target, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(broadcastAddr, fmt.Sprintf("%d", s.port)))
	if err != nil {
		return nil, fmt.Errorf("%w: resolving broadcast address %s: %v", ErrConnectionFailed, broadcastAddr, err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: opening scan socket: %v", ErrConnectionFailed, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(window)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: setting scan deadline: %v", ErrConnectionFailed, err)
	}

	// Unblock the read loop when the caller cancels early.
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Now())
		case <-stopWatch:
		}
	}()

	probe, err := json.Marshal(request{
		Method: "registration",
		Params: registrationParams{
			PhoneMac: "AAAAAAAAAAAA",
			Register: false,
			PhoneIP:  "1.2.3.4",
			ID:       "1",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding registration probe: %w", err)
	}

	if _, err := conn.WriteToUDP(probe, target); err != nil {
		return nil, fmt.Errorf("%w: sending probe to %s: %v", ErrConnectionFailed, target, err)
	}
	go s.resendProbes(ctx, conn, target, probe, window)

	found := make(map[string]string)
	order := make([]string, 0)
	buf := make([]byte, maxDatagramSize)

	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				break
			}
			return nil, fmt.Errorf("%w: reading scan answers: %v", ErrConnectionFailed, err)
		}

		mac, ok := s.parseAnswer(buf[:n], addr)
		if !ok {
			continue
		}
		if _, seen := found[mac]; !seen {
			order = append(order, mac)
		}
		found[mac] = addr.IP.String()
	}

	bulbs := make([]DiscoveredBulb, 0, len(order))
	for _, mac := range order {
		bulbs = append(bulbs, DiscoveredBulb{IPAddress: found[mac], MACAddress: mac})
	}
	s.logger.Debug("scan finished",
		"broadcast", broadcastAddr,
		"window", window.String(),
		"found", len(bulbs),
	)
	return bulbs, nil
}

// resendProbes re-broadcasts the probe at even intervals across the
// window. Send failures here are ignored; the first send already
// succeeded.
func (s *Scanner) resendProbes(ctx context.Context, conn *net.UDPConn, target *net.UDPAddr, probe []byte, window time.Duration) {
	interval := window / (probesPerScan + 1)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; i < probesPerScan; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := conn.WriteToUDP(probe, target); err != nil {
				return
			}
		}
	}
}

// parseAnswer extracts a normalised MAC from a discovery reply, or
// reports false for datagrams that are not valid answers.
func (s *Scanner) parseAnswer(data []byte, addr *net.UDPAddr) (string, bool) {
	var resp struct {
		Method string             `json:"method"`
		Result registrationResult `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		s.logger.Debug("ignoring malformed scan answer", "from", addr.String())
		return "", false
	}
	if resp.Method != "" && resp.Method != "registration" {
		return "", false
	}
	mac, err := identity.NormalizeMAC(resp.Result.Mac)
	if err != nil {
		s.logger.Debug("ignoring scan answer with bad mac",
			"from", addr.String(),
			"mac", resp.Result.Mac,
		)
		return "", false
	}
	return mac, true
}
