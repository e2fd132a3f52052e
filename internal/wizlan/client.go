package wizlan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// DefaultPort is the UDP port WiZ bulbs listen on.
const DefaultPort = 38899

const maxDatagramSize = 1024

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// request is the wire form of a bulb command.
type request struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

// response is the wire form of a bulb reply.
type response struct {
	Method string          `json:"method"`
	Env    string          `json:"env,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SystemConfig is the result of a getSystemConfig query.
type SystemConfig struct {
	Mac        string `json:"mac"`
	HomeID     int    `json:"homeId"`
	RoomID     int    `json:"roomId"`
	ModuleName string `json:"moduleName"`
	FwVersion  string `json:"fwVersion"`
}

// ModelConfig is the result of a getModelConfig query. Not every
// firmware supports the method; callers must treat it as best-effort.
type ModelConfig struct {
	CCTRange  []int `json:"cctRange"`
	ExtRange  []int `json:"extRange"`
	PWMFreq   int   `json:"pwmFreq"`
	DrvIface  int   `json:"drvIface"`
	WhiteCold int   `json:"wcr"`
}

// Client dials individual bulbs over UDP.
type Client struct {
	port    int
	timeout time.Duration
	logger  Logger
}

// ClientConfig holds Client settings.
type ClientConfig struct {
	// Port is the bulb's UDP port. Zero means DefaultPort.
	Port int

	// Timeout bounds a single request-reply exchange when the caller's
	// context carries no earlier deadline.
	Timeout time.Duration
}

// NewClient creates a bulb protocol client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		port:    cfg.Port,
		timeout: cfg.Timeout,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// Dial opens a connected UDP socket to the bulb at host. The caller
// must Close the returned Conn.
func (c *Client) Dial(ctx context.Context, host string) (*Conn, error) {
	var d net.Dialer
	addr := net.JoinHostPort(host, strconv.Itoa(c.port))
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", ErrConnectionFailed, addr, err)
	}
	return &Conn{
		conn:    conn,
		host:    host,
		timeout: c.timeout,
		logger:  c.logger,
	}, nil
}

// Conn is a connected UDP exchange with a single bulb.
type Conn struct {
	conn    net.Conn
	host    string
	timeout time.Duration
	logger  Logger
}

// Close releases the socket.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// GetSystemConfig queries the bulb's system configuration.
func (c *Conn) GetSystemConfig(ctx context.Context) (*SystemConfig, error) {
	raw, err := c.do(ctx, "getSystemConfig")
	if err != nil {
		return nil, err
	}
	var cfg SystemConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: decoding system config: %v", ErrInvalidResponse, err)
	}
	if cfg.Mac == "" {
		return nil, fmt.Errorf("%w: system config has no mac", ErrInvalidResponse)
	}
	return &cfg, nil
}

// GetModelConfig queries the bulb's model configuration.
func (c *Conn) GetModelConfig(ctx context.Context) (*ModelConfig, error) {
	raw, err := c.do(ctx, "getModelConfig")
	if err != nil {
		return nil, err
	}
	var cfg ModelConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: decoding model config: %v", ErrInvalidResponse, err)
	}
	return &cfg, nil
}

// Identify queries the bulb once and returns its inferred type and MAC
// address. This is the probe used to validate a host.
func (c *Conn) Identify(ctx context.Context) (BulbType, string, error) {
	cfg, err := c.GetSystemConfig(ctx)
	if err != nil {
		return BulbType{}, "", err
	}
	return TypeFromModuleName(cfg.ModuleName), cfg.Mac, nil
}

// do performs one request-reply exchange. The reply must echo the
// request's method; unrelated datagrams are skipped until the deadline.
func (c *Conn) do(ctx context.Context, method string) (json.RawMessage, error) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: setting deadline: %v", ErrConnectionFailed, err)
	}

	payload, err := json.Marshal(request{Method: method, Params: struct{}{}})
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}
	if _, err := c.conn.Write(payload); err != nil {
		return nil, mapNetError(err, fmt.Sprintf("sending %s to %s", method, c.host))
	}

	buf := make([]byte, maxDatagramSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}

		n, err := c.conn.Read(buf)
		if err != nil {
			return nil, mapNetError(err, fmt.Sprintf("reading %s reply from %s", method, c.host))
		}

		var resp response
		if err := json.Unmarshal(buf[:n], &resp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		if resp.Method != "" && resp.Method != method {
			c.logger.Debug("skipping unrelated datagram",
				"host", c.host,
				"expected", method,
				"got", resp.Method,
			)
			continue
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("%w: %s (code %d)", ErrBulbError, resp.Error.Message, resp.Error.Code)
		}
		if resp.Result == nil {
			return nil, fmt.Errorf("%w: reply has no result", ErrInvalidResponse)
		}
		return resp.Result, nil
	}
}

// mapNetError folds socket errors into the package sentinels.
func mapNetError(err error, op string) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrConnectionFailed, op, err)
}
