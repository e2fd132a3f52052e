package flow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/luxbind/wiz-core/internal/wizlan"
)

// BulbConn is a single established exchange with a bulb.
type BulbConn interface {
	Identify(ctx context.Context) (wizlan.BulbType, string, error)
	Close() error
}

// BulbDialer opens connections to bulbs by host address.
type BulbDialer interface {
	Dial(ctx context.Context, host string) (BulbConn, error)
}

// LANDialer adapts the wizlan client to the BulbDialer interface.
type LANDialer struct {
	client *wizlan.Client
}

// NewLANDialer wraps a wizlan client.
func NewLANDialer(client *wizlan.Client) *LANDialer {
	return &LANDialer{client: client}
}

func (d *LANDialer) Dial(ctx context.Context, host string) (BulbConn, error) {
	return d.client.Dial(ctx, host)
}

// Validator checks that a host is reachable and is a bulb, and reads
// its identity. It never touches persistent state.
type Validator struct {
	dialer  BulbDialer
	timeout time.Duration
	logger  Logger
}

// NewValidator creates a validator with the given overall per-attempt
// timeout.
func NewValidator(dialer BulbDialer, timeout time.Duration) *Validator {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Validator{
		dialer:  dialer,
		timeout: timeout,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the validator.
func (v *Validator) SetLogger(logger Logger) {
	v.logger = logger
}

// ValidateAndIdentify connects to host and reads the bulb's type and
// MAC address. An empty host fails with ErrHostRequired and a host
// that is not an IP literal fails with ErrInvalidAddress, both without
// any network traffic. Network failures surface as wizlan.ErrTimeout
// or wizlan.ErrConnectionFailed; anything else is logged with its
// cause and folded into ErrUnknown.
func (v *Validator) ValidateAndIdentify(ctx context.Context, host string) (wizlan.BulbType, string, error) {
	if host == "" {
		return wizlan.BulbType{}, "", ErrHostRequired
	}
	if net.ParseIP(host) == nil {
		return wizlan.BulbType{}, "", fmt.Errorf("%w: %q", ErrInvalidAddress, host)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	conn, err := v.dialer.Dial(ctx, host)
	if err != nil {
		return wizlan.BulbType{}, "", v.mapError(host, err)
	}
	defer conn.Close()

	bt, mac, err := conn.Identify(ctx)
	if err != nil {
		return wizlan.BulbType{}, "", v.mapError(host, err)
	}

	v.logger.Debug("validated bulb",
		"host", host,
		"mac", mac,
		"module_name", bt.ModuleName,
	)
	return bt, mac, nil
}

// mapError keeps the transport sentinels and folds everything else
// into ErrUnknown after logging the original cause.
func (v *Validator) mapError(host string, err error) error {
	switch {
	case errors.Is(err, wizlan.ErrTimeout):
		v.logger.Error("connection to bulb timed out", "host", host, "error", err.Error())
		return err
	case errors.Is(err, wizlan.ErrConnectionFailed):
		v.logger.Error("failed to connect to bulb", "host", host, "error", err.Error())
		return err
	default:
		v.logger.Error("unexpected error talking to bulb", "host", host, "error", err.Error())
		return fmt.Errorf("%w: %v", ErrUnknown, err)
	}
}

// fieldErrorsFor maps a validation failure to form error keys for
// interactive re-presentation.
func fieldErrorsFor(err error) map[string]string {
	switch {
	case errors.Is(err, ErrHostRequired):
		return map[string]string{"host": errKeyHostRequired}
	case errors.Is(err, ErrInvalidAddress):
		return map[string]string{"host": errKeyNoIP}
	case errors.Is(err, wizlan.ErrTimeout):
		return map[string]string{"base": errKeyBulbTimeout}
	case errors.Is(err, wizlan.ErrConnectionFailed):
		return map[string]string{"base": errKeyCannotConnect}
	default:
		return map[string]string{"base": errKeyUnknown}
	}
}
