package device

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-routeros/routeros/v3"
)

const (
	DefaultPort    = 8728
	DefaultTimeout = 10 * time.Second
	DefaultProfile = "default"
)

// Config identifies one access controller. Every point of sale carries
// its own set of these.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Timeout  time.Duration
	Profile  string
}

// Client provisions hotspot credentials on a MikroTik access controller.
// Each call dials a fresh API connection and closes it before returning;
// sessions are never pooled because device credentials differ per point
// of sale and calls are rare compared to connection cost.
type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Profile == "" {
		cfg.Profile = DefaultProfile
	}
	return &Client{cfg: cfg}
}

// ProvisioningError wraps any transport, authentication or protocol
// failure together with the operation that hit it. The client never
// retries; that call belongs to the caller.
type ProvisioningError struct {
	Op  string
	Err error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("mikrotik %s: %v", e.Op, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

func (c *Client) dial(ctx context.Context) (*routeros.Client, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)

	conn, err := routeros.DialContext(ctx, fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port), c.cfg.User, c.cfg.Password)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return conn, cancel, nil
}

// CreateAccessCode writes one hotspot user where username and password
// are both the voucher code, limited to durationHours of uptime. Returns
// nil only after the device acknowledges the write.
func (c *Client) CreateAccessCode(ctx context.Context, code string, durationHours int) error {
	conn, cancel, err := c.dial(ctx)
	if err != nil {
		return &ProvisioningError{Op: "create", Err: err}
	}
	defer cancel()
	defer conn.Close()

	_, err = conn.RunContext(ctx,
		"/ip/hotspot/user/add",
		"=name="+code,
		"=password="+code,
		"=limit-uptime="+strconv.Itoa(uptimeSeconds(durationHours)),
		"=profile="+c.cfg.Profile,
	)
	if err != nil {
		return &ProvisioningError{Op: "create", Err: err}
	}
	return nil
}

// Exists reports whether a credential with this code is present on the
// device.
func (c *Client) Exists(ctx context.Context, code string) (bool, error) {
	conn, cancel, err := c.dial(ctx)
	if err != nil {
		return false, &ProvisioningError{Op: "exists", Err: err}
	}
	defer cancel()
	defer conn.Close()

	reply, err := conn.RunContext(ctx, "/ip/hotspot/user/print", "?name="+code)
	if err != nil {
		return false, &ProvisioningError{Op: "exists", Err: err}
	}
	return len(reply.Re) > 0, nil
}

// Delete removes the credential for code, if present. The API has no
// remove-by-name, so this is a print filtered by name followed by a
// remove addressed by the device's internal .id.
func (c *Client) Delete(ctx context.Context, code string) error {
	conn, cancel, err := c.dial(ctx)
	if err != nil {
		return &ProvisioningError{Op: "delete", Err: err}
	}
	defer cancel()
	defer conn.Close()

	reply, err := conn.RunContext(ctx, "/ip/hotspot/user/print", "?name="+code)
	if err != nil {
		return &ProvisioningError{Op: "delete", Err: err}
	}
	if len(reply.Re) == 0 {
		return nil
	}

	id := reply.Re[0].Map[".id"]
	if _, err := conn.RunContext(ctx, "/ip/hotspot/user/remove", "=.id="+id); err != nil {
		return &ProvisioningError{Op: "delete", Err: err}
	}
	return nil
}

func uptimeSeconds(durationHours int) int {
	return durationHours * 3600
}
