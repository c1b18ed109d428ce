// Package client sends commands to a running daemon.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	dlhttp "github.com/AhmedYasen/download-manager/internal/http"
	"github.com/AhmedYasen/download-manager/pkg/protocol"
)

// ErrDaemonNotRunning is returned when nothing is listening on the control
// address.
var ErrDaemonNotRunning = errors.New("daemon is not running")

// Client talks to the control endpoint of one daemon.
type Client struct {
	addr string
	http *dlhttp.Client
}

// New creates a Client for the daemon at addr, host:port form. An empty
// addr means protocol.DefaultAddr.
func New(addr string, opts dlhttp.Options) *Client {
	if addr == "" {
		addr = protocol.DefaultAddr
	}
	return &Client{addr: addr, http: dlhttp.NewClient(opts)}
}

// Addr returns the daemon address.
func (c *Client) Addr() string { return c.addr }

// Send posts cmd to the daemon and returns the response text.
func (c *Client) Send(ctx context.Context, cmd protocol.Command) (string, error) {
	body, err := protocol.Marshal(cmd)
	if err != nil {
		return "", err
	}

	url := "http://" + c.addr + protocol.CommandPath
	resp, err := c.http.Post(ctx, url, "application/json", body)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return "", fmt.Errorf("%w at %s", ErrDaemonNotRunning, c.addr)
		}
		return "", fmt.Errorf("send %s: %w", strings.ToLower(cmd.Kind()), err)
	}
	return string(resp), nil
}

// Ping reports whether a daemon answers at the client's address.
func (c *Client) Ping(ctx context.Context) bool {
	_, err := c.Send(ctx, protocol.Command{List: &protocol.List{Scope: protocol.ScopeActive}})
	return err == nil
}
