// internal/botclient/client.go
//
// Client side of the robot protocol plus a greedy food-seeking driver.
// The client is not safe for concurrent use; the protocol is strictly
// request/response on one connection.

package botclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/robalobadob/feedbot/internal/protocol"
	"github.com/robalobadob/feedbot/internal/world"
)

// ErrRejected wraps an Error reply from the server.
var ErrRejected = errors.New("move rejected")

// Client speaks the robot protocol over one connection.
type Client struct {
	conn     net.Conn
	timeout  time.Duration
	maxFrame uint64
}

// Dial connects to a robot server. timeout bounds each request/response
// round trip; zero disables it.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewClient(conn, timeout), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, timeout time.Duration) *Client {
	return &Client{conn: conn, timeout: timeout, maxFrame: protocol.DefaultMaxFrame}
}

// SetMaxFrame sets the largest reply payload the client accepts. It must be
// at least the server's reply size (see protocol.ReplySize); zero restores
// protocol.DefaultMaxFrame.
func (c *Client) SetMaxFrame(n uint64) {
	if n == 0 {
		n = protocol.DefaultMaxFrame
	}
	c.maxFrame = n
}

// Move sends one command and waits for its reply. An Error reply is returned
// as an error wrapping ErrRejected; the connection stays usable.
func (c *Client) Move(dir world.Direction) (world.Update, error) {
	req, err := protocol.EncodeCommand(dir)
	if err != nil {
		return world.Update{}, err
	}
	if c.timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return world.Update{}, err
		}
	}
	if err := protocol.WriteFrame(c.conn, req); err != nil {
		return world.Update{}, err
	}
	payload, err := protocol.ReadFrame(c.conn, c.maxFrame)
	if errors.Is(err, protocol.ErrFrameTooLarge) {
		// The payload is still unread; the stream can no longer be framed.
		_ = c.conn.Close()
		return world.Update{}, err
	}
	if err != nil {
		return world.Update{}, err
	}
	reply, err := protocol.DecodeReply(payload)
	if err != nil {
		return world.Update{}, err
	}
	if reply.Update == nil {
		return world.Update{}, fmt.Errorf("%w: %s", ErrRejected, reply.Err)
	}
	return *reply.Update, nil
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }
