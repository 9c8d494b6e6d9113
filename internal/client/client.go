// Package client speaks the wire protocol to a server over one TCP connection.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"replkv/internal/model"
	"replkv/internal/protocol"
)

var ErrUnexpectedResponse = errors.New("unexpected response")

// ServerError carries the message of an Err response.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// Conn is a persistent connection to a server. Requests on one Conn are
// strictly sequential; a Conn is not safe for concurrent use.
type Conn struct {
	conn    net.Conn
	enc     *protocol.Encoder
	dec     *protocol.Decoder
	timeout time.Duration
}

// Dial connects to addr. A non-zero timeout bounds the dial and every
// subsequent request.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Conn, error) {
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	c, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	conn := NewConn(c)
	conn.timeout = timeout
	return conn, nil
}

func NewConn(c net.Conn) *Conn {
	return &Conn{
		conn: c,
		enc:  protocol.NewEncoder(c),
		dec:  protocol.NewDecoder(c),
	}
}

// SetTimeout replaces the per-request deadline; zero disables it.
func (c *Conn) SetTimeout(d time.Duration) {
	c.timeout = d
}

// Send writes req without waiting for a response.
func (c *Conn) Send(req protocol.Request) error {
	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return err
		}
	}
	if err := c.enc.EncodeRequest(req); err != nil {
		return fmt.Errorf("send %s: %w", req.Kind, err)
	}
	return nil
}

// Do sends req and reads its response. An Err response is returned as a
// response, not as an error; transport and decode failures are errors.
func (c *Conn) Do(req protocol.Request) (protocol.Response, error) {
	if c.timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return protocol.Response{}, err
		}
	}
	if err := c.enc.EncodeRequest(req); err != nil {
		return protocol.Response{}, fmt.Errorf("send %s: %w", req.Kind, err)
	}
	resp, err := c.dec.DecodeResponse()
	if err != nil {
		return protocol.Response{}, fmt.Errorf("read %s response: %w", req.Kind, err)
	}
	return resp, nil
}

// call runs req and converts an Err response into a *ServerError.
func (c *Conn) call(req protocol.Request) (protocol.Response, error) {
	resp, err := c.Do(req)
	if err != nil {
		return resp, err
	}
	if resp.Status == protocol.StatusErr {
		return resp, &ServerError{Message: resp.Message}
	}
	return resp, nil
}

// Get returns the value of key and whether it exists.
func (c *Conn) Get(key string) (string, bool, error) {
	resp, err := c.call(protocol.GetRequest(key))
	if err != nil {
		return "", false, err
	}
	if resp.Status != protocol.StatusOK {
		return "", false, fmt.Errorf("%w: %s to Get", ErrUnexpectedResponse, resp.Status)
	}
	if resp.Value == nil {
		return "", false, nil
	}
	return *resp.Value, true, nil
}

func (c *Conn) Set(key, value string) error {
	_, err := c.call(protocol.SetRequest(key, value))
	return err
}

func (c *Conn) Remove(key string) error {
	_, err := c.call(protocol.RemoveRequest(key))
	return err
}

func (c *Conn) Compact() error {
	_, err := c.call(protocol.CompactRequest())
	return err
}

// Scan returns the pairs with start <= key < end in ascending order.
func (c *Conn) Scan(start, end string) ([]model.KeyValue, error) {
	resp, err := c.call(protocol.ScanRequest(start, end))
	if err != nil {
		return nil, err
	}
	if resp.Status != protocol.StatusScanResult {
		return nil, fmt.Errorf("%w: %s to Scan", ErrUnexpectedResponse, resp.Status)
	}
	return resp.Pairs, nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
