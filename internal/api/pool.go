package api

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/puddle/v2"

	"replkv/internal/client"
)

const DefaultPoolSize = 15

// Pool holds persistent protocol connections to one upstream server.
type Pool struct {
	addr string
	pool *puddle.Pool[*client.Conn]
}

// NewPool creates an empty pool; connections are dialed on first use.
func NewPool(addr string, size int, timeout time.Duration) (*Pool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	p, err := puddle.NewPool(&puddle.Config[*client.Conn]{
		Constructor: func(ctx context.Context) (*client.Conn, error) {
			return client.Dial(ctx, addr, timeout)
		},
		Destructor: func(c *client.Conn) {
			_ = c.Close()
		},
		MaxSize: int32(size),
	})
	if err != nil {
		return nil, err
	}
	return &Pool{addr: addr, pool: p}, nil
}

// With runs fn on a pooled connection. The connection goes back to the pool
// unless fn failed at transport level, in which case it is destroyed.
func (p *Pool) With(ctx context.Context, fn func(*client.Conn) error) error {
	res, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}

	err = fn(res.Value())
	var se *client.ServerError
	if err != nil && !errors.As(err, &se) {
		res.Destroy()
		return err
	}
	res.Release()
	return err
}

func (p *Pool) Addr() string {
	return p.addr
}

// Stat reports total and idle connection counts.
func (p *Pool) Stat() (total, idle int32) {
	s := p.pool.Stat()
	return s.TotalResources(), s.IdleResources()
}

func (p *Pool) Close() {
	p.pool.Close()
}
