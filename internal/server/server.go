// Package server accepts protocol connections and executes their requests
// against a shared store.
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"replkv/internal/engine"
	"replkv/internal/metrics"
	"replkv/internal/protocol"
	"replkv/internal/replication"
)

type Config struct {
	Addr string
	Role Role
	// FollowerAddr enables replication on a leader.
	FollowerAddr string
	// LeaderAddr is required on a follower.
	LeaderAddr  string
	Replication replication.Config
}

func DefaultConfig() Config {
	return Config{
		Addr:        "127.0.0.1:4000",
		Role:        Leader,
		Replication: replication.DefaultConfig(),
	}
}

// Replicator forwards a committed client write to a follower.
type Replicator interface {
	Forward(ctx context.Context, req protocol.Request) error
}

// Server runs one goroutine per connection. Each connection handles one
// request at a time; storage work for a request runs in a single
// critical section of the shared store.
type Server struct {
	cfg        Config
	store      *engine.Shared
	replicator Replicator
	log        logrus.FieldLogger
	metrics    *metrics.Metrics

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

type Option func(*Server)

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithReplicator overrides the replicator built from Config.FollowerAddr.
func WithReplicator(r Replicator) Option {
	return func(s *Server) {
		s.replicator = r
	}
}

func New(cfg Config, store *engine.Shared, opts ...Option) (*Server, error) {
	if cfg.Role == Follower && cfg.LeaderAddr == "" {
		return nil, ErrLeaderAddrRequired
	}

	s := &Server{
		cfg:   cfg,
		store: store,
		log:   logrus.StandardLogger(),
		conns: make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("role", cfg.Role.String())

	if s.replicator == nil && cfg.Role == Leader && cfg.FollowerAddr != "" {
		s.replicator = replication.New(cfg.FollowerAddr, cfg.Replication,
			replication.WithLogger(s.log), replication.WithMetrics(s.metrics))
	}
	return s, nil
}

// ListenAndServe listens on Config.Addr and serves until Close.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Close. It always returns a non-nil
// error; after Close the error is ErrServerClosed.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()

	switch s.cfg.Role {
	case Leader:
		if s.cfg.FollowerAddr != "" {
			s.log.Infof("listening on %s, replicating to %s", l.Addr(), s.cfg.FollowerAddr)
		} else {
			s.log.Infof("listening on %s, no follower configured", l.Addr())
		}
	case Follower:
		s.log.Infof("listening on %s, leader is %s", l.Addr(), s.cfg.LeaderAddr)
	}

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.log.WithError(err).Warn("accept failed")
				continue
			}
			return err
		}
		if !s.track(conn) {
			_ = conn.Close()
			return ErrServerClosed
		}
		go func() {
			defer s.untrack(conn)
			s.handleConn(conn)
		}()
	}
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting, closes every open connection and waits for their
// goroutines to exit. The store is left open.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	_ = c.Close()
	s.wg.Done()
}

func (s *Server) handleConn(conn net.Conn) {
	log := s.log.WithFields(logrus.Fields{
		"conn": uuid.NewString(),
		"peer": conn.RemoteAddr().String(),
	})
	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()
	log.Debug("connection opened")

	dec := protocol.NewDecoder(conn)
	enc := protocol.NewEncoder(conn)

	for {
		req, err := dec.DecodeRequest()
		if err != nil {
			switch {
			case err == io.EOF:
				log.Debug("connection closed by peer")
			case errors.Is(err, protocol.ErrMalformed):
				s.metrics.RecordProtocolError()
				log.WithError(err).Warn("closing connection on undecodable request")
			default:
				log.WithError(err).Debug("connection read failed")
			}
			return
		}

		resp := s.execute(log, req)

		if err := enc.EncodeResponse(resp); err != nil {
			log.WithError(err).Warn("failed to write response")
			return
		}
	}
}

// execute runs req in one critical section, then forwards a committed write
// to the follower before the response is written.
func (s *Server) execute(log logrus.FieldLogger, req protocol.Request) protocol.Response {
	start := time.Now()

	var resp protocol.Response
	var forward *protocol.Request
	_ = s.store.Do(func(st *engine.Store) error {
		resp, forward = Dispatch(s.cfg.Role, st, req)
		s.metrics.SetStoreSize(st.Len(), st.Size())
		return nil
	})

	if forward != nil && s.replicator != nil {
		if err := s.replicator.Forward(context.Background(), *forward); err != nil {
			log.WithError(err).Debug("replication attempt failed")
		}
	}

	s.metrics.RecordRequest(req.Kind.String(), outcome(resp), time.Since(start))
	if resp.Status == protocol.StatusErr {
		log.Debugf("%s failed: %s", req, resp.Message)
	}
	return resp
}

func outcome(resp protocol.Response) string {
	if resp.Status != protocol.StatusErr {
		return metrics.OutcomeOK
	}
	if resp.Message == ErrNotLeader.Error() {
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeError
}
