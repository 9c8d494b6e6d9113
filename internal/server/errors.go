package server

import "errors"

var (
	// ErrNotLeader is surfaced to clients that send writes to a follower.
	ErrNotLeader = errors.New("write rejected: not leader")

	// ErrLeaderAddrRequired is returned when a follower is configured without its leader.
	ErrLeaderAddrRequired = errors.New("a follower must know the leader's address")

	ErrServerClosed = errors.New("server closed")
)
