package server

import (
	"fmt"
	"strings"
)

// Role is fixed at process start. Only a Leader accepts client writes and
// forwards them to a follower.
type Role int

const (
	Leader Role = iota
	Follower
)

func (r Role) String() string {
	switch r {
	case Leader:
		return "leader"
	case Follower:
		return "follower"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "leader":
		return Leader, nil
	case "follower":
		return Follower, nil
	}
	return Leader, fmt.Errorf("unknown role %q (want leader or follower)", s)
}

// Set and Type let a *Role be bound directly as a command-line flag.
func (r *Role) Set(s string) error {
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r *Role) Type() string {
	return "role"
}

// UnmarshalText lets a Role be read from config files.
func (r *Role) UnmarshalText(text []byte) error {
	return r.Set(string(text))
}
