package model

import "fmt"

// OpsType identifies the mutation carried by a logged Command.
type OpsType byte

const (
	SET OpsType = iota
	REMOVE
)

func (o OpsType) String() string {
	switch o {
	case SET:
		return "SET"
	case REMOVE:
		return "REMOVE"
	default:
		return fmt.Sprintf("OpsType(%d)", byte(o))
	}
}

// Command is one logged mutation. Value is empty for REMOVE.
type Command struct {
	Op    OpsType
	Key   string
	Value string
}

func SetCommand(key, value string) Command {
	return Command{Op: SET, Key: key, Value: value}
}

func RemoveCommand(key string) Command {
	return Command{Op: REMOVE, Key: key}
}

// KeyValue is a single entry returned by a range scan.
type KeyValue struct {
	Key   string
	Value string
}
