package server

import (
	"fmt"

	"replkv/internal/engine"
	"replkv/internal/protocol"
)

// Dispatch executes req against st for a server in role. It must run inside
// the store's critical section.
//
// The returned request is non-nil when a leader has committed a client Set or
// Remove that should be forwarded to the follower. Replicate requests are
// applied on either role and never forwarded again.
func Dispatch(role Role, st *engine.Store, req protocol.Request) (protocol.Response, *protocol.Request) {
	switch req.Kind {
	case protocol.KindGet:
		if value, ok := st.Get(req.Key); ok {
			return protocol.OKValue(value), nil
		}
		return protocol.OK(), nil

	case protocol.KindScan:
		return protocol.ScanResult(st.Scan(req.Start, req.End)), nil

	case protocol.KindSet, protocol.KindRemove, protocol.KindCompact:
		if role != Leader {
			return protocol.Err(ErrNotLeader.Error()), nil
		}
		if err := apply(st, req); err != nil {
			return protocol.Err(err.Error()), nil
		}
		if _, ok := req.Replicated(); ok {
			forward := req
			return protocol.OK(), &forward
		}
		return protocol.OK(), nil

	case protocol.KindReplicateSet, protocol.KindReplicateRm:
		if err := apply(st, req); err != nil {
			return protocol.Err(err.Error()), nil
		}
		return protocol.OK(), nil
	}
	return protocol.Err(fmt.Sprintf("unsupported request %s", req.Kind)), nil
}

func apply(st *engine.Store, req protocol.Request) error {
	switch req.Kind {
	case protocol.KindSet, protocol.KindReplicateSet:
		return st.Set(req.Key, req.Value)
	case protocol.KindRemove, protocol.KindReplicateRm:
		return st.Remove(req.Key)
	case protocol.KindCompact:
		return st.Compact()
	}
	return fmt.Errorf("request %s is not a write", req.Kind)
}
