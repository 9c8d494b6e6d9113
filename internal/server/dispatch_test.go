package server

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"replkv/internal/engine"
	"replkv/internal/protocol"
)

func newStore(t *testing.T) *engine.Store {
	t.Helper()
	logger, _ := test.NewNullLogger()
	st, err := engine.Open(filepath.Join(t.TempDir(), "kv.db"), engine.WithLogger(logger))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestDispatchRoleGating(t *testing.T) {
	tests := []struct {
		name        string
		role        Role
		req         protocol.Request
		wantStatus  protocol.Status
		wantMessage string
		wantForward bool
		wantValue   string
		wantPresent bool
	}{
		{"leader set", Leader, protocol.SetRequest("k", "new"), protocol.StatusOK, "", true, "new", true},
		{"leader remove", Leader, protocol.RemoveRequest("k"), protocol.StatusOK, "", true, "", false},
		{"leader remove missing", Leader, protocol.RemoveRequest("nope"), protocol.StatusErr, "key not found", false, "seed", true},
		{"leader compact", Leader, protocol.CompactRequest(), protocol.StatusOK, "", false, "seed", true},
		{"leader replicate set", Leader, protocol.ReplicateSetRequest("k", "r"), protocol.StatusOK, "", false, "r", true},
		{"follower set", Follower, protocol.SetRequest("k", "new"), protocol.StatusErr, ErrNotLeader.Error(), false, "seed", true},
		{"follower remove", Follower, protocol.RemoveRequest("k"), protocol.StatusErr, ErrNotLeader.Error(), false, "seed", true},
		{"follower compact", Follower, protocol.CompactRequest(), protocol.StatusErr, ErrNotLeader.Error(), false, "seed", true},
		{"follower replicate set", Follower, protocol.ReplicateSetRequest("k", "r"), protocol.StatusOK, "", false, "r", true},
		{"follower replicate rm", Follower, protocol.ReplicateRmRequest("k"), protocol.StatusOK, "", false, "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := newStore(t)
			if err := st.Set("k", "seed"); err != nil {
				t.Fatalf("seed: %v", err)
			}

			resp, forward := Dispatch(tc.role, st, tc.req)
			if resp.Status != tc.wantStatus || resp.Message != tc.wantMessage {
				t.Fatalf("response: got %s(%q) want %s(%q)", resp.Status, resp.Message, tc.wantStatus, tc.wantMessage)
			}
			if (forward != nil) != tc.wantForward {
				t.Fatalf("forward: got %v want %v", forward, tc.wantForward)
			}
			if forward != nil && *forward != tc.req {
				t.Fatalf("forwarded %v want %v", *forward, tc.req)
			}

			if tc.req.Key == "k" || tc.req.Kind == protocol.KindCompact || tc.req.Key == "nope" {
				value, ok := st.Get("k")
				if ok != tc.wantPresent || value != tc.wantValue {
					t.Fatalf("store after %s: got %q,%v want %q,%v", tc.name, value, ok, tc.wantValue, tc.wantPresent)
				}
			}
		})
	}
}

func TestDispatchReads(t *testing.T) {
	for _, role := range []Role{Leader, Follower} {
		st := newStore(t)
		for _, k := range []string{"a", "b", "c"} {
			if err := st.Set(k, k+"-v"); err != nil {
				t.Fatalf("seed %s: %v", k, err)
			}
		}

		resp, forward := Dispatch(role, st, protocol.GetRequest("b"))
		if forward != nil || resp.Status != protocol.StatusOK || resp.Value == nil || *resp.Value != "b-v" {
			t.Fatalf("%s get hit: got %+v", role, resp)
		}
		resp, _ = Dispatch(role, st, protocol.GetRequest("zz"))
		if resp.Status != protocol.StatusOK || resp.Value != nil {
			t.Fatalf("%s get miss: got %+v", role, resp)
		}
		resp, _ = Dispatch(role, st, protocol.ScanRequest("a", "c"))
		if resp.Status != protocol.StatusScanResult || len(resp.Pairs) != 2 || resp.Pairs[1].Key != "b" {
			t.Fatalf("%s scan: got %+v", role, resp)
		}
	}
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{"leader": Leader, "Follower": Follower, " LEADER ": Leader} {
		got, err := ParseRole(in)
		if err != nil || got != want {
			t.Fatalf("ParseRole(%q): got %v,%v want %v", in, got, err, want)
		}
	}
	if _, err := ParseRole("candidate"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}
