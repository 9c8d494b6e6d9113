// Package protocol defines the request/response messages exchanged between
// clients, servers and replicas, and their encoding on a byte stream.
//
// Messages are JSON values written back-to-back. Each variant is externally
// tagged by its name:
//
//	{"Get":{"key":"a"}}
//	{"Set":{"key":"a","value":"1"}}
//	{"Remove":{"key":"a"}}
//	"Compact"
//	{"Scan":{"start":"a","end":"c"}}
//	{"ReplicateSet":{"key":"a","value":"1"}}
//	{"ReplicateRm":{"key":"a"}}
//
//	{"Ok":"1"}  {"Ok":null}  {"Err":"message"}  {"ScanResult":[["a","1"],["b","2"]]}
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned for input that does not decode to a known message.
var ErrMalformed = errors.New("malformed message")

type Kind int

const (
	KindGet Kind = iota
	KindSet
	KindRemove
	KindCompact
	KindScan
	KindReplicateSet
	KindReplicateRm
)

var kindNames = [...]string{
	KindGet:          "Get",
	KindSet:          "Set",
	KindRemove:       "Remove",
	KindCompact:      "Compact",
	KindScan:         "Scan",
	KindReplicateSet: "ReplicateSet",
	KindReplicateRm:  "ReplicateRm",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func kindByName(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	return 0, false
}

// Request is a single client or replication request. Only the fields used by
// Kind are meaningful.
type Request struct {
	Kind  Kind
	Key   string
	Value string
	Start string
	End   string
}

func GetRequest(key string) Request {
	return Request{Kind: KindGet, Key: key}
}

func SetRequest(key, value string) Request {
	return Request{Kind: KindSet, Key: key, Value: value}
}

func RemoveRequest(key string) Request {
	return Request{Kind: KindRemove, Key: key}
}

func CompactRequest() Request {
	return Request{Kind: KindCompact}
}

func ScanRequest(start, end string) Request {
	return Request{Kind: KindScan, Start: start, End: end}
}

func ReplicateSetRequest(key, value string) Request {
	return Request{Kind: KindReplicateSet, Key: key, Value: value}
}

func ReplicateRmRequest(key string) Request {
	return Request{Kind: KindReplicateRm, Key: key}
}

// IsWrite reports whether the request mutates storage when sent by a client.
func (r Request) IsWrite() bool {
	switch r.Kind {
	case KindSet, KindRemove, KindCompact:
		return true
	}
	return false
}

// Replicated translates a client write into the request a leader forwards to
// its follower. ok is false for requests that are never replicated.
func (r Request) Replicated() (req Request, ok bool) {
	switch r.Kind {
	case KindSet:
		return ReplicateSetRequest(r.Key, r.Value), true
	case KindRemove:
		return ReplicateRmRequest(r.Key), true
	}
	return Request{}, false
}

func (r Request) String() string {
	switch r.Kind {
	case KindSet, KindReplicateSet:
		return fmt.Sprintf("%s(%q, %d bytes)", r.Kind, r.Key, len(r.Value))
	case KindScan:
		return fmt.Sprintf("%s(%q, %q)", r.Kind, r.Start, r.End)
	case KindCompact:
		return r.Kind.String()
	}
	return fmt.Sprintf("%s(%q)", r.Kind, r.Key)
}

type keyBody struct {
	Key *string `json:"key"`
}

type keyValueBody struct {
	Key   *string `json:"key"`
	Value *string `json:"value"`
}

type rangeBody struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

func (r Request) MarshalJSON() ([]byte, error) {
	var body any
	switch r.Kind {
	case KindCompact:
		return json.Marshal(r.Kind.String())
	case KindGet, KindRemove, KindReplicateRm:
		body = keyBody{Key: &r.Key}
	case KindSet, KindReplicateSet:
		body = keyValueBody{Key: &r.Key, Value: &r.Value}
	case KindScan:
		body = rangeBody{Start: &r.Start, End: &r.End}
	default:
		return nil, fmt.Errorf("marshal request: unknown kind %d", int(r.Kind))
	}
	return json.Marshal(map[string]any{r.Kind.String(): body})
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var unit string
	if err := json.Unmarshal(data, &unit); err == nil {
		if unit == KindCompact.String() {
			*r = CompactRequest()
			return nil
		}
		return fmt.Errorf("%w: unknown request %q", ErrMalformed, unit)
	}

	tag, raw, err := singleTag(data)
	if err != nil {
		return err
	}
	kind, ok := kindByName(tag)
	if !ok || kind == KindCompact {
		return fmt.Errorf("%w: unknown request %q", ErrMalformed, tag)
	}

	switch kind {
	case KindGet, KindRemove, KindReplicateRm:
		var b keyBody
		if err := json.Unmarshal(raw, &b); err != nil || b.Key == nil {
			return fmt.Errorf("%w: %s requires key", ErrMalformed, tag)
		}
		*r = Request{Kind: kind, Key: *b.Key}
	case KindSet, KindReplicateSet:
		var b keyValueBody
		if err := json.Unmarshal(raw, &b); err != nil || b.Key == nil || b.Value == nil {
			return fmt.Errorf("%w: %s requires key and value", ErrMalformed, tag)
		}
		*r = Request{Kind: kind, Key: *b.Key, Value: *b.Value}
	case KindScan:
		var b rangeBody
		if err := json.Unmarshal(raw, &b); err != nil || b.Start == nil || b.End == nil {
			return fmt.Errorf("%w: %s requires start and end", ErrMalformed, tag)
		}
		*r = ScanRequest(*b.Start, *b.End)
	}
	return nil
}

// singleTag splits an externally tagged value {"Tag": body}.
func singleTag(data []byte) (string, json.RawMessage, error) {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(tagged) != 1 {
		return "", nil, fmt.Errorf("%w: expected exactly one variant tag, got %d", ErrMalformed, len(tagged))
	}
	for tag, raw := range tagged {
		return tag, raw, nil
	}
	return "", nil, ErrMalformed
}
