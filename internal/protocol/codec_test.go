package protocol

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"replkv/internal/model"
)

func TestRequestWireFormat(t *testing.T) {
	tests := []struct {
		req  Request
		wire string
	}{
		{GetRequest("a"), `{"Get":{"key":"a"}}`},
		{SetRequest("a", "1"), `{"Set":{"key":"a","value":"1"}}`},
		{RemoveRequest("a"), `{"Remove":{"key":"a"}}`},
		{CompactRequest(), `"Compact"`},
		{ScanRequest("a", "c"), `{"Scan":{"start":"a","end":"c"}}`},
		{ReplicateSetRequest("k", ""), `{"ReplicateSet":{"key":"k","value":""}}`},
		{ReplicateRmRequest("k"), `{"ReplicateRm":{"key":"k"}}`},
	}

	for _, tc := range tests {
		var buf bytes.Buffer
		if err := NewEncoder(&buf).EncodeRequest(tc.req); err != nil {
			t.Fatalf("encode %v: %v", tc.req, err)
		}
		if got := strings.TrimSpace(buf.String()); got != tc.wire {
			t.Fatalf("encode %v: got %s want %s", tc.req, got, tc.wire)
		}
	}
}

func TestResponseWireFormat(t *testing.T) {
	tests := []struct {
		resp Response
		wire string
	}{
		{OK(), `{"Ok":null}`},
		{OKValue("1"), `{"Ok":"1"}`},
		{Err("key not found"), `{"Err":"key not found"}`},
		{ScanResult(nil), `{"ScanResult":[]}`},
		{ScanResult([]model.KeyValue{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}), `{"ScanResult":[["a","1"],["b","2"]]}`},
	}

	for _, tc := range tests {
		var buf bytes.Buffer
		if err := NewEncoder(&buf).EncodeResponse(tc.resp); err != nil {
			t.Fatalf("encode %v: %v", tc.resp, err)
		}
		if got := strings.TrimSpace(buf.String()); got != tc.wire {
			t.Fatalf("encode: got %s want %s", got, tc.wire)
		}
	}
}

// Messages are self-delimiting, so several can share a stream without framing.
func TestDecodeBackToBackStream(t *testing.T) {
	stream := `{"Set":{"key":"a","value":"1"}}"Compact"{"Scan":{"start":"a","end":"c"}}` +
		"\n" + `{"Get":{"key":"a"}}`

	dec := NewDecoder(strings.NewReader(stream))
	want := []Request{SetRequest("a", "1"), CompactRequest(), ScanRequest("a", "c"), GetRequest("a")}
	for i, w := range want {
		got, err := dec.DecodeRequest()
		if err != nil {
			t.Fatalf("decode #%d: %v", i, err)
		}
		if got != w {
			t.Fatalf("decode #%d: got %v want %v", i, got, w)
		}
	}
	if _, err := dec.DecodeRequest(); err != io.EOF {
		t.Fatalf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestDecodeResponses(t *testing.T) {
	stream := `{"Ok":"v"}{"Ok":null}{"Err":"boom"}{"ScanResult":[["a","1"]]}`
	dec := NewDecoder(strings.NewReader(stream))

	resp, err := dec.DecodeResponse()
	if err != nil || resp.Status != StatusOK || resp.Value == nil || *resp.Value != "v" {
		t.Fatalf("Ok(v): got %+v, %v", resp, err)
	}
	resp, err = dec.DecodeResponse()
	if err != nil || resp.Status != StatusOK || resp.Value != nil {
		t.Fatalf("Ok(null): got %+v, %v", resp, err)
	}
	resp, err = dec.DecodeResponse()
	if err != nil || resp.Status != StatusErr || resp.Message != "boom" {
		t.Fatalf("Err: got %+v, %v", resp, err)
	}
	resp, err = dec.DecodeResponse()
	if err != nil || !reflect.DeepEqual(resp.Pairs, []model.KeyValue{{Key: "a", Value: "1"}}) {
		t.Fatalf("ScanResult: got %+v, %v", resp, err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	inputs := []string{
		`{"Get":{"key":"a"`,
		`{"Nope":{"key":"a"}}`,
		`"Flush"`,
		`{"Set":{"key":"a"}}`,
		`{"Get":{"key":"a"},"Remove":{"key":"b"}}`,
		`[1,2,3]`,
		`not json`,
	}
	for _, in := range inputs {
		_, err := NewDecoder(strings.NewReader(in)).DecodeRequest()
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("decode %q: got %v want ErrMalformed", in, err)
		}
	}
}

func TestReplicated(t *testing.T) {
	if got, ok := SetRequest("k", "v").Replicated(); !ok || got != ReplicateSetRequest("k", "v") {
		t.Fatalf("Set: got %v,%v", got, ok)
	}
	if got, ok := RemoveRequest("k").Replicated(); !ok || got != ReplicateRmRequest("k") {
		t.Fatalf("Remove: got %v,%v", got, ok)
	}
	for _, req := range []Request{GetRequest("k"), CompactRequest(), ScanRequest("a", "b"), ReplicateSetRequest("k", "v")} {
		if _, ok := req.Replicated(); ok {
			t.Fatalf("%v should not be replicated", req)
		}
	}
}
