package protocol

import (
	"encoding/json"
	"fmt"

	"replkv/internal/model"
)

type Status int

const (
	StatusOK Status = iota
	StatusErr
	StatusScanResult
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "Ok"
	case StatusErr:
		return "Err"
	case StatusScanResult:
		return "ScanResult"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Response answers exactly one Request.
type Response struct {
	Status Status
	// Value is set on an Ok that carries a value (a Get hit).
	Value   *string
	Message string
	Pairs   []model.KeyValue
}

// OK is a successful response without a value.
func OK() Response {
	return Response{Status: StatusOK}
}

func OKValue(value string) Response {
	return Response{Status: StatusOK, Value: &value}
}

func Err(message string) Response {
	return Response{Status: StatusErr, Message: message}
}

func ScanResult(pairs []model.KeyValue) Response {
	return Response{Status: StatusScanResult, Pairs: pairs}
}

func (r Response) MarshalJSON() ([]byte, error) {
	switch r.Status {
	case StatusOK:
		return json.Marshal(map[string]*string{"Ok": r.Value})
	case StatusErr:
		return json.Marshal(map[string]string{"Err": r.Message})
	case StatusScanResult:
		pairs := make([][2]string, 0, len(r.Pairs))
		for _, kv := range r.Pairs {
			pairs = append(pairs, [2]string{kv.Key, kv.Value})
		}
		return json.Marshal(map[string][][2]string{"ScanResult": pairs})
	}
	return nil, fmt.Errorf("marshal response: unknown status %d", int(r.Status))
}

func (r *Response) UnmarshalJSON(data []byte) error {
	tag, raw, err := singleTag(data)
	if err != nil {
		return err
	}

	switch tag {
	case "Ok":
		var value *string
		if err := json.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("%w: Ok: %v", ErrMalformed, err)
		}
		*r = Response{Status: StatusOK, Value: value}
	case "Err":
		var msg string
		if err := json.Unmarshal(raw, &msg); err != nil {
			return fmt.Errorf("%w: Err: %v", ErrMalformed, err)
		}
		*r = Err(msg)
	case "ScanResult":
		var pairs [][]string
		if err := json.Unmarshal(raw, &pairs); err != nil {
			return fmt.Errorf("%w: ScanResult: %v", ErrMalformed, err)
		}
		out := make([]model.KeyValue, 0, len(pairs))
		for _, p := range pairs {
			if len(p) != 2 {
				return fmt.Errorf("%w: ScanResult pair has %d elements", ErrMalformed, len(p))
			}
			out = append(out, model.KeyValue{Key: p[0], Value: p[1]})
		}
		*r = ScanResult(out)
	default:
		return fmt.Errorf("%w: unknown response %q", ErrMalformed, tag)
	}
	return nil
}
