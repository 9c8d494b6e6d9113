package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Encoder writes messages back-to-back on a stream.
type Encoder struct {
	enc *json.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

func (e *Encoder) EncodeRequest(req Request) error {
	return e.enc.Encode(req)
}

func (e *Encoder) EncodeResponse(resp Response) error {
	return e.enc.Encode(resp)
}

// Decoder reads messages one at a time from a stream. It returns io.EOF
// when the stream ends cleanly between messages; any other failure wraps
// ErrMalformed or the underlying read error.
type Decoder struct {
	dec *json.Decoder
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(r)}
}

func (d *Decoder) DecodeRequest() (Request, error) {
	var req Request
	if err := d.decode(&req); err != nil {
		return Request{}, err
	}
	return req, nil
}

func (d *Decoder) DecodeResponse() (Response, error) {
	var resp Response
	if err := d.decode(&resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}

func (d *Decoder) decode(v any) error {
	err := d.dec.Decode(v)
	if err == nil || err == io.EOF || errors.Is(err, ErrMalformed) {
		return err
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || err == io.ErrUnexpectedEOF {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return err
}
