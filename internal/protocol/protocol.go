package protocol

import (
	"bytes"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrLineTooLong = errors.New("line too long")
)

type Status int

const (
	StatusSuccess    Status = 1
	StatusFailed     Status = 2
	StatusCommFailed Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusCommFailed:
		return "comm_failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Reply strings used by commands that answer with a boolean.
const (
	ReplyOK  = "OK"
	ReplyNOK = "NOK"
)

// Blob is an opaque JSON value carried in the data position of a message.
// A nil Blob encodes as null.
type Blob []byte

func NewBlob(v any) (Blob, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case Blob:
		return b, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Blob(data), nil
}

func MustBlob(v any) Blob {
	b, err := NewBlob(v)
	if err != nil {
		panic(err)
	}
	return b
}

func (b Blob) IsNull() bool {
	return len(b) == 0
}

// Decode unmarshals the blob into v.
func (b Blob) Decode(v any) error {
	if b.IsNull() {
		return json.Unmarshal([]byte("null"), v)
	}
	return json.Unmarshal(b, v)
}

// String returns the blob as a Go string when it holds a JSON string, and the
// raw JSON text otherwise.
func (b Blob) String() string {
	if b.IsNull() {
		return ""
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return s
	}
	return string(b)
}

func (b Blob) MarshalJSON() ([]byte, error) {
	if b.IsNull() {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *Blob) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*b = nil
		return nil
	}
	out := make([]byte, len(trimmed))
	copy(out, trimmed)
	*b = out
	return nil
}

// Response is shared by both services: [status, error, data].
type Response struct {
	Status Status
	Error  string
	Data   Blob
}

func OK(data Blob) Response {
	return Response{Status: StatusSuccess, Data: data}
}

func Fail(msg string) Response {
	return Response{Status: StatusFailed, Error: msg}
}

func Bool(ok bool) Response {
	if ok {
		return OK(MustBlob(ReplyOK))
	}
	return OK(MustBlob(ReplyNOK))
}

func (r Response) Success() bool {
	return r.Status == StatusSuccess
}

func (r Response) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{int(r.Status), r.Error, r.Data})
}

func (r *Response) UnmarshalJSON(data []byte) error {
	fields, err := splitArray(data)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty response", ErrMalformed)
	}
	var status int
	if err := decodeField(fields, 0, "status", &status); err != nil {
		return err
	}
	var resp Response
	resp.Status = Status(status)
	if err := decodeField(fields, 1, "error", &resp.Error); err != nil {
		return err
	}
	if len(fields) > 2 {
		resp.Data = fields[2]
	}
	*r = resp
	return nil
}

func splitArray(data []byte) ([]Blob, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: expected array", ErrMalformed)
	}
	var fields []Blob
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return fields, nil
}

// decodeField leaves dst untouched when the position is absent or null.
func decodeField(fields []Blob, pos int, name string, dst any) error {
	if pos >= len(fields) || fields[pos].IsNull() {
		return nil
	}
	if err := json.Unmarshal(fields[pos], dst); err != nil {
		return fmt.Errorf("%w: field %s: %v", ErrMalformed, name, err)
	}
	return nil
}
