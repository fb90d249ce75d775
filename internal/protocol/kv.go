package protocol

import (
	"fmt"

	json "github.com/goccy/go-json"
)

type KVCommand int

const (
	KVPut    KVCommand = 1
	KVGet    KVCommand = 2
	KVDel    KVCommand = 3
	KVDelAll KVCommand = 4
	KVHasKey KVCommand = 5
	KVPing   KVCommand = 99
)

func (c KVCommand) Valid() bool {
	switch c {
	case KVPut, KVGet, KVDel, KVDelAll, KVHasKey, KVPing:
		return true
	}
	return false
}

// NeedsKey reports whether the command addresses a single key.
func (c KVCommand) NeedsKey() bool {
	switch c {
	case KVPut, KVGet, KVDel, KVHasKey:
		return true
	}
	return false
}

func (c KVCommand) String() string {
	switch c {
	case KVPut:
		return "PUT"
	case KVGet:
		return "GET"
	case KVDel:
		return "DEL"
	case KVDelAll:
		return "DEL_ALL"
	case KVHasKey:
		return "HAS_KEY"
	case KVPing:
		return "PING"
	default:
		return "UNKNOWN"
	}
}

// KVRequest is encoded as [command, key, ttl, data, domain, token].
type KVRequest struct {
	Command KVCommand
	Key     string
	TTL     int64
	Data    Blob
	Domain  string
	Token   string
}

func (r KVRequest) MarshalJSON() ([]byte, error) {
	fields := []any{int(r.Command), r.Key, r.TTL, r.Data, r.Domain}
	if r.Token != "" {
		fields = append(fields, r.Token)
	}
	return json.Marshal(fields)
}

func (r *KVRequest) UnmarshalJSON(data []byte) error {
	fields, err := splitArray(data)
	if err != nil {
		return err
	}
	if len(fields) == 0 || fields[0].IsNull() {
		return fmt.Errorf("%w: missing command", ErrMalformed)
	}
	var (
		req KVRequest
		cmd int
	)
	if err := decodeField(fields, 0, "command", &cmd); err != nil {
		return err
	}
	req.Command = KVCommand(cmd)
	if err := decodeField(fields, 1, "key", &req.Key); err != nil {
		return err
	}
	if err := decodeField(fields, 2, "ttl", &req.TTL); err != nil {
		return err
	}
	if len(fields) > 3 {
		req.Data = fields[3]
	}
	if err := decodeField(fields, 4, "domain", &req.Domain); err != nil {
		return err
	}
	if err := decodeField(fields, 5, "token", &req.Token); err != nil {
		return err
	}
	*r = req
	return nil
}

func DecodeKVRequest(line []byte) (KVRequest, error) {
	var req KVRequest
	if err := req.UnmarshalJSON(line); err != nil {
		return KVRequest{}, err
	}
	return req, nil
}
