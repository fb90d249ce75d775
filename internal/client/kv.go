package client

import (
	"context"
	"time"

	"github.com/loganszeto/sharedstate/internal/protocol"
)

// KV is a client of the KV store service.
type KV struct {
	conn  *conn
	token string
}

// NewKV connects to the KV server at addr.
func NewKV(ctx context.Context, addr string, opts ...Option) (*KV, error) {
	o := buildOptions(opts)
	c := newConn(addr, o, "kv")
	if err := c.dial(ctx); err != nil {
		return nil, err
	}
	return &KV{conn: c, token: o.token}, nil
}

func (k *KV) Close() error {
	return k.conn.close()
}

// Send issues a raw request. The token is filled in when the request has none.
func (k *KV) Send(ctx context.Context, req protocol.KVRequest) (protocol.Response, error) {
	if req.Token == "" {
		req.Token = k.token
	}
	return k.conn.send(ctx, req)
}

func (k *KV) do(ctx context.Context, req protocol.KVRequest) (protocol.Response, error) {
	resp, err := k.Send(ctx, req)
	if err != nil {
		return resp, err
	}
	return resp, check(req.Command.String(), resp)
}

// Ping returns the server clock.
func (k *KV) Ping(ctx context.Context) (time.Time, error) {
	resp, err := k.Send(ctx, protocol.KVRequest{Command: protocol.KVPing})
	if err != nil {
		return time.Time{}, err
	}
	return replyTime("PING", resp)
}

// Put stores value under domain/key. The ttl is sent in whole seconds,
// rounded up; a ttl under one second stores a value that never expires.
func (k *KV) Put(ctx context.Context, domain, key string, value any, ttl time.Duration) error {
	data, err := protocol.NewBlob(value)
	if err != nil {
		return err
	}
	_, err = k.do(ctx, protocol.KVRequest{
		Command: protocol.KVPut,
		Key:     key,
		TTL:     ttlSeconds(ttl),
		Data:    data,
		Domain:  domain,
	})
	return err
}

// Get returns the value under domain/key and whether it was present.
func (k *KV) Get(ctx context.Context, domain, key string) (protocol.Blob, bool, error) {
	resp, err := k.do(ctx, protocol.KVRequest{Command: protocol.KVGet, Key: key, Domain: domain})
	if err != nil {
		return nil, false, err
	}
	return resp.Data, !resp.Data.IsNull(), nil
}

func (k *KV) Has(ctx context.Context, domain, key string) (bool, error) {
	resp, err := k.Send(ctx, protocol.KVRequest{Command: protocol.KVHasKey, Key: key, Domain: domain})
	if err != nil {
		return false, err
	}
	return replyBool("HAS_KEY", resp)
}

// Del removes domain/key and reports whether it existed.
func (k *KV) Del(ctx context.Context, domain, key string) (bool, error) {
	resp, err := k.Send(ctx, protocol.KVRequest{Command: protocol.KVDel, Key: key, Domain: domain})
	if err != nil {
		return false, err
	}
	return replyBool("DEL", resp)
}

func (k *KV) DelAll(ctx context.Context, domain string) error {
	_, err := k.do(ctx, protocol.KVRequest{Command: protocol.KVDelAll, Domain: domain})
	return err
}

func ttlSeconds(ttl time.Duration) int64 {
	if ttl < time.Second {
		return 0
	}
	secs := int64(ttl / time.Second)
	if ttl%time.Second != 0 {
		secs++
	}
	return secs
}
