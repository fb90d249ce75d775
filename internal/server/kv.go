package server

import (
	"strings"

	"github.com/loganszeto/sharedstate/internal/protocol"
	"github.com/loganszeto/sharedstate/internal/store"
)

// KVHandler executes KV store commands against a key-value store.
type KVHandler struct {
	base
	st store.KVStore
}

func NewKVHandler(st store.KVStore, opts HandlerOptions) *KVHandler {
	return &KVHandler{base: newBase("kv", opts), st: st}
}

func (h *KVHandler) Handle(line []byte) protocol.Response {
	req, err := protocol.DecodeKVRequest(line)
	if err != nil {
		return h.finish("INVALID", protocol.Fail(errMsgInvalidRequest+err.Error()))
	}
	return h.finish(req.Command.String(), h.dispatch(req))
}

func (h *KVHandler) dispatch(req protocol.KVRequest) protocol.Response {
	if req.Command.NeedsKey() && strings.TrimSpace(req.Key) == "" {
		return protocol.Fail(ErrMsgEmptyKey)
	}
	if !req.Command.Valid() {
		return protocol.Fail(ErrMsgInvalidCommand)
	}
	if !h.authorized(req.Token) {
		return protocol.Fail(ErrMsgInvalidToken)
	}
	switch req.Command {
	case protocol.KVPing:
		return h.ping()
	case protocol.KVPut:
		h.st.Put(req.Domain, req.Key, req.Data, req.TTL)
		return protocol.Bool(true)
	case protocol.KVGet:
		v, ok := h.st.Get(req.Domain, req.Key)
		h.stats.RecordLookup(ok)
		return protocol.OK(v)
	case protocol.KVHasKey:
		ok := h.st.Has(req.Domain, req.Key)
		h.stats.RecordLookup(ok)
		return protocol.Bool(ok)
	case protocol.KVDel:
		return protocol.Bool(h.st.Del(req.Domain, req.Key))
	case protocol.KVDelAll:
		h.st.DelAll(req.Domain)
		return protocol.Bool(true)
	default:
		return protocol.Fail(ErrMsgInvalidCommand)
	}
}
