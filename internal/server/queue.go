package server

import (
	"strings"

	"github.com/loganszeto/sharedstate/internal/protocol"
	"github.com/loganszeto/sharedstate/internal/store"
)

// QueueHandler executes queue commands against a set of named queues.
type QueueHandler struct {
	base
	st store.QueueStore
}

func NewQueueHandler(st store.QueueStore, opts HandlerOptions) *QueueHandler {
	return &QueueHandler{base: newBase("queue", opts), st: st}
}

func (h *QueueHandler) Handle(line []byte) protocol.Response {
	req, err := protocol.DecodeQueueRequest(line)
	if err != nil {
		return h.finish("INVALID", protocol.Fail(errMsgInvalidRequest+err.Error()))
	}
	return h.finish(req.Command.String(), h.dispatch(req))
}

func (h *QueueHandler) dispatch(req protocol.QueueRequest) protocol.Response {
	if req.Command.NeedsName() && strings.TrimSpace(req.Queue) == "" {
		return protocol.Fail(ErrMsgEmptyQueue)
	}
	if !req.Command.Valid() {
		return protocol.Fail(ErrMsgInvalidCommand)
	}
	if !h.authorized(req.Token) {
		return protocol.Fail(ErrMsgInvalidToken)
	}
	switch req.Command {
	case protocol.QueuePing:
		return h.ping()
	case protocol.QueueEnqueue:
		h.st.Enqueue(req.Queue, req.Data)
		return protocol.Bool(true)
	case protocol.QueueDequeue:
		item, ok := h.st.Dequeue(req.Queue)
		h.stats.RecordLookup(ok)
		return protocol.OK(item)
	case protocol.QueueSize:
		return protocol.OK(protocol.MustBlob(h.st.Size(req.Queue)))
	case protocol.QueueDelete:
		return protocol.Bool(h.st.Delete(req.Queue))
	case protocol.QueueStats:
		report := h.st.Stats()
		report.Counters = h.stats.Snapshot()
		data, err := protocol.NewBlob(report)
		if err != nil {
			return protocol.Fail(err.Error())
		}
		return protocol.OK(data)
	default:
		return protocol.Fail(ErrMsgInvalidCommand)
	}
}
