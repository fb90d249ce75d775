package server

import (
	"pkt.systems/pslog"

	"github.com/loganszeto/sharedstate/internal/loggingutil"
	"github.com/loganszeto/sharedstate/internal/protocol"
	"github.com/loganszeto/sharedstate/internal/stats"
	"github.com/loganszeto/sharedstate/internal/util"
)

// Error messages returned by the handlers.
const (
	ErrMsgInvalidCommand = "Invalid Command"
	ErrMsgEmptyKey       = "Empty KEY"
	ErrMsgEmptyQueue     = "Empty Queue name"
	ErrMsgInvalidToken   = "Invalid token"
	errMsgInvalidRequest = "Invalid request: "
)

type HandlerOptions struct {
	Clock util.Clock
	Stats *stats.Stats
	// Token, when set, must match the token position of every request.
	Token  string
	Logger pslog.Logger
}

type base struct {
	clock  util.Clock
	stats  *stats.Stats
	token  string
	logger pslog.Logger
}

func newBase(service string, opts HandlerOptions) base {
	st := opts.Stats
	if st == nil {
		st = stats.New(service, nil)
	}
	return base{
		clock:  util.EnsureClock(opts.Clock),
		stats:  st,
		token:  opts.Token,
		logger: loggingutil.WithSubsystem(opts.Logger, "server", service),
	}
}

func (b base) authorized(token string) bool {
	return b.token == "" || token == b.token
}

func (b base) ping() protocol.Response {
	return protocol.OK(protocol.MustBlob(b.clock.Now().Unix()))
}

func (b base) finish(command string, resp protocol.Response) protocol.Response {
	b.stats.RecordCommand(command, resp.Status.String())
	if !resp.Success() {
		b.logger.Debug("request rejected", "command", command, "error", resp.Error)
	}
	return resp
}
