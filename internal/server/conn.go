package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"

	"github.com/rs/xid"

	"github.com/loganszeto/sharedstate/internal/protocol"
)

func (s *Server) handleConn(ctx context.Context, c net.Conn) {
	defer s.wg.Done()
	defer s.untrack(c)
	defer c.Close()

	logger := s.logger.With("conn", xid.New().String(), "remote", c.RemoteAddr().String())
	s.stats.ConnOpened()
	defer s.stats.ConnClosed()
	logger.Debug("connection opened")

	reader := bufio.NewReader(c)
	writer := bufio.NewWriter(c)
	for {
		line, err := protocol.ReadLine(reader, s.maxLine)
		var resp protocol.Response
		switch {
		case err == nil:
			resp = s.Do(ctx, line)
		case errors.Is(err, protocol.ErrLineTooLong):
			s.stats.RecordCommand("INVALID", protocol.StatusFailed.String())
			resp = protocol.Fail(errMsgInvalidRequest + err.Error())
		default:
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug("read failed", "error", err)
			}
			logger.Debug("connection closed")
			return
		}
		if err := protocol.WriteMessage(writer, resp); err != nil {
			logger.Debug("write failed", "error", err)
			return
		}
	}
}
