package server

import (
	"bytes"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"github.com/loganszeto/sharedstate/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// ServeWS upgrades the request and treats every text or binary frame as one
// request line. Responses go back as text frames in wire format. Gateway
// connections are tracked with the TCP ones and closed on shutdown.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	nc := conn.NetConn()
	if !s.track(nc) {
		return
	}
	defer s.untrack(nc)
	if s.maxLine > 0 {
		conn.SetReadLimit(int64(s.maxLine))
	}

	logger := s.logger.With("conn", xid.New().String(), "remote", r.RemoteAddr, "transport", "ws")
	s.stats.ConnOpened()
	defer s.stats.ConnClosed()
	logger.Debug("connection opened")
	defer logger.Debug("connection closed")

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		resp := s.Do(r.Context(), bytes.TrimSpace(payload))
		data, err := protocol.Encode(resp)
		if err != nil {
			logger.Warn("encode failed", "error", err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
