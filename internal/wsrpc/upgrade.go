package wsrpc

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Accept upgrades an inbound HTTP request to a websocket and wraps it as a
// Conn, adapted from the teacher's hub.ServeWs. Unlike the game hub, the
// caller here registers handlers on the returned Conn before calling Run,
// since a worker may issue registerSlave/unregisterSlave/updateGrad over it
// the moment the connection opens.
func Accept(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("wsrpc: upgrade failed", "error", err, "remoteAddr", r.RemoteAddr)
		return nil, err
	}
	return NewConn(ws), nil
}
