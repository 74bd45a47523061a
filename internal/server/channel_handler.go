package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"cargohold/internal/channel"
	"cargohold/internal/constants"
)

// bearerToken extracts the credential from the Authorization header, falling
// back to the "token" query parameter for clients that cannot set headers on
// a WebSocket upgrade.
func bearerToken(r *http.Request) string {
	header := r.Header.Get(constants.HeaderAuthorization)
	if strings.HasPrefix(header, constants.AuthBearerPrefix) {
		return strings.TrimPrefix(header, constants.AuthBearerPrefix)
	}
	return r.URL.Query().Get(constants.AuthQueryParamToken)
}

// handleChannel handles GET /api/channel - the privileged admin connection.
//
// The upgrade happens before the handshake so that a rejection can be
// delivered as a close frame. The remote party only ever sees the generic
// close code; the specific rejection reason lives in the event log.
func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	if !s.app.ChannelEnabled() {
		WriteError(w, http.StatusServiceUnavailable, "Admin channel not configured", constants.ErrCodeInternal)
		return
	}

	token := bearerToken(r)
	if token == "" {
		WriteError(w, http.StatusUnauthorized, "Missing credential", constants.ErrCodePolicyViolation)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("Channel upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}
	conn.SetReadLimit(s.app.Config.AdminChannel.MaxMessageBytes)

	accept, rejection := s.app.Gate.Handshake(r.Context(), token, r.RemoteAddr)
	if rejection != nil {
		code, reason := rejection.WireClose()
		conn.Close(websocket.StatusCode(code), reason)
		return
	}

	sup := channel.NewSupervisor(accept, r.RemoteAddr, newWSTransport(conn),
		s.app.Authority, s.app.Audit, s.app.Registry, s.logger, s.app.supervisorConfig())

	// Run blocks until the session is closed; the handler must stay alive
	// for the lifetime of the connection.
	sup.Run(context.Background())
}

// wsTransport adapts a websocket connection to the channel transport.
type wsTransport struct {
	conn *websocket.Conn
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	return data, err
}

func (t *wsTransport) WriteMessage(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Close(code channel.CloseCode, reason string) error {
	return t.conn.Close(websocket.StatusCode(code), reason)
}
