package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/arijanluiken/tradescript/internal/engine"
)

// wsRequest is one execution request sent over the websocket. Ref is echoed
// back so clients can match replies to requests.
type wsRequest struct {
	Ref string `json:"ref,omitempty"`
	engine.Request
}

type wsResponse struct {
	Ref string `json:"ref,omitempty"`
	*engine.Response
}

func (a *APIActor) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := a.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	a.logger.Info().Str("remote", r.RemoteAddr).Msg("WebSocket connection established")

	for {
		messageType, p, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.logger.Debug().Err(err).Msg("WebSocket read error")
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		reply := a.handleWebSocketMessage(r, p)
		if err := conn.WriteJSON(reply); err != nil {
			a.logger.Debug().Err(err).Msg("WebSocket write error")
			break
		}
	}

	a.logger.Info().Str("remote", r.RemoteAddr).Msg("WebSocket connection closed")
}

func (a *APIActor) handleWebSocketMessage(r *http.Request, p []byte) wsResponse {
	var req wsRequest
	if err := json.Unmarshal(p, &req); err != nil {
		return wsResponse{Response: &engine.Response{
			Status:  engine.StatusError,
			Message: "invalid request: " + err.Error(),
			Errors:  []engine.Diagnostic{{Kind: engine.KindRequest, Message: err.Error()}},
		}}
	}

	resp, err := a.executor.Execute(r.Context(), &req.Request)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to dispatch execution")
		resp = &engine.Response{
			Status:  engine.StatusError,
			Message: err.Error(),
			Errors:  []engine.Diagnostic{{Kind: engine.KindInternal, Message: err.Error()}},
		}
	}
	return wsResponse{Ref: req.Ref, Response: resp}
}
