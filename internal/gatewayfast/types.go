package gatewayfast

import (
	"context"

	"github.com/soundclash/soundclash-server/pkg/clashdto"
)

// ActionCallback receives one inbound action message from the gateway.
type ActionCallback func(msg *clashdto.ActionMessage)

// StateCallback observes WebSocket connection state changes.
type StateCallback func(state WebSocketState)

type WebSocketState string

const (
	WSStateDisconnected WebSocketState = "disconnected"
	WSStateConnecting   WebSocketState = "connecting"
	WSStateConnected    WebSocketState = "connected"
	WSStateReconnecting WebSocketState = "reconnecting"
	WSStateFailed       WebSocketState = "failed"
)

// GatewayStatus is the /status response of the broadcast gateway.
type GatewayStatus struct {
	Status           string `json:"status"`
	ConnectedClients int    `json:"connectedClients"`
	Uptime           int64  `json:"uptime"`
}

// WSClient is the action-ingest connection contract.
type WSClient interface {
	Connect(ctx context.Context) error
	OnAction(cb ActionCallback)
	OnStateChange(cb StateCallback)
	Close(ctx context.Context) error
}
