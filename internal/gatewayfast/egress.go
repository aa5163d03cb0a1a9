package gatewayfast

import (
    "context"
    "errors"
    "time"

    "go.uber.org/zap"
    "nhooyr.io/websocket/wsjson"

    "github.com/soundclash/soundclash-server/pkg/clashdto"
)

// Egress abstracts outbound delivery (event broadcasts and action acks)
// over HTTP or WebSocket.
type Egress interface {
    PublishEvent(ctx context.Context, env clashdto.Envelope) error
    SendResult(ctx context.Context, res clashdto.ActionResult) error
}

type transportMode string

const (
    transportHTTP transportMode = "http"
    transportWS   transportMode = "ws"
    transportAuto transportMode = "auto"
)

// NewEgress creates an Egress based on mode. In auto mode WS is preferred
// when connected, with a single fallback to HTTP per send.
func NewEgress(mode string, c *Client, ws *WebSocket, logger *zap.Logger) Egress {
    if logger == nil { logger = zap.NewNop() }
    switch transportMode(mode) {
    case transportWS:
        return &wsEgress{ws: ws}
    case transportAuto:
        return &autoEgress{ws: &wsEgress{ws: ws}, http: &httpEgress{c: c}, logger: logger}
    default:
        return &httpEgress{c: c}
    }
}

type httpEgress struct{ c *Client }

func (h *httpEgress) PublishEvent(ctx context.Context, env clashdto.Envelope) error {
    if h == nil || h.c == nil { return errors.New("http egress not available") }
    return h.c.PublishEvent(ctx, env)
}

func (h *httpEgress) SendResult(ctx context.Context, res clashdto.ActionResult) error {
    if h == nil || h.c == nil { return errors.New("http egress not available") }
    return h.c.SendResult(ctx, res)
}

// wsEgress writes frames over the gateway WebSocket.
type wsEgress struct{ ws *WebSocket }

func (w *wsEgress) PublishEvent(ctx context.Context, env clashdto.Envelope) error {
    return w.writeJSON(ctx, env)
}

func (w *wsEgress) SendResult(ctx context.Context, res clashdto.ActionResult) error {
    return w.writeJSON(ctx, res)
}

func (w *wsEgress) writeJSON(ctx context.Context, v any) error {
    if w == nil || w.ws == nil { return errors.New("ws egress not available") }
    if w.ws.conn == nil || w.ws.state != WSStateConnected {
        return errors.New("ws not connected")
    }
    dctx := ctx
    if _, ok := ctx.Deadline(); !ok {
        var cancel context.CancelFunc
        dctx, cancel = context.WithTimeout(ctx, 5*time.Second)
        defer cancel()
    }
    // call sites send sequentially per connection; wsjson.Write is not
    // safe across goroutines
    return wsjson.Write(dctx, w.ws.conn, v)
}

// autoEgress prefers WS, one HTTP fallback per send.
type autoEgress struct {
    ws     *wsEgress
    http   *httpEgress
    logger *zap.Logger
}

func (a *autoEgress) PublishEvent(ctx context.Context, env clashdto.Envelope) error {
    if a.wsReady() {
        if err := a.ws.PublishEvent(ctx, env); err == nil { return nil }
        a.logger.Warn("egress_fallback", zap.String("kind", "event"), zap.String("event", env.Event))
    }
    return a.http.PublishEvent(ctx, env)
}

func (a *autoEgress) SendResult(ctx context.Context, res clashdto.ActionResult) error {
    if a.wsReady() {
        if err := a.ws.SendResult(ctx, res); err == nil { return nil }
        a.logger.Warn("egress_fallback", zap.String("kind", "result"), zap.String("action", res.Action))
    }
    return a.http.SendResult(ctx, res)
}

func (a *autoEgress) wsReady() bool {
    return a.ws != nil && a.ws.ws != nil && a.ws.ws.conn != nil && a.ws.ws.state == WSStateConnected
}
