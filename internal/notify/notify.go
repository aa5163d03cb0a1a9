package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/soundclash/soundclash-server/internal/obslog"
	"github.com/soundclash/soundclash-server/pkg/clashdto"
)

// Notifier distributes battle events to spectators. Delivery is best-effort:
// the engine's stored state is the source of truth and a publish failure
// never rolls a mutation back.
type Notifier interface {
	Publish(ctx context.Context, event clashdto.Event) error
}

// EventPublisher is the transport seam; gatewayfast.Egress satisfies it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, env clashdto.Envelope) error
}

// GatewayNotifier forwards events to the broadcast gateway.
type GatewayNotifier struct {
	pub EventPublisher
}

func NewGatewayNotifier(pub EventPublisher) *GatewayNotifier {
	return &GatewayNotifier{pub: pub}
}

func (n *GatewayNotifier) Publish(ctx context.Context, event clashdto.Event) error {
	if n == nil || n.pub == nil {
		return nil
	}
	if err := n.pub.PublishEvent(ctx, clashdto.Wrap(event)); err != nil {
		obslog.L().Warn("notify_publish_error", zap.String("event", event.EventName()), zap.Error(err))
		return err
	}
	return nil
}

// LogNotifier is used when no gateway is configured; events land in the log
// only.
type LogNotifier struct{}

func (LogNotifier) Publish(ctx context.Context, event clashdto.Event) error {
	obslog.L().Info("notify_event", zap.String("event", event.EventName()), zap.Any("data", event))
	return nil
}

// Nop discards everything. Test helper.
type Nop struct{}

func (Nop) Publish(ctx context.Context, event clashdto.Event) error { return nil }
