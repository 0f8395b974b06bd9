package fanout

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/Heaven664/messenger-backend/pkg/proto"
)

// EventPublisher 下行事件发布器
// 每个用户身份一个逻辑广播频道：事件带目标身份发布到网关节点 Subject，
// 网关投递给当前绑定到该身份的所有连接
type EventPublisher struct {
	nc     *nats.Conn
	nodeID string
	logger *slog.Logger
}

// NewEventPublisher 创建事件发布器
func NewEventPublisher(nc *nats.Conn, nodeID string) *EventPublisher {
	return &EventPublisher{
		nc:     nc,
		nodeID: nodeID,
		logger: slog.Default(),
	}
}

// PublishToUser 发布事件到用户身份频道
func (p *EventPublisher) PublishToUser(event *proto.DownstreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event", "event", event.Payload.Name(), "error", err)
		return err
	}

	subject := BuildDownstreamSubject(p.nodeID)
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Error("Failed to publish event", "event", event.Payload.Name(), "to", event.To, "error", err)
		return err
	}

	p.logger.Debug("Published event", "event", event.Payload.Name(), "to", event.To, "subject", subject)
	return nil
}
