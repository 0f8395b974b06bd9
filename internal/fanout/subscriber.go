package fanout

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/Heaven664/messenger-backend/pkg/proto"
)

// EventHandler 下行事件处理器接口（由网关实现）
type EventHandler interface {
	DeliverEvent(event *proto.DownstreamEvent)
}

// SubscriberConfig Worker Pool 配置
type SubscriberConfig struct {
	WorkerCount int // Worker 数量
	BufferSize  int // 消息缓冲区大小
}

// EventSubscriber 下行事件订阅器
// 投递是 fire-and-forget：缓冲区满时丢弃并记录警告，绝不阻塞发布方
type EventSubscriber struct {
	nc           *nats.Conn
	nodeID       string
	handler      EventHandler
	logger       *slog.Logger
	subscription *nats.Subscription
	config       SubscriberConfig
	msgChan      chan *nats.Msg
	wg           sync.WaitGroup
	cancelFunc   context.CancelFunc
}

// NewEventSubscriber 创建事件订阅器
func NewEventSubscriber(nc *nats.Conn, nodeID string, handler EventHandler, config SubscriberConfig) *EventSubscriber {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 16
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 4096
	}

	return &EventSubscriber{
		nc:      nc,
		nodeID:  nodeID,
		handler: handler,
		logger:  slog.Default(),
		config:  config,
	}
}

// Start 启动订阅
func (s *EventSubscriber) Start(ctx context.Context) error {
	s.msgChan = make(chan *nats.Msg, s.config.BufferSize)

	workerCtx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	for i := 0; i < s.config.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(workerCtx)
	}

	subject := BuildDownstreamSubject(s.nodeID)
	sub, err := s.nc.Subscribe(subject, func(msg *nats.Msg) {
		select {
		case s.msgChan <- msg:
		default:
			s.logger.Warn("Event buffer full, dropping event", "bufferSize", s.config.BufferSize)
		}
	})
	if err != nil {
		cancel()
		return err
	}

	s.subscription = sub
	s.logger.Info("Event subscriber started",
		"subject", subject,
		"workerCount", s.config.WorkerCount,
		"bufferSize", s.config.BufferSize,
	)
	return nil
}

// worker 工作协程
func (s *EventSubscriber) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.msgChan:
			if !ok {
				return
			}
			s.handleEvent(msg.Data)
		}
	}
}

// handleEvent 处理单个下行事件
func (s *EventSubscriber) handleEvent(data []byte) {
	var event proto.DownstreamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Error("Failed to unmarshal event", "error", err)
		return
	}

	s.handler.DeliverEvent(&event)
}

// Stop 停止订阅
func (s *EventSubscriber) Stop() error {
	if s.cancelFunc != nil {
		s.cancelFunc()
	}

	if s.subscription != nil {
		if err := s.subscription.Unsubscribe(); err != nil {
			s.logger.Error("Failed to unsubscribe", "error", err)
		}
	}

	if s.msgChan != nil {
		close(s.msgChan)
	}

	s.wg.Wait()

	s.logger.Info("Event subscriber stopped")
	return nil
}
