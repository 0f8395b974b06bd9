package connection

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/webtransport-go"
)

var connIDCounter int64

// Connection 表示一个客户端连接
type Connection struct {
	id         int64
	info       atomic.Pointer[SessionInfo] // 认证成功后写入，心跳检测等协程并发读取
	session    *webtransport.Session
	logger     *slog.Logger
	writeChan  chan []byte
	closeChan  chan struct{}
	closeOnce  sync.Once
	createTime time.Time
	lastActive atomic.Int64
}

// SessionInfo 认证后绑定到连接的会话信息
type SessionInfo struct {
	Email    string
	DeviceID string
	Platform string
}

// NewFromWebTransport 从 WebTransport 会话创建连接
func NewFromWebTransport(session *webtransport.Session, logger *slog.Logger) *Connection {
	id := atomic.AddInt64(&connIDCounter, 1)
	c := &Connection{
		id:         id,
		session:    session,
		logger:     logger,
		writeChan:  make(chan []byte, 256),
		closeChan:  make(chan struct{}),
		createTime: time.Now(),
	}
	c.lastActive.Store(time.Now().UnixMilli())
	go c.writeLoop()
	return c
}

func (c *Connection) ID() int64 {
	return c.id
}

// Email 返回绑定的用户身份，未认证时为空
func (c *Connection) Email() string {
	if info := c.info.Load(); info != nil {
		return info.Email
	}
	return ""
}

func (c *Connection) DeviceID() string {
	if info := c.info.Load(); info != nil {
		return info.DeviceID
	}
	return ""
}

func (c *Connection) Platform() string {
	if info := c.info.Load(); info != nil {
		return info.Platform
	}
	return ""
}

// BindSession 绑定会话信息（认证成功后调用一次）
func (c *Connection) BindSession(info *SessionInfo) {
	c.info.Store(info)
	c.UpdateActive()
}

func (c *Connection) Session() *webtransport.Session {
	return c.session
}

// Send 异步发送数据帧
func (c *Connection) Send(data []byte) error {
	select {
	case c.writeChan <- data:
		return nil
	case <-c.closeChan:
		return ErrConnectionClosed
	}
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeChan:
			stream, err := c.session.OpenStream()
			if err != nil {
				c.logger.Error("Failed to open stream", "error", err)
				continue
			}
			if _, err := stream.Write(data); err != nil {
				c.logger.Error("Failed to write to stream", "error", err)
			}
			stream.Close()
		case <-c.closeChan:
			return
		}
	}
}

func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		c.session.CloseWithError(0, "connection closed")
	})
}

// UpdateActive 刷新活跃时间（收到任意帧时调用）
func (c *Connection) UpdateActive() {
	c.lastActive.Store(time.Now().UnixMilli())
}

// LastActiveTime 最近活跃时间
func (c *Connection) LastActiveTime() time.Time {
	return time.UnixMilli(c.lastActive.Load())
}

func (c *Connection) CreateTime() time.Time {
	return c.createTime
}
