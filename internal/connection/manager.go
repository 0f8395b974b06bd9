package connection

import (
	"errors"
	"sync"
)

var ErrConnectionClosed = errors.New("connection closed")

// Manager 管理所有连接以及连接到用户身份的绑定表
// 进程启动时为空，join 时写入，断开时删除，从不持久化
// 绑定和计数在同一把锁内完成，上线/下线判定不会被并发的 join/断开打乱
type Manager struct {
	connections map[int64]*Connection
	userConns   map[string]map[int64]*Connection // email -> connID -> Connection
	mu          sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		connections: make(map[int64]*Connection),
		userConns:   make(map[string]map[int64]*Connection),
	}
}

func (m *Manager) Add(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[conn.ID()] = conn
}

// BindUser 把连接绑定到用户身份
// 返回该身份是否从无连接变为有连接（首个连接，触发上线）
func (m *Manager) BindUser(connID int64, email string) (first bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connID]
	if !ok {
		return false
	}

	conns, ok := m.userConns[email]
	if !ok {
		conns = make(map[int64]*Connection)
		m.userConns[email] = conns
	}
	first = len(conns) == 0
	conns[connID] = conn
	return first
}

// Remove 移除连接并解除身份绑定
// 返回绑定的身份以及该身份是否已无存活连接（末个连接，触发下线）
func (m *Manager) Remove(connID int64) (email string, last bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connID]
	if !ok {
		return "", false
	}
	delete(m.connections, connID)

	email = conn.Email()
	if email == "" {
		return "", false
	}

	conns, ok := m.userConns[email]
	if !ok {
		return email, false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(m.userConns, email)
		return email, true
	}
	return email, false
}

func (m *Manager) Get(connID int64) *Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connections[connID]
}

// GetByEmail 获取绑定到该身份的所有连接
func (m *Manager) GetByEmail(email string) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns, ok := m.userConns[email]
	if !ok {
		return nil
	}

	result := make([]*Connection, 0, len(conns))
	for _, conn := range conns {
		result = append(result, conn)
	}
	return result
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// GetAllConnections 返回所有连接（用于心跳检测）
func (m *Manager) GetAllConnections() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	return conns
}
