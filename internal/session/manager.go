package session

import (
	"sync"

	"github.com/google/uuid"

	"pageproxy/internal/logger"
	"pageproxy/pkg/model"
)

// Manager 全局会话管理器
type Manager struct {
	mu       sync.RWMutex
	sessions map[model.SessionID]*Session
	log      logger.Logger
}

// NewManager 创建会话管理器
func NewManager(l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		sessions: make(map[model.SessionID]*Session),
		log:      l,
	}
}

// Create 创建并注册新会话
func (m *Manager) Create(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = m.log
	}
	id := model.SessionID(uuid.NewString())
	s := New(id, opts)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.log.Info("创建会话", "sessionID", string(id), "devtools", opts.Config.DevToolsURL)
	return s
}

// Get 获取会话
func (m *Manager) Get(id model.SessionID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete 注销会话并返回它，调用方负责关闭
func (m *Manager) Delete(id model.SessionID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		m.log.Info("销毁会话", "sessionID", string(id))
	}
	return s, ok
}

// List 返回所有活动会话
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	return list
}
