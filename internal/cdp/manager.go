// Package cdp 通过 Chrome DevTools Protocol 实现 browser 包中的页面与请求接口。
package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/rpcc"

	"pageproxy/internal/logger"
	"pageproxy/pkg/model"
)

var (
	// ErrNotAttached 目标未附加或已分离
	ErrNotAttached = errors.New("target not attached")
	// ErrTargetNotFound DevTools 中不存在该目标
	ErrTargetNotFound = errors.New("target not found")
)

// Options 管理器选项
type Options struct {
	Concurrency     int
	PendingCapacity int
	Logger          logger.Logger

	// Events 接收降级等页面级事件，可为空
	Events chan<- model.Event
}

// Manager 管理一个 DevTools 端点下已附加的目标
type Manager struct {
	devtoolsURL string
	log         logger.Logger
	pool        *workPool
	events      chan<- model.Event

	targetsMu sync.Mutex
	targets   map[model.TargetID]*Page
}

// New 创建管理器
func New(devtoolsURL string, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Manager{
		devtoolsURL: devtoolsURL,
		log:         opts.Logger,
		pool:        newWorkPool(opts.Concurrency, opts.PendingCapacity),
		events:      opts.Events,
		targets:     make(map[model.TargetID]*Page),
	}
}

// ListTargets 列出可附加的页面目标
func (m *Manager) ListTargets(ctx context.Context) ([]model.TargetInfo, error) {
	targets, err := devtool.New(m.devtoolsURL).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devtools targets: %w", err)
	}

	m.targetsMu.Lock()
	defer m.targetsMu.Unlock()

	out := make([]model.TargetInfo, 0, len(targets))
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		id := model.TargetID(t.ID)
		_, attached := m.targets[id]
		out = append(out, model.TargetInfo{
			ID:       id,
			Type:     string(t.Type),
			URL:      t.URL,
			Title:    t.Title,
			Attached: attached,
		})
	}
	return out, nil
}

// AttachTarget 附加目标；id 为空时选择第一个页面，已附加时返回现有页面
func (m *Manager) AttachTarget(ctx context.Context, id model.TargetID) (*Page, error) {
	if id != "" {
		if p, err := m.Page(id); err == nil {
			return p, nil
		}
	}

	targets, err := devtool.New(m.devtoolsURL).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devtools targets: %w", err)
	}
	var sel *devtool.Target
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		if id == "" || model.TargetID(t.ID) == id {
			sel = t
			break
		}
	}
	if sel == nil {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, id)
	}

	conn, err := rpcc.DialContext(ctx, sel.WebSocketDebuggerURL)
	if err != nil {
		return nil, fmt.Errorf("dial target %s: %w", sel.ID, err)
	}
	client := cdp.NewClient(conn)
	if err := client.Network.Enable(ctx, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable network domain: %w", err)
	}

	page := newPage(model.TargetID(sel.ID), client.Fetch, client.Network, m.pool, m.log)
	page.conn = conn
	page.events = m.events
	page.onClose = m.forget

	m.targetsMu.Lock()
	if cur, ok := m.targets[page.id]; ok {
		m.targetsMu.Unlock()
		_ = conn.Close()
		return cur, nil
	}
	m.targets[page.id] = page
	m.targetsMu.Unlock()

	m.log.Info("目标已附加", "target", sel.ID, "url", sel.URL)
	return page, nil
}

// Page 获取已附加的页面
func (m *Manager) Page(id model.TargetID) (*Page, error) {
	m.targetsMu.Lock()
	defer m.targetsMu.Unlock()
	p, ok := m.targets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAttached, id)
	}
	return p, nil
}

// DetachTarget 分离目标并关闭连接
func (m *Manager) DetachTarget(id model.TargetID) error {
	p, err := m.Page(id)
	if err != nil {
		return err
	}
	return p.close()
}

// Close 分离全部目标并停止处理池
func (m *Manager) Close() error {
	m.targetsMu.Lock()
	pages := make([]*Page, 0, len(m.targets))
	for _, p := range m.targets {
		pages = append(pages, p)
	}
	m.targetsMu.Unlock()

	var errs []error
	for _, p := range pages {
		if err := p.close(); err != nil {
			errs = append(errs, err)
		}
	}
	if m.pool != nil {
		m.pool.stop()
	}
	return errors.Join(errs...)
}

// forget 页面关闭后从表中移除
func (m *Manager) forget(p *Page) {
	m.targetsMu.Lock()
	defer m.targetsMu.Unlock()
	if cur, ok := m.targets[p.id]; ok && cur == p {
		delete(m.targets, p.id)
	}
}
