package cdp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"

	adapter "pageproxy/internal/adapter/cdp"
	"pageproxy/internal/browser"
	"pageproxy/internal/logger"
	"pageproxy/pkg/model"
)

// Page 已附加的浏览器目标，实现 browser.Page
type Page struct {
	id      model.TargetID
	fetch   cdp.Fetch
	network cdp.Network
	conn    io.Closer
	pool    *workPool
	events  chan<- model.Event
	log     logger.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	onClose   func(*Page)

	mu           sync.Mutex
	handlers     []browser.RequestHandler
	intercepting bool
	stopStream   context.CancelFunc
}

func newPage(id model.TargetID, f cdp.Fetch, n cdp.Network, pool *workPool, l logger.Logger) *Page {
	if l == nil {
		l = logger.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Page{
		id:      id,
		fetch:   f,
		network: n,
		pool:    pool,
		log:     l.With("target", string(id)),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// TargetID 目标ID
func (p *Page) TargetID() model.TargetID { return p.id }

// Context 在分离目标或拦截流中断时结束
func (p *Page) Context() context.Context { return p.ctx }

// OnRequest 追加请求监听，按注册顺序调用
func (p *Page) OnRequest(fn browser.RequestHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, fn)
}

func (p *Page) snapshotHandlers() []browser.RequestHandler {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.RequestHandler(nil), p.handlers...)
}

// SetRequestInterception 开关请求阶段拦截，重复设置同一状态无副作用
func (p *Page) SetRequestInterception(ctx context.Context, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx.Err() != nil {
		return ErrNotAttached
	}
	if enabled == p.intercepting {
		return nil
	}
	if !enabled {
		p.stopStream()
		p.stopStream = nil
		p.intercepting = false
		p.log.Info("关闭请求拦截")
		return p.fetch.Disable(ctx)
	}

	streamCtx, stop := context.WithCancel(p.ctx)
	stream, err := p.fetch.RequestPaused(streamCtx)
	if err != nil {
		stop()
		return fmt.Errorf("subscribe request paused: %w", err)
	}
	pattern := "*"
	err = p.fetch.Enable(ctx, &fetch.EnableArgs{
		Patterns: []fetch.RequestPattern{{URLPattern: &pattern, RequestStage: fetch.RequestStageRequest}},
	})
	if err != nil {
		stop()
		_ = stream.Close()
		return fmt.Errorf("enable fetch domain: %w", err)
	}
	p.intercepting = true
	p.stopStream = stop
	go p.consume(streamCtx, stream)
	p.log.Info("开启请求拦截")
	return nil
}

// Cookies 读取对给定 URL 可见的浏览器 Cookie
func (p *Page) Cookies(ctx context.Context, urls ...string) ([]*http.Cookie, error) {
	reply, err := p.network.GetCookies(ctx, network.NewGetCookiesArgs().SetURLs(urls))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	out := make([]*http.Cookie, 0, len(reply.Cookies))
	for _, c := range reply.Cookies {
		out = append(out, adapter.ToHTTPCookie(c))
	}
	return out, nil
}

// SetCookie 写入一条浏览器 Cookie
func (p *Page) SetCookie(ctx context.Context, rawURL string, c *http.Cookie) error {
	if _, err := p.network.SetCookie(ctx, adapter.ToSetCookieArgs(rawURL, c)); err != nil {
		return fmt.Errorf("set cookie %s: %w", c.Name, err)
	}
	return nil
}

// close 结束页面生命周期，可重复调用
func (p *Page) close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.onClose != nil {
			p.onClose(p)
		}
		if p.conn != nil {
			err = p.conn.Close()
		}
		p.cancel()
		p.log.Info("目标已分离")
	})
	return err
}
