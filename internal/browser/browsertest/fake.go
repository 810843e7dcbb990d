// Package browsertest 提供 browser 接口的内存实现，供测试使用。
package browsertest

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"pageproxy/internal/browser"
	"pageproxy/pkg/traffic"
)

// Page 内存页面
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	handlers     []browser.RequestHandler
	cookies      []*http.Cookie
	interception bool

	EnableCalls atomic.Int32
	CookiesErr  error
	SetErr      error
}

// NewPage 创建内存页面
func NewPage() *Page {
	ctx, cancel := context.WithCancel(context.Background())
	return &Page{ctx: ctx, cancel: cancel}
}

func (p *Page) Context() context.Context { return p.ctx }

// Close 模拟页面销毁
func (p *Page) Close() { p.cancel() }

func (p *Page) SetRequestInterception(_ context.Context, enabled bool) error {
	p.EnableCalls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interception = enabled
	return nil
}

// Intercepting 当前是否开启拦截
func (p *Page) Intercepting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interception
}

func (p *Page) OnRequest(fn browser.RequestHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, fn)
}

// HandlerCount 已注册的监听数
func (p *Page) HandlerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handlers)
}

// Emit 依次把请求交给全部监听
func (p *Page) Emit(ctx context.Context, req browser.Request) {
	p.mu.Lock()
	hs := append([]browser.RequestHandler(nil), p.handlers...)
	p.mu.Unlock()
	for _, h := range hs {
		h(ctx, req)
	}
}

// AddCookie 预置浏览器 Cookie，Domain 以 "." 开头表示域 Cookie
func (p *Page) AddCookie(c *http.Cookie) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies = append(p.cookies, c)
}

// Cookies 按 host 后缀做简单可见性判断
func (p *Page) Cookies(_ context.Context, urls ...string) ([]*http.Cookie, error) {
	if p.CookiesErr != nil {
		return nil, p.CookiesErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*http.Cookie
	for _, c := range p.cookies {
		for _, raw := range urls {
			u, err := url.Parse(raw)
			if err != nil {
				continue
			}
			d := strings.TrimPrefix(c.Domain, ".")
			if u.Hostname() == d || strings.HasSuffix(u.Hostname(), "."+d) {
				cp := *c
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (p *Page) SetCookie(_ context.Context, rawURL string, c *http.Cookie) error {
	if p.SetErr != nil {
		return p.SetErr
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	cp := *c
	if cp.Domain == "" {
		cp.Domain = u.Hostname()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cur := range p.cookies {
		if cur.Name == cp.Name && strings.TrimPrefix(cur.Domain, ".") == strings.TrimPrefix(cp.Domain, ".") {
			p.cookies[i] = &cp
			return nil
		}
	}
	p.cookies = append(p.cookies, &cp)
	return nil
}

// Cookie 按名称查找
func (p *Page) Cookie(name string) *http.Cookie {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Request 内存请求，记录决议调用
type Request struct {
	RawURL     string
	Verb       string
	Body       []byte
	Header     traffic.Header
	Navigation bool
	Handled    bool

	// BodyMissing 模拟声明有请求体但未携带
	BodyMissing bool

	mu         sync.Mutex
	Continued  []*browser.ContinueOverrides
	Responded  []*traffic.Response
	Aborted    []string
	Priorities []*int
}

// NewRequest 创建 GET 请求
func NewRequest(rawURL string) *Request {
	return &Request{RawURL: rawURL, Verb: http.MethodGet, Header: traffic.Header{}}
}

func (r *Request) URL() string              { return r.RawURL }
func (r *Request) Method() string           { return r.Verb }
func (r *Request) PostData() []byte         { return r.Body }
func (r *Request) Headers() traffic.Header  { return r.Header.Clone() }
func (r *Request) IsNavigationRequest() bool { return r.Navigation }
func (r *Request) PostDataUnavailable() bool { return r.BodyMissing }

func (r *Request) IsInterceptResolutionHandled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Handled
}

func (r *Request) Continue(_ context.Context, overrides *browser.ContinueOverrides, priority *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Continued = append(r.Continued, overrides)
	r.Priorities = append(r.Priorities, priority)
	return nil
}

func (r *Request) Respond(_ context.Context, resp *traffic.Response, priority *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Responded = append(r.Responded, resp)
	r.Priorities = append(r.Priorities, priority)
	return nil
}

func (r *Request) Abort(_ context.Context, reason string, priority *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Aborted = append(r.Aborted, reason)
	r.Priorities = append(r.Priorities, priority)
	return nil
}

// Resolutions 决议调用总次数
func (r *Request) Resolutions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Continued) + len(r.Responded) + len(r.Aborted)
}

// OverrideRequest 额外提供协作模式覆盖项
type OverrideRequest struct {
	*Request
	Overrides *browser.ContinueOverrides
}

func (r *OverrideRequest) ContinueRequestOverrides() *browser.ContinueOverrides {
	return r.Overrides
}
