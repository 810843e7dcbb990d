// Package browser 定义拦截流程所依赖的浏览器能力，具体实现见 internal/cdp。
package browser

import (
	"context"
	"errors"
	"net/http"

	"pageproxy/pkg/traffic"
)

// ErrAlreadyHandled 请求已被决议，再次决议无效
var ErrAlreadyHandled = errors.New("request is already handled")

// RequestHandler 拦截请求回调
type RequestHandler func(ctx context.Context, req Request)

// CookieStore 按 URL 读写浏览器 Cookie
type CookieStore interface {
	Cookies(ctx context.Context, urls ...string) ([]*http.Cookie, error)
	SetCookie(ctx context.Context, rawURL string, c *http.Cookie) error
}

// Page 浏览器页面（一个 CDP target）
type Page interface {
	CookieStore

	// Context 在页面销毁时结束
	Context() context.Context
	SetRequestInterception(ctx context.Context, enabled bool) error
	OnRequest(fn RequestHandler)
}

// ContinueOverrides 放行时可替换的字段
type ContinueOverrides struct {
	URL      *string
	Method   *string
	PostData []byte
	Headers  traffic.Header
}

// Request 被拦截的请求，只读，决议方法三选一
type Request interface {
	URL() string
	Method() string
	PostData() []byte
	Headers() traffic.Header
	IsNavigationRequest() bool

	// IsInterceptResolutionHandled 报告请求是否已被决议
	IsInterceptResolutionHandled() bool

	// priority 为 nil 时立即决议，否则进入协作拦截模式
	Continue(ctx context.Context, overrides *ContinueOverrides, priority *int) error
	Respond(ctx context.Context, resp *traffic.Response, priority *int) error
	Abort(ctx context.Context, reason string, priority *int) error
}

// BodyAwareRequest 可报告请求体是否无法取得
type BodyAwareRequest interface {
	Request
	PostDataUnavailable() bool
}

// OverrideAwareRequest 协作模式下可读取当前生效的放行覆盖项
type OverrideAwareRequest interface {
	Request
	ContinueRequestOverrides() *ContinueOverrides
}
