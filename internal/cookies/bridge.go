// Package cookies 在浏览器 Cookie 存储与外部 HTTP 客户端的 Cookie Jar 之间同步状态。
package cookies

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"pageproxy/internal/browser"
	"pageproxy/internal/logger"
	"pageproxy/pkg/traffic"
)

// Bridge Cookie 桥接器
type Bridge struct {
	log logger.Logger
}

// New 创建桥接器
func New(l logger.Logger) *Bridge {
	if l == nil {
		l = logger.NewNop()
	}
	return &Bridge{log: l}
}

// LoadJar 读取浏览器中对 rawURL 可见的 Cookie，装入新的 Jar
func (b *Bridge) LoadJar(ctx context.Context, store browser.CookieStore, rawURL string) (http.CookieJar, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse request url: %w", err)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	list, err := store.Cookies(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("read browser cookies: %w", err)
	}

	converted := make([]*http.Cookie, 0, len(list))
	for _, c := range list {
		converted = append(converted, toJarCookie(c))
	}
	jar.SetCookies(u, converted)
	b.log.Debug("浏览器 Cookie 已装入 Jar", "url", rawURL, "count", len(converted))
	return jar, nil
}

// toJarCookie 浏览器以 "." 前缀区分域 Cookie，Jar 以 Domain 是否为空区分 host-only
func toJarCookie(c *http.Cookie) *http.Cookie {
	out := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
		SameSite: c.SameSite,
	}
	if strings.HasPrefix(c.Domain, ".") {
		out.Domain = strings.TrimPrefix(c.Domain, ".")
	}
	if out.Path == "" {
		out.Path = "/"
	}
	return out
}

// StoreCookies 将响应中的 Set-Cookie 逐条写回浏览器，并从响应头中移除
//
// 手动注入响应时浏览器对 Set-Cookie 的处理不可靠，因此不能交给浏览器自己解析。
func (b *Bridge) StoreCookies(ctx context.Context, store browser.CookieStore, rawURL string, h traffic.Header) error {
	lines := h.Values("set-cookie")
	if len(lines) == 0 {
		return nil
	}
	h.Del("set-cookie")

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		c, err := http.ParseSetCookie(line)
		if err != nil {
			b.log.Debug("忽略无效 Set-Cookie", "url", rawURL, "error", err)
			continue
		}
		if err := store.SetCookie(ctx, rawURL, c); err != nil {
			return fmt.Errorf("write cookie %s: %w", c.Name, err)
		}
	}
	b.log.Debug("Set-Cookie 已写回浏览器", "url", rawURL, "count", len(lines))
	return nil
}
