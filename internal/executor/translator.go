package executor

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"pageproxy/internal/browser"
	"pageproxy/pkg/traffic"
)

// Policy 代理抓取策略
type Policy struct {
	MaxRedirects         int
	ThrowHTTPErrors      bool
	FollowRedirect       bool
	IgnoreInvalidCookies bool
}

// FixedPolicy 所有代理抓取使用的固定策略，不可配置
var FixedPolicy = Policy{
	MaxRedirects:         15,
	ThrowHTTPErrors:      false,
	FollowRedirect:       false,
	IgnoreInvalidCookies: true,
}

var (
	// ErrInvalidProxyURL 代理地址不可用
	ErrInvalidProxyURL = errors.New("invalid proxy url")
	// ErrPostDataUnavailable 请求声明有请求体但无法取得
	ErrPostDataUnavailable = errors.New("request post data unavailable")
)

// Overrides 调用方提供的整体替换字段
type Overrides struct {
	URL      *string
	Method   *string
	PostData []byte
	Headers  traffic.Header
}

// Descriptor 一次代理抓取的完整描述
type Descriptor struct {
	Method   string
	URL      string
	Body     []byte
	Headers  traffic.Header
	Jar      http.CookieJar
	ProxyURL *url.URL
	Policy   Policy
}

// Translate 根据拦截请求、覆盖项和代理地址构建出站请求
func Translate(req browser.Request, proxyURL string, jar http.CookieJar, ov *Overrides) (*Descriptor, error) {
	proxy, err := ParseProxyURL(proxyURL)
	if err != nil {
		return nil, err
	}
	if ov == nil {
		ov = &Overrides{}
	}

	d := &Descriptor{
		Method:   req.Method(),
		URL:      req.URL(),
		Body:     req.PostData(),
		Jar:      jar,
		ProxyURL: proxy,
		Policy:   FixedPolicy,
	}
	if ov.URL != nil {
		d.URL = *ov.URL
	}
	if ov.Method != nil {
		d.Method = *ov.Method
	}
	if ov.PostData != nil {
		d.Body = ov.PostData
	} else if br, ok := req.(browser.BodyAwareRequest); ok && br.PostDataUnavailable() {
		return nil, fmt.Errorf("%w: %s %s", ErrPostDataUnavailable, d.Method, d.URL)
	}
	if ov.Headers != nil {
		d.Headers = ov.Headers.Clone()
	} else {
		d.Headers, err = forcedHeaders(req)
		if err != nil {
			return nil, err
		}
	}
	if d.Method == "" {
		d.Method = http.MethodGet
	}
	return d, nil
}

// forcedHeaders 原始请求头叠加抓取时必须覆盖的字段
func forcedHeaders(req browser.Request) (traffic.Header, error) {
	u, err := url.Parse(req.URL())
	if err != nil {
		return nil, fmt.Errorf("parse request url: %w", err)
	}
	h := req.Headers()
	if h == nil {
		h = make(traffic.Header)
	}
	h.Set("accept-encoding", "gzip, deflate")
	h.Set("host", u.Host)
	if req.IsNavigationRequest() {
		h.Set("sec-fetch-mode", "navigate")
		h.Set("sec-fetch-site", "none")
		h.Set("sec-fetch-user", "?1")
	} else {
		h.Set("sec-fetch-mode", "no-cors")
		h.Set("sec-fetch-site", "same-origin")
	}
	return h, nil
}

// ParseProxyURL 校验上游代理地址
func ParseProxyURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidProxyURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProxyURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidProxyURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidProxyURL)
	}
	return u, nil
}
