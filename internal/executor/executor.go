// Package executor 将拦截到的浏览器请求翻译为出站请求，并经上游代理执行。
package executor

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"pageproxy/internal/browser"
	"pageproxy/internal/cookies"
	"pageproxy/internal/logger"
	"pageproxy/pkg/traffic"
)

// Executor 代理抓取执行器，按代理地址复用 HTTP 客户端
type Executor struct {
	mu      sync.Mutex
	clients map[string]*resty.Client
	bridge  *cookies.Bridge
	tls     *tls.Config
	log     logger.Logger
}

// New 创建执行器
func New(bridge *cookies.Bridge, l logger.Logger) *Executor {
	if l == nil {
		l = logger.NewNop()
	}
	if bridge == nil {
		bridge = cookies.New(l)
	}
	return &Executor{
		clients: make(map[string]*resty.Client),
		bridge:  bridge,
		log:     l,
	}
}

// WithTLSConfig 指定访问 https 目标时的 TLS 配置，需在首次抓取前调用
func (e *Executor) WithTLSConfig(cfg *tls.Config) *Executor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tls = cfg
	return e
}

// ProxiedResponse 完整的代理抓取流程：装载 Cookie、翻译、执行、回写 Cookie
func (e *Executor) ProxiedResponse(ctx context.Context, req browser.Request, store browser.CookieStore, proxyURL string, ov *Overrides) (*traffic.Response, error) {
	target := req.URL()
	if ov != nil && ov.URL != nil {
		target = *ov.URL
	}
	jar, err := e.bridge.LoadJar(ctx, store, target)
	if err != nil {
		return nil, err
	}
	d, err := Translate(req, proxyURL, jar, ov)
	if err != nil {
		return nil, err
	}
	resp, err := e.Do(ctx, d)
	if err != nil {
		return nil, err
	}
	if err := e.bridge.StoreCookies(ctx, store, target, resp.Headers); err != nil {
		return nil, err
	}
	return resp, nil
}

// Do 经代理执行一次 HTTP 往返，不跟随重定向，不因状态码报错
func (e *Executor) Do(ctx context.Context, d *Descriptor) (*traffic.Response, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("parse target url: %w", err)
	}

	r := e.client(d).R().SetContext(ctx)
	for _, k := range d.Headers.Keys() {
		if strings.HasPrefix(k, ":") {
			continue
		}
		for _, v := range d.Headers.Values(k) {
			r.Header.Add(k, v)
		}
	}
	if d.Jar != nil {
		if cs := d.Jar.Cookies(u); len(cs) > 0 {
			r.Header.Del("Cookie")
			r.SetCookies(cs)
		}
	}
	if len(d.Body) > 0 {
		r.SetBody(d.Body)
	}

	start := time.Now()
	resp, err := r.Execute(d.Method, d.URL)
	if err != nil {
		return nil, fmt.Errorf("proxy fetch %s via %s: %w", d.URL, d.ProxyURL.Redacted(), err)
	}
	if d.Policy.ThrowHTTPErrors && resp.IsError() {
		return nil, fmt.Errorf("proxy fetch %s: status %d", d.URL, resp.StatusCode())
	}

	out := traffic.NewResponse()
	out.StatusCode = resp.StatusCode()
	out.Headers = traffic.FromHTTP(resp.Header())
	out.Body = e.decodeBody(out.Headers, resp.Body())
	e.log.Debug("代理抓取完成", "url", d.URL, "status", out.StatusCode, "bytes", len(out.Body), "duration", time.Since(start))
	return out, nil
}

// client 按代理地址获取（或创建）客户端
func (e *Executor) client(d *Descriptor) *resty.Client {
	key := d.ProxyURL.String()
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.clients[key]; ok {
		return c
	}
	c := resty.New().
		SetCookieJar(nil).
		SetProxy(key).
		SetRetryCount(0).
		SetRedirectPolicy(redirectPolicy(d.Policy)).
		SetPreRequestHook(applyHostHeader)
	if e.tls != nil {
		c.SetTLSClientConfig(e.tls)
	}
	e.clients[key] = c
	return c
}

func redirectPolicy(p Policy) resty.RedirectPolicy {
	return resty.RedirectPolicyFunc(func(_ *http.Request, via []*http.Request) error {
		if len(via) >= p.MaxRedirects {
			return fmt.Errorf("stopped after %d redirects", p.MaxRedirects)
		}
		if !p.FollowRedirect {
			return http.ErrUseLastResponse
		}
		return nil
	})
}

// applyHostHeader net/http 只认 Request.Host
func applyHostHeader(_ *resty.Client, hr *http.Request) error {
	if h := hr.Header.Get("Host"); h != "" {
		hr.Host = h
		hr.Header.Del("Host")
	}
	return nil
}

// gzipMagic gzip 流的文件头
var gzipMagic = []byte{0x1f, 0x8b}

// decodeBody 出站请求自带 accept-encoding，需要把响应体还原为明文。
// resty 已自行解压 Content-Encoding: gzip，此时只需去掉编码头
func (e *Executor) decodeBody(h traffic.Header, body []byte) []byte {
	enc := strings.ToLower(strings.TrimSpace(h.Get("content-encoding")))
	if enc == "" || enc == "identity" {
		return body
	}
	if len(body) == 0 {
		h.Del("content-encoding")
		h.Del("content-length")
		return body
	}

	var (
		rd  io.ReadCloser
		err error
	)
	switch enc {
	case "gzip", "x-gzip":
		if !bytes.HasPrefix(body, gzipMagic) {
			h.Del("content-encoding")
			h.Del("content-length")
			return body
		}
		rd, err = gzip.NewReader(bytes.NewReader(body))
	case "deflate":
		rd, err = zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			rd, err = flate.NewReader(bytes.NewReader(body)), nil
		}
	default:
		return body
	}
	if err != nil {
		e.log.Warn("响应体解码失败，原样返回", "encoding", enc, "error", err)
		return body
	}
	defer rd.Close()

	decoded, err := io.ReadAll(rd)
	if err != nil {
		e.log.Warn("响应体解码失败，原样返回", "encoding", enc, "error", err)
		return body
	}
	h.Del("content-encoding")
	h.Del("content-length")
	return decoded
}
