package handler

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"pageproxy/internal/browser"
	"pageproxy/internal/executor"
	"pageproxy/internal/logger"
	"pageproxy/internal/pagestore"
	"pageproxy/pkg/model"
	"pageproxy/pkg/traffic"
)

// AbortReason 代理失败时的中止原因
const AbortReason = "failed"

// Fetcher 代理抓取流程
type Fetcher interface {
	ProxiedResponse(ctx context.Context, req browser.Request, store browser.CookieStore, proxyURL string, ov *executor.Overrides) (*traffic.Response, error)
}

// targeted 可标识自身 target 的页面
type targeted interface {
	TargetID() model.TargetID
}

// Handler 拦截决策器：决定放行、代理或中止
type Handler struct {
	store    *pagestore.Store
	defaults model.ProxyDefaults
	fetcher  Fetcher
	events   chan<- model.Event
	log      logger.Logger
}

// Config 配置选项，Fetcher 为空时使用默认执行器
type Config struct {
	Store    *pagestore.Store
	Defaults model.ProxyDefaults
	Fetcher  Fetcher
	Events   chan<- model.Event
	Logger   logger.Logger
}

// New 创建决策器
func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Store == nil {
		cfg.Store = pagestore.New()
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = executor.New(nil, cfg.Logger)
	}
	return &Handler{
		store:    cfg.Store,
		defaults: cfg.Defaults,
		fetcher:  cfg.Fetcher,
		events:   cfg.Events,
		log:      cfg.Logger,
	}
}

// Defaults 全局默认配置
func (h *Handler) Defaults() model.ProxyDefaults {
	return h.defaults
}

// OnRequest 处理一次拦截请求，保证最多一次决议
func (h *Handler) OnRequest(ctx context.Context, page browser.Page, req browser.Request) model.Outcome {
	if req.IsInterceptResolutionHandled() {
		h.log.Debug("请求已被其他处理器决议", "url", req.URL())
		return model.OutcomeIgnored
	}

	start := time.Now()
	eff := pagestore.Merge(h.store.Get(page), h.defaults)
	l := h.log.With("url", req.URL(), "method", req.Method())

	if reason := skipReason(eff, req); reason != "" {
		h.continueRequest(ctx, req, eff.Priority, l)
		h.emit(page, req, model.Event{Outcome: model.OutcomeSkipped, Reason: reason}, start)
		l.Debug("放行请求", "reason", reason)
		return model.OutcomeSkipped
	}

	resp, err := h.fetcher.ProxiedResponse(ctx, req, page, eff.ProxyURL, nil)
	if err != nil {
		l.Warn("代理抓取失败，中止请求", "proxy", redact(eff.ProxyURL), "error", err)
		if aerr := req.Abort(ctx, AbortReason, eff.Priority); aerr != nil {
			l.Err(aerr, "中止请求失败")
		}
		h.emit(page, req, model.Event{Outcome: model.OutcomeAborted, ProxyURL: redact(eff.ProxyURL), Error: err.Error()}, start)
		return model.OutcomeAborted
	}

	if rerr := req.Respond(ctx, resp, eff.Priority); rerr != nil {
		l.Err(rerr, "写回代理响应失败")
	}
	h.emit(page, req, model.Event{Outcome: model.OutcomeProxied, ProxyURL: redact(eff.ProxyURL), StatusCode: resp.StatusCode}, start)
	l.Debug("代理请求完成", "status", resp.StatusCode, "duration", time.Since(start))
	return model.OutcomeProxied
}

// skipReason 按顺序判断是否放行，返回空串表示需要代理
func skipReason(eff model.EffectiveConfig, req browser.Request) string {
	switch {
	case eff.Disabled:
		return "page proxy disabled"
	case eff.ProxyURL == "":
		return "no proxy configured"
	case eff.OnlyNavigation && !req.IsNavigationRequest():
		return "not a navigation request"
	case !isHTTPURL(req.URL()):
		return "unsupported scheme"
	}
	return ""
}

func isHTTPURL(u string) bool {
	return strings.HasPrefix(u, "http:") || strings.HasPrefix(u, "https:")
}

// continueRequest 放行；支持协作模式时透传当前覆盖项与优先级
func (h *Handler) continueRequest(ctx context.Context, req browser.Request, priority *int, l logger.Logger) {
	var err error
	if oa, ok := req.(browser.OverrideAwareRequest); ok {
		err = oa.Continue(ctx, oa.ContinueRequestOverrides(), priority)
	} else {
		err = req.Continue(ctx, nil, nil)
	}
	if err != nil {
		l.Err(err, "放行请求失败")
	}
}

// emit 非阻塞发送事件
func (h *Handler) emit(page browser.Page, req browser.Request, evt model.Event, start time.Time) {
	if h.events == nil {
		return
	}
	evt.ID = uuid.NewString()
	if t, ok := page.(targeted); ok {
		evt.Target = t.TargetID()
	}
	evt.URL = req.URL()
	evt.Method = req.Method()
	evt.Headers = req.Headers()
	evt.DurationMS = time.Since(start).Milliseconds()
	evt.Timestamp = time.Now().UnixMilli()

	select {
	case h.events <- evt:
	default:
	}
}

// redact 隐藏代理地址中的认证信息
func redact(proxyURL string) string {
	u, err := executor.ParseProxyURL(proxyURL)
	if err != nil {
		return proxyURL
	}
	return u.Redacted()
}
