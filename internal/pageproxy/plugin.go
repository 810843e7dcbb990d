// Package pageproxy 提供按页面切换上游代理的激活入口。
//
// 每个页面可以独立设置代理地址、是否只代理导航请求以及协作拦截优先级；
// 未设置的字段沿用构造时给定的全局默认值。
package pageproxy

import (
	"context"
	"fmt"

	"pageproxy/internal/browser"
	"pageproxy/internal/handler"
	"pageproxy/internal/logger"
	"pageproxy/internal/pagestore"
	"pageproxy/pkg/model"
)

// Plugin 页面代理插件
type Plugin struct {
	store   *pagestore.Store
	handler *handler.Handler
	log     logger.Logger
}

// Config 配置选项
type Config struct {
	Defaults model.ProxyDefaults
	Fetcher  handler.Fetcher
	Events   chan<- model.Event
	Logger   logger.Logger
}

// New 创建插件，全局默认值此后不可变
func New(cfg Config) *Plugin {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	store := pagestore.New()
	return &Plugin{
		store: store,
		handler: handler.New(handler.Config{
			Store:    store,
			Defaults: cfg.Defaults,
			Fetcher:  cfg.Fetcher,
			Events:   cfg.Events,
			Logger:   cfg.Logger,
		}),
		log: cfg.Logger,
	}
}

// Defaults 全局默认配置
func (p *Plugin) Defaults() model.ProxyDefaults {
	return p.handler.Defaults()
}

// OnPageCreated 新页面默认沿用全局配置并开启拦截
func (p *Plugin) OnPageCreated(ctx context.Context, page browser.Page) error {
	p.log.Debug("页面创建", "proxy", p.Defaults().ProxyURL != "")
	return p.UseProxyOptions(ctx, page, model.ProxyOptions{})
}

// UseProxy 为页面设置代理地址；proxyURL 为空串表示该页面禁用代理
func (p *Plugin) UseProxy(ctx context.Context, page browser.Page, proxyURL string, opts model.ProxyOptions) error {
	return p.activate(ctx, page, model.PageConfig{ProxyURL: &proxyURL, ProxyOptions: opts})
}

// UseProxyOptions 只设置选项，代理地址沿用全局
func (p *Plugin) UseProxyOptions(ctx context.Context, page browser.Page, opts model.ProxyOptions) error {
	return p.activate(ctx, page, model.PageConfig{ProxyOptions: opts})
}

// PageConfig 当前页面配置快照
func (p *Plugin) PageConfig(page browser.Page) model.PageConfig {
	return p.store.Get(page)
}

// activate 整体替换页面配置，首次激活时挂载请求监听
func (p *Plugin) activate(ctx context.Context, page browser.Page, cfg model.PageConfig) error {
	p.store.Set(page, cfg)
	if p.store.MarkRegistered(page) {
		page.OnRequest(func(ctx context.Context, req browser.Request) {
			p.handler.OnRequest(ctx, page, req)
		})
	}
	if err := page.SetRequestInterception(ctx, true); err != nil {
		return fmt.Errorf("enable request interception: %w", err)
	}
	return nil
}
