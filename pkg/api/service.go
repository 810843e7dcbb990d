package api

import (
	"context"

	"pageproxy/internal/logger"
	"pageproxy/internal/service"
	"pageproxy/internal/storage"
	"pageproxy/pkg/model"
)

// Service 服务接口
type Service interface {
	// StartSession 连接 DevTools 端点并创建会话
	StartSession(cfg model.SessionConfig) (model.SessionID, error)

	// StopSession 停止会话
	StopSession(id model.SessionID) error

	// ListTargets 列出页面目标
	ListTargets(ctx context.Context, id model.SessionID) ([]model.TargetInfo, error)

	// AttachTarget 附加目标并开启拦截，target 为空时选择第一个页面
	AttachTarget(ctx context.Context, id model.SessionID, target model.TargetID) (model.TargetID, error)

	// DetachTarget 分离目标
	DetachTarget(id model.SessionID, target model.TargetID) error

	// UseProxy 设置页面代理地址，空串禁用该页面代理
	UseProxy(ctx context.Context, id model.SessionID, target model.TargetID, proxyURL string, opts model.ProxyOptions) error

	// UseProxyOptions 设置页面代理选项，代理地址沿用全局
	UseProxyOptions(ctx context.Context, id model.SessionID, target model.TargetID, opts model.ProxyOptions) error

	// SubscribeEvents 订阅事件
	SubscribeEvents(id model.SessionID) (<-chan model.Event, error)

	// ListEvents 查询事件历史
	ListEvents(ctx context.Context, id model.SessionID, limit int) ([]model.Event, error)

	// Close 关闭全部会话
	Close() error
}

// Options 服务选项
type Options struct {
	Defaults model.ProxyDefaults
	// History 为 nil 时不保存事件历史
	History *storage.EventRepo
	Logger  logger.Logger
}

// NewService 创建并返回服务接口实现
func NewService(opts Options) Service {
	return service.New(service.Options{
		Defaults: opts.Defaults,
		Events:   opts.History,
		Logger:   opts.Logger,
	})
}
