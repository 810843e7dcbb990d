// Package service 组合会话、目标与页面代理配置，对外提供统一入口。
package service

import (
	"context"
	"errors"
	"fmt"

	"pageproxy/internal/cookies"
	"pageproxy/internal/executor"
	"pageproxy/internal/logger"
	"pageproxy/internal/session"
	"pageproxy/internal/storage"
	"pageproxy/pkg/model"
)

// ErrSessionNotFound 会话不存在
var ErrSessionNotFound = errors.New("session not found")

// Options 服务依赖
type Options struct {
	Defaults model.ProxyDefaults
	// Events 为 nil 时不保存事件历史
	Events *storage.EventRepo
	Logger logger.Logger
}

// Service 服务实现
type Service struct {
	sessions *session.Manager
	defaults model.ProxyDefaults
	executor *executor.Executor
	events   *storage.EventRepo
	log      logger.Logger
}

// New 创建服务
func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Service{
		sessions: session.NewManager(opts.Logger),
		defaults: opts.Defaults,
		executor: executor.New(cookies.New(opts.Logger), opts.Logger),
		events:   opts.Events,
		log:      opts.Logger,
	}
}

// StartSession 启动会话
func (s *Service) StartSession(cfg model.SessionConfig) (model.SessionID, error) {
	if cfg.DevToolsURL == "" {
		return "", errors.New("devtools url is required")
	}
	sess := s.sessions.Create(session.Options{
		Config:   cfg,
		Defaults: s.defaults,
		Fetcher:  s.executor,
		Sink:     s.persist,
		Logger:   s.log,
	})
	return sess.ID, nil
}

// StopSession 停止会话并分离全部目标
func (s *Service) StopSession(id model.SessionID) error {
	sess, ok := s.sessions.Delete(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.Close()
}

// ListTargets 列出目标
func (s *Service) ListTargets(ctx context.Context, id model.SessionID) ([]model.TargetInfo, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	return sess.Browser.ListTargets(ctx)
}

// AttachTarget 附加目标并按全局默认开启代理拦截
func (s *Service) AttachTarget(ctx context.Context, id model.SessionID, target model.TargetID) (model.TargetID, error) {
	sess, err := s.session(id)
	if err != nil {
		return "", err
	}
	page, err := sess.Browser.AttachTarget(ctx, target)
	if err != nil {
		return "", err
	}
	if err := sess.Plugin.OnPageCreated(ctx, page); err != nil {
		_ = sess.Browser.DetachTarget(page.TargetID())
		return "", err
	}
	return page.TargetID(), nil
}

// DetachTarget 分离目标
func (s *Service) DetachTarget(id model.SessionID, target model.TargetID) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	return sess.Browser.DetachTarget(target)
}

// UseProxy 为目标页面设置代理地址，空串禁用
func (s *Service) UseProxy(ctx context.Context, id model.SessionID, target model.TargetID, proxyURL string, opts model.ProxyOptions) error {
	if proxyURL != "" {
		if _, err := executor.ParseProxyURL(proxyURL); err != nil {
			return err
		}
	}
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	page, err := sess.Browser.Page(target)
	if err != nil {
		return err
	}
	return sess.Plugin.UseProxy(ctx, page, proxyURL, opts)
}

// UseProxyOptions 只更新选项，代理地址沿用全局
func (s *Service) UseProxyOptions(ctx context.Context, id model.SessionID, target model.TargetID, opts model.ProxyOptions) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	page, err := sess.Browser.Page(target)
	if err != nil {
		return err
	}
	return sess.Plugin.UseProxyOptions(ctx, page, opts)
}

// SubscribeEvents 订阅事件
func (s *Service) SubscribeEvents(id model.SessionID) (<-chan model.Event, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	return sess.Subscribe(), nil
}

// ListEvents 查询事件历史，limit<=0 表示不限制
func (s *Service) ListEvents(ctx context.Context, id model.SessionID, limit int) ([]model.Event, error) {
	if s.events == nil {
		return nil, nil
	}
	return s.events.List(ctx, storage.EventQuery{Session: id, Limit: limit})
}

// Close 关闭全部会话
func (s *Service) Close() error {
	var errs []error
	for _, sess := range s.sessions.List() {
		if err := s.StopSession(sess.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) session(id model.SessionID) (*session.Session, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

func (s *Service) persist(ctx context.Context, evt model.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Save(ctx, evt); err != nil {
		s.log.Err(err, "保存事件失败", "event", evt.ID)
	}
}
