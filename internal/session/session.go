// Package session 管理一次 DevTools 连接的生命周期与事件分发。
package session

import (
	"context"
	"sync"

	"pageproxy/internal/cdp"
	"pageproxy/internal/handler"
	"pageproxy/internal/logger"
	"pageproxy/internal/pageproxy"
	"pageproxy/pkg/model"
)

const (
	defaultEventBuffer = 256
	subscriberBuffer   = 128
)

// Sink 事件落地回调（如写入历史库）
type Sink func(ctx context.Context, evt model.Event)

// Options 会话依赖
type Options struct {
	Config   model.SessionConfig
	Defaults model.ProxyDefaults
	Fetcher  handler.Fetcher
	Sink     Sink
	Logger   logger.Logger
}

// Session 一个浏览器会话：目标管理、页面代理插件、事件订阅
type Session struct {
	ID      model.SessionID
	Config  model.SessionConfig
	Browser *cdp.Manager
	Plugin  *pageproxy.Plugin

	events chan model.Event
	sink   Sink
	log    logger.Logger

	mu     sync.Mutex
	subs   []chan model.Event
	closed bool

	done      chan struct{}
	forwarded chan struct{}
	closeOnce sync.Once
}

// New 创建会话并启动事件转发
func New(id model.SessionID, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	l := opts.Logger.With("session", string(id))
	buf := opts.Config.PendingCapacity
	if buf <= 0 {
		buf = defaultEventBuffer
	}
	events := make(chan model.Event, buf)

	s := &Session{
		ID:     id,
		Config: opts.Config,
		Browser: cdp.New(opts.Config.DevToolsURL, cdp.Options{
			Concurrency:     opts.Config.Concurrency,
			PendingCapacity: opts.Config.PendingCapacity,
			Events:          events,
			Logger:          l,
		}),
		Plugin: pageproxy.New(pageproxy.Config{
			Defaults: opts.Defaults,
			Fetcher:  opts.Fetcher,
			Events:   events,
			Logger:   l,
		}),
		events:    events,
		sink:      opts.Sink,
		log:       l,
		done:      make(chan struct{}),
		forwarded: make(chan struct{}),
	}
	go s.forward()
	return s
}

// Subscribe 订阅会话事件，会话关闭时通道关闭
func (s *Session) Subscribe() <-chan model.Event {
	ch := make(chan model.Event, subscriberBuffer)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch
	}
	s.subs = append(s.subs, ch)
	return ch
}

// forward 补全会话ID后落地并广播，订阅者跟不上时丢弃
func (s *Session) forward() {
	defer close(s.forwarded)
	for {
		select {
		case evt := <-s.events:
			s.deliver(evt)
		case <-s.done:
			return
		}
	}
}

func (s *Session) deliver(evt model.Event) {
	evt.Session = s.ID
	if s.sink != nil {
		s.sink(context.Background(), evt)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			s.log.Debug("订阅者缓冲已满，丢弃事件", "event", evt.ID)
		}
	}
}

// Close 分离全部目标、停止转发并关闭订阅
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.Browser.Close()
		close(s.done)
		<-s.forwarded

		s.mu.Lock()
		s.closed = true
		for _, ch := range s.subs {
			close(ch)
		}
		s.subs = nil
		s.mu.Unlock()
		s.log.Info("会话已关闭")
	})
	return err
}
