package cdp

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mafredri/cdp/protocol/fetch"

	"pageproxy/pkg/model"
)

// reasonQueueFull 处理队列已满
const reasonQueueFull = "pending queue full"

// consume 持续接收拦截事件并按并发限制分发处理
func (p *Page) consume(streamCtx context.Context, stream fetch.RequestPausedClient) {
	defer stream.Close()

	p.log.Info("开始消费拦截事件流")
	for {
		ev, err := stream.Recv()
		if err != nil {
			if streamCtx.Err() != nil {
				p.log.Debug("拦截事件流已停止")
				return
			}
			p.handleStreamClosed(err)
			return
		}
		p.dispatchPaused(ev)
	}
}

// dispatchPaused 根据并发配置调度单次拦截事件处理
func (p *Page) dispatchPaused(ev *fetch.RequestPausedReply) {
	if p.pool == nil {
		go p.handle(ev)
		return
	}
	if !p.pool.submit(func() { p.handle(ev) }) {
		p.degrade(ev, reasonQueueFull)
	}
}

// handle 依次交给全部监听，最后执行协作模式下的决议
func (p *Page) handle(ev *fetch.RequestPausedReply) {
	start := time.Now()
	req := newRequest(p.fetch, ev)
	for _, h := range p.snapshotHandlers() {
		h(p.ctx, req)
	}
	a, err := req.finalize(p.ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		p.log.Err(err, "提交拦截决议失败", "url", req.URL(), "action", a.String())
		return
	}
	p.log.Debug("拦截事件处理完成", "url", req.URL(), "duration", time.Since(start))
}

// handleStreamClosed 拦截流意外中断时分离目标
func (p *Page) handleStreamClosed(err error) {
	p.log.Warn("拦截流被中断，自动分离目标", "error", err)
	_ = p.close()
}

// degrade 队列已满时降级为独立 goroutine 处理，监听照常执行，不绕过代理决议
func (p *Page) degrade(ev *fetch.RequestPausedReply, reason string) {
	p.log.Warn("执行降级策略：独立处理", "reason", reason, "requestID", ev.RequestID)
	p.emit(model.Event{
		Outcome: model.OutcomeDegraded,
		Reason:  reason,
		URL:     ev.Request.URL,
		Method:  ev.Request.Method,
	})
	go p.handle(ev)
}

// emit 非阻塞发送页面级事件
func (p *Page) emit(evt model.Event) {
	if p.events == nil {
		return
	}
	evt.ID = uuid.NewString()
	evt.Target = p.id
	evt.Timestamp = time.Now().UnixMilli()
	select {
	case p.events <- evt:
	default:
	}
}
