package cdp

import (
	"context"
	"net/http"
	"sync"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/fetch"

	adapter "pageproxy/internal/adapter/cdp"
	"pageproxy/internal/browser"
	"pageproxy/pkg/traffic"
)

// action 协作模式下的候选决议，数值越大同优先级下越优先
type action int

const (
	actionNone action = iota
	actionContinue
	actionRespond
	actionAbort
)

func (a action) String() string {
	switch a {
	case actionContinue:
		return "continue"
	case actionRespond:
		return "respond"
	case actionAbort:
		return "abort"
	}
	return "none"
}

// Request 一次 Fetch.requestPaused 拦截
//
// priority 为 nil 的决议立即发往浏览器；带优先级的决议先记录，
// 所有监听返回后由 finalize 选出最高优先级的一个执行。
type Request struct {
	fetch cdp.Fetch
	id    fetch.RequestID
	info  *traffic.Request

	mu        sync.Mutex
	handled   bool
	action    action
	priority  int
	overrides *browser.ContinueOverrides
	response  *traffic.Response
	reason    string
}

func newRequest(f cdp.Fetch, ev *fetch.RequestPausedReply) *Request {
	return &Request{
		fetch: f,
		id:    ev.RequestID,
		info:  adapter.ToNeutralRequest(ev),
	}
}

func (r *Request) ID() string                { return r.info.ID }
func (r *Request) URL() string               { return r.info.URL }
func (r *Request) Method() string            { return r.info.Method }
func (r *Request) PostData() []byte          { return r.info.Body }
func (r *Request) Headers() traffic.Header   { return r.info.Headers.Clone() }
func (r *Request) IsNavigationRequest() bool { return r.info.IsNavigation }
func (r *Request) PostDataUnavailable() bool { return r.info.BodyUnavailable }

func (r *Request) IsInterceptResolutionHandled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handled
}

// ContinueRequestOverrides 当前记录的放行覆盖项
func (r *Request) ContinueRequestOverrides() *browser.ContinueOverrides {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overrides
}

// Continue 放行请求
func (r *Request) Continue(ctx context.Context, overrides *browser.ContinueOverrides, priority *int) error {
	immediate, err := r.offer(actionContinue, priority, func() { r.overrides = overrides })
	if !immediate || err != nil {
		return err
	}
	return r.doContinue(ctx, overrides)
}

// Respond 以给定响应完成请求
func (r *Request) Respond(ctx context.Context, resp *traffic.Response, priority *int) error {
	immediate, err := r.offer(actionRespond, priority, func() { r.response = resp })
	if !immediate || err != nil {
		return err
	}
	return r.doRespond(ctx, resp)
}

// Abort 中止请求
func (r *Request) Abort(ctx context.Context, reason string, priority *int) error {
	immediate, err := r.offer(actionAbort, priority, func() { r.reason = reason })
	if !immediate || err != nil {
		return err
	}
	return r.doAbort(ctx, reason)
}

// offer 记录候选决议；返回 true 表示调用方需立即执行
func (r *Request) offer(a action, priority *int, record func()) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handled {
		return false, browser.ErrAlreadyHandled
	}
	if priority == nil {
		r.handled = true
		return true, nil
	}
	p := *priority
	if r.action == actionNone || p > r.priority || (p == r.priority && a >= r.action) {
		r.action = a
		r.priority = p
		record()
	}
	return false, nil
}

// finalize 执行协作模式下胜出的决议，无人决议时放行
func (r *Request) finalize(ctx context.Context) (action, error) {
	r.mu.Lock()
	if r.handled {
		r.mu.Unlock()
		return actionNone, nil
	}
	r.handled = true
	a, ov, resp, reason := r.action, r.overrides, r.response, r.reason
	r.mu.Unlock()

	switch a {
	case actionRespond:
		return a, r.doRespond(ctx, resp)
	case actionAbort:
		return a, r.doAbort(ctx, reason)
	case actionContinue:
		return a, r.doContinue(ctx, ov)
	}
	return actionContinue, r.doContinue(ctx, nil)
}

func (r *Request) doContinue(ctx context.Context, ov *browser.ContinueOverrides) error {
	args := &fetch.ContinueRequestArgs{RequestID: r.id}
	if ov != nil {
		args.URL = ov.URL
		args.Method = ov.Method
		if ov.PostData != nil {
			args.PostData = ov.PostData
		}
		if ov.Headers != nil {
			args.Headers = adapter.ToHeaderEntries(ov.Headers)
		}
	}
	return r.fetch.ContinueRequest(ctx, args)
}

func (r *Request) doRespond(ctx context.Context, resp *traffic.Response) error {
	code := resp.StatusCode
	if code == 0 {
		code = http.StatusOK
	}
	args := &fetch.FulfillRequestArgs{
		RequestID:       r.id,
		ResponseCode:    code,
		ResponseHeaders: adapter.ToHeaderEntries(resp.Headers),
	}
	if len(resp.Body) > 0 {
		args.Body = resp.Body
	}
	return r.fetch.FulfillRequest(ctx, args)
}

func (r *Request) doAbort(ctx context.Context, reason string) error {
	return r.fetch.FailRequest(ctx, &fetch.FailRequestArgs{
		RequestID:   r.id,
		ErrorReason: adapter.ToErrorReason(reason),
	})
}
