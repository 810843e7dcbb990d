package cdp

import (
	"context"
	"errors"
	"sync"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/rpcc"
)

// fakeStream 由通道驱动的 requestPaused 事件流
type fakeStream struct {
	rpcc.Stream
	ctx    context.Context
	events chan *fetch.RequestPausedReply
	fail   chan error
	closed chan struct{}
	once   sync.Once
}

func (s *fakeStream) Recv() (*fetch.RequestPausedReply, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case err := <-s.fail:
		return nil, err
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	case <-s.closed:
		return nil, errors.New("stream closed")
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// fakeFetch 记录 Fetch 域调用
type fakeFetch struct {
	cdp.Fetch

	mu        sync.Mutex
	enabled   int
	disabled  int
	continued []*fetch.ContinueRequestArgs
	fulfilled []*fetch.FulfillRequestArgs
	failed    []*fetch.FailRequestArgs
	stream    *fakeStream
	streamSet chan struct{}
}

func newFakeFetch() *fakeFetch {
	return &fakeFetch{streamSet: make(chan struct{})}
}

func (f *fakeFetch) Enable(context.Context, *fetch.EnableArgs) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled++
	return nil
}

func (f *fakeFetch) Disable(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disabled++
	return nil
}

func (f *fakeFetch) RequestPaused(ctx context.Context) (fetch.RequestPausedClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stream = &fakeStream{
		ctx:    ctx,
		events: make(chan *fetch.RequestPausedReply),
		fail:   make(chan error, 1),
		closed: make(chan struct{}),
	}
	select {
	case <-f.streamSet:
	default:
		close(f.streamSet)
	}
	return f.stream, nil
}

func (f *fakeFetch) ContinueRequest(_ context.Context, args *fetch.ContinueRequestArgs) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.continued = append(f.continued, args)
	return nil
}

func (f *fakeFetch) FulfillRequest(_ context.Context, args *fetch.FulfillRequestArgs) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fulfilled = append(f.fulfilled, args)
	return nil
}

func (f *fakeFetch) FailRequest(_ context.Context, args *fetch.FailRequestArgs) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, args)
	return nil
}

func (f *fakeFetch) counts() (continued, fulfilled, failed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.continued), len(f.fulfilled), len(f.failed)
}

func (f *fakeFetch) currentStream() *fakeStream {
	<-f.streamSet
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stream
}

// fakeNetwork 记录 Network 域 Cookie 调用
type fakeNetwork struct {
	cdp.Network

	mu      sync.Mutex
	cookies []network.Cookie
	urls    []string
	set     []*network.SetCookieArgs
}

func (n *fakeNetwork) GetCookies(_ context.Context, args *network.GetCookiesArgs) (*network.GetCookiesReply, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.urls = append(n.urls, args.URLs...)
	return &network.GetCookiesReply{Cookies: n.cookies}, nil
}

func (n *fakeNetwork) SetCookie(_ context.Context, args *network.SetCookieArgs) (*network.SetCookieReply, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.set = append(n.set, args)
	return &network.SetCookieReply{}, nil
}

func pausedEvent(id, url string, rt network.ResourceType) *fetch.RequestPausedReply {
	return &fetch.RequestPausedReply{
		RequestID:    fetch.RequestID(id),
		Request:      network.Request{URL: url, Method: "GET", Headers: network.Headers(`{"Accept":"*/*"}`)},
		ResourceType: rt,
	}
}
