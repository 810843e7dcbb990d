package pageproxy

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pageproxy/internal/browser"
	"pageproxy/internal/browser/browsertest"
	"pageproxy/internal/executor"
	"pageproxy/pkg/model"
	"pageproxy/pkg/traffic"
)

type recordingFetcher struct {
	mu      sync.Mutex
	proxies []string
}

func (f *recordingFetcher) ProxiedResponse(_ context.Context, _ browser.Request, _ browser.CookieStore, proxyURL string, _ *executor.Overrides) (*traffic.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proxies = append(f.proxies, proxyURL)
	return traffic.NewResponse(), nil
}

func TestOnPageCreatedInheritsGlobal(t *testing.T) {
	f := &recordingFetcher{}
	p := New(Config{Defaults: model.ProxyDefaults{ProxyURL: "http://proxy:8080"}, Fetcher: f})
	page := browsertest.NewPage()

	require.NoError(t, p.OnPageCreated(context.Background(), page))
	assert.True(t, page.Intercepting())
	assert.Equal(t, 1, page.HandlerCount())

	req := browsertest.NewRequest("https://example.com/")
	page.Emit(context.Background(), req)

	require.Len(t, req.Responded, 1)
	assert.Equal(t, http.StatusOK, req.Responded[0].StatusCode)
	assert.Equal(t, []string{"http://proxy:8080"}, f.proxies)
}

func TestActivationIsIdempotentAndReplaces(t *testing.T) {
	f := &recordingFetcher{}
	p := New(Config{Fetcher: f})
	page := browsertest.NewPage()
	ctx := context.Background()

	require.NoError(t, p.UseProxy(ctx, page, "http://first:1", model.ProxyOptions{OnlyNavigation: model.Bool(true)}))
	require.NoError(t, p.UseProxy(ctx, page, "http://second:2", model.ProxyOptions{}))

	assert.Equal(t, 1, page.HandlerCount())
	assert.EqualValues(t, 2, page.EnableCalls.Load())

	cfg := p.PageConfig(page)
	assert.Equal(t, "http://second:2", *cfg.ProxyURL)
	assert.Nil(t, cfg.OnlyNavigation, "options from the first activation must not survive")

	req := browsertest.NewRequest("https://example.com/app.js")
	page.Emit(ctx, req)
	assert.Len(t, req.Responded, 1)
	assert.Equal(t, []string{"http://second:2"}, f.proxies)
}

func TestUseProxyEmptyDisablesPage(t *testing.T) {
	f := &recordingFetcher{}
	p := New(Config{Defaults: model.ProxyDefaults{ProxyURL: "http://proxy:8080"}, Fetcher: f})
	page := browsertest.NewPage()

	require.NoError(t, p.UseProxy(context.Background(), page, "", model.ProxyOptions{}))

	req := browsertest.NewRequest("https://example.com/")
	page.Emit(context.Background(), req)
	assert.Len(t, req.Continued, 1)
	assert.Empty(t, f.proxies)
}

func TestUseProxyOptionsClearsPageProxy(t *testing.T) {
	f := &recordingFetcher{}
	p := New(Config{Defaults: model.ProxyDefaults{ProxyURL: "http://global:1"}, Fetcher: f})
	page := browsertest.NewPage()
	ctx := context.Background()

	require.NoError(t, p.UseProxy(ctx, page, "http://page:2", model.ProxyOptions{}))
	require.NoError(t, p.UseProxyOptions(ctx, page, model.ProxyOptions{InterceptResolutionPriority: model.Int(9)}))

	req := browsertest.NewRequest("https://example.com/")
	page.Emit(ctx, req)
	assert.Equal(t, []string{"http://global:1"}, f.proxies)
	require.Len(t, req.Priorities, 1)
	assert.Equal(t, 9, *req.Priorities[0])
}

func TestPagesDoNotShareConfig(t *testing.T) {
	f := &recordingFetcher{}
	p := New(Config{Fetcher: f})
	ctx := context.Background()
	a, b := browsertest.NewPage(), browsertest.NewPage()

	require.NoError(t, p.UseProxy(ctx, a, "http://a:1", model.ProxyOptions{}))
	require.NoError(t, p.OnPageCreated(ctx, b))

	ra := browsertest.NewRequest("https://example.com/")
	rb := browsertest.NewRequest("https://example.com/")
	a.Emit(ctx, ra)
	b.Emit(ctx, rb)

	assert.Len(t, ra.Responded, 1)
	assert.Len(t, rb.Continued, 1)
	assert.Equal(t, []string{"http://a:1"}, f.proxies)
}
