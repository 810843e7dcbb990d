package pagestore

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pageproxy/internal/browser/browsertest"
	"pageproxy/pkg/model"
)

func TestGetUnknownPageInheritsEverything(t *testing.T) {
	s := New()
	cfg := s.Get(browsertest.NewPage())
	assert.Nil(t, cfg.ProxyURL)
	assert.Nil(t, cfg.OnlyNavigation)
	assert.Nil(t, cfg.InterceptResolutionPriority)
}

func TestSetReplacesWithoutMerge(t *testing.T) {
	s := New()
	p := browsertest.NewPage()

	s.Set(p, model.PageConfig{
		ProxyURL:     model.String("http://a:1"),
		ProxyOptions: model.ProxyOptions{OnlyNavigation: model.Bool(true), InterceptResolutionPriority: model.Int(3)},
	})
	s.Set(p, model.PageConfig{ProxyURL: model.String("http://b:2")})

	cfg := s.Get(p)
	assert.Equal(t, "http://b:2", *cfg.ProxyURL)
	assert.Nil(t, cfg.OnlyNavigation)
	assert.Nil(t, cfg.InterceptResolutionPriority)
}

func TestPagesAreIsolated(t *testing.T) {
	s := New()
	a, b := browsertest.NewPage(), browsertest.NewPage()

	s.Set(a, model.PageConfig{ProxyURL: model.String("http://a:1")})

	assert.Equal(t, "http://a:1", *s.Get(a).ProxyURL)
	assert.Nil(t, s.Get(b).ProxyURL)
}

func TestMarkRegisteredOnlyOnce(t *testing.T) {
	s := New()
	p := browsertest.NewPage()

	assert.True(t, s.MarkRegistered(p))
	assert.False(t, s.MarkRegistered(p))
	s.Set(p, model.PageConfig{})
	assert.False(t, s.MarkRegistered(p))
}

func TestEntryRemovedWhenPageCloses(t *testing.T) {
	s := New()
	p := browsertest.NewPage()
	s.Set(p, model.PageConfig{ProxyURL: model.String("http://a:1")})
	s.MarkRegistered(p)
	assert.Equal(t, 1, s.Len())

	p.Close()
	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Nil(t, s.Get(p).ProxyURL)
}

func TestEntryDroppedWhenPageCollected(t *testing.T) {
	s := New()
	func() {
		p := browsertest.NewPage()
		s.Set(p, model.PageConfig{ProxyURL: model.String("http://a:1")})
		s.MarkRegistered(p)
	}()
	assert.Equal(t, 1, s.Len())

	// 页面未关闭但已无人引用
	assert.Eventually(t, func() bool {
		runtime.GC()
		return s.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMerge(t *testing.T) {
	global := model.ProxyDefaults{
		ProxyURL:                    "http://proxy:8080",
		OnlyNavigation:              model.Bool(true),
		InterceptResolutionPriority: model.Int(1),
	}

	t.Run("inherit", func(t *testing.T) {
		eff := Merge(model.PageConfig{}, global)
		assert.Equal(t, "http://proxy:8080", eff.ProxyURL)
		assert.False(t, eff.Disabled)
		assert.True(t, eff.OnlyNavigation)
		assert.Equal(t, 1, *eff.Priority)
	})

	t.Run("page overrides per field", func(t *testing.T) {
		eff := Merge(model.PageConfig{
			ProxyURL:     model.String("http://page:1"),
			ProxyOptions: model.ProxyOptions{OnlyNavigation: model.Bool(false)},
		}, global)
		assert.Equal(t, "http://page:1", eff.ProxyURL)
		assert.False(t, eff.OnlyNavigation)
		assert.Equal(t, 1, *eff.Priority)
	})

	t.Run("explicit disable", func(t *testing.T) {
		eff := Merge(model.PageConfig{ProxyURL: model.String("")}, global)
		assert.True(t, eff.Disabled)
		assert.Empty(t, eff.ProxyURL)
	})

	t.Run("no global", func(t *testing.T) {
		eff := Merge(model.PageConfig{}, model.ProxyDefaults{})
		assert.Empty(t, eff.ProxyURL)
		assert.False(t, eff.OnlyNavigation)
		assert.Nil(t, eff.Priority)
	})
}
