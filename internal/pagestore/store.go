package pagestore

import (
	"context"
	"reflect"
	"runtime"
	"sync"
	"weak"

	"pageproxy/internal/browser"
	"pageproxy/pkg/model"
)

type entry struct {
	cfg        model.PageConfig
	registered bool
}

// Store 页面级代理配置表，条目随页面销毁或被回收而移除。
// 指针类型的页面以弱引用为键，配置表不会延长页面的生命周期
type Store struct {
	mu      sync.RWMutex
	entries map[any]*entry
}

// New 创建配置表
func New() *Store {
	return &Store{entries: make(map[any]*entry)}
}

// keyOf 指针页面返回弱引用键，其他实现退化为以值本身为键
func keyOf(page browser.Page) (key any, ptr *byte) {
	v := reflect.ValueOf(page)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return page, nil
	}
	ptr = (*byte)(v.UnsafePointer())
	return weak.Make(ptr), ptr
}

// Set 整体替换页面配置（不做合并）
func (s *Store) Set(page browser.Page, cfg model.PageConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track(page).cfg = cfg
}

// Get 返回页面配置快照，未知页面返回零值（全部沿用全局）
func (s *Store) Get(page browser.Page) model.PageConfig {
	key, _ := keyOf(page)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[key]; ok {
		return e.cfg
	}
	return model.PageConfig{}
}

// MarkRegistered 记录页面已挂载请求监听，仅首次返回 true
func (s *Store) MarkRegistered(page browser.Page) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.track(page)
	if e.registered {
		return false
	}
	e.registered = true
	return true
}

// Len 当前存活页面数
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// track 调用方需持有写锁
func (s *Store) track(page browser.Page) *entry {
	key, ptr := keyOf(page)
	if e, ok := s.entries[key]; ok {
		return e
	}
	e := &entry{}
	s.entries[key] = e
	context.AfterFunc(page.Context(), func() { s.forget(key, e) })
	if ptr != nil {
		runtime.AddCleanup(ptr, func(k any) { s.forget(k, e) }, key)
	}
	return e
}

func (s *Store) forget(key any, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[key]; ok && cur == e {
		delete(s.entries, key)
	}
}

// Merge 按字段合并页面配置与全局默认值，页面优先
func Merge(page model.PageConfig, global model.ProxyDefaults) model.EffectiveConfig {
	eff := model.EffectiveConfig{ProxyURL: global.ProxyURL}
	if page.ProxyURL != nil {
		eff.ProxyURL = *page.ProxyURL
		eff.Disabled = *page.ProxyURL == ""
	}
	switch {
	case page.OnlyNavigation != nil:
		eff.OnlyNavigation = *page.OnlyNavigation
	case global.OnlyNavigation != nil:
		eff.OnlyNavigation = *global.OnlyNavigation
	}
	eff.Priority = page.InterceptResolutionPriority
	if eff.Priority == nil {
		eff.Priority = global.InterceptResolutionPriority
	}
	return eff
}
