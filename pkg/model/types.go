package model

type SessionID string
type TargetID string

type SessionConfig struct {
	DevToolsURL     string `json:"devToolsURL"`
	Concurrency     int    `json:"concurrency"`
	PendingCapacity int    `json:"pendingCapacity"`
}

type TargetInfo struct {
	ID       TargetID `json:"id"`
	Type     string   `json:"type"`
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Attached bool     `json:"attached"`
}

// ProxyOptions 页面级代理选项，nil 表示沿用全局默认
type ProxyOptions struct {
	OnlyNavigation              *bool `json:"onlyNavigation,omitempty" yaml:"onlyNavigation"`
	InterceptResolutionPriority *int  `json:"interceptResolutionPriority,omitempty" yaml:"interceptResolutionPriority"`
}

// PageConfig 单个页面的代理配置
//
// ProxyURL 为 nil 表示沿用全局代理；指向空串表示该页面显式禁用代理。
type PageConfig struct {
	ProxyURL *string
	ProxyOptions
}

// ProxyDefaults 进程级默认配置，构造后不可变
type ProxyDefaults struct {
	ProxyURL                    string
	OnlyNavigation              *bool
	InterceptResolutionPriority *int
}

// EffectiveConfig 单次请求生效的配置快照
type EffectiveConfig struct {
	ProxyURL       string
	Disabled       bool
	OnlyNavigation bool
	Priority       *int
}

// Outcome 拦截决策结果
type Outcome string

const (
	OutcomeIgnored  Outcome = "ignored"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeProxied  Outcome = "proxied"
	OutcomeAborted  Outcome = "aborted"
	OutcomeDegraded Outcome = "degraded" // 处理队列已满，改为独立处理

)

// Event 一次拦截决策的通知
type Event struct {
	ID         string            `json:"id"`
	Session    SessionID         `json:"session"`
	Target     TargetID          `json:"target"`
	Outcome    Outcome           `json:"outcome"`
	Reason     string            `json:"reason,omitempty"`
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	ProxyURL   string            `json:"proxyURL,omitempty"`
	StatusCode int               `json:"statusCode,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	DurationMS int64             `json:"durationMS"`
	Error      string            `json:"error,omitempty"`
	Timestamp  int64             `json:"timestamp"`
}

// Bool 返回指针，便于构造可选字段
func Bool(v bool) *bool { return &v }

// Int 返回指针，便于构造可选字段
func Int(v int) *int { return &v }

// String 返回指针，便于构造可选字段
func String(v string) *string { return &v }
