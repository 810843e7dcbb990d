package traffic

import (
	"net/http"
	"sort"
	"strings"
)

// Header 封装通用的头部操作，键统一为小写，多值以换行分隔（与 CDP 约定一致）
type Header map[string]string

// Get 获取指定 Header 的值（大小写不敏感）
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[strings.ToLower(key)]
}

// Set 设置指定 Header 的值（自动转换为小写）
func (h Header) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Add 追加一个值，已有值时以换行拼接
func (h Header) Add(key, value string) {
	k := strings.ToLower(key)
	if cur, ok := h[k]; ok && cur != "" {
		h[k] = cur + "\n" + value
		return
	}
	h[k] = value
}

// Values 返回拆分后的全部值
func (h Header) Values(key string) []string {
	v, ok := h[strings.ToLower(key)]
	if !ok {
		return nil
	}
	return strings.Split(v, "\n")
}

// Del 删除指定 Header
func (h Header) Del(key string) {
	delete(h, strings.ToLower(key))
}

// Has 判断是否存在指定 Header
func (h Header) Has(key string) bool {
	_, ok := h[strings.ToLower(key)]
	return ok
}

// Clone 深拷贝
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	out := make(Header, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Keys 返回排序后的键
func (h Header) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromHTTP 将 net/http 的 Header 转为中立 Header
func FromHTTP(src http.Header) Header {
	out := make(Header, len(src))
	for k, vs := range src {
		for _, v := range vs {
			out.Add(k, v)
		}
	}
	return out
}

// Request 中立的请求模型
type Request struct {
	ID           string // 事务唯一ID
	URL          string // 完整URL
	Method       string // HTTP方法
	Headers      Header // 请求头
	Body         []byte // 请求体原始数据
	ResourceType string // 资源类型 (如 Document, XHR)
	IsNavigation bool   // 是否为导航请求

	BodyUnavailable bool // 声明有请求体但事件未携带
}

// Response 中立的响应模型
type Response struct {
	StatusCode int    // 状态码
	Headers    Header // 响应头
	Body       []byte // 响应体数据
}

// NewRequest 创建初始化请求对象
func NewRequest() *Request {
	return &Request{
		Headers: make(Header),
	}
}

// NewResponse 创建初始化响应对象
func NewResponse() *Response {
	return &Response{
		StatusCode: http.StatusOK,
		Headers:    make(Header),
	}
}
