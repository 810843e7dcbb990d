package cdp

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/tidwall/gjson"

	"pageproxy/pkg/traffic"
)

// ToNeutralRequest 将 CDP 拦截事件转换为中立 Request 模型
func ToNeutralRequest(ev *fetch.RequestPausedReply) *traffic.Request {
	req := traffic.NewRequest()
	req.ID = string(ev.RequestID)
	req.URL = ev.Request.URL
	req.Method = ev.Request.Method
	req.ResourceType = string(ev.ResourceType)
	req.IsNavigation = ev.ResourceType == network.ResourceTypeDocument

	if len(ev.Request.Headers) > 0 {
		gjson.ParseBytes(ev.Request.Headers).ForEach(func(k, v gjson.Result) bool {
			req.Headers.Set(k.String(), v.String())
			return true
		})
	}
	req.Body, req.BodyUnavailable = postData(ev.Request)
	return req
}

// postData 优先取 PostDataEntries 原始字节，PostData 过长时会被省略
func postData(r network.Request) ([]byte, bool) {
	if len(r.PostDataEntries) > 0 {
		var buf bytes.Buffer
		for _, e := range r.PostDataEntries {
			if e.Bytes == nil {
				continue
			}
			b, err := base64.StdEncoding.DecodeString(*e.Bytes)
			if err != nil {
				return nil, true
			}
			buf.Write(b)
		}
		if buf.Len() > 0 {
			return buf.Bytes(), false
		}
	}
	if r.PostData != nil {
		return []byte(*r.PostData), false
	}
	return nil, r.HasPostData != nil && *r.HasPostData
}

// ToHeaderEntries 将中立 Header 转换为 CDP Header 条目，多值按行拆开
func ToHeaderEntries(h traffic.Header) []fetch.HeaderEntry {
	keys := h.Keys()
	entries := make([]fetch.HeaderEntry, 0, len(keys))
	for _, k := range keys {
		for _, v := range h.Values(k) {
			entries = append(entries, fetch.HeaderEntry{Name: k, Value: v})
		}
	}
	return entries
}

// ToHTTPCookie 浏览器 Cookie 转为 net/http 形式，Domain 原样保留
func ToHTTPCookie(c network.Cookie) *http.Cookie {
	out := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
		SameSite: toHTTPSameSite(c.SameSite),
	}
	if !c.Session && c.Expires > 0 {
		sec := int64(c.Expires)
		out.Expires = time.Unix(sec, int64((c.Expires-float64(sec))*1e9))
	}
	return out
}

// ToSetCookieArgs 构造写回浏览器的参数，作用域为请求 URL
func ToSetCookieArgs(rawURL string, c *http.Cookie) *network.SetCookieArgs {
	args := network.NewSetCookieArgs(c.Name, c.Value).
		SetURL(rawURL).
		SetSecure(c.Secure).
		SetHTTPOnly(c.HttpOnly)
	if c.Domain != "" {
		args.SetDomain(c.Domain)
	}
	if c.Path != "" {
		args.SetPath(c.Path)
	}
	if ss, ok := toCDPSameSite(c.SameSite); ok {
		args.SetSameSite(ss)
	}
	switch {
	case c.MaxAge < 0:
		// 立即过期
		args.SetExpires(network.TimeSinceEpoch(1))
	case c.MaxAge > 0:
		args.SetExpires(network.TimeSinceEpoch(time.Now().Add(time.Duration(c.MaxAge) * time.Second).Unix()))
	case !c.Expires.IsZero():
		args.SetExpires(network.TimeSinceEpoch(c.Expires.Unix()))
	}
	return args
}

func toHTTPSameSite(s network.CookieSameSite) http.SameSite {
	switch s {
	case network.CookieSameSiteStrict:
		return http.SameSiteStrictMode
	case network.CookieSameSiteLax:
		return http.SameSiteLaxMode
	case network.CookieSameSiteNone:
		return http.SameSiteNoneMode
	}
	return http.SameSiteDefaultMode
}

func toCDPSameSite(s http.SameSite) (network.CookieSameSite, bool) {
	switch s {
	case http.SameSiteStrictMode:
		return network.CookieSameSiteStrict, true
	case http.SameSiteLaxMode:
		return network.CookieSameSiteLax, true
	case http.SameSiteNoneMode:
		return network.CookieSameSiteNone, true
	}
	return "", false
}

var errorReasons = map[string]network.ErrorReason{
	"aborted":              network.ErrorReasonAborted,
	"accessdenied":         network.ErrorReasonAccessDenied,
	"addressunreachable":   network.ErrorReasonAddressUnreachable,
	"blockedbyclient":      network.ErrorReasonBlockedByClient,
	"blockedbyresponse":    network.ErrorReasonBlockedByResponse,
	"connectionaborted":    network.ErrorReasonConnectionAborted,
	"connectionclosed":     network.ErrorReasonConnectionClosed,
	"connectionfailed":     network.ErrorReasonConnectionFailed,
	"connectionrefused":    network.ErrorReasonConnectionRefused,
	"connectionreset":      network.ErrorReasonConnectionReset,
	"failed":               network.ErrorReasonFailed,
	"internetdisconnected": network.ErrorReasonInternetDisconnected,
	"namenotresolved":      network.ErrorReasonNameNotResolved,
	"timedout":             network.ErrorReasonTimedOut,
}

// ToErrorReason 中止原因映射为 CDP 错误码，未知原因按 failed 处理
func ToErrorReason(reason string) network.ErrorReason {
	if r, ok := errorReasons[strings.ToLower(reason)]; ok {
		return r
	}
	return network.ErrorReasonFailed
}
