package cdp

import (
	"encoding/base64"
	"net/http"
	"testing"
	"time"

	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pageproxy/pkg/traffic"
)

func TestToNeutralRequest(t *testing.T) {
	body := "a=1&b=2"
	ev := &fetch.RequestPausedReply{
		RequestID: "interception-1",
		Request: network.Request{
			URL:      "https://example.com/form",
			Method:   http.MethodPost,
			Headers:  network.Headers(`{"Content-Type":"application/x-www-form-urlencoded","X-Multi":"a\nb"}`),
			PostData: &body,
		},
		ResourceType: network.ResourceTypeDocument,
	}

	req := ToNeutralRequest(ev)

	assert.Equal(t, "interception-1", req.ID)
	assert.Equal(t, "https://example.com/form", req.URL)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.True(t, req.IsNavigation)
	assert.Equal(t, "application/x-www-form-urlencoded", req.Headers.Get("content-type"))
	assert.Equal(t, []string{"a", "b"}, req.Headers.Values("x-multi"))
	assert.Equal(t, []byte(body), req.Body)
}

func TestToNeutralRequestSubResource(t *testing.T) {
	ev := &fetch.RequestPausedReply{
		Request:      network.Request{URL: "https://example.com/app.js", Method: http.MethodGet},
		ResourceType: network.ResourceTypeScript,
	}
	req := ToNeutralRequest(ev)
	assert.False(t, req.IsNavigation)
	assert.Nil(t, req.Body)
	assert.Empty(t, req.Headers)
}

func TestToNeutralRequestPostDataEntries(t *testing.T) {
	part1 := base64.StdEncoding.EncodeToString([]byte{0x00, 0xff, 'a'})
	part2 := base64.StdEncoding.EncodeToString([]byte("bc"))
	ev := &fetch.RequestPausedReply{
		Request: network.Request{
			URL:             "https://example.com/upload",
			Method:          http.MethodPost,
			HasPostData:     &[]bool{true}[0],
			PostDataEntries: []network.PostDataEntry{{Bytes: &part1}, {}, {Bytes: &part2}},
		},
		ResourceType: network.ResourceTypeXHR,
	}

	req := ToNeutralRequest(ev)

	assert.Equal(t, []byte{0x00, 0xff, 'a', 'b', 'c'}, req.Body)
	assert.False(t, req.BodyUnavailable)
}

func TestToNeutralRequestPostDataOmitted(t *testing.T) {
	ev := &fetch.RequestPausedReply{
		Request: network.Request{
			URL:         "https://example.com/upload",
			Method:      http.MethodPost,
			HasPostData: &[]bool{true}[0],
		},
		ResourceType: network.ResourceTypeXHR,
	}

	req := ToNeutralRequest(ev)

	assert.Nil(t, req.Body)
	assert.True(t, req.BodyUnavailable)
}

func TestToHeaderEntriesSplitsMultiValues(t *testing.T) {
	h := traffic.Header{}
	h.Add("Set-Cookie", "a=1")
	h.Add("Set-Cookie", "b=2")
	h.Set("Content-Type", "text/html")

	entries := ToHeaderEntries(h)

	assert.Equal(t, []fetch.HeaderEntry{
		{Name: "content-type", Value: "text/html"},
		{Name: "set-cookie", Value: "a=1"},
		{Name: "set-cookie", Value: "b=2"},
	}, entries)
}

func TestToHTTPCookie(t *testing.T) {
	exp := float64(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC).Unix())
	c := ToHTTPCookie(network.Cookie{
		Name: "sid", Value: "v", Domain: ".example.com", Path: "/",
		Expires: exp, Secure: true, HTTPOnly: true, SameSite: network.CookieSameSiteLax,
	})
	assert.Equal(t, ".example.com", c.Domain)
	assert.True(t, c.Secure)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, int64(exp), c.Expires.Unix())

	session := ToHTTPCookie(network.Cookie{Name: "s", Value: "1", Domain: "example.com", Session: true, Expires: -1})
	assert.True(t, session.Expires.IsZero())
}

func TestToSetCookieArgs(t *testing.T) {
	args := ToSetCookieArgs("https://example.com/login", &http.Cookie{
		Name: "sid", Value: "v", Path: "/app", HttpOnly: true, SameSite: http.SameSiteStrictMode,
		Expires: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.Equal(t, "sid", args.Name)
	require.NotNil(t, args.URL)
	assert.Equal(t, "https://example.com/login", *args.URL)
	assert.Nil(t, args.Domain)
	require.NotNil(t, args.Path)
	assert.Equal(t, "/app", *args.Path)
	assert.Equal(t, network.CookieSameSiteStrict, args.SameSite)
}

func TestToErrorReason(t *testing.T) {
	assert.Equal(t, network.ErrorReasonFailed, ToErrorReason("failed"))
	assert.Equal(t, network.ErrorReasonBlockedByClient, ToErrorReason("blockedbyclient"))
	assert.Equal(t, network.ErrorReasonTimedOut, ToErrorReason("TimedOut"))
	assert.Equal(t, network.ErrorReasonFailed, ToErrorReason("nonsense"))
}
