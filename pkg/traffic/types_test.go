package traffic

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeaderCaseInsensitive(t *testing.T) {
	h := make(Header)
	h.Set("Content-Type", "text/html")

	assert.Equal(t, "text/html", h.Get("content-type"))
	assert.True(t, h.Has("CONTENT-TYPE"))

	h.Del("Content-type")
	assert.False(t, h.Has("content-type"))
}

func TestHeaderAddJoinsWithNewline(t *testing.T) {
	h := make(Header)
	h.Add("Set-Cookie", "a=1")
	h.Add("set-cookie", "b=2")

	assert.Equal(t, "a=1\nb=2", h.Get("set-cookie"))
	assert.Equal(t, []string{"a=1", "b=2"}, h.Values("Set-Cookie"))
	assert.Nil(t, h.Values("missing"))
}

func TestFromHTTP(t *testing.T) {
	src := http.Header{}
	src.Add("X-Trace", "1")
	src.Add("Set-Cookie", "a=1")
	src.Add("Set-Cookie", "b=2")

	h := FromHTTP(src)
	assert.Equal(t, "1", h.Get("x-trace"))
	assert.Equal(t, []string{"a=1", "b=2"}, h.Values("set-cookie"))
	assert.Equal(t, []string{"set-cookie", "x-trace"}, h.Keys())
}

func TestCloneIsIndependent(t *testing.T) {
	h := Header{"a": "1"}
	c := h.Clone()
	c.Set("a", "2")
	assert.Equal(t, "1", h.Get("a"))

	var nilHeader Header
	assert.Nil(t, nilHeader.Clone())
	assert.Equal(t, "", nilHeader.Get("a"))
}
