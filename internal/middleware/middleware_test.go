package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

var noContent = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

func serve(h http.Handler, remote string, hdr map[string]string) int {
	req := httptest.NewRequest(http.MethodGet, "/postcodes", nil)
	req.RemoteAddr = remote
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimit_RejectsOverBurst(t *testing.T) {
	h := RateLimit(noContent, 0.001, 2)
	assert.Equal(t, http.StatusNoContent, serve(h, "10.0.0.1:1", nil))
	assert.Equal(t, http.StatusNoContent, serve(h, "10.0.0.1:1", nil))
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "10.0.0.1:1", nil))
}

func TestACL(t *testing.T) {
	a := &ACL{enabled: true, realIPHeader: "X-Forwarded-For"}
	a.Allow("10.0.0.0/8", "192.168.1.7", "bogus", "2001:db8::/32")
	h := a.Wrap(noContent)

	assert.Equal(t, http.StatusNoContent, serve(h, "10.1.2.3:5000", nil))
	assert.Equal(t, http.StatusNoContent, serve(h, "192.168.1.7:5000", nil))
	assert.Equal(t, http.StatusForbidden, serve(h, "192.168.1.8:5000", nil))
	assert.Equal(t, http.StatusNoContent, serve(h, "[2001:db8::1]:443", nil))
	assert.Equal(t, http.StatusNoContent, serve(h, "8.8.8.8:1", map[string]string{"X-Forwarded-For": "10.9.9.9, 8.8.8.8"}))
	assert.Equal(t, http.StatusForbidden, serve(h, "garbage", nil))
}

func TestACL_DisabledPassesThrough(t *testing.T) {
	t.Setenv("ACCESS_ALLOW_ENABLE", "")
	assert.Equal(t, http.StatusNoContent, serve(NewACLFromEnv().Wrap(noContent), "8.8.8.8:1", nil))
}
