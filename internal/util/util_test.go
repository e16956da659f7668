package util

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func robotsServer(t *testing.T, body string, status int, hits *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRobotsChecker_DisallowAndDelay(t *testing.T) {
	var hits int32
	server := robotsServer(t, "User-agent: Concord\nDisallow: /private/\nCrawl-delay: 2\n", http.StatusOK, &hits)
	checker := NewRobotsChecker("Concord/0.1 (+https://github.com/ppiankov/concord)", time.Second)
	ctx := context.Background()

	allowed, delay, err := checker.CanFetch(ctx, server.URL+"/facts.json")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 2*time.Second, delay)

	assert.False(t, checker.IsAllowed(ctx, server.URL+"/private/facts.json"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	checker.Clear()
	assert.True(t, checker.IsAllowed(ctx, server.URL+"/facts.json"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestRobotsChecker_MissingRobotsAllows(t *testing.T) {
	server := robotsServer(t, "", http.StatusNotFound, nil)
	checker := NewRobotsChecker("Concord/0.1", time.Second)
	assert.True(t, checker.IsAllowed(context.Background(), server.URL+"/anything"))
}

func TestRobotsChecker_UnreachableAllows(t *testing.T) {
	checker := NewRobotsChecker("Concord/0.1", 200*time.Millisecond)
	allowed, _, err := checker.CanFetch(context.Background(), "http://127.0.0.1:1/facts.json")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRobotsChecker_BadURL(t *testing.T) {
	checker := NewRobotsChecker("Concord/0.1", time.Second)
	_, _, err := checker.CanFetch(context.Background(), "ftp://example.com/facts.json")
	assert.Error(t, err)
	_, _, err = checker.CanFetch(context.Background(), "http://[::1")
	assert.Error(t, err)
}

func TestNormalizeUserAgent(t *testing.T) {
	assert.Equal(t, "Concord", NormalizeUserAgent("Concord/0.1 (+https://github.com/ppiankov/concord)"))
	assert.Equal(t, "curl", NormalizeUserAgent("curl"))
	assert.Equal(t, "", NormalizeUserAgent(""))
}

func TestNewProxyFunc(t *testing.T) {
	proxy := NewProxyFunc("http://proxy.internal:3128", "", "policies.internal")

	req := httptest.NewRequest(http.MethodGet, "https://example.com/facts.json", nil)
	got, err := proxy(req)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "proxy.internal:3128", got.Host)

	req = httptest.NewRequest(http.MethodGet, "http://policies.internal/facts.json", nil)
	got, err = proxy(req)
	require.NoError(t, err)
	assert.Nil(t, got)

	split := NewProxyFunc("http://plain:8080", "http://secure:8443", "")
	req = &http.Request{URL: &url.URL{Scheme: "https", Host: "example.com"}}
	got, err = split(req)
	require.NoError(t, err)
	assert.Equal(t, "secure:8443", got.Host)
}
