package binder

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/proxyservice/internal/entity"
)

// forwardProxy answers every request itself, recording what the client sent to the proxy.
type forwardProxy struct {
	srv      *httptest.Server
	hits     atomic.Int32
	lastAuth atomic.Value
	lastURL  atomic.Value
}

func newForwardProxy(t *testing.T) *forwardProxy {
	t.Helper()
	p := &forwardProxy{}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.hits.Add(1)
		p.lastAuth.Store(r.Header.Get("Proxy-Authorization"))
		p.lastURL.Store(r.URL.String())
		_, _ = io.WriteString(w, "proxied")
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *forwardProxy) url(userinfo string) string {
	return strings.Replace(p.srv.URL, "http://", "http://"+userinfo, 1)
}

func deadAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestTransport_SendsThroughBoundProxy(t *testing.T) {
	p := newForwardProxy(t)
	f := newFixture(t, []entity.ProxyRecord{{ID: 1, URL: p.url("u:p@")}})

	client := NewClient(f.binder, f.unit, 0)
	resp, err := client.Get("http://example.test/page")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "proxied", string(body))
	assert.Equal(t, int32(1), p.hits.Load())
	assert.Equal(t, "Basic dTpw", p.lastAuth.Load())
	assert.Equal(t, "http://example.test/page", p.lastURL.Load())
}

func TestTransport_RetriesThroughFreshProxy(t *testing.T) {
	p := newForwardProxy(t)
	f := newFixture(t,
		[]entity.ProxyRecord{{ID: 1, URL: "http://" + deadAddr(t)}},
		[]entity.ProxyRecord{{ID: 2, URL: p.url("")}},
	)

	client := NewClient(f.binder, f.unit, 1)
	resp, err := client.Get("http://example.test/page")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), p.hits.Load())
	assert.Equal(t, "", p.lastAuth.Load())
	assert.Equal(t, [][]int64{{1}}, f.inv.blockReports())
}

func TestTransport_NoRetryByDefault(t *testing.T) {
	f := newFixture(t,
		[]entity.ProxyRecord{{ID: 1, URL: "http://" + deadAddr(t)}},
		[]entity.ProxyRecord{{ID: 2, URL: "http://h2:80"}},
	)

	_, err := NewClient(f.binder, f.unit, 0).Get("http://example.test/page")
	assert.Error(t, err)
	assert.Equal(t, [][]int64{{1}}, f.inv.blockReports())
}

func TestTransport_DirectWhenSkipped(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "direct")
	}))
	defer origin.Close()
	f := newFixture(t, twoProxies)

	req, err := http.NewRequestWithContext(WithProxyDisabled(context.Background()), http.MethodGet, origin.URL, nil)
	require.NoError(t, err)

	resp, err := NewClient(f.binder, f.unit, 0).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "direct", string(body))
}

func TestProxyFromBinding(t *testing.T) {
	req := newRequest(t)
	u, err := ProxyFromBinding(req)
	require.NoError(t, err)
	assert.Nil(t, u)

	f := newFixture(t, []entity.ProxyRecord{{ID: 1, URL: "http://u:p@h1:80"}})
	bound, _ := f.binder.Bind(req, f.unit)
	u, err = ProxyFromBinding(bound)
	require.NoError(t, err)
	assert.Equal(t, "http://h1:80", u.String())
}

func TestConnectHeaderFromBinding(t *testing.T) {
	h, err := ConnectHeaderFromBinding(context.Background(), nil, "example.com:443")
	require.NoError(t, err)
	assert.Nil(t, h)

	ctx := withBinding(context.Background(), Binding{ProxyID: 1, Authorization: "Basic dTpw"})
	h, err = ConnectHeaderFromBinding(ctx, nil, "example.com:443")
	require.NoError(t, err)
	assert.Equal(t, "Basic dTpw", h.Get("Proxy-Authorization"))
}

func TestForOriginStripsProxyAuthorizationOverTLS(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://example.com/", nil)
	require.NoError(t, err)
	req.Header.Set("Proxy-Authorization", "Basic dTpw")

	out := forOrigin(req)
	assert.Empty(t, out.Header.Get("Proxy-Authorization"))
	assert.Equal(t, "Basic dTpw", req.Header.Get("Proxy-Authorization"))

	plain := newRequest(t)
	plain.Header.Set("Proxy-Authorization", "Basic dTpw")
	assert.Same(t, plain, forOrigin(plain))
}
