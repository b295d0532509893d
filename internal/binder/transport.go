package binder

import (
	"context"
	"net/http"
	"net/url"

	"github.com/user/proxyservice/internal/entity"
)

// ProxyFromBinding is an http.Transport Proxy func that dials the proxy bound to the request.
// Unbound requests go out directly.
func ProxyFromBinding(req *http.Request) (*url.URL, error) {
	if b, ok := BindingFrom(req.Context()); ok && b.ProxyURL != nil {
		return b.ProxyURL, nil
	}
	return nil, nil
}

// ConnectHeaderFromBinding is an http.Transport GetProxyConnectHeader func
// that authenticates the CONNECT request of HTTPS targets.
func ConnectHeaderFromBinding(ctx context.Context, _ *url.URL, _ string) (http.Header, error) {
	b, ok := BindingFrom(ctx)
	if !ok || b.Authorization == "" {
		return nil, nil
	}
	return http.Header{"Proxy-Authorization": {b.Authorization}}, nil
}

// NewHTTPTransport returns a clone of http.DefaultTransport routed through request bindings.
func NewHTTPTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = ProxyFromBinding
	t.GetProxyConnectHeader = ConnectHeaderFromBinding
	return t
}

// Transport binds every request for one unit and evaluates the result.
type Transport struct {
	Binder *Binder
	Unit   entity.Unit
	// Base must honour request bindings; nil uses NewHTTPTransport.
	Base http.RoundTripper
	// Retries is how many times a request is re-sent through a fresh proxy after a blocking transport failure.
	Retries int
}

// NewClient returns an http.Client sending requests for unit through b.
func NewClient(b *Binder, unit entity.Unit, retries int) *http.Client {
	return &http.Client{Transport: &Transport{Binder: b, Unit: unit, Base: NewHTTPTransport(), Retries: retries}}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = defaultTransport
	}

	out, _ := t.Binder.Bind(req, t.Unit)
	for attempt := 0; ; attempt++ {
		resp, err := base.RoundTrip(forOrigin(out))
		verdict, next := t.Binder.Evaluate(out, resp, err, t.Unit)
		if verdict == OK || err == nil || attempt >= t.Retries {
			return resp, err
		}
		if _, bound := BindingFrom(next.Context()); !bound {
			return resp, err
		}
		if next.Body != nil && next.Body != http.NoBody {
			if next.GetBody == nil {
				return resp, err
			}
			body, berr := next.GetBody()
			if berr != nil {
				return resp, err
			}
			next.Body = body
		}
		out = next
	}
}

var defaultTransport = NewHTTPTransport()

// forOrigin strips Proxy-Authorization from HTTPS requests: the proxy only sees the CONNECT request,
// everything else reaches the origin.
func forOrigin(req *http.Request) *http.Request {
	if req.URL.Scheme != "https" || req.Header.Get("Proxy-Authorization") == "" {
		return req
	}
	out := req.Clone(req.Context())
	out.Header.Del("Proxy-Authorization")
	return out
}
