package binder

import (
	"context"
	"net/url"
)

// Binding is the proxy assignment attached to one outbound request.
type Binding struct {
	ProxyID int64
	// ProxyURL carries scheme, host and port only.
	ProxyURL *url.URL
	// Authorization is the Proxy-Authorization value, empty when the proxy URL had no credentials.
	Authorization string
}

type bindingKey struct{}

type disabledKey struct{}

func withBinding(ctx context.Context, b Binding) context.Context {
	return context.WithValue(ctx, bindingKey{}, b)
}

// BindingFrom returns the binding stored in ctx.
func BindingFrom(ctx context.Context) (Binding, bool) {
	b, ok := ctx.Value(bindingKey{}).(Binding)
	return b, ok
}

// WithProxyDisabled marks requests made with ctx to be sent without a proxy.
func WithProxyDisabled(ctx context.Context) context.Context {
	return context.WithValue(ctx, disabledKey{}, true)
}

// ProxyDisabled reports whether ctx carries the WithProxyDisabled flag.
func ProxyDisabled(ctx context.Context) bool {
	disabled, _ := ctx.Value(disabledKey{}).(bool)
	return disabled
}
