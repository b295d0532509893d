package proxy

import "errors"

var (
	// ErrPoolEmpty is returned by Pool.Next when the pool holds no proxies.
	ErrPoolEmpty = errors.New("proxy pool is empty")

	// ErrNoProxyAvailable is returned by Manager.ProxyFor when the pool is still empty after one
	// forced reload. It is not fatal: callers send the request without a proxy.
	// When the reload itself failed the cause is wrapped alongside it.
	ErrNoProxyAvailable = errors.New("no proxy currently available")
)
