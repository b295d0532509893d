package utils

import (
	"encoding/base64"
	"fmt"
	"net/url"
)

// ExtractAuth splits the credentials out of a proxy URL.
// The returned URL keeps only scheme, host and port.
func ExtractAuth(rawURL string) (user, password string, stripped *url.URL, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", nil, fmt.Errorf("invalid proxy url %q: scheme and host are required", RedactURL(rawURL))
	}
	if u.User != nil {
		user = u.User.Username()
		password, _ = u.User.Password()
	}
	return user, password, &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}

// BasicAuth returns the value of a Basic Authorization or Proxy-Authorization header.
func BasicAuth(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}

// RedactURL masks the password of a URL so it can be logged.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
