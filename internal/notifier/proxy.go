package notifier

import (
	"fmt"
	"net/http"
	"net/url"
)

// proxyTransport returns a transport routed through proxyURL, or a direct
// one when proxyURL is empty.
func proxyTransport(proxyURL string) (*http.Transport, error) {
	transport := &http.Transport{}
	if proxyURL == "" {
		return transport, nil
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parse proxy url %q: scheme and host are required", proxyURL)
	}
	transport.Proxy = http.ProxyURL(u)
	return transport, nil
}
