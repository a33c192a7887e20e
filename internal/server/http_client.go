package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"time"

	"github.com/respcache/respcache/internal/config"
	"github.com/respcache/respcache/internal/revalidate"
)

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewUpstreamClient 返回共享 http.Client，用于所有上游请求。
func NewUpstreamClient(cfg *config.Config) *http.Client {
	timeout := 30 * time.Second
	if cfg != nil && cfg.Global.UpstreamTimeout.DurationValue() > 0 {
		timeout = cfg.Global.UpstreamTimeout.DurationValue()
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: defaultTransport.Clone(),
	}
}

// hopByHopHeaders 定义 RFC 7230 中禁止代理转发的头部。
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Proxy-Connection":    {}, // 非标准字段，但部分代理仍使用
}

func isHopByHopHeader(key string) bool {
	_, ok := hopByHopHeaders[textproto.CanonicalMIMEHeaderKey(key)]
	return ok
}

// HTTPTransport implements revalidate.Transport on top of an *http.Client.
// Any response, whatever its status, is a completion with StatusCode set; only
// transport-level errors produce Completion.Err.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport wraps client; nil falls back to NewUpstreamClient(nil).
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = NewUpstreamClient(nil)
	}
	return &HTTPTransport{client: client}
}

// Do sends req and reads the whole response body.
func (t *HTTPTransport) Do(ctx context.Context, req revalidate.Request) revalidate.Completion {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader = http.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return revalidate.Completion{Err: fmt.Errorf("build upstream request: %w", err)}
	}
	for key, value := range req.Headers {
		if isHopByHopHeader(key) {
			continue
		}
		httpReq.Header.Set(key, value)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return revalidate.Completion{Err: fmt.Errorf("upstream request: %w", err)}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return revalidate.Completion{Err: fmt.Errorf("read upstream body: %w", err)}
	}

	return revalidate.Completion{
		StatusCode: resp.StatusCode,
		Headers:    flattenHeaders(resp.Header),
		Body:       payload,
	}
}

// flattenHeaders keeps the first value of each end-to-end header under its
// canonical name.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) == 0 || isHopByHopHeader(key) {
			continue
		}
		out[textproto.CanonicalMIMEHeaderKey(key)] = values[0]
	}
	return out
}
