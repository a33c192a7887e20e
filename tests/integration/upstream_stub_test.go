package integration

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// originStub 模拟一个内容可变的源站，记录每次请求的方法与路径。
type originStub struct {
	server *httptest.Server
	URL    string

	mu           sync.Mutex
	body         []byte
	status       int
	cacheControl string
	requests     []RecordedRequest
}

// RecordedRequest 捕获每次请求的方法/路径/Headers，便于断言 transport 行为。
type RecordedRequest struct {
	Method  string
	Path    string
	Headers http.Header
}

func newOriginStub(t *testing.T, body string) *originStub {
	t.Helper()

	stub := &originStub{
		body:   []byte(body),
		status: http.StatusOK,
	}
	stub.server = httptest.NewServer(http.HandlerFunc(stub.handle))
	stub.URL = stub.server.URL
	t.Cleanup(stub.Close)
	return stub
}

func (s *originStub) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: r.Header.Clone(),
	})
	body := append([]byte(nil), s.body...)
	status := s.status
	cacheControl := s.cacheControl
	s.mu.Unlock()

	if cacheControl != "" {
		w.Header().Set("Cache-Control", cacheControl)
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Update 替换后续响应的状态码与内容。
func (s *originStub) Update(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.body = []byte(body)
}

// SetCacheControl 设置后续响应的 Cache-Control，空字符串表示不发送。
func (s *originStub) SetCacheControl(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheControl = value
}

// Requests 返回已记录请求的副本。
func (s *originStub) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

func (s *originStub) Close() {
	s.server.Close()
}
