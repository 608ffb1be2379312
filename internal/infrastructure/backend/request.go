package backend

import (
	"maps"
	"net/http"
	"time"
)

// RequestConfig describes one logical request. Interceptors receive a copy
// per attempt and may return a modified config.
type RequestConfig struct {
	Method string
	// Path is relative to the client base URL.
	Path   string
	Header http.Header
	Body   []byte
	// NewBody rebuilds the payload for every attempt and takes precedence
	// over Body.
	NewBody func() ([]byte, error)
	// Progress observes body bytes handed to the transport.
	Progress  func(loaded, total int64)
	Timeout   time.Duration
	Operation string
	Metadata  map[string]string
}

func (c RequestConfig) Clone() RequestConfig {
	out := c
	out.Header = c.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	out.Metadata = maps.Clone(c.Metadata)
	if out.Metadata == nil {
		out.Metadata = make(map[string]string)
	}
	return out
}

func (c RequestConfig) operation() string {
	if c.Operation != "" {
		return c.Operation
	}
	return c.Method + " " + c.Path
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Request    RequestConfig
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
