// Package transport provides the raw network primitives shared by all
// sources: a plain HTTP request/response adapter and SSDP multicast host
// discovery. No retries, no business logic; failure policy lives in the
// per-source state machines.
package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/tessro/marquee/internal/merr"
)

// Request describes a single HTTP exchange. Timeout bounds the whole
// exchange; zero means the caller's context is the only bound.
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration
}

// Response is the collected result of an exchange. Body is fully read
// before Do returns.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Adapter issues HTTP requests over a shared pooled transport.
type Adapter struct {
	client *http.Client
}

// NewAdapter creates an Adapter with a tuned connection pool. All sources
// share one adapter so idle connections to the same host are reused.
func NewAdapter() *Adapter {
	return &Adapter{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        32,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Do performs the exchange. Transport failures come back as network
// errors; a response, whatever its status code, is not an error here.
func (a *Adapter) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, merr.Network("build request", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, merr.Network(req.Method+" "+req.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, merr.Network("read response", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}
