// 包 fetch 封装 HTTP 客户端（代理/超时/可选重试），用于访问数据源与洞察服务。
// 非 2xx 响应与传输失败统一转换为 errs.ErrUpstream，超时转换为 errs.ErrTimeout。
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"go-peak-window/internal/errs"
)

// DefaultUserAgent 在未配置 UA 时使用；可通过环境变量 PEAK_UA 覆盖。
const DefaultUserAgent = "go-peak-window/1.0 (activity heatmap)"

// maxBody 限制读取的响应体大小。
const maxBody = 8 << 20

// Client 为带可选重试的 HTTP 客户端。
type Client struct {
	http      *http.Client
	retry     int
	userAgent string
}

// Options 为客户端构造参数。
type Options struct {
	ProxyHTTP  string
	ProxyHTTPS string
	Timeout    time.Duration
	// Retry 为传输失败或 5xx/429 时的额外尝试次数，默认 0。
	Retry     int
	UserAgent string
}

// New 创建客户端，支持 http/https 代理与基础超时配置。
func New(opts Options) (*Client, error) {
	transport := &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			if req.URL.Scheme == "https" && opts.ProxyHTTPS != "" {
				return url.Parse(opts.ProxyHTTPS)
			}
			if req.URL.Scheme == "http" && opts.ProxyHTTP != "" {
				return url.Parse(opts.ProxyHTTP)
			}
			return http.ProxyFromEnvironment(req)
		},
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	cl := &http.Client{Transport: transport}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	cl.Timeout = opts.Timeout
	ua := opts.UserAgent
	if v := os.Getenv("PEAK_UA"); v != "" {
		ua = v
	}
	if ua == "" {
		ua = DefaultUserAgent
	}
	if opts.Retry < 0 {
		opts.Retry = 0
	}
	return &Client{http: cl, retry: opts.Retry, userAgent: ua}, nil
}

// HTTP 返回底层 *http.Client（供 oauth2 等需要原生客户端的库使用）。
func (c *Client) HTTP() *http.Client { return c.http }

// UserAgent 返回请求使用的 UA。
func (c *Client) UserAgent() string { return c.userAgent }

// Get 发起 GET 请求，header 为附加请求头。成功时调用方负责关闭 Body。
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, nil, header)
}

// GetJSON 发起 GET 并将响应体解码到 out。
func (c *Client) GetJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	resp, err := c.Get(ctx, rawURL, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out); err != nil {
		return errs.Upstream(0, fmt.Errorf("malformed body from %s: %w", rawURL, err))
	}
	return nil
}

// PostJSON 以 JSON 发送 in 并将响应解码到 out。
func (c *Client) PostJSON(ctx context.Context, rawURL string, header http.Header, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Type", "application/json")
	resp, err := c.do(ctx, http.MethodPost, rawURL, body, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out); err != nil {
		return errs.Upstream(0, fmt.Errorf("malformed body from %s: %w", rawURL, err))
	}
	return nil
}

// do 执行请求，对传输失败与 5xx/429 做线性回退重试；4xx 不重试。
func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, header http.Header) (*http.Response, error) {
	var lastErr error
	attempts := c.retry + 1
	for i := 0; i < attempts; i++ {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, reqErr := http.NewRequestWithContext(ctx, method, rawURL, rd)
		if reqErr != nil {
			return nil, fmt.Errorf("new request: %w", reqErr)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("User-Agent", c.userAgent)
		resp, err := c.http.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, errs.FromContext(ctx.Err())
			}
			lastErr = errs.Upstream(0, err)
		} else {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lastErr = errs.Upstream(resp.StatusCode, fmt.Errorf("%s %s: %s", method, rawURL, bytes.TrimSpace(snippet)))
			if !retryable(resp.StatusCode) {
				return nil, lastErr
			}
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errs.FromContext(ctx.Err())
		case <-time.After(time.Duration(i+1) * 300 * time.Millisecond):
		}
	}
	return nil, lastErr
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
