// Package httpio 通过 HTTP 对接外部识别 / 执行服务（画面识别、点击下注由对方负责）。
package httpio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gocrash/pkg/ratelimit"
)

var log = logrus.WithField("component", "httpio")

// Config 客户端参数
type Config struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	PollInterval time.Duration
	RateLimit    int // 每秒请求数
	RetryCount   int
}

// Client 带限流的 resty 客户端。下注请求走不重试的 once，避免重复下注。
type Client struct {
	client *resty.Client
	once   *resty.Client
	limits *ratelimit.RateLimitManager
	cfg    Config
}

// NewClient 创建客户端
func NewClient(cfg Config) *Client {
	host := strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}

	return &Client{
		client: newResty(host, cfg, cfg.RetryCount),
		once:   newResty(host, cfg, 0),
		limits: ratelimit.NewRateLimitManager(cfg.RateLimit),
		cfg:    cfg,
	}
}

func newResty(host string, cfg Config, retries int) *resty.Client {
	client := resty.New().
		SetBaseURL(host).
		SetTimeout(cfg.Timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			// 429 时按 Retry-After 等待
			if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
				if ra := resp.Header().Get("Retry-After"); ra != "" {
					if d, err := time.ParseDuration(ra + "s"); err == nil {
						return d, nil
					}
				}
				return 2 * time.Second, nil
			}
			return 0, nil
		})
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return client
}

func (c *Client) newRequest(ctx context.Context, endpoint string) *resty.Request {
	r := c.client.R()
	if endpoint == ratelimit.EndpointBet {
		r = c.once.R()
	}
	if ctx != nil {
		r.SetContext(ctx)
	}
	r.SetHeader("Accept", "application/json")
	r.SetHeader("User-Agent", "gocrash-bot")
	return r
}

// do 限流后发送请求，非 2xx 返回错误；out 非空时解析响应体
func (c *Client) do(ctx context.Context, endpoint, method, path string, body, out any) (*resty.Response, error) {
	if err := c.limits.Wait(ctx, endpoint); err != nil {
		return nil, err
	}
	rc := c.newRequest(ctx, endpoint)
	if body != nil {
		rc.SetHeader("Content-Type", "application/json")
		rc.SetBody(body)
	}
	var (
		resp *resty.Response
		err  error
	)
	switch method {
	case http.MethodGet:
		resp, err = rc.Get(path)
	case http.MethodPost:
		resp, err = rc.Post(path)
	default:
		return nil, fmt.Errorf("unsupported method: %s", method)
	}
	if err := parseHTTPError(resp, err); err != nil {
		return resp, err
	}
	return resp, decodeBody(resp, out)
}

// decodeBody 不依赖响应的 Content-Type，2xx 且有内容时按 JSON 解析
func decodeBody(resp *resty.Response, out any) error {
	if out == nil || resp.StatusCode() == http.StatusNoContent {
		return nil
	}
	b := resp.Body()
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return errors.Wrapf(err, "decode %s", resp.Request.URL)
	}
	return nil
}

func parseHTTPError(resp *resty.Response, err error) error {
	if err != nil {
		return errors.Wrap(err, "http request")
	}
	if resp.IsSuccess() {
		return nil
	}
	var body any
	b := resp.Body()
	_ = json.Unmarshal(b, &body)
	if body == nil {
		body = strings.TrimSpace(string(b))
	}
	return errors.Errorf("http %d: %v", resp.StatusCode(), body)
}
