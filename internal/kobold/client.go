package kobold

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// StatusError 表示远端返回了非 2xx 状态码
type StatusError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("KoboldCpp API error: %s", e.Status)
}

// Client 负责向 KoboldCpp 发送单个 HTTP 请求，不做重试
type Client struct {
	httpClient *http.Client
}

// NewClient 创建客户端；timeout 为 0 表示不设超时，沿用 http.Client 的默认行为
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewClientWithHTTP 使用调用方提供的 http.Client（测试中用于注入 Transport）
func NewClientWithHTTP(hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{httpClient: hc}
}

// JoinURL 拼接基础地址与接口路径
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

// Do 发送一次请求并返回原始 JSON 响应体。GET 请求不带 body；POST 以 JSON 发送 body
func (c *Client) Do(ctx context.Context, method, url string, body []byte) (json.RawMessage, error) {
	var reader io.Reader
	if method != http.MethodGet && body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	// 检查 HTTP 状态码
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: respBody}
	}

	if !gjson.ValidBytes(respBody) {
		return nil, fmt.Errorf("response from %s is not valid JSON", url)
	}

	return json.RawMessage(respBody), nil
}
