package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

var (
	// ErrNoSuchElement 元素不存在（W3C "no such element"）
	ErrNoSuchElement = errors.New("no such element")
	// ErrInvalidSelector 查询表达式非法
	ErrInvalidSelector = errors.New("invalid selector")
	// ErrInvalidSession 会话已失效
	ErrInvalidSession = errors.New("invalid session id")
)

// Error Appium / WebDriver 返回的错误
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("appium error %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNoSuchElement:
		return e.Code == "no such element"
	case ErrInvalidSelector:
		return e.Code == "invalid selector"
	case ErrInvalidSession:
		return e.Code == "invalid session id"
	}
	return false
}

// Client Appium 服务端的 HTTP 客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(serverURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Status 检查 Appium 服务是否就绪
func (c *Client) Status(ctx context.Context) (bool, error) {
	res, err := c.do(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		return false, err
	}
	ready := res.Get("ready")
	if !ready.Exists() {
		return true, nil
	}
	return ready.Bool(), nil
}

// do 发送请求并返回响应中的 value 字段
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (gjson.Result, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return gjson.Result{}, errors.Wrap(err, "failed to marshal request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return gjson.Result{}, errors.Wrap(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, errors.Wrap(err, "failed to read response body")
	}

	if !gjson.ValidBytes(raw) {
		if resp.StatusCode >= http.StatusBadRequest {
			return gjson.Result{}, &Error{Status: resp.StatusCode, Code: "unknown error", Message: string(raw)}
		}
		return gjson.Result{}, nil
	}

	res := gjson.ParseBytes(raw)
	value := res.Get("value")
	if code := value.Get("error"); code.Exists() && code.String() != "" {
		return value, &Error{
			Status:  resp.StatusCode,
			Code:    code.String(),
			Message: value.Get("message").String(),
		}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return value, &Error{Status: resp.StatusCode, Code: "unknown error", Message: string(raw)}
	}

	return value, nil
}
