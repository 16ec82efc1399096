// Package site 放置与具体站点无关的抓取与抽取工具。
package site

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPStatusError 表示站点返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("HTTP %d %s location=%s", e.StatusCode, e.URL, loc)
}

// FetchError 包装一次失败的 GET，保留 URL 便于写入 report。
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("抓取 %s 失败：%v", e.URL, e.Err) }

func (e *FetchError) Unwrap() error { return e.Err }

// Fetch 发起一次 GET 并读取完整 body。
//
// 不做重试、不做限速。非 2xx 返回 *HTTPStatusError（包在 *FetchError 里），
// 调用方可用 StatusOf 区分“站点回了错误页”与传输失败。
// 空 body 不是错误：交给抽取层按缺省值处理。
func Fetch(ctx context.Context, c *http.Client, u string) ([]byte, error) {
	if c == nil {
		return nil, errors.New("http client 不能为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &FetchError{URL: u, Err: err}
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, &FetchError{URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{URL: u, Err: &HTTPStatusError{
			URL:        u,
			StatusCode: resp.StatusCode,
			Location:   resp.Header.Get("Location"),
		}}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: u, Err: err}
	}
	return b, nil
}

// StatusOf 返回 err 链中的 HTTP 状态码；不是 *HTTPStatusError 时 ok=false。
func StatusOf(err error) (code int, ok bool) {
	var hs *HTTPStatusError
	if errors.As(err, &hs) {
		return hs.StatusCode, true
	}
	return 0, false
}
