package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxPageBytes 限制单页 HTML 的读取上限，避免异常响应撑爆内存。
const maxPageBytes = 16 << 20

// HTTPFetcher 用普通 HTTP GET 取页面。
// 目录页若依赖 JS 渲染，HTTP 拿到的可能只是骨架；此时应改用浏览器抓取。
type HTTPFetcher struct {
	Client *http.Client
}

func (f HTTPFetcher) Fetch(ctx context.Context, u string) ([]byte, error) {
	if f.Client == nil {
		return nil, errors.New("http client 未配置")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &BlockedError{URL: u, Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}
