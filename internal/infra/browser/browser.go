// Package browser 用无头 Chrome 渲染目录页，供依赖 JS 渲染的站点使用。
//
// 需要本机安装 Chrome/Chromium。
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/John-Robertt/petwatch/internal/infra/httpx"
)

const (
	DefaultSettleDelay = 5 * time.Second
	scrollDelay        = 2 * time.Second
)

// Fetcher 复用同一个浏览器进程；每次 Fetch 打开一个新标签页。
// 用完必须 Close。
type Fetcher struct {
	// SettleDelay 是页面就绪后等待 JS 渲染的时间。
	SettleDelay time.Duration
	ProxyURL    string
	Log         *zap.Logger

	once       sync.Once
	browserCtx context.Context
	cancel     context.CancelFunc
	initErr    error
}

// New 构造浏览器抓取器（浏览器进程在首次 Fetch 时才启动）。
func New(settleDelay time.Duration, proxyURL string, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{SettleDelay: settleDelay, ProxyURL: strings.TrimSpace(proxyURL), Log: log}
}

func (f *Fetcher) start() error {
	f.once.Do(func() {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(httpx.RandomUserAgent()),
			chromedp.WindowSize(1920, 1080),
		)
		if f.ProxyURL != "" {
			opts = append(opts, chromedp.ProxyServer(f.ProxyURL))
		}

		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx)
		// 先跑一个空任务，让浏览器进程真正启动；失败时尽早暴露。
		if err := chromedp.Run(browserCtx); err != nil {
			browserCancel()
			allocCancel()
			f.initErr = fmt.Errorf("启动浏览器失败：%w", err)
			return
		}
		f.browserCtx = browserCtx
		f.cancel = func() {
			browserCancel()
			allocCancel()
		}
		f.Log.Debug("浏览器已启动", zap.Bool("proxy", f.ProxyURL != ""))
	})
	return f.initErr
}

// Fetch 打开 url，等待渲染并滚动到底部触发懒加载，返回渲染后的完整 HTML。
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f == nil {
		return nil, errors.New("nil browser fetcher")
	}
	if err := f.start(); err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(f.browserCtx)
	defer cancelTab()

	// 调用方的 ctx（含单页超时）需要传导到标签页上。
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	settle := f.SettleDelay
	if settle <= 0 {
		settle = DefaultSettleDelay
	}

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(settle),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(scrollDelay),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("浏览器渲染失败：%w", err)
	}
	f.Log.Debug("页面渲染完成", zap.String("url", url), zap.Int("bytes", len(html)))
	return []byte(html), nil
}

// Close 关闭浏览器进程；可重复调用。
func (f *Fetcher) Close() error {
	if f == nil || f.cancel == nil {
		return nil
	}
	f.cancel()
	f.cancel = nil
	return nil
}
