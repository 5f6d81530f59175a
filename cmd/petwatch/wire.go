package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/John-Robertt/petwatch/internal/app/run"
	"github.com/John-Robertt/petwatch/internal/config"
	"github.com/John-Robertt/petwatch/internal/domain"
	"github.com/John-Robertt/petwatch/internal/infra/browser"
	"github.com/John-Robertt/petwatch/internal/infra/cache"
	"github.com/John-Robertt/petwatch/internal/infra/httpx"
	"github.com/John-Robertt/petwatch/internal/notify"
	"github.com/John-Robertt/petwatch/internal/paginate"
	"github.com/John-Robertt/petwatch/internal/snapshot"
	"github.com/John-Robertt/petwatch/internal/source"
	"github.com/John-Robertt/petwatch/internal/source/eslite"
	"github.com/John-Robertt/petwatch/internal/taxonomy"
)

// runtime 持有一次（或 watch 模式下多次）运行共享的协作者。
type runtime struct {
	deps    run.Deps
	closers []func() error
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

// openStore 按配置打开快照存储；错误统一归为 snapshot_io。
func openStore(ctx context.Context, eff config.EffectiveConfig) (snapshot.Store, error) {
	return snapshot.Open(ctx, snapshot.Options{
		Backend:  eff.Snapshot.Backend,
		Path:     eff.Snapshot.Path,
		MongoURI: eff.Snapshot.MongoURI,
		MongoDB:  eff.Snapshot.MongoDB,
	})
}

func loadClassifier(eff config.EffectiveConfig) (taxonomy.Classifier, error) {
	f, err := taxonomy.Load(eff.TaxonomyFile)
	if err != nil {
		return taxonomy.Classifier{}, &config.Error{Code: config.ErrCodeInvalid, Path: eff.TaxonomyFile, Err: err}
	}
	return taxonomy.New(f), nil
}

func newFetcher(eff config.EffectiveConfig, log *zap.Logger) (source.Fetcher, func() error, error) {
	switch eff.Fetcher {
	case config.FetcherHTTP:
		c, err := httpx.NewClient(eff.ProxyURL, eff.PageTimeout)
		if err != nil {
			return nil, nil, &config.Error{Code: config.ErrCodeInvalid, Err: fmt.Errorf("proxy.url 无效：%w", err)}
		}
		return source.HTTPFetcher{Client: c}, func() error { return nil }, nil
	default:
		b := browser.New(eff.SettleDelay, eff.ProxyURL, log.Named("browser"))
		return b, b.Close, nil
	}
}

// newNotifier 在邮件设置完整时发邮件，否则把新书清单打印到 w。
func newNotifier(eff config.EffectiveConfig, w io.Writer, log *zap.Logger) notify.Notifier {
	cfg := notify.SMTPConfig{
		Server:     eff.SMTP.Server,
		Port:       eff.SMTP.Port,
		Sender:     eff.SMTP.Sender,
		Password:   eff.SMTP.Password,
		Recipients: eff.SMTP.Recipients,
	}
	if !cfg.Complete() {
		log.Warn("Email 設定不完整，改為輸出到終端")
		return notify.ConsoleNotifier{W: w, Reason: "Email 設定不完整，跳過發送"}
	}
	return notify.NewEmailNotifier(cfg, log.Named("notify"))
}

// cachingFetcher 在抓取后把页面写入缓存；replay 模式下只读缓存。
type cachingFetcher struct {
	store  cache.Store
	source string
	next   source.Fetcher
	log    *zap.Logger
}

func (f cachingFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.store.ReadOnly {
		b, ok, err := f.store.ReadPage(f.source, url)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w：%s", cache.ErrMiss, url)
		}
		return b, nil
	}

	b, err := f.next.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if werr := f.store.WritePage(f.source, url, b); werr != nil {
		f.log.Warn("写入页面缓存失败", zap.String("url", url), zap.Error(werr))
	}
	return b, nil
}

// runtimeOptions 是只在命令行上出现的运行选项。
type runtimeOptions struct {
	pageCache string
	replay    bool
}

func (gf *globalFlags) runtimeOptions() runtimeOptions {
	return runtimeOptions{pageCache: gf.pageCache, replay: gf.replay}
}

func buildRuntime(ctx context.Context, eff config.EffectiveConfig, opts runtimeOptions, log *zap.Logger, consoleW io.Writer) (*runtime, error) {
	rt := &runtime{}

	if opts.replay && opts.pageCache == "" {
		return nil, &config.Error{Code: config.ErrCodeInvalid, Err: fmt.Errorf("--replay 需要同时指定 --page-cache")}
	}

	cls, err := loadClassifier(eff)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, eff)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, store.Close)

	src := eslite.Source{CategoryURL: eff.CategoryURL}

	var fetcher source.Fetcher
	if !opts.replay {
		f, closeFetcher, err := newFetcher(eff, log)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, closeFetcher)
		fetcher = f
	}
	if opts.pageCache != "" {
		fetcher = cachingFetcher{
			store:  cache.New(opts.pageCache, opts.replay),
			source: src.Name(),
			next:   fetcher,
			log:    log.Named("cache"),
		}
	}
	col := source.Collector{Source: src, Fetcher: fetcher, Timeout: eff.PageTimeout}

	rt.deps = run.Deps{
		FetchPage:  col.Func(),
		PageURL:    src.PageURL,
		Paginator:  paginate.Paginator{MaxPages: eff.MaxPages, Origin: eff.Origin},
		Classifier: cls,
		Store:      store,
		Notifier:   newNotifier(eff, consoleW, log),
	}
	log.Debug("运行环境已就绪",
		zap.String("backend", eff.Snapshot.Backend),
		zap.String("fetcher", eff.Fetcher),
		zap.Int("max_pages", eff.MaxPages),
	)
	return rt, nil
}

// errorCode 把任意错误归为报告里的 error_code。
func errorCode(err error) string {
	if c := run.Code(err); c != "" {
		return c
	}
	if c := snapshot.Code(err); c != "" {
		return c
	}
	if c := config.Code(err); c != "" {
		return c
	}
	return domain.ErrCodeConfigInvalid
}
