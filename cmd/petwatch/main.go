package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/petwatch/internal/config"
	"github.com/John-Robertt/petwatch/internal/infra/logx"
)

// 退出码：0 完成；1 运行失败；2 用法错误。
const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2
)

// exitError 让子命令携带退出码返回（错误信息已由子命令自行输出时 silent=true）。
type exitError struct {
	code   int
	err    error
	silent bool
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// globalFlags 是所有子命令共享的入口参数。
type globalFlags struct {
	configPath   string
	maxPages     int
	fetcher      string
	snapshotPath string
	logLevel     string
	pageCache    string
	replay       bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	gf := &globalFlags{}

	root := &cobra.Command{
		Use:   "petwatch",
		Short: "誠品寵物書籍新書監看",
		Long: `petwatch 抓取誠品寵物書籍分類的全部分頁，按動物種類與主題分類，
和上一次的快照比對找出新書，寄出通知並更新快照。

不帶子命令時等同於 "petwatch run"。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, gf)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&gf.configPath, "config", "c", "", "配置文件路径（默认 ./"+config.FileName+"，可选）")
	pf.IntVar(&gf.maxPages, "max-pages", 0, "最多抓取的页数（1..500）")
	pf.StringVar(&gf.fetcher, "fetcher", "", "页面抓取方式：http|browser")
	pf.StringVar(&gf.snapshotPath, "snapshot", "", "快照文件路径（json/sqlite 后端）")
	pf.StringVar(&gf.logLevel, "log-level", "", "日志级别：debug|info|warn|error")
	pf.StringVar(&gf.pageCache, "page-cache", "", "把抓到的列表页 HTML 存到该目录")
	pf.BoolVar(&gf.replay, "replay", false, "只从 --page-cache 读取页面，不访问网络")

	root.AddCommand(
		newRunCmd(gf),
		newWatchCmd(gf),
		newServeCmd(gf),
		newClassifyCmd(gf),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdout, os.Stderr)
	err := root.ExecuteContext(ctx)
	os.Exit(exitCode(err, os.Stderr))
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if !ee.silent && ee.err != nil {
			fmt.Fprintf(stderr, "错误：%v\n", ee.err)
		}
		return ee.code
	}
	// cobra 自身的参数/子命令错误
	fmt.Fprintf(stderr, "参数错误：%v\n", err)
	return exitUsage
}

// loadConfig 读取生效配置，并把“是否显式指定”的信息交给 config 包处理优先级。
func loadConfig(cmd *cobra.Command, gf *globalFlags) (config.EffectiveConfig, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return config.EffectiveConfig{}, &exitError{code: exitFatal, err: fmt.Errorf("读取当前目录失败：%w", err)}
	}
	flags := cmd.Flags()
	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		ConfigPath:      gf.configPath,
		MaxPages:        gf.maxPages,
		MaxPagesSet:     flags.Changed("max-pages"),
		Fetcher:         gf.fetcher,
		FetcherSet:      flags.Changed("fetcher"),
		SnapshotPath:    gf.snapshotPath,
		SnapshotPathSet: flags.Changed("snapshot"),
		LogLevel:        gf.logLevel,
		LogLevelSet:     flags.Changed("log-level"),
	}, nil)
	if err != nil {
		return config.EffectiveConfig{}, &exitError{code: exitFatal, err: err}
	}
	return eff, nil
}

func newLogger(eff config.EffectiveConfig) (*zap.Logger, error) {
	log, err := logx.New(eff.LogLevel, eff.LogDev)
	if err != nil {
		return nil, &exitError{code: exitFatal, err: &config.Error{Code: config.ErrCodeInvalid, Err: err}}
	}
	return log, nil
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
