package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/petwatch/internal/app/run"
	"github.com/John-Robertt/petwatch/internal/config"
	"github.com/John-Robertt/petwatch/internal/domain"
)

func newRunCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "執行一次完整檢查（抓取 → 分類 → 比對 → 通知 → 更新快照）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, gf)
		},
	}
}

func runOnce(cmd *cobra.Command, gf *globalFlags) error {
	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()

	eff, err := loadConfig(cmd, gf)
	if err != nil {
		emitReport(stdout, stderr, reportForError(eff, err))
		return withSilent(err)
	}
	log, err := newLogger(eff)
	if err != nil {
		emitReport(stdout, stderr, reportForError(eff, err))
		return withSilent(err)
	}
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()
	rt, err := buildRuntime(ctx, eff, gf.runtimeOptions(), log, stderr)
	if err != nil {
		emitReport(stdout, stderr, reportForError(eff, err))
		return &exitError{code: exitFatal, err: err, silent: true}
	}
	defer rt.Close()

	rr, err := run.Execute(ctx, eff, rt.deps, newProgressLogger(log))
	emitReport(stdout, stderr, rr)
	if err != nil {
		return &exitError{code: exitFatal, err: err, silent: true}
	}
	return nil
}

// reportForError 为“还没开始运行就失败”的情况生成报告，保证 stdout 契约不变。
func reportForError(eff config.EffectiveConfig, err error) domain.RunReport {
	now := time.Now()
	rr := domain.RunReport{
		CategoryURL: eff.CategoryURL,
		StartedAt:   now,
		FinishedAt:  now,
		ErrorCode:   errorCode(err),
		ErrorMsg:    err.Error(),
	}
	rr.Finalize()
	return rr
}

func withSilent(err error) error {
	if ee, ok := err.(*exitError); ok {
		ee.silent = true
		return ee
	}
	return &exitError{code: exitFatal, err: err, silent: true}
}

// emitReport：stdout 是终端时输出人类可读摘要；否则 stdout 只输出一个 RunReport JSON（摘要走 stderr）。
func emitReport(stdout, stderr io.Writer, rr domain.RunReport) {
	if f, ok := stdout.(*os.File); ok && isTTY(f) {
		renderSummary(stdout, rr)
		return
	}

	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(rr)
	fmt.Fprintln(stderr, summaryLine(rr))
}

func summaryLine(rr domain.RunReport) string {
	if rr.ErrorCode != "" {
		return fmt.Sprintf("失敗：%s %s", rr.ErrorCode, rr.ErrorMsg)
	}
	return fmt.Sprintf("完成：pages=%d collected=%d previous=%d new=%d stop=%s saved=%v",
		rr.Summary.Pages, rr.Summary.Collected, rr.Summary.Previous, rr.Summary.New, rr.Stop, rr.Saved)
}

// runWithRuntime 供 watch 复用：共享 runtime，每轮单独生成报告。
func runWithRuntime(ctx context.Context, eff config.EffectiveConfig, rt *runtime, log *zap.Logger, stdout, stderr io.Writer) error {
	rr, err := run.Execute(ctx, eff, rt.deps, newProgressLogger(log))
	emitReport(stdout, stderr, rr)
	return err
}
