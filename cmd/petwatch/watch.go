package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/petwatch/internal/app/watch"
)

var timeNow = time.Now

func newWatchCmd(gf *globalFlags) *cobra.Command {
	var now bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "常駐執行：每天在設定的整點各檢查一次",
		Long: `watch 常駐執行，在 watch.anchors 指定的整點（watch.timezone 時區）各執行一次檢查。
單輪失敗只記錄日誌，不會中止排程；收到 SIGINT/SIGTERM 後結束。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eff, err := loadConfig(cmd, gf)
			if err != nil {
				return err
			}
			log, err := newLogger(eff)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, eff, gf.runtimeOptions(), log, cmd.ErrOrStderr())
			if err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			defer rt.Close()

			s := &watch.Scheduler{
				Anchors:  eff.Watch.Anchors,
				Location: eff.Watch.Location,
				RunNow:   now,
				Log:      log.Named("watch"),
			}
			log.Info("進入排程模式",
				zap.Ints("anchors", eff.Watch.Anchors),
				zap.String("timezone", eff.Watch.Timezone),
				zap.Time("next", watch.Next(timeNow(), eff.Watch.Anchors, eff.Watch.Location)),
			)

			err = s.Run(ctx, func(ctx context.Context) error {
				return runWithRuntime(ctx, eff, rt, log, cmd.OutOrStdout(), cmd.ErrOrStderr())
			})
			if errors.Is(err, context.Canceled) {
				log.Info("排程已停止")
				return nil
			}
			if err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&now, "now", false, "啟動後立即執行一次")
	return cmd
}
