package main

import (
	"github.com/spf13/cobra"

	"github.com/John-Robertt/petwatch/internal/server"
)

func newServeCmd(gf *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "以 HTTP API 提供快照內容（只讀）",
		Args:  cobra.NoArgs,
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

			cls, err := loadClassifier(eff)
			if err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			ctx := cmd.Context()
			store, err := openStore(ctx, eff)
			if err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			defer store.Close()

			if cmd.Flags().Changed("addr") {
				eff.ServeAddr = addr
			}
			s := &server.Server{Store: store, Classifier: cls, Log: log.Named("api")}
			if err := s.Serve(ctx, eff.ServeAddr); err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "監聽地址（預設取 serve.addr）")
	return cmd
}
