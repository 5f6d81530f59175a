// Package logx 统一构造 zap.Logger。
//
// 日志一律写 stderr：stdout 只留给报告（终端摘要或 JSON）。
package logx

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New 按级别构造 logger。dev=true 为彩色控制台格式，否则为 JSON。
// level 为空时：dev 默认 debug，否则 info。
func New(level string, dev bool) (*zap.Logger, error) {
	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.Sampling = nil
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	if s := strings.TrimSpace(level); s != "" {
		lv, err := ParseLevel(s)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lv)
	}
	return cfg.Build()
}

// ParseLevel 解析 debug/info/warn/error（大小写不敏感）。
func ParseLevel(s string) (zapcore.Level, error) {
	var lv zapcore.Level
	if err := lv.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return 0, fmt.Errorf("未知日志级别：%q", s)
	}
	return lv, nil
}
