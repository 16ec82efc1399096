package run

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/John-Robertt/rhtrucks/internal/config"
	"github.com/John-Robertt/rhtrucks/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - 事件按顺序在调用方 goroutine 上同步触发。
type Observer interface {
	// OnStart 在阶段开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(stage string, eff config.Effective)
	// OnPhaseDone 在子阶段结束/就绪时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在某个城市（collect/cities）或 URL（harvest/import）处理完成时调用。
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
}

type nopObserver struct{}

func (nopObserver) OnStart(string, config.Effective)                      {}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration)     {}
func (nopObserver) OnItemDone(int, int, domain.ItemResult, time.Duration) {}

// LogObserver 把事件写成结构化日志；stderr 不是终端（CI、cron）时由 CLI 选用。
type LogObserver struct {
	log *zap.Logger
}

func NewLogObserver(l *zap.Logger) *LogObserver {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogObserver{log: l}
}

func (o *LogObserver) OnStart(stage string, eff config.Effective) {
	o.log.Info("run started",
		zap.String("stage", stage),
		zap.String("dir", eff.Dir),
		zap.String("site_root", eff.SiteRoot),
		zap.Bool("proxy", eff.ProxyURL != ""),
	)
}

func (o *LogObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	zf := make([]zap.Field, 0, len(fields)+2)
	zf = append(zf, zap.String("phase", name), zap.Duration("took", dur))
	for _, k := range domain.SortedKeys(fields) {
		zf = append(zf, zap.Any(k, fields[k]))
	}
	o.log.Info("phase done", zf...)
}

func (o *LogObserver) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	lvl := zapcore.DebugLevel
	switch {
	case res.Status == domain.StatusFailed:
		lvl = zapcore.WarnLevel
	case res.Status == domain.StatusProcessed || len(res.Warnings) > 0:
		lvl = zapcore.InfoLevel
	}
	ce := o.log.Check(lvl, "item done")
	if ce == nil {
		return
	}
	ce.Write(
		zap.Int("idx", idx),
		zap.Int("total", total),
		zap.String("state", res.State),
		zap.String("city", res.City),
		zap.String("url", res.URL),
		zap.String("status", res.Status),
		zap.String("error_code", res.ErrorCode),
		zap.String("error_msg", res.ErrorMsg),
		zap.Strings("fallbacks", res.Fallbacks),
		zap.Strings("warnings", res.Warnings),
		zap.Duration("took", dur),
	)
}
