package run

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/John-Robertt/rhtrucks/internal/config"
	"github.com/John-Robertt/rhtrucks/internal/domain"
	"github.com/John-Robertt/rhtrucks/internal/infra/fsx"
	"github.com/John-Robertt/rhtrucks/internal/infra/httpx"
	"github.com/John-Robertt/rhtrucks/internal/metrics"
	"github.com/John-Robertt/rhtrucks/internal/site"
)

// Deps 是各阶段共享的外部依赖；零值可用（缺省项在 prepare 中补齐）。
type Deps struct {
	// Client 为空时按 eff.ProxyURL/eff.Timeout 构造。
	Client   *http.Client
	Metrics  *metrics.Recorder
	Observer Observer
	Log      *zap.Logger
}

// runState 是单次运行的可变状态：report、起始时间与补齐后的依赖。
type runState struct {
	eff     config.Effective
	d       Deps
	rr      domain.RunReport
	started time.Time
}

// prepare 创建 report、补齐依赖并通知 observer。
// 返回 ok=false 时 report 已 finalize（例如 proxy.url 无效），调用方应直接返回。
func prepare(stage, path string, dryRun bool, eff config.Effective, d Deps) (*runState, bool) {
	s := &runState{
		eff:     eff,
		d:       d,
		started: time.Now().UTC(),
	}
	s.rr = domain.RunReport{
		RunID:     uuid.NewString(),
		Stage:     stage,
		Path:      path,
		DryRun:    dryRun,
		StartedAt: s.started,
		Items:     make([]domain.ItemResult, 0, 64),
	}

	if s.d.Metrics == nil {
		s.d.Metrics = metrics.New()
	}
	if s.d.Observer == nil {
		s.d.Observer = nopObserver{}
	}
	if s.d.Log == nil {
		s.d.Log = zap.NewNop()
	}
	s.d.Log = s.d.Log.With(zap.String("run_id", s.rr.RunID), zap.String("stage", stage))

	s.d.Observer.OnStart(stage, eff)

	if s.d.Client == nil {
		c, err := httpx.NewClient(eff.ProxyURL, eff.Timeout)
		if err != nil {
			s.fail(syntheticFailed(domain.ErrCodeConfigInvalid, fmt.Sprintf("proxy.url 无效：%v", err)))
			return s, false
		}
		s.d.Client = c
	}
	return s, true
}

// fail 追加一条合成失败条目并结束运行。
func (s *runState) fail(item domain.ItemResult) domain.RunReport {
	s.rr.Items = append(s.rr.Items, item)
	return s.finish()
}

func (s *runState) finish() domain.RunReport {
	s.rr.FinishedAt = time.Now().UTC()
	s.rr.Finalize()
	s.d.Metrics.StageDuration.WithLabelValues(s.rr.Stage).Set(s.rr.FinishedAt.Sub(s.started).Seconds())
	s.d.Log.Debug("run finished",
		zap.Int("processed", s.rr.Summary.Processed),
		zap.Int("skipped", s.rr.Summary.Skipped),
		zap.Int("planned", s.rr.Summary.Planned),
		zap.Int("failed", s.rr.Summary.Failed),
		zap.Bool("aborted", s.rr.Aborted),
	)
	return s.rr
}

// fetchFailure 描述一次失败的抓取或解析。
//
// Fatal=true：传输失败或运行被取消，调用方中止整次运行（重跑靠跳过已完成的部分续上）。
// Fatal=false：站点回了非 2xx（Status）或页面无法解析，只影响当前页面/条目。
type fetchFailure struct {
	Code   string
	Msg    string
	Status int
	Fatal  bool
}

// fetch 抓取一页并记录指标。
func (s *runState) fetch(ctx context.Context, kind, u string) ([]byte, *fetchFailure) {
	b, err := site.Fetch(ctx, s.d.Client, u)
	if err != nil {
		s.d.Metrics.FetchFailures.WithLabelValues(kind).Inc()
		if ctx.Err() != nil {
			return nil, &fetchFailure{Code: domain.ErrCodeCanceled, Msg: "运行被取消：" + ctx.Err().Error(), Fatal: true}
		}
		status, isStatus := site.StatusOf(err)
		return nil, &fetchFailure{Code: domain.ErrCodeFetchFailed, Msg: humanizeFetchError(u, err), Status: status, Fatal: !isStatus}
	}
	s.d.Metrics.PagesFetched.WithLabelValues(kind).Inc()
	return b, nil
}

func syntheticFailed(code, msg string) domain.ItemResult {
	item := domain.NewItem("", "")
	item.Status = domain.StatusFailed
	item.ErrorCode = code
	item.ErrorMsg = msg
	return item
}

func failItem(item *domain.ItemResult, code, msg string) {
	item.Status = domain.StatusFailed
	item.ErrorCode = code
	item.ErrorMsg = msg
}

// failFS 按错误类型映射为 target_conflict 或 io_failed。
func failFS(item *domain.ItemResult, prefix string, err error) {
	if fsx.IsPathTypeConflict(err) {
		failItem(item, domain.ErrCodeTargetConflict, err.Error())
		return
	}
	failItem(item, domain.ErrCodeIOFailed, fmt.Sprintf("%s：%v", prefix, err))
}

func addWarning(item *domain.ItemResult, w string) {
	for _, x := range item.Warnings {
		if x == w {
			return
		}
	}
	item.Warnings = append(item.Warnings, w)
}

// writeReplace 原子写入（覆盖）path。
func writeReplace(path string, b []byte) error {
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), b)
}

func readInput(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil, errors.New("文件为空")
	}
	return b, nil
}

func humanizeFetchError(u string, err error) string {
	if err == nil {
		return "抓取失败：" + u
	}

	// HTTP 非 2xx：尽量给出可操作提示（反爬/限流是最常见问题）。
	var hs *site.HTTPStatusError
	if errors.As(err, &hs) {
		loc := strings.TrimSpace(hs.Location)
		switch hs.StatusCode {
		case 403, 429:
			return fmt.Sprintf("%s 返回 HTTP %d（可能触发反爬/限流）。建议配置 proxy.url 或稍后重试。", u, hs.StatusCode)
		case 404:
			return fmt.Sprintf("%s 返回 HTTP 404（页面不存在或已下架）。", u)
		default:
			if loc != "" {
				return fmt.Sprintf("%s 返回 HTTP %d（重定向）：%s", u, hs.StatusCode, loc)
			}
			return fmt.Sprintf("%s 返回 HTTP %d。", u, hs.StatusCode)
		}
	}

	low := strings.ToLower(err.Error())
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(low, "timeout") {
		return fmt.Sprintf("%s 抓取超时。建议检查网络/代理，或调大 timeout 后重试。", u)
	}
	return err.Error()
}
