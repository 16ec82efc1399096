package run

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/John-Robertt/rhtrucks/internal/config"
	"github.com/John-Robertt/rhtrucks/internal/domain"
	"github.com/John-Robertt/rhtrucks/internal/record"
	"github.com/John-Robertt/rhtrucks/internal/scan"
)

// RecordSink 是 import 的写入目标（生产实现为 mongostore.Store）。
type RecordSink interface {
	UpsertTruck(ctx context.Context, key domain.TruckKey, rec domain.TruckRecord) error
}

// Import 扫描输出树中的记录文件，校验后逐条 upsert 到 sink。
//
// 形状不合法的文件标记为 failed 并跳过；取消时中止。
func Import(ctx context.Context, eff config.Effective, sink RecordSink, d Deps) domain.RunReport {
	// import 不访问站点，无需按 proxy.url 构造 client。
	if d.Client == nil {
		d.Client = http.DefaultClient
	}
	s, ok := prepare(domain.StageImport, eff.OutDir, false, eff, d)
	if !ok {
		return s.rr
	}
	if sink == nil {
		return s.fail(syntheticFailed(domain.ErrCodeConfigInvalid, "未配置 mongo.uri，无法导入"))
	}

	scanStarted := time.Now()
	files, err := scan.ScanRecords(eff.OutDir)
	if err != nil {
		return s.fail(syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("扫描输出目录失败：%v", err)))
	}
	s.d.Observer.OnPhaseDone("scan", map[string]any{
		"records": len(files),
	}, time.Since(scanStarted))

	for i, f := range files {
		oneStarted := time.Now()

		item := domain.NewItem(f.State, f.City)
		item.Slug = f.Slug
		item.File = f.RelPath

		aborted := s.importOne(ctx, sink, f, &item)
		if item.Status == domain.StatusFailed {
			s.d.Metrics.RecordsFailed.WithLabelValues(item.ErrorCode).Inc()
		}
		s.rr.Items = append(s.rr.Items, item)
		s.d.Observer.OnItemDone(i+1, len(files), item, time.Since(oneStarted))
		if aborted {
			s.rr.Aborted = true
			break
		}
	}
	return s.finish()
}

func (s *runState) importOne(ctx context.Context, sink RecordSink, f scan.RecordFile, item *domain.ItemResult) bool {
	if err := ctx.Err(); err != nil {
		failItem(item, domain.ErrCodeCanceled, "运行被取消："+err.Error())
		return true
	}

	b, err := os.ReadFile(f.AbsPath)
	if err != nil {
		failItem(item, domain.ErrCodeIOFailed, fmt.Sprintf("读取记录失败：%v", err))
		return false
	}
	rec, err := record.Decode(b)
	if err != nil {
		failItem(item, domain.ErrCodeRecordInvalid, err.Error())
		return false
	}

	key := domain.TruckKey{State: f.State, City: f.City, Slug: f.Slug}
	if err := sink.UpsertTruck(ctx, key, rec); err != nil {
		if ctx.Err() != nil {
			failItem(item, domain.ErrCodeCanceled, "运行被取消："+ctx.Err().Error())
			return true
		}
		failItem(item, domain.ErrCodeStoreFailed, err.Error())
		return false
	}

	item.Status = domain.StatusProcessed
	s.d.Metrics.RecordsImported.Inc()
	return false
}
