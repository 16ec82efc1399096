package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/John-Robertt/rhtrucks/internal/app/planner"
	"github.com/John-Robertt/rhtrucks/internal/config"
	"github.com/John-Robertt/rhtrucks/internal/domain"
	"github.com/John-Robertt/rhtrucks/internal/infra/cache"
	"github.com/John-Robertt/rhtrucks/internal/infra/fsx"
	"github.com/John-Robertt/rhtrucks/internal/metrics"
	"github.com/John-Robertt/rhtrucks/internal/record"
	"github.com/John-Robertt/rhtrucks/internal/site/roaminghunger"
)

// Harvest 读取 URL map，为每个详情页 URL 生成一条 <out>/<state>/<city>/<slug>.json。
//
// 目标文件已存在的 URL 整条跳过，不发任何请求。
// 站点对某个详情页回非 2xx 只让该条目失败；传输失败中止运行，已写入的记录保留，
// 重跑时靠“文件已存在即跳过”续上。
// dryRun=true 时只规划：不抓取、不建目录、不写文件。
func Harvest(ctx context.Context, eff config.Effective, dryRun bool, d Deps) domain.RunReport {
	s, ok := prepare(domain.StageHarvest, eff.OutDir, dryRun, eff, d)
	if !ok {
		return s.rr
	}

	b, err := readInput(eff.URLMapFile)
	if err != nil {
		return s.fail(syntheticFailed(domain.ErrCodeInputInvalid, fmt.Sprintf("读取 URL map 失败：%v", err)))
	}
	var urlMap domain.URLMap
	if err := json.Unmarshal(b, &urlMap); err != nil {
		return s.fail(syntheticFailed(domain.ErrCodeInputInvalid, fmt.Sprintf("URL map 不是合法 JSON（期望 state -> city -> [url]）：%v", err)))
	}

	planStarted := time.Now()
	plans := make([]domain.CityPlan, 0, 32)
	var need, exists, dup, invalid int
	for _, state := range domain.SortedKeys(urlMap) {
		cities := urlMap[state]
		for _, city := range domain.SortedKeys(cities) {
			dir, err := planner.CityDir(eff.OutDir, state, city)
			if err != nil {
				item := domain.NewItem(state, city)
				failItem(&item, domain.ErrCodeInvalidName, err.Error())
				s.rr.Items = append(s.rr.Items, item)
				continue
			}
			st, err := planner.ReadCityState(dir)
			if err != nil {
				item := domain.NewItem(state, city)
				failFS(&item, "读取城市目录失败", err)
				s.rr.Items = append(s.rr.Items, item)
				continue
			}
			p := planner.PlanCity(state, city, cities[city], st)
			n, e, du, in := p.Counts()
			need, exists, dup, invalid = need+n, exists+e, dup+du, invalid+in
			plans = append(plans, p)
		}
	}
	total := need + exists + dup + invalid
	s.d.Observer.OnPhaseDone("plan", map[string]any{
		"cities":    len(plans),
		"urls":      total,
		"need":      need,
		"exists":    exists,
		"duplicate": dup,
		"invalid":   invalid,
	}, time.Since(planStarted))

	store := cache.New(eff.OutDir, dryRun || !eff.ArchiveHTML)

	idx := 0
exec:
	for _, p := range plans {
		// 每个城市目录都要存在，即使 URL 列表为空或全部跳过。
		if !dryRun {
			if err := fsx.EnsureDir(p.Dir); err != nil {
				item := domain.NewItem(p.State, p.City)
				failFS(&item, "创建城市目录失败", err)
				s.d.Metrics.RecordsFailed.WithLabelValues(item.ErrorCode).Inc()
				s.rr.Items = append(s.rr.Items, item)
				idx += len(p.URLs)
				continue
			}
		}
		for _, up := range p.URLs {
			idx++
			oneStarted := time.Now()

			item := domain.NewItem(p.State, p.City)
			item.URL = up.URL
			item.Slug = up.Slug
			if up.FileName != "" {
				item.File = filepath.ToSlash(filepath.Join(p.State, p.City, up.FileName))
			}

			aborted := false
			switch {
			case up.Err != nil:
				failItem(&item, domain.ErrCodeInvalidURL, up.Err.Error())
			case up.Duplicate:
				item.Status = domain.StatusSkipped
				addWarning(&item, domain.WarnDuplicateURL)
			case up.Exists:
				item.Status = domain.StatusSkipped
			case dryRun:
				item.Status = domain.StatusPlanned
			default:
				aborted = s.harvestOne(ctx, store, p, up, &item)
			}

			switch item.Status {
			case domain.StatusSkipped:
				s.d.Metrics.RecordsSkipped.Inc()
			case domain.StatusFailed:
				s.d.Metrics.RecordsFailed.WithLabelValues(item.ErrorCode).Inc()
			}

			s.rr.Items = append(s.rr.Items, item)
			s.d.Observer.OnItemDone(idx, total, item, time.Since(oneStarted))
			if aborted {
				s.rr.Aborted = true
				break exec
			}
		}
	}
	return s.finish()
}

// harvestOne 抓取、抽取并写入一条记录。返回 true 表示应中止整次运行。
func (s *runState) harvestOne(ctx context.Context, store cache.Store, p domain.CityPlan, up domain.URLPlan, item *domain.ItemResult) bool {
	if err := ctx.Err(); err != nil {
		failItem(item, domain.ErrCodeCanceled, "运行被取消："+err.Error())
		return true
	}

	html, fromArchive, err := s.archivedPage(store, p, up)
	if err != nil {
		s.d.Log.Warn("read archived page failed", zap.String("url", up.URL), zap.Error(err))
	}
	if !fromArchive {
		var ff *fetchFailure
		html, ff = s.fetch(ctx, metrics.KindProfile, up.URL)
		if ff != nil {
			failItem(item, ff.Code, ff.Msg)
			return ff.Fatal
		}
		if !store.ReadOnly {
			// 归档失败不影响记录本身。
			if err := store.WritePage(p.State, p.City, up.Slug, html); err != nil {
				s.d.Log.Warn("archive page failed", zap.String("url", up.URL), zap.Error(err))
			}
		}
	}

	prof, err := roaminghunger.ParseProfile(html, s.eff.SiteRoot)
	if err != nil {
		failItem(item, domain.ErrCodeParseFailed, fmt.Sprintf("解析详情页失败：%v", err))
		return false
	}
	item.Fallbacks = append(item.Fallbacks, prof.Fallbacks...)
	for _, f := range prof.Fallbacks {
		s.d.Metrics.FieldFallbacks.WithLabelValues(f).Inc()
	}

	b, err := record.Encode(domain.NewTruckRecord(prof.Name, prof.Description, prof.ProfileImage))
	if err != nil {
		failItem(item, domain.ErrCodeRecordInvalid, err.Error())
		return false
	}

	if err := fsx.WriteFileAtomicNoOverwrite(p.Dir, up.FileName, b); err != nil {
		if errors.Is(err, os.ErrExist) {
			// 规划之后才出现的同名文件：视为已满足。
			item.Status = domain.StatusSkipped
			return false
		}
		failFS(item, "写入记录失败", err)
		return false
	}

	item.Status = domain.StatusProcessed
	s.d.Metrics.RecordsWritten.Inc()
	return false
}

// archivedPage 在开启 archive_html 时读取之前归档的详情页：
// 记录缺失但页面已归档（例如上次写记录失败）时直接重新解析，不再请求站点。
func (s *runState) archivedPage(store cache.Store, p domain.CityPlan, up domain.URLPlan) ([]byte, bool, error) {
	if !s.eff.ArchiveHTML {
		return nil, false, nil
	}
	html, ok, err := store.ReadPage(p.State, p.City, up.Slug)
	if err != nil || !ok {
		return nil, false, err
	}
	s.d.Log.Debug("profile from archive", zap.String("url", up.URL))
	return html, true, nil
}
