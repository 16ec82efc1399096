package run

import (
	"context"
	"fmt"
	"time"

	"github.com/John-Robertt/rhtrucks/internal/config"
	"github.com/John-Robertt/rhtrucks/internal/domain"
	"github.com/John-Robertt/rhtrucks/internal/metrics"
	"github.com/John-Robertt/rhtrucks/internal/record"
	"github.com/John-Robertt/rhtrucks/internal/site/roaminghunger"
)

// Cities 抓取站点的州/城市索引页并（覆盖）写出种子文件。
func Cities(ctx context.Context, eff config.Effective, d Deps) domain.RunReport {
	s, ok := prepare(domain.StageCities, eff.Dir, false, eff, d)
	if !ok {
		return s.rr
	}

	fetchStarted := time.Now()
	html, ff := s.fetch(ctx, metrics.KindIndex, eff.IndexURL)
	if ff != nil {
		// 只有一页：无论哪种失败都保留旧的种子文件。
		item := syntheticFailed(ff.Code, ff.Msg)
		item.URL = eff.IndexURL
		s.rr.Aborted = true
		return s.fail(item)
	}
	seed, err := roaminghunger.ParseIndex(html, eff.SiteRoot)
	if err != nil {
		item := syntheticFailed(domain.ErrCodeParseFailed, fmt.Sprintf("解析索引页失败：%v", err))
		item.URL = eff.IndexURL
		return s.fail(item)
	}
	s.d.Observer.OnPhaseDone("index", map[string]any{
		"states": len(seed),
		"cities": seed.CountCities(),
	}, time.Since(fetchStarted))

	total := seed.CountCities()
	idx := 0
	for _, state := range domain.SortedKeys(seed) {
		seen := map[string]struct{}{}
		for _, c := range seed[state] {
			idx++
			item := domain.NewItem(state, c.City)
			item.URL = c.URL
			item.Status = domain.StatusProcessed
			if _, ok := seen[c.City]; ok {
				addWarning(&item, domain.WarnDuplicateCity)
			}
			seen[c.City] = struct{}{}
			s.rr.Items = append(s.rr.Items, item)
			s.d.Observer.OnItemDone(idx, total, item, 0)
		}
	}

	b, err := record.EncodeJSON(seed)
	if err != nil {
		return s.fail(syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("编码种子文件失败：%v", err)))
	}
	if err := writeReplace(eff.SeedFile, b); err != nil {
		item := syntheticFailed("", "")
		failFS(&item, "写入种子文件失败", err)
		return s.fail(item)
	}
	return s.finish()
}
