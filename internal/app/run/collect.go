package run

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/John-Robertt/rhtrucks/internal/config"
	"github.com/John-Robertt/rhtrucks/internal/domain"
	"github.com/John-Robertt/rhtrucks/internal/metrics"
	"github.com/John-Robertt/rhtrucks/internal/record"
	"github.com/John-Robertt/rhtrucks/internal/site/roaminghunger"
)

// Collect 读取种子文件，逐个城市翻页收集详情页 URL，最后原子写出 URL map。
//
// 传输失败（连接、超时、取消）中止整次运行，且不写 URL map（下次从头开始）。
// 站点对某页回非 2xx 只影响该城市：第 1 页失败则该城市 failed，之后的页失败按 short_listing 收尾。
// 州按字典序、城市按种子顺序处理；report 中每个城市一条。
func Collect(ctx context.Context, eff config.Effective, d Deps) domain.RunReport {
	s, ok := prepare(domain.StageCollect, eff.Dir, false, eff, d)
	if !ok {
		return s.rr
	}

	seedStarted := time.Now()
	b, err := readInput(eff.SeedFile)
	if err != nil {
		return s.fail(syntheticFailed(domain.ErrCodeInputInvalid, fmt.Sprintf("读取种子文件失败：%v", err)))
	}
	var seed domain.Seed
	if err := json.Unmarshal(b, &seed); err != nil {
		return s.fail(syntheticFailed(domain.ErrCodeInputInvalid, fmt.Sprintf("种子文件不是合法 JSON（期望 state -> [{city,url}]）：%v", err)))
	}
	states := domain.SortedKeys(seed)
	total := seed.CountCities()
	s.d.Observer.OnPhaseDone("seed", map[string]any{
		"states": len(states),
		"cities": total,
	}, time.Since(seedStarted))

	urlMap := domain.URLMap{}
	idx := 0
crawl:
	for _, state := range states {
		if _, ok := urlMap[state]; !ok {
			urlMap[state] = map[string][]string{}
		}
		for _, c := range seed[state] {
			idx++
			oneStarted := time.Now()

			item := domain.NewItem(state, c.City)
			item.URL = c.URL
			if strings.TrimSpace(c.City) == "" || strings.TrimSpace(c.URL) == "" {
				failItem(&item, domain.ErrCodeInputInvalid, "种子条目缺少 city 或 url")
				s.rr.Items = append(s.rr.Items, item)
				s.d.Observer.OnItemDone(idx, total, item, time.Since(oneStarted))
				continue
			}

			prev, dup := urlMap[state][c.City]
			if dup {
				// 同一州内重复的城市：两次结果合并到同一列表。
				addWarning(&item, domain.WarnDuplicateCity)
			}

			urls, aborted := s.crawlCity(ctx, &item)
			if aborted {
				s.rr.Aborted = true
				s.rr.Items = append(s.rr.Items, item)
				s.d.Observer.OnItemDone(idx, total, item, time.Since(oneStarted))
				break crawl
			}
			if item.Status != domain.StatusFailed {
				urlMap[state][c.City] = append(prev, urls...)
			}
			s.rr.Items = append(s.rr.Items, item)
			s.d.Observer.OnItemDone(idx, total, item, time.Since(oneStarted))
		}
	}
	if s.rr.Aborted {
		s.d.Log.Warn("collect aborted, url map not written", zap.String("url_map_file", eff.URLMapFile))
		return s.finish()
	}

	writeStarted := time.Now()
	out, err := record.EncodeJSON(urlMap)
	if err != nil {
		return s.fail(syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("编码 URL map 失败：%v", err)))
	}
	if err := writeReplace(eff.URLMapFile, out); err != nil {
		item := syntheticFailed("", "")
		failFS(&item, "写入 URL map 失败", err)
		return s.fail(item)
	}
	s.d.Observer.OnPhaseDone("write", map[string]any{
		"file": eff.URLMapFile,
		"urls": urlMap.CountURLs(),
	}, time.Since(writeStarted))

	return s.finish()
}

// crawlCity 翻页直到收集数达到页面声明的总数。
//
// 终止条件（任一满足）：
// - 已收集 >= total（total 只取第 1 页）
// - 某页没有任何可用链接，或站点对某页回了非 2xx（short_listing）
// - 达到 max_pages（page_cap）
//
// 第 1 页失败时 item 被标记为 failed；只有传输失败返回 aborted=true。
func (s *runState) crawlCity(ctx context.Context, item *domain.ItemResult) (urls []string, aborted bool) {
	urls = []string{}
	missing := 0

	page := 1
	l, ff := s.fetchListing(ctx, item.URL, page)
	if ff != nil {
		failItem(item, ff.Code, ff.Msg)
		return nil, ff.Fatal
	}
	total := l.Total
	if !l.TotalFound {
		addWarning(item, domain.WarnCountDefault)
	}

	for len(urls) < total {
		missing += l.MissingHref
		if len(l.URLs) == 0 {
			addWarning(item, domain.WarnShortListing)
			break
		}
		urls = append(urls, l.URLs...)
		if len(urls) >= total {
			break
		}
		if page >= s.eff.MaxPages {
			addWarning(item, domain.WarnPageCap)
			break
		}
		if l, ff = s.fetchListing(ctx, item.URL, page+1); ff != nil {
			if ff.Fatal {
				item.Pages = page
				failItem(item, ff.Code, ff.Msg)
				return nil, true
			}
			// 声明的总数偏大时，站点常对越界页回 404：保留已收集的部分。
			s.d.Log.Info("listing page unavailable, city ends early",
				zap.String("url", roaminghunger.ListingPageURL(item.URL, page+1)),
				zap.Int("status", ff.Status),
			)
			addWarning(item, domain.WarnShortListing)
			break
		}
		page++
	}
	if missing > 0 {
		addWarning(item, domain.WarnMissingHref)
	}

	item.Status = domain.StatusProcessed
	item.Pages = page
	item.Total = total
	item.URLs = len(urls)
	s.d.Metrics.URLsCollected.Add(float64(len(urls)))
	return urls, false
}

func (s *runState) fetchListing(ctx context.Context, root string, page int) (roaminghunger.Listing, *fetchFailure) {
	u := roaminghunger.ListingPageURL(root, page)
	html, ff := s.fetch(ctx, metrics.KindListing, u)
	if ff != nil {
		return roaminghunger.Listing{}, ff
	}
	l, err := roaminghunger.ParseListing(html, s.eff.SiteRoot)
	if err != nil {
		return roaminghunger.Listing{}, &fetchFailure{
			Code: domain.ErrCodeParseFailed,
			Msg:  fmt.Sprintf("解析列表页 %s 失败：%v", u, err),
		}
	}
	return l, nil
}
