package main

import (
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/rhtrucks/internal/app/run"
	"github.com/John-Robertt/rhtrucks/internal/config"
	"github.com/John-Robertt/rhtrucks/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：翻页较多的城市可能很久才完成一条，期间定期输出一行
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total int
	done  int
	ok    int
	fail  int
	skip  int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(stage string, eff config.Effective) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	fmt.Fprintf(p.w, "[%s] rhtrucks %s\n", now.Format("15:04:05"), stage)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  dir: %s\n", eff.Dir)
	if eff.ConfigFile != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigFile)
	}
	fmt.Fprintf(p.w, "  site_root: %s\n", eff.SiteRoot)
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	fmt.Fprintf(p.w, "  timeout: %s\n", eff.Timeout)

	switch stage {
	case domain.StageCities:
		fmt.Fprintf(p.w, "  index_url: %s\n", eff.IndexURL)
		fmt.Fprintln(p.w, "输出:")
		fmt.Fprintf(p.w, "  seed: %s\n", eff.SeedFile)
	case domain.StageCollect:
		fmt.Fprintf(p.w, "  max_pages: %d\n", eff.MaxPages)
		fmt.Fprintf(p.w, "  seed: %s\n", eff.SeedFile)
		fmt.Fprintln(p.w, "输出:")
		fmt.Fprintf(p.w, "  url_map: %s\n", eff.URLMapFile)
	case domain.StageHarvest:
		fmt.Fprintf(p.w, "  url_map: %s\n", eff.URLMapFile)
		fmt.Fprintf(p.w, "  archive_html: %s\n", onOff(eff.ArchiveHTML))
		fmt.Fprintln(p.w, "输出:")
		fmt.Fprintf(p.w, "  out: %s\n", eff.OutDir)
		if eff.ArchiveHTML {
			fmt.Fprintf(p.w, "  pages: %s\n", filepath.Join(eff.OutDir, "cache", "pages"))
		}
	case domain.StageImport:
		fmt.Fprintf(p.w, "  out: %s\n", eff.OutDir)
		fmt.Fprintln(p.w, "输出:")
		fmt.Fprintf(p.w, "  mongo: %s (%s.%s)\n", formatMongo(eff.Mongo.URI), eff.Mongo.Database, eff.Mongo.Collection)
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "seed":
		p.total = intField(fields, "cities")
		fmt.Fprintf(p.w, "种子: states=%d cities=%d (%s)\n\n",
			intField(fields, "states"), p.total, formatShortDuration(dur),
		)
	case "index":
		fmt.Fprintf(p.w, "索引: states=%d cities=%d (%s)\n\n",
			intField(fields, "states"), intField(fields, "cities"), formatShortDuration(dur),
		)
	case "plan":
		p.total = intField(fields, "urls")
		fmt.Fprintf(p.w, "规划: cities=%d urls=%d need=%d exists=%d duplicate=%d invalid=%d (%s)\n\n",
			intField(fields, "cities"),
			p.total,
			intField(fields, "need"),
			intField(fields, "exists"),
			intField(fields, "duplicate"),
			intField(fields, "invalid"),
			formatShortDuration(dur),
		)
	case "scan":
		p.total = intField(fields, "records")
		fmt.Fprintf(p.w, "扫描: records=%d (%s)\n\n", p.total, formatShortDuration(dur))
	case "write":
		fmt.Fprintf(p.w, "\n写入: %v urls=%d (%s)\n", fields["file"], intField(fields, "urls"), formatShortDuration(dur))
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	if p.total > 0 && !p.tickerStarted && (name == "seed" || name == "plan" || name == "scan") {
		p.startTickerLocked()
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// idx/total 由 run 层给出；这里同时维护自己的计数，供 keepalive 使用。
	p.done = idx
	p.total = total

	switch res.Status {
	case domain.StatusProcessed:
		p.ok++
	case domain.StatusFailed:
		p.fail++
	case domain.StatusSkipped:
		p.skip++
	}

	key := itemKey(res)
	switch res.Status {
	case domain.StatusFailed:
		fmt.Fprintf(p.w, "[%d/%d] %s FAIL %s: %s (%s)\n",
			idx, total, key, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	case domain.StatusSkipped:
		reason := "已存在"
		if len(res.Warnings) > 0 {
			reason = strings.Join(res.Warnings, ",")
		}
		fmt.Fprintf(p.w, "[%d/%d] %s SKIP (%s)\n", idx, total, key, reason)
	case domain.StatusPlanned:
		fmt.Fprintf(p.w, "[%d/%d] %s PLAN\n", idx, total, key)
	default:
		fmt.Fprintf(p.w, "[%d/%d] %s OK%s%s (%s)\n",
			idx, total, key, formatCounts(res), formatNotes(res), formatShortDuration(dur),
		)
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.done >= p.total {
		p.stopTickerLocked()
	}
}

// Close 停止 keepalive（运行被中止时不会走到最后一条）。
func (p *progressUI) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
}

func (p *progressUI) stopTickerLocked() {
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stopCh := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d skip=%d elapsed=%s\n",
						p.done, p.total, p.ok, p.fail, p.skip, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stopCh:
				return
			}
		}
	}()
}

// itemKey 是一行输出的定位锚点：state/city，以及 slug 或列表 URL。
func itemKey(res domain.ItemResult) string {
	if res.State == "" && res.City == "" {
		if res.URL != "" {
			return res.URL
		}
		return "<run>"
	}
	key := res.State + "/" + res.City
	switch {
	case res.Slug != "":
		key += "/" + res.Slug
	case res.URL != "" && res.Pages == 0 && res.Total == 0:
		key += " " + truncate(res.URL, 80)
	}
	return key
}

func formatCounts(res domain.ItemResult) string {
	if res.Pages == 0 && res.URLs == 0 && res.Total == 0 {
		return ""
	}
	return fmt.Sprintf(" pages=%d total=%d urls=%d", res.Pages, res.Total, res.URLs)
}

func formatNotes(res domain.ItemResult) string {
	var b strings.Builder
	if len(res.Fallbacks) > 0 {
		b.WriteString(" fallback(" + strings.Join(res.Fallbacks, ",") + ")")
	}
	if len(res.Warnings) > 0 {
		b.WriteString(" warn(" + strings.Join(res.Warnings, ",") + ")")
	}
	return b.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

// formatMongo 只展示 scheme 与 host，避免把密码打到终端。
func formatMongo(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "未配置"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "(无法解析)"
	}
	return u.Scheme + "://" + u.Host
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}
