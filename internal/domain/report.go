package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StageCities  = "cities"
	StageCollect = "collect"
	StageHarvest = "harvest"
	StageImport  = "import"
)

const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusPlanned   = "planned"
	StatusFailed    = "failed"
)

const (
	ErrCodeFetchFailed    = "fetch_failed"
	ErrCodeParseFailed    = "parse_failed"
	ErrCodeInputInvalid   = "input_invalid"
	ErrCodeInvalidName    = "invalid_name"
	ErrCodeInvalidURL     = "invalid_url"
	ErrCodeRecordInvalid  = "record_invalid"
	ErrCodeTargetConflict = "target_conflict"
	ErrCodeIOFailed       = "io_failed"
	ErrCodeStoreFailed    = "store_failed"
	ErrCodeCanceled       = "canceled"
	ErrCodeConfigInvalid  = "config_invalid"
)

// 告警不改变条目状态，只用于解释“为什么结果可能不完整”。
const (
	WarnCountDefault  = "count_default"
	WarnShortListing  = "short_listing"
	WarnPageCap       = "page_cap"
	WarnDuplicateURL  = "duplicate_url"
	WarnMissingHref   = "missing_href"
	WarnDuplicateCity = "duplicate_city"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID  string `json:"run_id"`
	Stage  string `json:"stage"`
	Path   string `json:"path"`
	DryRun bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Aborted=true 表示运行因网络失败等原因提前终止，后续条目未处理。
	Aborted bool `json:"aborted"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Planned   int `json:"planned"`
	Failed    int `json:"failed"`
}

type ItemResult struct {
	State string `json:"state"`
	City  string `json:"city"`
	URL   string `json:"url"`
	Slug  string `json:"slug"`
	File  string `json:"file"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	// collect/cities 阶段
	Pages int `json:"pages,omitempty"`
	Total int `json:"total,omitempty"`
	URLs  int `json:"urls,omitempty"`

	Fallbacks []string `json:"fallbacks"`
	Warnings  []string `json:"warnings"`
}

// NewItem 构造一个切片字段非 nil 的条目（JSON 输出 [] 而不是 null）。
func NewItem(state, city string) ItemResult {
	return ItemResult{
		State:     state,
		City:      city,
		Fallbacks: []string{},
		Warnings:  []string{},
	}
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 (state, city)；state=="" 的合成条目排在最后；同一城市内保持抓取顺序
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a, b := r.Items[i], r.Items[j]
		if a.State == "" || b.State == "" {
			return a.State != "" && b.State == ""
		}
		if a.State != b.State {
			return a.State < b.State
		}
		return a.City < b.City
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusProcessed:
			s.Processed++
		case StatusSkipped:
			s.Skipped++
		case StatusPlanned:
			s.Planned++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// OK 表示本次运行没有失败且没有被中止。
func (r RunReport) OK() bool {
	return r.Summary.Failed == 0 && !r.Aborted
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
