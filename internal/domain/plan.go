package domain

// URLPlan 是单个详情页 URL 的执行计划（只描述要做什么，不做任何写入）。
type URLPlan struct {
	URL      string
	Slug     string
	FileName string // <slug>.json

	// Need=true 表示目标文件不存在，需要抓取并写入。
	Need bool
	// Exists=true 表示目标文件已存在：整条跳过，不发任何请求。
	Exists bool
	// Duplicate=true 表示同一城市内 slug 重复，只处理第一次出现。
	Duplicate bool
	// Err 非空表示 URL 无法推导出 slug。
	Err error
}

// CityPlan 是某个 <state>/<city> 目录的计划。
type CityPlan struct {
	State string
	City  string
	Dir   string

	URLs []URLPlan
}

// Counts 汇总计划中各类条目的数量（用于 observer 的 plan 阶段输出）。
func (p CityPlan) Counts() (need, exists, dup, invalid int) {
	for _, u := range p.URLs {
		switch {
		case u.Err != nil:
			invalid++
		case u.Duplicate:
			dup++
		case u.Exists:
			exists++
		case u.Need:
			need++
		}
	}
	return need, exists, dup, invalid
}
