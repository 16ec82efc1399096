package domain

import "sort"

// CityURL 是种子文件中的一条城市入口：url 是列表页根路径，后缀 1-based 页码即可翻页。
type CityURL struct {
	City string `json:"city"`
	URL  string `json:"url"`
}

// Seed 对应 city-urls.json：state -> [{city, url}]。
type Seed map[string][]CityURL

// URLMap 对应 truck-urls.json：state -> city -> 按抓取顺序排列的详情页 URL。
// 它是 collect 与 harvest 之间唯一的交接产物。
type URLMap map[string]map[string][]string

// SortedKeys 返回 map 的 key（字典序）。遍历顺序必须稳定，否则 report 与输出树会随运行漂移。
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CountURLs 统计 URL 总数（用于进度展示）。
func (m URLMap) CountURLs() int {
	n := 0
	for _, cities := range m {
		for _, urls := range cities {
			n += len(urls)
		}
	}
	return n
}

func (s Seed) CountCities() int {
	n := 0
	for _, cs := range s {
		n += len(cs)
	}
	return n
}
