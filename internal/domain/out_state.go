package domain

// CityState 描述 <out>/<state>/<city>/ 的现状（只做 ReadDir，不读内容）。
type CityState struct {
	Dir string

	// DirExists=false 时 ExistingNames 为空。
	DirExists bool

	// ExistingNames 是目录内现有文件名集合，用于 O(1) 判定 <slug>.json 是否已存在。
	ExistingNames map[string]struct{}
}

func (s CityState) Has(name string) bool {
	_, ok := s.ExistingNames[name]
	return ok
}
