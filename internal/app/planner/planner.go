package planner

import (
	"os"
	"path/filepath"

	"github.com/John-Robertt/rhtrucks/internal/domain"
	"github.com/John-Robertt/rhtrucks/internal/infra/fsx"
	"github.com/John-Robertt/rhtrucks/internal/slug"
)

// CityDir 返回 <outDir>/<state>/<city>；state/city 不能作为目录名时返回 UnsafeNameError。
func CityDir(outDir, state, city string) (string, error) {
	if err := fsx.CheckName(state); err != nil {
		return "", err
	}
	if err := fsx.CheckName(city); err != nil {
		return "", err
	}
	return filepath.Join(outDir, state, city), nil
}

// ReadCityState 读取城市目录的现状（只做 ReadDir，不读文件内容）。
// 若目录不存在，返回空状态且不报错；若同名路径是文件，返回 PathTypeConflictError。
func ReadCityState(dir string) (domain.CityState, error) {
	st := domain.CityState{
		Dir:           dir,
		ExistingNames: map[string]struct{}{},
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		if fi, serr := os.Stat(dir); serr == nil && !fi.IsDir() {
			return domain.CityState{}, &fsx.PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
		}
		return domain.CityState{}, err
	}

	st.DirExists = true
	for _, e := range entries {
		st.ExistingNames[e.Name()] = struct{}{}
	}
	return st, nil
}

// PlanCity 基于 URL 列表与目录现状生成确定性的执行计划（不做任何写入，不发请求）。
//
// 顺序与输入一致；同一城市内第二次出现的 slug 标记为 Duplicate。
func PlanCity(state, city string, urls []string, st domain.CityState) domain.CityPlan {
	plan := domain.CityPlan{
		State: state,
		City:  city,
		Dir:   st.Dir,
		URLs:  make([]domain.URLPlan, 0, len(urls)),
	}

	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		up := domain.URLPlan{URL: u}

		s, err := slug.FromURL(u)
		if err != nil {
			up.Err = err
			plan.URLs = append(plan.URLs, up)
			continue
		}
		up.Slug = s
		up.FileName = slug.FileName(s)

		switch {
		case has(seen, s):
			up.Duplicate = true
		case st.Has(up.FileName):
			up.Exists = true
		default:
			up.Need = true
		}
		seen[s] = struct{}{}
		plan.URLs = append(plan.URLs, up)
	}
	return plan
}

func has(m map[string]struct{}, k string) bool {
	_, ok := m[k]
	return ok
}
