package planner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/John-Robertt/rhtrucks/internal/domain"
	"github.com/John-Robertt/rhtrucks/internal/infra/fsx"
)

func TestReadCityState_MissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "CA", "Los Angeles")

	st, err := ReadCityState(dir)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if st.DirExists || len(st.ExistingNames) != 0 {
		t.Fatalf("目录不存在时应返回空状态：%+v", st)
	}
	if st.Dir != dir {
		t.Fatalf("Dir 不符：%q", st.Dir)
	}
}

func TestReadCityState_ExistingFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "CA", "Los Angeles")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	write(t, filepath.Join(dir, "kogi.json"))

	st, err := ReadCityState(dir)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !st.DirExists || !st.Has("kogi.json") {
		t.Fatalf("应识别已有文件：%+v", st)
	}
}

func TestReadCityState_FileInPlaceOfDir(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "CA")
	write(t, p)

	_, err := ReadCityState(p)
	if !fsx.IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际=%v", err)
	}
}

func TestPlanCity_NeedExistsDuplicateInvalid(t *testing.T) {
	st := domain.CityState{
		Dir:           "/out/CA/Los Angeles",
		DirExists:     true,
		ExistingNames: map[string]struct{}{"kogi.json": {}},
	}
	urls := []string{
		"http://roaminghunger.com/kogi/",
		"http://roaminghunger.com/grill-em-all/",
		"http://roaminghunger.com/trucks/grill-em-all",
		"http://roaminghunger.com/",
	}

	plan := PlanCity("CA", "Los Angeles", urls, st)
	if plan.State != "CA" || plan.City != "Los Angeles" || plan.Dir != st.Dir {
		t.Fatalf("plan 元信息不符：%+v", plan)
	}
	if len(plan.URLs) != 4 {
		t.Fatalf("应与输入一一对应：%d", len(plan.URLs))
	}

	if u := plan.URLs[0]; !u.Exists || u.Need || u.Slug != "kogi" {
		t.Fatalf("kogi 应为已存在：%+v", u)
	}
	if u := plan.URLs[1]; !u.Need || u.FileName != "grill-em-all.json" {
		t.Fatalf("grill-em-all 应需要抓取：%+v", u)
	}
	if u := plan.URLs[2]; !u.Duplicate || u.Need {
		t.Fatalf("同 slug 第二次出现应为重复：%+v", u)
	}
	if u := plan.URLs[3]; u.Err == nil {
		t.Fatalf("无路径段的 URL 应无法推导 slug：%+v", u)
	}

	need, exists, dup, invalid := plan.Counts()
	if need != 1 || exists != 1 || dup != 1 || invalid != 1 {
		t.Fatalf("Counts 不符：need=%d exists=%d dup=%d invalid=%d", need, exists, dup, invalid)
	}
}

func TestCityDir(t *testing.T) {
	got, err := CityDir("/out", "CA", "Los Angeles")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got != filepath.Join("/out", "CA", "Los Angeles") {
		t.Fatalf("路径不符：%q", got)
	}

	for _, bad := range [][2]string{{"", "LA"}, {"CA", ".."}, {"CA", "a/b"}} {
		if _, err := CityDir("/out", bad[0], bad[1]); err == nil {
			t.Fatalf("期望 %q/%q 被拒绝", bad[0], bad[1])
		}
	}
}

func write(t *testing.T, p string) {
	t.Helper()
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("写文件失败：%v", err)
	}
}
