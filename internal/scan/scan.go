package scan

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// RecordFile 是输出树中的一条记录文件：<root>/<state>/<city>/<slug>.json。
type RecordFile struct {
	State string
	City  string
	Slug  string

	AbsPath string
	RelPath string // 使用 '/' 分隔
}

// ScanRecords 扫描 root 下的记录文件。
//
// 规则（硬约束）：
// - 只接受恰好三级的 <state>/<city>/<slug>.json；其它层级的 .json（种子文件、URL map）忽略
// - 永久排除：<root>/cache/
// - 忽略隐藏文件与隐藏目录（包括原子写入留下的 .xxx.tmp-*）
//
// 注意：扫描阶段只做 ReadDir，不读文件内容。
func ScanRecords(root string) ([]RecordFile, error) {
	root = filepath.Clean(root)
	cacheDir := filepath.Join(root, "cache")

	files := make([]RecordFile, 0, 128)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == root {
			return nil
		}

		if isHidden(d.Name()) || path == cacheDir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")

		if d.IsDir() {
			// 记录只在第三级，更深的目录无需进入。
			if len(parts) >= 3 {
				return filepath.SkipDir
			}
			return nil
		}

		if len(parts) != 3 || !d.Type().IsRegular() {
			return nil
		}
		name := parts[2]
		if filepath.Ext(name) != ".json" {
			return nil
		}
		slug := strings.TrimSuffix(name, ".json")
		if slug == "" {
			return nil
		}

		files = append(files, RecordFile{
			State:   parts[0],
			City:    parts[1],
			Slug:    slug,
			AbsPath: path,
			RelPath: filepath.ToSlash(rel),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
