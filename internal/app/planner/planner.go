package planner

import (
	"os"
	"path/filepath"

	"github.com/John-Robertt/albumdl/internal/domain"
	"github.com/John-Robertt/albumdl/internal/fname"
)

// OutState 是输出目录的现状（只做 ReadDir，不读文件内容）。
type OutState struct {
	Dir   string
	Files map[string]int64 // 普通文件 name -> size
	Other map[string]string
}

// ReadOutState 读取 outputRoot 的现状。
// 若目录不存在，返回空状态且不报错。
func ReadOutState(outputRoot string) (OutState, error) {
	st := OutState{
		Dir:   outputRoot,
		Files: map[string]int64{},
		Other: map[string]string{},
	}

	entries, err := os.ReadDir(outputRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return OutState{}, err
	}

	for _, e := range entries {
		if e.IsDir() {
			st.Other[e.Name()] = "dir"
			continue
		}
		info, err := e.Info()
		if err != nil {
			// 文件在 ReadDir 与 Info 之间被删除：视为不存在。
			continue
		}
		if !info.Mode().IsRegular() {
			st.Other[e.Name()] = info.Mode().Type().String()
			continue
		}
		st.Files[e.Name()] = info.Size()
	}
	return st, nil
}

// Summary 是规划阶段的统计（用于进度输出）。
type Summary struct {
	Items      int
	Existing   int
	ToDownload int
	Conflicts  int
	Collisions int
}

// Plan 基于 entries + OutState 生成确定性的下载计划（不做任何写入）。
//
// 说明：清洗后重名的条目只做标记（Collision=true），不改名；
// 下载阶段对同一目标路径没有加锁，先完成者的文件会被后来者视为已存在或被覆盖。
func Plan(entries []domain.CatalogEntry, st OutState) ([]domain.PlannedItem, Summary) {
	items := make([]domain.PlannedItem, 0, len(entries))
	firstByName := make(map[string]int, len(entries))
	var sum Summary

	for _, e := range entries {
		name := fname.Sanitize(e.Filename)
		it := domain.PlannedItem{
			Entry:    e,
			Filename: name,
			Dest:     filepath.Join(st.Dir, name),
		}
		if size, ok := st.Files[name]; ok {
			it.Exists = true
			it.Size = size
		} else if kind, ok := st.Other[name]; ok {
			it.Conflict = kind
		}

		if first, ok := firstByName[name]; ok {
			it.Collision = true
			if !items[first].Collision {
				items[first].Collision = true
				sum.Collisions++
			}
			sum.Collisions++
		} else {
			firstByName[name] = len(items)
		}

		switch {
		case it.Conflict != "":
			sum.Conflicts++
		case it.Exists:
			sum.Existing++
		default:
			sum.ToDownload++
		}
		items = append(items, it)
	}
	sum.Items = len(items)
	return items, sum
}
