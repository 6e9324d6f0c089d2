// Package fname 负责把远端文件名变成可安全落盘的本地文件名。
package fname

import (
	"strings"
	"unicode/utf8"
)

// MaxLen 是清洗后文件名的最大长度（按 Unicode 码点计）。
const MaxLen = 255

// Unnamed 是清洗结果为空时的兜底文件名。
const Unnamed = "unnamed"

// Sanitize 返回可安全用作单个路径片段的文件名。
//
// 规则（按顺序）：
// 1) < > : " / \ | ? * 以及 U+0000..U+001F 替换为 '_'
// 2) 去掉首尾的 '.' 与空格
// 3) 超过 MaxLen 时截断主名并保留扩展名；扩展名本身过长则整体截断
// 4) 结果为空时返回 Unnamed
//
// Sanitize 是幂等的：Sanitize(Sanitize(x)) == Sanitize(x)。
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if isForbidden(r) {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}

	s := strings.Trim(b.String(), ". ")
	if utf8.RuneCountInString(s) > MaxLen {
		s = truncate(s)
		// 截断可能在末尾留下 '.' 或空格；再去一次以保持幂等。
		s = strings.TrimRight(s, ". ")
	}
	if s == "" {
		return Unnamed
	}
	return s
}

func isForbidden(r rune) bool {
	if r < 0x20 {
		return true
	}
	switch r {
	case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
		return true
	}
	return false
}

func truncate(s string) string {
	ext := Ext(s)
	extLen := utf8.RuneCountInString(ext)
	if extLen >= MaxLen {
		return firstRunes(s, MaxLen)
	}
	stem := s[:len(s)-len(ext)]
	return firstRunes(stem, MaxLen-extLen) + ext
}

// Ext 返回最后一个 '.' 开始的扩展名；'.' 位于首或尾时视为无扩展名。
func Ext(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return ""
	}
	return name[i:]
}

func firstRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
