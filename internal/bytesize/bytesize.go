// Package bytesize 把字节数格式化为人类可读字符串（1024 进制）。
package bytesize

import "fmt"

var units = []string{"B", "KB", "MB", "GB", "TB"}

// Format 规则：
// - 0 => "0 B"
// - 小于 1024 => 整数 + " B"
// - 其余按 1024 逐级换算，保留两位小数，最大单位 TB
func Format(n int64) string {
	if n == 0 {
		return "0 B"
	}
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	size := float64(n)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", size, units[i])
}
