// Package tools carries tiny formatting helpers shared by the commands.
package tools

import "fmt"

// FileSize renders a byte count in binary units, the way ls -h would.
func FileSize(s int64) string {
	const unit = 1024
	if s < unit {
		return fmt.Sprintf("%d B", s)
	}
	div, exp := int64(unit), 0
	for n := s / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(s)/float64(div), "KMGTPE"[exp])
}
