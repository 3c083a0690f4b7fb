package detect

import (
	"fmt"
	"strings"
)

// Summarize 按类别统计一帧的检测结果，生成可读的摘要字符串
// 类别按首次出现的顺序排列；空检测集返回空字符串
// 调用方必须保证类别ID已通过ValidateLabels校验
func Summarize(detections []Detection, names []string) string {
	if len(detections) == 0 {
		return ""
	}

	counts := make(map[int]int)
	var order []int
	for _, d := range detections {
		if counts[d.ClassID] == 0 {
			order = append(order, d.ClassID)
		}
		counts[d.ClassID]++
	}

	var sb strings.Builder
	for _, id := range order {
		fmt.Fprintf(&sb, "%d %ss, ", counts[id], names[id])
	}
	return sb.String()
}
