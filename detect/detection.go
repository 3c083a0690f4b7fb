package detect

import "fmt"

// Detection 单个检测结果
type Detection struct {
	Box     Box     // 原图像素坐标的边界框
	Score   float32 // 置信度 0.0-1.0
	ClassID int     // 类别ID，对应类别表下标
	Class   string  // 类别名称
}

// ValidateLabels 校验检测结果的类别ID全部落在类别表范围内
// 越界是致命错误：后续的统计、绘制和落盘都无法安全进行
func ValidateLabels(detections []Detection, names []string) error {
	for _, d := range detections {
		if d.ClassID < 0 || d.ClassID >= len(names) {
			return fmt.Errorf("类别ID %d 超出类别表范围 (共 %d 个类别)", d.ClassID, len(names))
		}
	}
	return nil
}
