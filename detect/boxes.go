package detect

import "fmt"

// Box 边界框（角点形式：左上x1,y1 右下x2,y2，原图像素坐标）
type Box struct {
	X1, Y1, X2, Y2 float32
}

// NormalizedBox 归一化的中心点形式边界框（cx cy w h，相对图像宽高）
type NormalizedBox struct {
	CX, CY, W, H float32
}

// Width 框宽度（像素）
func (b Box) Width() float32 { return b.X2 - b.X1 }

// Height 框高度（像素）
func (b Box) Height() float32 { return b.Y2 - b.Y1 }

// Normalize 把角点形式的框转换为归一化中心点形式
// 不做任何裁剪：畸形框产生的越界值原样传递给调用方
func (b Box) Normalize(width, height int) (NormalizedBox, error) {
	if width <= 0 || height <= 0 {
		return NormalizedBox{}, fmt.Errorf("无效的图像尺寸: %dx%d", width, height)
	}
	w := float32(width)
	h := float32(height)
	return NormalizedBox{
		CX: (b.X1 + b.X2) / 2 / w,
		CY: (b.Y1 + b.Y2) / 2 / h,
		W:  (b.X2 - b.X1) / w,
		H:  (b.Y2 - b.Y1) / h,
	}, nil
}

// Denormalize 把归一化中心点形式还原为角点形式（像素坐标）
func (n NormalizedBox) Denormalize(width, height int) Box {
	w := float32(width)
	h := float32(height)
	return Box{
		X1: (n.CX - n.W/2) * w,
		Y1: (n.CY - n.H/2) * h,
		X2: (n.CX + n.W/2) * w,
		Y2: (n.CY + n.H/2) * h,
	}
}
