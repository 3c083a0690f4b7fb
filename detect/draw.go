package detect

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DrawDetections 把一帧的所有检测框和标签原地绘制到图像上
// 绘制顺序即检测集顺序，重叠时后画的框覆盖先画的
// 调用方必须保证类别ID已通过ValidateLabels校验
func DrawDetections(img *image.RGBA, detections []Detection, names []string, palette []color.RGBA, lineWidth int) {
	if lineWidth <= 0 {
		lineWidth = 1
	}
	for _, d := range detections {
		boxColor := palette[d.ClassID]
		drawBox(img, d.Box, boxColor, lineWidth)
		label := fmt.Sprintf("%s %.2f", names[d.ClassID], d.Score)
		drawLabel(img, label, int(d.Box.X1), int(d.Box.Y1)-20)
	}
}

// drawBox 画矩形框，坐标越界部分裁剪到图像边缘
// 零面积的框画成一个点/线段，不算错误
func drawBox(img *image.RGBA, b Box, lineColor color.Color, lineWidth int) {
	bounds := img.Bounds()
	width, height := bounds.Max.X, bounds.Max.Y

	x1 := int(clamp(b.X1, 0, float32(width-1)))
	y1 := int(clamp(b.Y1, 0, float32(height-1)))
	x2 := int(clamp(b.X2, 0, float32(width-1)))
	y2 := int(clamp(b.Y2, 0, float32(height-1)))

	for i := 0; i < lineWidth; i++ {
		// 上边和下边
		for x := x1; x <= x2; x++ {
			if y1+i < height {
				img.Set(x, y1+i, lineColor)
			}
			if y2-i >= 0 {
				img.Set(x, y2-i, lineColor)
			}
		}
		// 左边和右边
		for y := y1; y <= y2; y++ {
			if x1+i < width {
				img.Set(x1+i, y, lineColor)
			}
			if x2-i >= 0 {
				img.Set(x2-i, y, lineColor)
			}
		}
	}
}

// drawLabel 在框旁边绘制标签文本
func drawLabel(img *image.RGBA, label string, x, yPos int) {
	bounds := img.Bounds()

	face := basicfont.Face7x13
	charWidth := 7
	textHeight := 13
	padding := 4

	textWidth := len(label) * charWidth

	// 保证标签落在图像范围内
	if x < 0 {
		x = 0
	}
	if x+textWidth+padding*2 > bounds.Max.X {
		x = bounds.Max.X - textWidth - padding*2
	}
	if x < 0 {
		x = 0
	}

	// 超出上边界就画在框下方
	if yPos < textHeight+padding {
		yPos += 30
	}
	if yPos > bounds.Max.Y-textHeight-padding {
		yPos = bounds.Max.Y - textHeight - padding
	}

	point := fixed.Point26_6{
		X: fixed.Int26_6(x * 64),
		Y: fixed.Int26_6((yPos + textHeight - 2) * 64),
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{255, 255, 255, 255}),
		Face: face,
		Dot:  point,
	}
	d.DrawString(label)
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
