package detect

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	vidio "github.com/AlexEidt/Vidio"
	"github.com/disintegration/imaging"
)

// OutputWriter 输出落盘：标签文本、标注图片和标注视频
//
// 标签文件按输出键追加（同一来源跑两次会累积，需要幂等请先清空输出目录）；
// 图片按来源文件名覆盖写入；
// 视频写入器按输出键注册，首帧惰性创建，Close时统一释放
type OutputWriter struct {
	dir    string
	videos map[string]*vidio.VideoWriter
}

// NewOutputWriter 创建输出目录并初始化写入器
func NewOutputWriter(dir string) (*OutputWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("无法创建输出目录 '%s': %v", dir, err)
	}
	return &OutputWriter{
		dir:    dir,
		videos: make(map[string]*vidio.VideoWriter),
	}, nil
}

// Dir 输出目录
func (w *OutputWriter) Dir() string {
	return w.dir
}

// AppendLabels 把一帧的检测结果按归一化格式逐行追加到 <键>.txt
// 行格式: "<类别ID> <cx> <cy> <w> <h>"
func (w *OutputWriter) AppendLabels(key string, detections []Detection, width, height int) error {
	if len(detections) == 0 {
		return nil
	}

	path := filepath.Join(w.dir, key+".txt")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("无法打开标签文件 '%s': %v", path, err)
	}
	defer f.Close()

	for _, d := range detections {
		nb, err := d.Box.Normalize(width, height)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(f, "%d %.6f %.6f %.6f %.6f\n", d.ClassID, nb.CX, nb.CY, nb.W, nb.H)
		if err != nil {
			return fmt.Errorf("写入标签文件失败: %v", err)
		}
	}
	return nil
}

// SaveImage 覆盖写入标注图片，文件名与来源文件一致
func (w *OutputWriter) SaveImage(srcPath string, img image.Image) error {
	path := filepath.Join(w.dir, filepath.Base(srcPath))
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("保存图片 '%s' 失败: %v", path, err)
	}
	return nil
}

// AppendVideoFrame 把标注帧追加到该来源的视频写入器
// 首帧时按帧尺寸和来源FPS创建写入器，之后同一来源复用
func (w *OutputWriter) AppendVideoFrame(key string, img *image.RGBA, fps float64) error {
	writer, ok := w.videos[key]
	if !ok {
		if fps <= 0 {
			fps = 25
		}
		bounds := img.Bounds()
		path := filepath.Join(w.dir, key+".mp4")
		var err error
		writer, err = vidio.NewVideoWriter(path, bounds.Dx(), bounds.Dy(), &vidio.Options{
			FPS:     fps,
			Quality: 1.0,
		})
		if err != nil {
			return fmt.Errorf("无法创建输出视频 '%s': %v", path, err)
		}
		w.videos[key] = writer
		fmt.Printf("📹 创建输出视频: %s (%dx%d, %.2f FPS)\n", path, bounds.Dx(), bounds.Dy(), fps)
	}

	if err := writer.Write(img.Pix); err != nil {
		return fmt.Errorf("写入视频帧失败: %v", err)
	}
	return nil
}

// ReleaseVideo 某个来源耗尽时关闭并注销它的视频写入器
func (w *OutputWriter) ReleaseVideo(key string) {
	if writer, ok := w.videos[key]; ok {
		writer.Close()
		delete(w.videos, key)
	}
}

// Close 释放所有仍然打开的视频写入器，可重复调用
func (w *OutputWriter) Close() {
	for key, writer := range w.videos {
		writer.Close()
		delete(w.videos, key)
	}
}
