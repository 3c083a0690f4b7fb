package detect

import (
	"fmt"
	"image"
	"image/draw"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	vidio "github.com/AlexEidt/Vidio"
	"github.com/disintegration/imaging"
)

// Mode 输入源类型，决定输出写入策略
type Mode int

const (
	ModeImages Mode = iota // 单张图片、目录或 .txt 路径列表
	ModeVideo              // 视频文件
	ModeStream             // 摄像头或网络直播流
)

func (m Mode) String() string {
	switch m {
	case ModeImages:
		return "images"
	case ModeVideo:
		return "video"
	case ModeStream:
		return "stream"
	}
	return "unknown"
}

// Frame 一次循环处理的最小单位
type Frame struct {
	Path  string      // 来源路径或流地址
	Key   string      // 去冲突的输出键，见OutputKey
	Image *image.RGBA // 原始分辨率图像，供绘制与保存
	Index int         // 源内帧序号（从1开始）
	FPS   float64     // 视频/流的帧率，图片为0
	Total int         // 总帧数，未知为0
}

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".tif": true, ".tiff": true,
}

var videoExts = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true,
	".wmv": true, ".flv": true, ".webm": true,
}

// IsStreamSource 判断来源字符串是否为实时流（摄像头编号或网络直播地址）
func IsStreamSource(src string) bool {
	if _, err := strconv.Atoi(src); err == nil {
		return true
	}
	for _, prefix := range []string{"rtsp://", "rtmp://", "http://", "https://"} {
		if strings.HasPrefix(src, prefix) {
			return true
		}
	}
	return false
}

// OutputKey 由完整路径导出输出文件键
// 保留目录信息：不同目录下的同名文件不会互相覆盖或串写
func OutputKey(path string) string {
	clean := filepath.ToSlash(filepath.Clean(path))
	clean = strings.TrimSuffix(clean, filepath.Ext(clean))
	clean = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "?", "_", "*", "_").Replace(clean)
	return strings.Trim(clean, "._")
}

// FrameSource 帧源：把图片、目录、列表、视频和直播流统一成逐帧序列
// 有限源（图片）耗尽后Next返回io.EOF；直播流只能靠操作者中断
type FrameSource struct {
	mode Mode

	// ModeImages
	paths  []string
	cursor int

	// ModeVideo / 网络流
	video     *vidio.Video
	videoPath string

	// 摄像头
	camera *vidio.Camera

	index int
}

// OpenSource 根据来源字符串打开帧源
// 摄像头编号和 rtsp/rtmp/http 地址自动识别为直播流
func OpenSource(src string) (*FrameSource, error) {
	if IsStreamSource(src) {
		if idx, err := strconv.Atoi(src); err == nil {
			camera, err := vidio.NewCamera(idx)
			if err != nil {
				return nil, fmt.Errorf("无法打开摄像头 %d: %v", idx, err)
			}
			return &FrameSource{mode: ModeStream, camera: camera, videoPath: src}, nil
		}
		video, err := vidio.NewVideo(src)
		if err != nil {
			return nil, fmt.Errorf("无法打开网络流 '%s': %v", src, err)
		}
		return &FrameSource{mode: ModeStream, video: video, videoPath: src}, nil
	}

	ext := strings.ToLower(filepath.Ext(src))
	info, statErr := os.Stat(src)

	switch {
	case statErr == nil && info.IsDir():
		paths, err := listImages(src)
		if err != nil {
			return nil, err
		}
		return &FrameSource{mode: ModeImages, paths: paths}, nil

	case ext == ".txt":
		paths, err := readFileList(src)
		if err != nil {
			return nil, err
		}
		return &FrameSource{mode: ModeImages, paths: paths}, nil

	case videoExts[ext]:
		if statErr != nil {
			return nil, fmt.Errorf("无法访问视频文件 '%s': %v", src, statErr)
		}
		video, err := vidio.NewVideo(src)
		if err != nil {
			return nil, fmt.Errorf("无法打开视频文件 '%s': %v", src, err)
		}
		return &FrameSource{mode: ModeVideo, video: video, videoPath: src}, nil

	case imageExts[ext]:
		if statErr != nil {
			return nil, fmt.Errorf("无法访问图片文件 '%s': %v", src, statErr)
		}
		return &FrameSource{mode: ModeImages, paths: []string{src}}, nil
	}

	return nil, fmt.Errorf("不支持的输入源: %s", src)
}

// Mode 当前帧源的类型
func (s *FrameSource) Mode() Mode {
	return s.mode
}

// Next 取下一帧；序列耗尽返回io.EOF，单帧读取失败直接返回错误
func (s *FrameSource) Next() (*Frame, error) {
	switch s.mode {
	case ModeImages:
		if s.cursor >= len(s.paths) {
			return nil, io.EOF
		}
		path := s.paths[s.cursor]
		s.cursor++
		img, err := imaging.Open(path)
		if err != nil {
			return nil, fmt.Errorf("无法打开图片 '%s': %v", path, err)
		}
		s.index++
		return &Frame{
			Path:  path,
			Key:   OutputKey(path),
			Image: toRGBA(img),
			Index: s.index,
			Total: len(s.paths),
		}, nil

	case ModeVideo:
		if !s.video.Read() {
			return nil, io.EOF
		}
		s.index++
		return &Frame{
			Path:  s.videoPath,
			Key:   OutputKey(s.videoPath),
			Image: frameToRGBA(s.video.FrameBuffer(), s.video.Width(), s.video.Height()),
			Index: s.index,
			FPS:   s.video.FPS(),
			Total: s.video.Frames(),
		}, nil

	case ModeStream:
		if s.camera != nil {
			if !s.camera.Read() {
				return nil, io.EOF
			}
			s.index++
			return &Frame{
				Path:  s.videoPath,
				Key:   OutputKey(s.videoPath),
				Image: frameToRGBA(s.camera.FrameBuffer(), s.camera.Width(), s.camera.Height()),
				Index: s.index,
				FPS:   s.camera.FPS(),
			}, nil
		}
		if !s.video.Read() {
			return nil, io.EOF
		}
		s.index++
		return &Frame{
			Path:  s.videoPath,
			Key:   OutputKey(s.videoPath),
			Image: frameToRGBA(s.video.FrameBuffer(), s.video.Width(), s.video.Height()),
			Index: s.index,
			FPS:   s.video.FPS(),
		}, nil
	}
	return nil, io.EOF
}

// Close 释放视频/摄像头句柄
func (s *FrameSource) Close() {
	if s.video != nil {
		s.video.Close()
	}
	if s.camera != nil {
		s.camera.Close()
	}
}

// listImages 枚举目录下的图片文件，按文件名排序
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("无法读取目录 '%s': %v", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("目录 '%s' 中没有找到图片", dir)
	}
	sort.Strings(paths)
	return paths, nil
}

// readFileList 读取 .txt 路径列表，每行一个图片路径，空行忽略
func readFileList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取列表文件 '%s': %v", path, err)
	}

	var paths []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("列表文件 '%s' 为空", path)
	}
	return paths, nil
}

// toRGBA 把任意解码出的图像转成可原地绘制的RGBA
func toRGBA(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && bounds.Min == (image.Point{}) {
		return rgba
	}
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba
}

// frameToRGBA 把Vidio的帧缓冲区拷贝成独立的RGBA图像
// FrameBuffer会被下一次Read复用，必须拷贝
func frameToRGBA(buf []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, buf)
	return img
}
