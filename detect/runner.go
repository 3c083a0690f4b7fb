package detect

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// FrameDetector 每帧推理接口，Detector实现它
type FrameDetector interface {
	Detect(img image.Image) ([]Detection, error)
}

// Viewer 实时显示接口，view_img模式下由GUI实现
type Viewer interface {
	// Display 显示一帧标注图像
	Display(img image.Image)
	// Quitting 每帧轮询：操作者是否请求退出
	Quitting() bool
}

// 运行状态机: init → running → done → reported
type runState int

const (
	stateInit runState = iota
	stateRunning
	stateDone
	stateReported
)

// Runner 逐帧驱动检测流水线: 取帧 → 推理 → 统计 → 落盘 → 绘制 → 显示
// 严格串行，一帧完整处理完才取下一帧
type Runner struct {
	cfg      RunConfig
	names    []string
	palette  []color.RGBA
	detector FrameDetector
	source   *FrameSource
	writer   *OutputWriter
	viewer   Viewer
	log      *logrus.Logger
	state    runState
}

// NewRunner 组装检测流水线
// writer在没有任何保存标志时可以为nil，viewer在非view_img模式下为nil
func NewRunner(cfg RunConfig, names []string, detector FrameDetector,
	source *FrameSource, writer *OutputWriter, viewer Viewer, log *logrus.Logger) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{
		cfg:      cfg,
		names:    names,
		palette:  Palette(len(names)),
		detector: detector,
		source:   source,
		writer:   writer,
		viewer:   viewer,
		log:      log,
		state:    stateInit,
	}
}

// Run 执行整个检测循环，返回处理的帧数
// 有限源耗尽自然结束；view_img模式下操作者退出请求每帧检查一次
// 任何一帧处理失败立即终止，没有重试
func (r *Runner) Run() (int, error) {
	r.state = stateRunning
	start := time.Now()
	mode := r.source.Mode()
	frames := 0
	lastKey := ""

	for {
		frame, err := r.source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.state = stateDone
			return frames, err
		}
		frames++
		lastKey = frame.Key

		t0 := time.Now()
		detections, err := r.detector.Detect(frame.Image)
		if err != nil {
			r.state = stateDone
			return frames, fmt.Errorf("第 %d 帧推理失败: %v", frame.Index, err)
		}

		if err := r.processFrame(mode, frame, detections, time.Since(t0)); err != nil {
			r.state = stateDone
			return frames, err
		}

		if r.viewer != nil && r.viewer.Quitting() {
			r.log.Info("⏹️  收到退出请求，停止检测循环")
			break
		}
	}
	r.state = stateDone

	// 来源耗尽，先释放它的视频写入器，Close兜底清理剩余的
	if r.writer != nil {
		if lastKey != "" {
			r.writer.ReleaseVideo(lastKey)
		}
		r.writer.Close()
	}

	r.report(frames, time.Since(start))
	return frames, nil
}

// processFrame 处理单帧。类别校验必须先于任何输出：越界是致命错误，
// 这一帧不能留下半截结果
func (r *Runner) processFrame(mode Mode, frame *Frame, detections []Detection, elapsed time.Duration) error {
	if err := ValidateLabels(detections, r.names); err != nil {
		return err
	}

	bounds := frame.Image.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	prefix := ""
	if mode == ModeStream {
		prefix = fmt.Sprintf("%d: ", frame.Index)
	}
	summary := Summarize(detections, r.names)

	if r.cfg.SaveTXT {
		if err := r.writer.AppendLabels(frame.Key, detections, width, height); err != nil {
			return err
		}
	}

	if r.cfg.SaveIMG || r.cfg.ViewIMG {
		DrawDetections(frame.Image, detections, r.names, r.palette, r.cfg.LineWidth)
	}

	if r.cfg.SaveIMG {
		switch mode {
		case ModeImages:
			if err := r.writer.SaveImage(frame.Path, frame.Image); err != nil {
				return err
			}
		default:
			if err := r.writer.AppendVideoFrame(frame.Key, frame.Image, frame.FPS); err != nil {
				return err
			}
		}
	}

	if r.cfg.ViewIMG && r.viewer != nil {
		r.viewer.Display(frame.Image)
	}

	fmt.Printf("%s%dx%d %sDone. (%.3fs)\n", prefix, width, height, summary, elapsed.Seconds())
	return nil
}

// report 打印最终统计并进入reported状态
func (r *Runner) report(frames int, total time.Duration) {
	if r.writer != nil && (r.cfg.SaveTXT || r.cfg.SaveIMG) {
		r.log.Infof("📁 结果已保存到 %s", r.writer.Dir())
	}
	r.log.Infof("✅ 检测完成，共 %d 帧 (%.3fs)", frames, total.Seconds())
	r.state = stateReported
}
