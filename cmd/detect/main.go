// detect命令：对图片、目录、列表、视频或直播流运行YOLO目标检测，
// 绘制检测框和标签，按需保存标注结果与归一化标签文件
package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/sirupsen/logrus"

	"github.com/govision/yolodetect/detect"
	"github.com/govision/yolodetect/gui"
)

func main() {
	parser := argparse.NewParser("detect", "YOLO目标检测流水线")
	modelPath := parser.String("m", "model", &argparse.Options{Help: "ONNX模型文件路径", Required: true})
	namesPath := parser.String("n", "names", &argparse.Options{Help: "类别文件路径（每行一个类别）", Required: true})
	source := parser.String("s", "source", &argparse.Options{Help: "输入源：图片/目录/.txt列表/视频/摄像头编号/流地址", Required: true})
	outputDir := parser.String("o", "output-dir", &argparse.Options{Help: "输出目录", Default: "output"})
	configPath := parser.String("c", "config", &argparse.Options{Help: "YAML配置文件（命令行参数优先）", Default: ""})
	imgSize := parser.Int("", "img-size", &argparse.Options{Help: "推理输入尺寸（像素）", Default: 640})
	confThres := parser.Float("", "conf-thres", &argparse.Options{Help: "置信度阈值", Default: 0.4})
	iouThres := parser.Float("", "iou-thres", &argparse.Options{Help: "NMS的IOU阈值", Default: 0.5})
	lineWidth := parser.Int("", "line-width", &argparse.Options{Help: "检测框线宽", Default: 3})
	libraryPath := parser.String("", "ort-lib", &argparse.Options{Help: "ONNX Runtime动态库路径", Default: ""})
	useGPU := parser.Flag("", "gpu", &argparse.Options{Help: "启用GPU加速"})
	gpuDevice := parser.Int("", "gpu-device", &argparse.Options{Help: "GPU设备ID", Default: 0})
	viewImg := parser.Flag("", "view-img", &argparse.Options{Help: "实时显示检测结果"})
	saveTxt := parser.Flag("", "save-txt", &argparse.Options{Help: "保存归一化标签到 *.txt"})
	saveImg := parser.Flag("", "save-img", &argparse.Options{Help: "保存标注图片/视频"})
	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := detect.DefaultRunConfig()
	if *configPath != "" {
		var err error
		cfg, err = detect.LoadRunConfig(*configPath)
		if err != nil {
			log.Fatalf("加载配置失败: %v", err)
		}
	}
	cfg = cfg.
		WithModelPath(*modelPath).
		WithNamesPath(*namesPath).
		WithSource(*source).
		WithOutputDir(*outputDir).
		WithInputSize(detect.CheckInputSize(*imgSize, 0)).
		WithConfThreshold(float32(*confThres)).
		WithIOUThreshold(float32(*iouThres)).
		WithLineWidth(*lineWidth).
		WithLibraryPath(*libraryPath).
		WithGPU(*useGPU).
		WithGPUDeviceID(*gpuDevice).
		WithSaveTXT(*saveTxt).
		WithSaveIMG(*saveImg).
		WithViewIMG(*viewImg)

	names, err := detect.LoadNames(cfg.NamesPath)
	if err != nil {
		log.Fatalf("加载类别表失败: %v", err)
	}
	log.Infof("✅ 已加载 %d 个类别", len(names))

	detector, err := detect.NewDetector(cfg, names)
	if err != nil {
		log.Fatalf("创建检测器失败: %v", err)
	}
	defer detect.DestroyEnvironment()
	defer detector.Close()

	if err := detector.Warmup(); err != nil {
		log.Warnf("⚠️  预热推理失败: %v", err)
	}

	src, err := detect.OpenSource(cfg.Source)
	if err != nil {
		log.Fatalf("打开输入源失败: %v", err)
	}
	defer src.Close()
	log.Infof("📹 输入源模式: %s", src.Mode())

	writer, err := detect.NewOutputWriter(cfg.OutputDir)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer writer.Close()

	run := func(viewer detect.Viewer) error {
		runner := detect.NewRunner(cfg, names, detector, src, writer, viewer, log)
		_, err := runner.Run()
		return err
	}

	if cfg.ViewIMG {
		window := gui.NewLiveWindow("yolodetect - " + cfg.Source)
		if err := window.Run(func() error { return run(window) }); err != nil {
			log.Fatalf("检测失败: %v", err)
		}
		return
	}

	if err := run(nil); err != nil {
		log.Fatalf("检测失败: %v", err)
	}
}
