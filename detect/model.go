package detect

import (
	"fmt"
	"image"
	"runtime"
	"sort"
	"sync"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
)

// modelStride YOLO系列模型的最大下采样步长
const modelStride = 32

// ONNX Runtime环境全局只初始化一次
var (
	ortInitialized bool
	ortMutex       sync.Mutex
)

// Detector ONNX Runtime推理封装
// 输出的检测框已换算回原图像素坐标，并按置信度/IOU阈值过滤完毕
type Detector struct {
	cfg         RunConfig
	names       []string
	session     *ort.DynamicAdvancedSession
	inputSize   int
	outputShape []int64 // 首次推理后记录的实际输出形状
}

// NewDetector 加载ONNX模型并创建检测器
func NewDetector(cfg RunConfig, names []string) (*Detector, error) {
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}

	ortMutex.Lock()
	if !ortInitialized {
		if err := ort.InitializeEnvironment(); err != nil {
			ortMutex.Unlock()
			return nil, fmt.Errorf("无法初始化ONNX Runtime: %v", err)
		}
		ortInitialized = true
	}
	ortMutex.Unlock()

	sessionOptions, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("无法创建会话选项: %v", err)
	}
	defer sessionOptions.Destroy()

	threads := runtime.NumCPU()
	if threads > 8 {
		threads = int(float64(threads) * 0.75)
	}
	if threads < 1 {
		threads = 1
	}
	if err := sessionOptions.SetIntraOpNumThreads(threads); err != nil {
		fmt.Printf("⚠️  设置线程数失败: %v\n", err)
	}
	if err := sessionOptions.SetInterOpNumThreads(threads); err != nil {
		fmt.Printf("⚠️  设置操作间线程数失败: %v\n", err)
	}
	if err := sessionOptions.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		fmt.Printf("⚠️  设置图优化级别失败: %v\n", err)
	}

	if cfg.UseGPU {
		enableCUDA(sessionOptions, cfg.GPUDeviceID)
	}

	inputSize := cfg.InputSize
	if inputSize <= 0 {
		inputSize = 640
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"images"}, []string{"output0"}, sessionOptions)
	if err != nil {
		return nil, fmt.Errorf("无法加载模型文件 '%s': %v", cfg.ModelPath, err)
	}

	return &Detector{
		cfg:       cfg,
		names:     names,
		session:   session,
		inputSize: inputSize,
	}, nil
}

// enableCUDA 尝试启用CUDA执行提供者，失败时回退CPU
// 部分ONNX Runtime版本在没有GPU支持时会panic，用recover兜底
func enableCUDA(sessionOptions *ort.SessionOptions, deviceID int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("⚠️  GPU初始化发生panic: %v\n", r)
			fmt.Println("💻 GPU加速不可用，将使用CPU")
		}
	}()

	cudaOptions, err := ort.NewCUDAProviderOptions()
	if err != nil {
		fmt.Printf("⚠️  创建CUDA选项失败: %v\n", err)
		return
	}
	defer cudaOptions.Destroy()

	err = cudaOptions.Update(map[string]string{
		"device_id": fmt.Sprintf("%d", deviceID),
	})
	if err != nil {
		fmt.Printf("⚠️  更新CUDA选项失败: %v\n", err)
		return
	}

	if err := sessionOptions.AppendExecutionProviderCUDA(cudaOptions); err != nil {
		fmt.Printf("⚠️  CUDA不可用: %v\n", err)
		fmt.Println("💻 GPU加速失败，将使用CPU")
		return
	}
	fmt.Println("🚀 CUDA GPU加速已启用")
}

// Close 释放推理会话
func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
}

// DestroyEnvironment 销毁ONNX Runtime环境，在所有检测器都关闭后调用
func DestroyEnvironment() {
	ortMutex.Lock()
	defer ortMutex.Unlock()
	if ortInitialized {
		ort.DestroyEnvironment()
		ortInitialized = false
	}
}

// Warmup 用空白输入先跑一次推理，让首帧计时不包含初始化开销
func (d *Detector) Warmup() error {
	blank := image.NewRGBA(image.Rect(0, 0, d.inputSize, d.inputSize))
	_, err := d.Detect(blank)
	return err
}

// Detect 对一帧图像做推理，返回过滤后的检测集（可能为空）
func (d *Detector) Detect(img image.Image) ([]Detection, error) {
	bounds := img.Bounds()
	originalWidth := float32(bounds.Dx())
	originalHeight := float32(bounds.Dy())

	inputData := d.preprocess(img)

	inputShape := ort.NewShape(1, 3, int64(d.inputSize), int64(d.inputSize))
	inputTensor, err := ort.NewTensor(inputShape, inputData)
	if err != nil {
		return nil, fmt.Errorf("无法创建输入张量: %v", err)
	}
	defer inputTensor.Destroy()

	// 首次推理用标准YOLO输出形状探测，之后复用实际形状
	var outputShape ort.Shape
	outputDataSize := 1
	if len(d.outputShape) == 0 {
		outputShape = ort.NewShape(1, 84, 8400)
		outputDataSize = 1 * 84 * 8400
	} else {
		outputShape = ort.NewShape(d.outputShape...)
		for _, dim := range d.outputShape {
			outputDataSize *= int(dim)
		}
	}
	outputTensor, err := ort.NewTensor(outputShape, make([]float32, outputDataSize))
	if err != nil {
		return nil, fmt.Errorf("无法创建输出张量: %v", err)
	}
	defer outputTensor.Destroy()

	if err := d.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return nil, fmt.Errorf("推理失败: %v", err)
	}

	actualShape := outputTensor.GetShape()
	if len(d.outputShape) == 0 {
		d.outputShape = actualShape
	}

	detections, err := d.parseOutput(outputTensor.GetData(), actualShape)
	if err != nil {
		return nil, err
	}

	// 把坐标从模型输入尺寸换算回原图尺寸
	scaleX := originalWidth / float32(d.inputSize)
	scaleY := originalHeight / float32(d.inputSize)
	for i := range detections {
		detections[i].Box.X1 *= scaleX
		detections[i].Box.Y1 *= scaleY
		detections[i].Box.X2 *= scaleX
		detections[i].Box.Y2 *= scaleY
	}

	return nonMaxSuppression(detections, d.cfg.IOUThreshold), nil
}

// preprocess 缩放到模型输入尺寸并转成归一化的CHW float32张量
func (d *Detector) preprocess(img image.Image) []float32 {
	resized := imaging.Resize(img, d.inputSize, d.inputSize, imaging.Lanczos)

	bounds := resized.Bounds()
	width, height := bounds.Max.X, bounds.Max.Y

	data := make([]float32, 1*3*height*width)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			data[0*height*width+y*width+x] = float32(r>>8) / 255.0
			data[1*height*width+y*width+x] = float32(g>>8) / 255.0
			data[2*height*width+y*width+x] = float32(b>>8) / 255.0
		}
	}
	return data
}

// parseOutput 解析YOLO输出 [1, 4+类别数, 检测数]，按置信度阈值过滤
// 模型给出的类别ID超出类别表范围是致命错误，立即终止而不是静默丢弃
func (d *Detector) parseOutput(outputData []float32, outputShape []int64) ([]Detection, error) {
	if len(outputShape) != 3 || outputShape[0] != 1 {
		return nil, fmt.Errorf("不支持的模型输出形状: %v", outputShape)
	}

	numDetections := int(outputShape[2])
	numFeatures := int(outputShape[1])
	numClasses := numFeatures - 4
	if numClasses <= 0 {
		return nil, fmt.Errorf("无效的类别数量: %d (特征数: %d)", numClasses, numFeatures)
	}

	var detections []Detection
	for i := 0; i < numDetections; i++ {
		cx := outputData[0*numDetections+i]
		cy := outputData[1*numDetections+i]
		w := outputData[2*numDetections+i]
		h := outputData[3*numDetections+i]

		var bestScore float32
		bestID := 0
		for classIdx := 0; classIdx < numClasses; classIdx++ {
			score := outputData[(4+classIdx)*numDetections+i]
			if score > bestScore {
				bestScore = score
				bestID = classIdx
			}
		}

		if bestScore < d.cfg.ConfThreshold {
			continue
		}
		if bestID >= len(d.names) {
			return nil, fmt.Errorf("类别ID %d 超出类别表范围 (共 %d 个类别)", bestID, len(d.names))
		}

		detections = append(detections, Detection{
			Box: Box{
				X1: cx - w/2,
				Y1: cy - h/2,
				X2: cx + w/2,
				Y2: cy + h/2,
			},
			Score:   bestScore,
			ClassID: bestID,
			Class:   d.names[bestID],
		})
	}
	return detections, nil
}

// iou 两个框的交并比
func iou(a, b Box) float32 {
	interX1 := maxf(a.X1, b.X1)
	interY1 := maxf(a.Y1, b.Y1)
	interX2 := minf(a.X2, b.X2)
	interY2 := minf(a.Y2, b.Y2)

	interArea := maxf(0, interX2-interX1) * maxf(0, interY2-interY1)
	areaA := a.Width() * a.Height()
	areaB := b.Width() * b.Height()

	return interArea / (areaA + areaB - interArea + 1e-6)
}

// nonMaxSuppression 按分数降序做非极大抑制
func nonMaxSuppression(detections []Detection, iouThreshold float32) []Detection {
	if len(detections) == 0 {
		return detections
	}

	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Score > detections[j].Score
	})

	var keep []Detection
	for _, current := range detections {
		keepCurrent := true
		for _, kept := range keep {
			if iou(current.Box, kept.Box) > iouThreshold {
				keepCurrent = false
				break
			}
		}
		if keepCurrent {
			keep = append(keep, current)
		}
	}
	return keep
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
