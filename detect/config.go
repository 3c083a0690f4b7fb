package detect

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RunConfig 一次运行的全部配置
// 启动时构建一次，此后只读；With*方法返回修改后的副本而不改动原值
type RunConfig struct {
	ModelPath     string  `yaml:"model"`          // ONNX模型文件路径
	NamesPath     string  `yaml:"names"`          // 类别文件路径
	Source        string  `yaml:"source"`         // 输入源
	OutputDir     string  `yaml:"output_dir"`     // 输出目录
	InputSize     int     `yaml:"input_size"`     // 推理输入尺寸（正方形）
	ConfThreshold float32 `yaml:"conf_threshold"` // 置信度阈值（由检测器消费）
	IOUThreshold  float32 `yaml:"iou_threshold"`  // NMS的IOU阈值（由检测器消费）
	SaveTXT       bool    `yaml:"save_txt"`       // 保存归一化标签文件
	SaveIMG       bool    `yaml:"save_img"`       // 保存标注图片/视频
	ViewIMG       bool    `yaml:"view_img"`       // 实时显示
	UseGPU        bool    `yaml:"use_gpu"`        // 是否启用GPU加速
	GPUDeviceID   int     `yaml:"gpu_device_id"`  // GPU设备ID
	LibraryPath   string  `yaml:"library_path"`   // ONNX Runtime库路径
	LineWidth     int     `yaml:"line_width"`     // 检测框线宽
}

// DefaultRunConfig 默认配置
func DefaultRunConfig() RunConfig {
	return RunConfig{
		OutputDir:     "output",
		InputSize:     640,
		ConfThreshold: 0.4,
		IOUThreshold:  0.5,
		LineWidth:     3,
	}
}

// LoadRunConfig 从YAML文件加载配置，文件里没写的字段保留默认值
func LoadRunConfig(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %v", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("解析配置文件失败: %v", err)
	}
	return cfg, nil
}

// WithModelPath 设置模型路径
func (c RunConfig) WithModelPath(path string) RunConfig {
	c.ModelPath = path
	return c
}

// WithNamesPath 设置类别文件路径
func (c RunConfig) WithNamesPath(path string) RunConfig {
	c.NamesPath = path
	return c
}

// WithSource 设置输入源
func (c RunConfig) WithSource(src string) RunConfig {
	c.Source = src
	return c
}

// WithOutputDir 设置输出目录
func (c RunConfig) WithOutputDir(dir string) RunConfig {
	c.OutputDir = dir
	return c
}

// WithInputSize 设置推理输入尺寸
func (c RunConfig) WithInputSize(size int) RunConfig {
	c.InputSize = size
	return c
}

// WithConfThreshold 设置置信度阈值
func (c RunConfig) WithConfThreshold(threshold float32) RunConfig {
	c.ConfThreshold = threshold
	return c
}

// WithIOUThreshold 设置IOU阈值
func (c RunConfig) WithIOUThreshold(threshold float32) RunConfig {
	c.IOUThreshold = threshold
	return c
}

// WithSaveTXT 设置是否保存标签文件
func (c RunConfig) WithSaveTXT(save bool) RunConfig {
	c.SaveTXT = save
	return c
}

// WithSaveIMG 设置是否保存标注图片/视频
func (c RunConfig) WithSaveIMG(save bool) RunConfig {
	c.SaveIMG = save
	return c
}

// WithViewIMG 设置是否实时显示
func (c RunConfig) WithViewIMG(view bool) RunConfig {
	c.ViewIMG = view
	return c
}

// WithGPU 设置是否使用GPU
func (c RunConfig) WithGPU(use bool) RunConfig {
	c.UseGPU = use
	return c
}

// WithGPUDeviceID 设置GPU设备ID（仅在UseGPU=true时有效）
func (c RunConfig) WithGPUDeviceID(deviceID int) RunConfig {
	c.GPUDeviceID = deviceID
	return c
}

// WithLibraryPath 设置ONNX Runtime库路径
func (c RunConfig) WithLibraryPath(path string) RunConfig {
	c.LibraryPath = path
	return c
}

// WithLineWidth 设置检测框线宽
func (c RunConfig) WithLineWidth(width int) RunConfig {
	c.LineWidth = width
	return c
}

// CheckInputSize 把输入尺寸向上对齐到stride的整数倍
// YOLO模型要求输入是最大下采样步长的整数倍
func CheckInputSize(size, stride int) int {
	if stride <= 0 {
		stride = modelStride
	}
	aligned := (size + stride - 1) / stride * stride
	if aligned != size {
		fmt.Printf("⚠️  输入尺寸 %d 不是 %d 的整数倍，已调整为 %d\n", size, stride, aligned)
	}
	return aligned
}
