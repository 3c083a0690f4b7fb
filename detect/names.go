package detect

import (
	"bufio"
	"fmt"
	"image/color"
	"os"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"
)

// LoadNames 从文本文件加载类别表（每行一个类别，行号即类别ID）
func LoadNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("无法打开类别文件 '%s': %v", path, err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		// 每一行都占一个ID，空行也不能跳过，否则ID会错位
		names = append(names, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取类别文件失败: %v", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("类别文件 '%s' 为空", path)
	}
	return names, nil
}

// LoadNamesYAML 从YAML配置文件加载类别表（classes 列表）
func LoadNamesYAML(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %v", err)
	}

	var config struct {
		Classes []string `yaml:"classes"`
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %v", err)
	}
	if len(config.Classes) == 0 {
		return nil, fmt.Errorf("配置文件中没有找到类别列表")
	}
	return config.Classes, nil
}

// 黄金角（度），相邻色相间隔取这个值可以让任意数量的类别颜色差异都足够大
const goldenAngle = 137.50776405003785

// Palette 为每个类别生成一个颜色，整个运行期间保持稳定
func Palette(n int) []color.RGBA {
	palette := make([]color.RGBA, n)
	hue := 0.0
	for i := 0; i < n; i++ {
		c := colorful.Hsv(hue, 0.85, 0.95)
		r, g, b := c.RGB255()
		palette[i] = color.RGBA{R: r, G: g, B: b, A: 255}
		hue += goldenAngle
		if hue >= 360 {
			hue -= 360
		}
	}
	return palette
}
