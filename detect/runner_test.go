package detect

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDetector 固定返回给定检测集的假检测器
type stubDetector struct {
	dets []Detection
	err  error
}

func (s *stubDetector) Detect(img image.Image) ([]Detection, error) {
	return s.dets, s.err
}

// stubViewer 显示quitAfter帧之后请求退出
type stubViewer struct {
	displayed int
	quitAfter int
}

func (v *stubViewer) Display(img image.Image) { v.displayed++ }
func (v *stubViewer) Quitting() bool          { return v.displayed >= v.quitAfter }

func imagesDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		writeTestImage(t, filepath.Join(dir, name), 100, 100)
	}
	return dir
}

func newTestRunner(t *testing.T, cfg RunConfig, det FrameDetector, src *FrameSource, viewer Viewer) *Runner {
	t.Helper()
	writer, err := NewOutputWriter(cfg.OutputDir)
	require.NoError(t, err)
	return NewRunner(cfg, testNames, det, src, writer, viewer, nil)
}

func TestRunnerSaveTXT(t *testing.T) {
	srcDir := imagesDir(t, "a.png", "b.png")
	cfg := DefaultRunConfig().
		WithOutputDir(filepath.Join(t.TempDir(), "out")).
		WithSaveTXT(true)

	det := &stubDetector{dets: []Detection{
		{Box: Box{X1: 10, Y1: 10, X2: 50, Y2: 50}, Score: 0.9, ClassID: 2},
	}}

	src, err := OpenSource(srcDir)
	require.NoError(t, err)
	defer src.Close()

	frames, err := newTestRunner(t, cfg, det, src, nil).Run()
	require.NoError(t, err)
	assert.Equal(t, 2, frames)

	for _, name := range []string{"a.png", "b.png"} {
		key := OutputKey(filepath.Join(srcDir, name))
		data, err := os.ReadFile(filepath.Join(cfg.OutputDir, key+".txt"))
		require.NoError(t, err)
		assert.Contains(t, string(data), "2 ")
	}
}

func TestRunnerSaveIMGImagesMode(t *testing.T) {
	srcDir := imagesDir(t, "a.png")
	cfg := DefaultRunConfig().
		WithOutputDir(filepath.Join(t.TempDir(), "out")).
		WithSaveIMG(true)

	det := &stubDetector{dets: []Detection{
		{Box: Box{X1: 5, Y1: 5, X2: 40, Y2: 40}, Score: 0.8, ClassID: 0},
	}}

	src, err := OpenSource(srcDir)
	require.NoError(t, err)
	defer src.Close()

	_, err = newTestRunner(t, cfg, det, src, nil).Run()
	require.NoError(t, err)

	// 图片模式下输出文件名与来源一致
	_, err = os.Stat(filepath.Join(cfg.OutputDir, "a.png"))
	assert.NoError(t, err)
}

func TestRunnerEmptyDetectionSet(t *testing.T) {
	// 空检测集不是错误：不写标签，但启用save_img时仍输出未标注的帧
	srcDir := imagesDir(t, "a.png")
	cfg := DefaultRunConfig().
		WithOutputDir(filepath.Join(t.TempDir(), "out")).
		WithSaveTXT(true).
		WithSaveIMG(true)

	src, err := OpenSource(srcDir)
	require.NoError(t, err)
	defer src.Close()

	frames, err := newTestRunner(t, cfg, &stubDetector{}, src, nil).Run()
	require.NoError(t, err)
	assert.Equal(t, 1, frames)

	key := OutputKey(filepath.Join(srcDir, "a.png"))
	_, err = os.Stat(filepath.Join(cfg.OutputDir, key+".txt"))
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(cfg.OutputDir, "a.png"))
	assert.NoError(t, err)
}

func TestRunnerInvalidLabelIsFatal(t *testing.T) {
	// 类别越界必须在写任何输出之前终止
	srcDir := imagesDir(t, "a.png")
	cfg := DefaultRunConfig().
		WithOutputDir(filepath.Join(t.TempDir(), "out")).
		WithSaveTXT(true).
		WithSaveIMG(true)

	det := &stubDetector{dets: []Detection{
		{Box: Box{X1: 1, Y1: 1, X2: 2, Y2: 2}, Score: 0.9, ClassID: len(testNames)},
	}}

	src, err := OpenSource(srcDir)
	require.NoError(t, err)
	defer src.Close()

	_, err = newTestRunner(t, cfg, det, src, nil).Run()
	require.Error(t, err)

	// 这一帧没有留下任何输出
	key := OutputKey(filepath.Join(srcDir, "a.png"))
	_, statErr := os.Stat(filepath.Join(cfg.OutputDir, key+".txt"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(cfg.OutputDir, "a.png"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunnerDetectorErrorStops(t *testing.T) {
	srcDir := imagesDir(t, "a.png", "b.png")
	cfg := DefaultRunConfig().WithOutputDir(filepath.Join(t.TempDir(), "out"))

	det := &stubDetector{err: errors.New("推理崩了")}

	src, err := OpenSource(srcDir)
	require.NoError(t, err)
	defer src.Close()

	frames, err := newTestRunner(t, cfg, det, src, nil).Run()
	assert.Error(t, err)
	assert.Equal(t, 1, frames)
}

func TestRunnerViewerQuitStopsLoop(t *testing.T) {
	srcDir := imagesDir(t, "a.png", "b.png", "c.png")
	cfg := DefaultRunConfig().
		WithOutputDir(filepath.Join(t.TempDir(), "out")).
		WithViewIMG(true)

	viewer := &stubViewer{quitAfter: 1}

	src, err := OpenSource(srcDir)
	require.NoError(t, err)
	defer src.Close()

	frames, err := newTestRunner(t, cfg, &stubDetector{}, src, viewer).Run()
	require.NoError(t, err)

	// 第一帧显示后就收到退出请求，后面的帧不再处理
	assert.Equal(t, 1, frames)
	assert.Equal(t, 1, viewer.displayed)
}
