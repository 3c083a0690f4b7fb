package detect

import (
	"image"
	"image/color"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOutputWriterCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "nested")
	w, err := NewOutputWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestAppendLabelsFormat(t *testing.T) {
	w, err := NewOutputWriter(t.TempDir())
	require.NoError(t, err)
	defer w.Close()

	dets := []Detection{{
		Box:     Box{X1: 10, Y1: 20, X2: 110, Y2: 220},
		Score:   0.9,
		ClassID: 2,
	}}
	require.NoError(t, w.AppendLabels("frame", dets, 200, 400))

	data, err := os.ReadFile(filepath.Join(w.Dir(), "frame.txt"))
	require.NoError(t, err)
	assert.Equal(t, "2 0.300000 0.300000 0.500000 0.500000\n", string(data))
}

func TestAppendLabelsAccumulates(t *testing.T) {
	// 追加语义：不清空输出目录再跑一次，行数恰好翻倍
	w, err := NewOutputWriter(t.TempDir())
	require.NoError(t, err)
	defer w.Close()

	dets := []Detection{
		{Box: Box{X1: 0, Y1: 0, X2: 50, Y2: 50}, Score: 0.8, ClassID: 0},
		{Box: Box{X1: 10, Y1: 10, X2: 60, Y2: 60}, Score: 0.7, ClassID: 1},
	}

	require.NoError(t, w.AppendLabels("frame", dets, 100, 100))
	data, err := os.ReadFile(filepath.Join(w.Dir(), "frame.txt"))
	require.NoError(t, err)
	firstRun := strings.Count(string(data), "\n")

	require.NoError(t, w.AppendLabels("frame", dets, 100, 100))
	data, err = os.ReadFile(filepath.Join(w.Dir(), "frame.txt"))
	require.NoError(t, err)

	assert.Equal(t, 2, firstRun)
	assert.Equal(t, firstRun*2, strings.Count(string(data), "\n"))
}

func TestAppendLabelsEmptySetWritesNothing(t *testing.T) {
	w, err := NewOutputWriter(t.TempDir())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.AppendLabels("frame", nil, 100, 100))

	_, err = os.Stat(filepath.Join(w.Dir(), "frame.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestSaveImageOverwrites(t *testing.T) {
	// 与标签文件的追加行为不同，图片是覆盖写入
	w, err := NewOutputWriter(t.TempDir())
	require.NoError(t, err)
	defer w.Close()

	first := imaging.New(8, 8, color.NRGBA{R: 255, A: 255})
	second := imaging.New(8, 8, color.NRGBA{B: 255, A: 255})

	require.NoError(t, w.SaveImage(filepath.Join("src", "cat.png"), first))
	require.NoError(t, w.SaveImage(filepath.Join("src", "cat.png"), second))

	saved, err := imaging.Open(filepath.Join(w.Dir(), "cat.png"))
	require.NoError(t, err)

	r, g, b, _ := saved.At(4, 4).RGBA()
	assert.Equal(t, uint32(0), r>>8)
	assert.Equal(t, uint32(0), g>>8)
	assert.Equal(t, uint32(255), b>>8)
}

func TestSaveImageUnwritableDirFails(t *testing.T) {
	w := &OutputWriter{dir: filepath.Join(t.TempDir(), "does", "not", "exist")}
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))

	assert.Error(t, w.SaveImage("cat.png", img))
}

// 视频写入器按输出键注册：首帧惰性创建，同一来源复用，
// 来源耗尽后注销，Close兜底释放剩余的
func TestVideoWriterRegistryLifecycle(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("未安装ffmpeg，跳过视频写入测试")
	}

	dir := t.TempDir()
	w, err := NewOutputWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	img := image.NewRGBA(image.Rect(0, 0, 64, 48))

	// 首帧惰性创建写入器
	require.Empty(t, w.videos)
	require.NoError(t, w.AppendVideoFrame("stream_0", img, 30))
	require.Len(t, w.videos, 1)
	first := w.videos["stream_0"]
	require.NotNil(t, first)

	// 同一来源的第二帧复用已注册的写入器
	require.NoError(t, w.AppendVideoFrame("stream_0", img, 30))
	assert.Same(t, first, w.videos["stream_0"])

	// 不同来源各自独立；FPS非法时回退默认值
	require.NoError(t, w.AppendVideoFrame("cam_1", img, 0))
	assert.Len(t, w.videos, 2)

	// 来源耗尽后注销它的写入器，其他来源不受影响
	w.ReleaseVideo("stream_0")
	_, ok := w.videos["stream_0"]
	assert.False(t, ok)
	assert.Len(t, w.videos, 1)

	// Close释放全部剩余写入器，可重复调用
	w.Close()
	assert.Empty(t, w.videos)
	w.Close()

	assert.FileExists(t, filepath.Join(dir, "stream_0.mp4"))
	assert.FileExists(t, filepath.Join(dir, "cam_1.mp4"))
}
