package gui

import (
	"fmt"
	"image"
	"sync/atomic"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// LiveWindow 实时预览窗口：逐帧显示标注结果，按ESC或Q退出
// 实现 detect.Viewer 接口
type LiveWindow struct {
	app     fyne.App
	window  fyne.Window
	display *canvas.Image
	status  *widget.Label
	quit    atomic.Bool
	frames  atomic.Int64
}

// NewLiveWindow 创建预览窗口
func NewLiveWindow(title string) *LiveWindow {
	a := app.New()
	w := a.NewWindow(title)

	lw := &LiveWindow{app: a, window: w}
	lw.display = canvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, 640, 480)))
	lw.display.FillMode = canvas.ImageFillContain
	lw.status = widget.NewLabel("等待视频帧... (按 ESC 或 Q 退出)")

	w.SetContent(container.NewBorder(nil, lw.status, nil, nil, lw.display))
	w.Resize(fyne.NewSize(960, 720))
	// 关闭按钮和ESC一样只请求退出，不直接关窗口：
	// 窗口由检测goroutine结束时统一关闭，避免事件循环先退出
	w.SetCloseIntercept(func() {
		lw.quit.Store(true)
	})
	w.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		if ev.Name == fyne.KeyEscape || ev.Name == fyne.KeyQ {
			lw.quit.Store(true)
		}
	})
	return lw
}

// Display 显示一帧标注图像
// 检测循环在后台goroutine里跑，UI更新必须回到主线程
func (lw *LiveWindow) Display(img image.Image) {
	n := lw.frames.Add(1)
	fyne.Do(func() {
		lw.display.Image = img
		lw.display.Refresh()
		lw.status.SetText(fmt.Sprintf("已显示 %d 帧 (按 ESC 或 Q 退出)", n))
	})
}

// Quitting 操作者是否请求退出
func (lw *LiveWindow) Quitting() bool {
	return lw.quit.Load()
}

// Run 在当前goroutine运行GUI事件循环，检测循环放到后台执行
// run返回后窗口自动关闭，Run返回run的错误
func (lw *LiveWindow) Run(run func() error) error {
	return lw.runWith(lw.window.ShowAndRun, func() {
		fyne.Do(func() {
			lw.window.Close()
		})
	}, run)
}

// runWith 事件循环退出后必须等检测goroutine结束才能读取它的错误，
// 保证Run返回时推理会话不再被任何goroutine使用
func (lw *LiveWindow) runWith(eventLoop, closeWindow func(), run func() error) error {
	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		runErr = run()
		lw.quit.Store(true)
		closeWindow()
	}()
	eventLoop()
	<-done
	return runErr
}
