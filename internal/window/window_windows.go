//go:build windows

package window

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	"github.com/example/castreceiver/internal/config"
	"github.com/example/castreceiver/internal/logging"
	"github.com/example/castreceiver/internal/playback"
	"golang.org/x/sys/windows"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procRegisterClassExW    = user32.NewProc("RegisterClassExW")
	procCreateWindowExW     = user32.NewProc("CreateWindowExW")
	procDefWindowProcW      = user32.NewProc("DefWindowProcW")
	procShowWindow          = user32.NewProc("ShowWindow")
	procUpdateWindow        = user32.NewProc("UpdateWindow")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procTranslateMessage    = user32.NewProc("TranslateMessage")
	procDispatchMessageW    = user32.NewProc("DispatchMessageW")
	procPostMessageW        = user32.NewProc("PostMessageW")
	procPostQuitMessage     = user32.NewProc("PostQuitMessage")
	procDestroyWindow       = user32.NewProc("DestroyWindow")
	procLoadCursorW         = user32.NewProc("LoadCursorW")
	procSetWindowPos        = user32.NewProc("SetWindowPos")
	procGetCursorPos        = user32.NewProc("GetCursorPos")
	procScreenToClient      = user32.NewProc("ScreenToClient")
	procCreatePopupMenu     = user32.NewProc("CreatePopupMenu")
	procAppendMenuW         = user32.NewProc("AppendMenuW")
	procTrackPopupMenu      = user32.NewProc("TrackPopupMenu")
	procDestroyMenu         = user32.NewProc("DestroyMenu")
	procSetForegroundWindow = user32.NewProc("SetForegroundWindow")
	procGetSystemMetrics    = user32.NewProc("GetSystemMetrics")
	procUpdateLayeredWindow = user32.NewProc("UpdateLayeredWindow")
)

const (
	WS_POPUP        = 0x80000000
	WS_VISIBLE      = 0x10000000
	WS_EX_LAYERED   = 0x00080000
	WS_EX_APPWINDOW = 0x00040000

	WM_DESTROY       = 0x0002
	WM_SIZE          = 0x0005
	WM_CLOSE         = 0x0010
	WM_NCHITTEST     = 0x0084
	WM_NCRBUTTONUP   = 0x00A5
	WM_GETMINMAXINFO = 0x0024
	WM_SIZING        = 0x0214
	WM_COMMAND       = 0x0111
	WM_RBUTTONUP     = 0x0205

	HTCAPTION     = 2
	HTLEFT        = 10
	HTRIGHT       = 11
	HTTOP         = 12
	HTTOPLEFT     = 13
	HTTOPRIGHT    = 14
	HTBOTTOM      = 15
	HTBOTTOMLEFT  = 16
	HTBOTTOMRIGHT = 17

	SW_SHOW = 5

	IDC_ARROW = 32512

	SM_CXSCREEN = 0
	SM_CYSCREEN = 1

	SWP_NOMOVE   = 0x0002
	SWP_NOSIZE   = 0x0001
	HWND_TOPMOST = ^uintptr(0)

	MF_STRING     = 0x0000
	MF_SEPARATOR  = 0x0800
	TPM_LEFTALIGN = 0x0000
	TPM_RETURNCMD = 0x0100

	IDM_QUIT       = 1001
	IDM_ALWAYS_TOP = 1003

	AC_SRC_OVER  = 0x00
	AC_SRC_ALPHA = 0x01
	ULW_ALPHA    = 0x02

	WMSZ_LEFT        = 1
	WMSZ_RIGHT       = 2
	WMSZ_TOP         = 3
	WMSZ_TOPLEFT     = 4
	WMSZ_TOPRIGHT    = 5
	WMSZ_BOTTOM      = 6
	WMSZ_BOTTOMLEFT  = 7
	WMSZ_BOTTOMRIGHT = 8
)

type WNDCLASSEXW struct {
	CbSize        uint32
	Style         uint32
	LpfnWndProc   uintptr
	CbClsExtra    int32
	CbWndExtra    int32
	HInstance     windows.Handle
	HIcon         windows.Handle
	HCursor       windows.Handle
	HbrBackground windows.Handle
	LpszMenuName  *uint16
	LpszClassName *uint16
	HIconSm       windows.Handle
}

type MSG struct {
	Hwnd    windows.HWND
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      POINT
}

type POINT struct {
	X, Y int32
}

type RECT struct {
	Left, Top, Right, Bottom int32
}

type MINMAXINFO struct {
	PtReserved     POINT
	PtMaxSize      POINT
	PtMaxPosition  POINT
	PtMinTrackSize POINT
	PtMaxTrackSize POINT
}

type BLENDFUNCTION struct {
	BlendOp             byte
	BlendFlags          byte
	SourceConstantAlpha byte
	AlphaFormat         byte
}

// Window is a borderless layered window showing the playback surface. The
// message loop owns the window; the refresh goroutine renders and presents
// into the DIB section.
type Window struct {
	hwnd     windows.HWND
	cfg      config.Config
	renderer Renderer

	// mu guards the DIB section, which WM_SIZE replaces while the refresh
	// goroutine may be presenting into it.
	mu     sync.Mutex
	width  int
	height int
	dib    *dib

	isTopmost bool
}

var windowInstance *Window
var windowInstanceMu sync.Mutex

func NewWindow(cfg config.Config, r Renderer) (*Window, error) {
	return &Window{
		cfg:      cfg,
		renderer: r,
		width:    cfg.InitialWidth,
		height:   cfg.InitialHeight,
	}, nil
}

// Run creates the window and pumps messages until the window is closed or
// ctx is done.
func (w *Window) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	windowInstanceMu.Lock()
	windowInstance = w
	windowInstanceMu.Unlock()

	className, _ := syscall.UTF16PtrFromString("CastReceiverWindowClass")
	windowTitle, _ := syscall.UTF16PtrFromString(w.cfg.WindowTitle)

	hInstance := windows.Handle(0)
	cursor, _, _ := procLoadCursorW.Call(0, uintptr(IDC_ARROW))

	wcx := WNDCLASSEXW{
		CbSize:        uint32(unsafe.Sizeof(WNDCLASSEXW{})),
		LpfnWndProc:   syscall.NewCallback(wndProcCallback),
		HInstance:     hInstance,
		HCursor:       windows.Handle(cursor),
		LpszClassName: className,
	}
	ret, _, err := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wcx)))
	if ret == 0 {
		return fmt.Errorf("RegisterClassExW failed: %v", err)
	}

	screenW, _, _ := procGetSystemMetrics.Call(SM_CXSCREEN)
	screenH, _, _ := procGetSystemMetrics.Call(SM_CYSCREEN)
	x := (int(screenW) - w.width) / 2
	y := (int(screenH) - w.height) / 2

	surface, err := newDIB(w.width, w.height)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.dib = surface
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.dib.release()
		w.dib = nil
		w.mu.Unlock()
	}()

	hwnd, _, err := procCreateWindowExW.Call(
		uintptr(WS_EX_LAYERED|WS_EX_APPWINDOW),
		uintptr(unsafe.Pointer(className)),
		uintptr(unsafe.Pointer(windowTitle)),
		uintptr(WS_POPUP|WS_VISIBLE),
		uintptr(x), uintptr(y),
		uintptr(w.width), uintptr(w.height),
		0, 0,
		uintptr(hInstance),
		0,
	)
	if hwnd == 0 {
		return fmt.Errorf("CreateWindowExW failed: %v", err)
	}
	w.hwnd = windows.HWND(hwnd)

	w.renderer.Resize(w.width, w.height)
	w.renderer.SetPresenter(playback.PresenterFunc(w.present))
	defer w.renderer.SetPresenter(nil)

	procShowWindow.Call(hwnd, SW_SHOW)
	procUpdateWindow.Call(hwnd)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		refreshLoop(loopCtx, w.cfg.RefreshInterval(), w.renderer)
	}()
	go func() {
		defer wg.Done()
		<-loopCtx.Done()
		if ctx.Err() != nil {
			procPostMessageW.Call(hwnd, WM_CLOSE, 0, 0)
		}
	}()

	logging.Infof("Window open: %dx%d at %d Hz", w.width, w.height, w.cfg.RefreshRate)

	var msg MSG
	for {
		ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		if ret == 0 || int32(ret) == -1 {
			break
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&msg)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&msg)))
	}

	cancel()
	wg.Wait()
	logging.Infof("Window closed")
	return nil
}

// present copies a rendered frame into the DIB as BGRA and pushes it to the
// layered window. A frame rendered for a size the window has since left is
// skipped; the next refresh renders at the new size.
func (w *Window) present(frame *image.RGBA) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dib == nil || !w.dib.copyRGBA(frame) {
		return nil
	}

	// No size or position change, so the call never sends WM_SIZE back to
	// the message loop while mu is held.
	srcPt := POINT{0, 0}
	blend := BLENDFUNCTION{
		BlendOp:             AC_SRC_OVER,
		SourceConstantAlpha: 255,
		AlphaFormat:         AC_SRC_ALPHA,
	}
	ret, _, err := procUpdateLayeredWindow.Call(
		uintptr(w.hwnd),
		0,
		0,
		0,
		uintptr(w.dib.hdc),
		uintptr(unsafe.Pointer(&srcPt)),
		0,
		uintptr(unsafe.Pointer(&blend)),
		ULW_ALPHA,
	)
	if ret == 0 {
		return fmt.Errorf("UpdateLayeredWindow failed: %v", err)
	}
	return nil
}

func wndProcCallback(hwnd uintptr, msg uint32, wParam, lParam uintptr) uintptr {
	windowInstanceMu.Lock()
	w := windowInstance
	windowInstanceMu.Unlock()

	switch msg {
	case WM_NCHITTEST:
		if w != nil {
			return w.handleNCHitTest(lParam)
		}
	case WM_GETMINMAXINFO:
		if w != nil {
			w.handleGetMinMaxInfo(lParam)
			return 0
		}
	case WM_SIZING:
		if w != nil && w.cfg.KeepAspect {
			w.handleSizing(wParam, lParam)
			return 1
		}
	case WM_SIZE:
		if w != nil {
			newWidth := int(lParam & 0xFFFF)
			newHeight := int((lParam >> 16) & 0xFFFF)
			if newWidth > 0 && newHeight > 0 {
				w.resize(newWidth, newHeight)
			}
		}
	case WM_RBUTTONUP, WM_NCRBUTTONUP:
		if w != nil {
			w.showContextMenu()
			return 0
		}
	case WM_COMMAND:
		if w != nil {
			w.handleCommand(int(wParam & 0xFFFF))
			return 0
		}
	case WM_CLOSE:
		procDestroyWindow.Call(hwnd)
		return 0
	case WM_DESTROY:
		procPostQuitMessage.Call(0)
		return 0
	}

	ret, _, _ := procDefWindowProcW.Call(hwnd, uintptr(msg), wParam, lParam)
	return ret
}

// handleNCHitTest makes the edges resize handles and the rest of the
// window a drag area.
func (w *Window) handleNCHitTest(lParam uintptr) uintptr {
	pt := POINT{X: int32(int16(lParam & 0xFFFF)), Y: int32(int16((lParam >> 16) & 0xFFFF))}
	procScreenToClient.Call(uintptr(w.hwnd), uintptr(unsafe.Pointer(&pt)))
	cx, cy := int(pt.X), int(pt.Y)

	w.mu.Lock()
	width, height := w.width, w.height
	w.mu.Unlock()

	grab := w.cfg.BorderGrabSize
	onLeft := cx < grab
	onRight := cx >= width-grab
	onTop := cy < grab
	onBottom := cy >= height-grab

	switch {
	case onTop && onLeft:
		return HTTOPLEFT
	case onTop && onRight:
		return HTTOPRIGHT
	case onBottom && onLeft:
		return HTBOTTOMLEFT
	case onBottom && onRight:
		return HTBOTTOMRIGHT
	case onLeft:
		return HTLEFT
	case onRight:
		return HTRIGHT
	case onTop:
		return HTTOP
	case onBottom:
		return HTBOTTOM
	}
	return HTCAPTION
}

func (w *Window) handleGetMinMaxInfo(lParam uintptr) {
	mmi := (*MINMAXINFO)(unsafe.Pointer(lParam))

	screenW, _, _ := procGetSystemMetrics.Call(SM_CXSCREEN)
	screenH, _, _ := procGetSystemMetrics.Call(SM_CYSCREEN)

	mmi.PtMinTrackSize.X = int32(w.cfg.MinSize)
	mmi.PtMinTrackSize.Y = int32(w.cfg.MinSize)
	mmi.PtMaxTrackSize.X = int32(screenW)
	mmi.PtMaxTrackSize.Y = int32(screenH)
}

// handleSizing holds the drag rectangle to the initial window aspect ratio.
func (w *Window) handleSizing(wParam, lParam uintptr) {
	rect := (*RECT)(unsafe.Pointer(lParam))
	width := rect.Right - rect.Left
	height := rect.Bottom - rect.Top
	aw, ah := int32(w.cfg.InitialWidth), int32(w.cfg.InitialHeight)

	heightFor := func(width int32) int32 { return width * ah / aw }
	widthFor := func(height int32) int32 { return height * aw / ah }
	wide := width*ah > height*aw

	switch wParam {
	case WMSZ_LEFT, WMSZ_RIGHT:
		rect.Bottom = rect.Top + heightFor(width)
	case WMSZ_TOP, WMSZ_BOTTOM:
		rect.Right = rect.Left + widthFor(height)
	case WMSZ_TOPLEFT:
		if wide {
			rect.Left = rect.Right - widthFor(height)
		} else {
			rect.Top = rect.Bottom - heightFor(width)
		}
	case WMSZ_TOPRIGHT:
		if wide {
			rect.Right = rect.Left + widthFor(height)
		} else {
			rect.Top = rect.Bottom - heightFor(width)
		}
	case WMSZ_BOTTOMLEFT:
		if wide {
			rect.Left = rect.Right - widthFor(height)
		} else {
			rect.Bottom = rect.Top + heightFor(width)
		}
	case WMSZ_BOTTOMRIGHT:
		if wide {
			rect.Right = rect.Left + widthFor(height)
		} else {
			rect.Bottom = rect.Top + heightFor(width)
		}
	}
}

// resize swaps in a DIB of the new size and tells the surface. Audio and
// the staged video textures are untouched.
func (w *Window) resize(newWidth, newHeight int) {
	w.mu.Lock()
	if newWidth == w.width && newHeight == w.height {
		w.mu.Unlock()
		return
	}
	surface, err := newDIB(newWidth, newHeight)
	if err != nil {
		w.mu.Unlock()
		logging.Errorf("resize to %dx%d: %v", newWidth, newHeight, err)
		return
	}
	w.dib.release()
	w.dib = surface
	w.width, w.height = newWidth, newHeight
	w.mu.Unlock()

	w.renderer.Resize(newWidth, newHeight)
	w.renderer.RenderCurrent()
}

func (w *Window) showContextMenu() {
	hMenu, _, _ := procCreatePopupMenu.Call()
	if hMenu == 0 {
		return
	}

	topText := "Always On Top"
	if w.isTopmost {
		topText = "✓ Always On Top"
	}
	alwaysTop, _ := syscall.UTF16PtrFromString(topText)
	quit, _ := syscall.UTF16PtrFromString("Quit")

	procAppendMenuW.Call(hMenu, MF_STRING, IDM_ALWAYS_TOP, uintptr(unsafe.Pointer(alwaysTop)))
	procAppendMenuW.Call(hMenu, MF_SEPARATOR, 0, 0)
	procAppendMenuW.Call(hMenu, MF_STRING, IDM_QUIT, uintptr(unsafe.Pointer(quit)))

	var pt POINT
	procGetCursorPos.Call(uintptr(unsafe.Pointer(&pt)))
	procSetForegroundWindow.Call(uintptr(w.hwnd))

	cmd, _, _ := procTrackPopupMenu.Call(
		hMenu,
		TPM_LEFTALIGN|TPM_RETURNCMD,
		uintptr(pt.X), uintptr(pt.Y),
		0, uintptr(w.hwnd), 0,
	)
	procDestroyMenu.Call(hMenu)

	if cmd != 0 {
		w.handleCommand(int(cmd))
	}
}

func (w *Window) handleCommand(id int) {
	switch id {
	case IDM_QUIT:
		procPostMessageW.Call(uintptr(w.hwnd), WM_CLOSE, 0, 0)
	case IDM_ALWAYS_TOP:
		w.toggleAlwaysOnTop()
	}
}

func (w *Window) toggleAlwaysOnTop() {
	w.isTopmost = !w.isTopmost

	hwndInsertAfter := ^uintptr(1) // HWND_NOTOPMOST
	if w.isTopmost {
		hwndInsertAfter = HWND_TOPMOST
	}
	procSetWindowPos.Call(
		uintptr(w.hwnd),
		hwndInsertAfter,
		0, 0, 0, 0,
		SWP_NOMOVE|SWP_NOSIZE,
	)
}
