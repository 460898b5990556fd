//go:build windows

package session

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	wmQuit               = 0x0012
	wmWTSSessionChange   = 0x02B1
	wtsSessionLock       = 0x7
	wtsSessionUnlock     = 0x8
	notifyForThisSession = 0
)

// hwndMessage is HWND_MESSAGE, the parent of message-only windows.
const hwndMessage = ^uintptr(2)

var (
	user32                = windows.NewLazySystemDLL("user32.dll")
	procRegisterClassExW  = user32.NewProc("RegisterClassExW")
	procCreateWindowExW   = user32.NewProc("CreateWindowExW")
	procDestroyWindow     = user32.NewProc("DestroyWindow")
	procDefWindowProcW    = user32.NewProc("DefWindowProcW")
	procGetMessageW       = user32.NewProc("GetMessageW")
	procDispatchMessageW  = user32.NewProc("DispatchMessageW")
	procPostThreadMessage = user32.NewProc("PostThreadMessageW")

	wtsapi32                       = windows.NewLazySystemDLL("wtsapi32.dll")
	procWTSRegisterSessionNotify   = wtsapi32.NewProc("WTSRegisterSessionNotification")
	procWTSUnRegisterSessionNotify = wtsapi32.NewProc("WTSUnRegisterSessionNotification")
)

type wndClassEx struct {
	size       uint32
	style      uint32
	wndProc    uintptr
	clsExtra   int32
	wndExtra   int32
	instance   windows.Handle
	icon       windows.Handle
	cursor     windows.Handle
	background windows.Handle
	menuName   *uint16
	className  *uint16
	iconSm     windows.Handle
}

type winMsg struct {
	hwnd    uintptr
	message uint32
	wParam  uintptr
	lParam  uintptr
	time    uint32
	pt      struct{ x, y int32 }
	private uint32
}

// sessionChanges carries lock state from the window procedure to the
// watcher. One watcher runs per process.
var sessionChanges = newLatestChange()

var wndProc = windows.NewCallback(func(hwnd, msg, wParam, lParam uintptr) uintptr {
	if msg == wmWTSSessionChange {
		switch wParam {
		case wtsSessionLock:
			sessionChanges.post(true)
		case wtsSessionUnlock:
			sessionChanges.post(false)
		}
		return 0
	}
	r, _, _ := procDefWindowProcW.Call(hwnd, msg, wParam, lParam)
	return r
})

var className = windows.StringToUTF16Ptr("faceunlockSessionWatcher")

// WatchSession forwards WTS lock and unlock notifications for the current
// session to ev until ctx is done.
func WatchSession(ctx context.Context, ev Events, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	type started struct {
		tid uint32
		err error
	}
	ready := make(chan started, 1)
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		hwnd, err := createWindow()
		if err != nil {
			ready <- started{err: err}
			return
		}
		defer procDestroyWindow.Call(hwnd)
		if r, _, err := procWTSRegisterSessionNotify.Call(hwnd, notifyForThisSession); r == 0 {
			ready <- started{err: fmt.Errorf("WTSRegisterSessionNotification: %w", err)}
			return
		}
		defer procWTSUnRegisterSessionNotify.Call(hwnd)

		ready <- started{tid: windows.GetCurrentThreadId()}
		var m winMsg
		for {
			r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
			if int32(r) <= 0 {
				return
			}
			procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
		}
	}()

	st := <-ready
	if st.err != nil {
		<-exited
		return st.err
	}
	defer func() {
		procPostThreadMessage.Call(uintptr(st.tid), wmQuit, 0, 0)
		<-exited
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sessionChanges.ready:
			if err := sessionChanges.deliver(ev, logger); err != nil {
				return err
			}
		}
	}
}

var registerClass = sync.OnceValue(func() error {
	module, err := moduleHandle()
	if err != nil {
		return err
	}
	wc := wndClassEx{
		wndProc:   wndProc,
		instance:  module,
		className: className,
	}
	wc.size = uint32(unsafe.Sizeof(wc))
	if r, _, err := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc))); r == 0 {
		return fmt.Errorf("RegisterClassExW: %w", err)
	}
	return nil
})

func moduleHandle() (windows.Handle, error) {
	var module windows.Handle
	if err := windows.GetModuleHandleEx(0, nil, &module); err != nil {
		return 0, fmt.Errorf("module handle: %w", err)
	}
	return module, nil
}

func createWindow() (uintptr, error) {
	if err := registerClass(); err != nil {
		return 0, err
	}
	module, err := moduleHandle()
	if err != nil {
		return 0, err
	}
	hwnd, _, err := procCreateWindowExW.Call(
		0,
		uintptr(unsafe.Pointer(className)),
		0,
		0,
		0, 0, 0, 0,
		hwndMessage,
		0,
		uintptr(module),
		0,
	)
	if hwnd == 0 {
		return 0, fmt.Errorf("CreateWindowExW: %w", err)
	}
	return hwnd, nil
}
