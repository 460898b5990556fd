//go:build windows

package activity

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	whKeyboardLL = 13
	whMouseLL    = 14

	// wmRunCall asks the pump thread to drain its call queue.
	wmRunCall = 0x8000 + 1 // WM_APP + 1
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPeekMessageW        = user32.NewProc("PeekMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
)

type winMsg struct {
	hwnd    uintptr
	message uint32
	wParam  uintptr
	lParam  uintptr
	time    uint32
	pt      struct{ x, y int32 }
	private uint32
}

// Callbacks are process-wide; windows.NewCallback slots are never freed.
var (
	mouseFn    atomic.Pointer[func()]
	keyboardFn atomic.Pointer[func()]

	mouseProc    = windows.NewCallback(func(code, wParam, lParam uintptr) uintptr { return dispatch(&mouseFn, code, wParam, lParam) })
	keyboardProc = windows.NewCallback(func(code, wParam, lParam uintptr) uintptr { return dispatch(&keyboardFn, code, wParam, lParam) })
)

func dispatch(slot *atomic.Pointer[func()], code, wParam, lParam uintptr) uintptr {
	if int32(code) >= 0 {
		if fn := slot.Load(); fn != nil {
			(*fn)()
		}
	}
	r, _, _ := procCallNextHookEx.Call(0, code, wParam, lParam)
	return r
}

// pump is a locked OS thread running a message loop. Low-level hooks are
// delivered through the message queue of the thread that installed them.
type pump struct {
	once  sync.Once
	tid   uint32
	calls *threadCalls
}

var hookPump pump

func (p *pump) start() {
	p.once.Do(func() {
		p.calls = newThreadCalls()
		ready := make(chan struct{})
		go func() {
			runtime.LockOSThread()
			p.tid = windows.GetCurrentThreadId()
			var m winMsg
			// Creates the thread's message queue before anyone posts to it.
			procPeekMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0, 0)
			close(ready)
			for {
				r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
				if int32(r) <= 0 {
					return
				}
				if m.message == wmRunCall {
					p.calls.drain()
				}
			}
		}()
		<-ready
	})
}

// do runs f on the pump thread and waits for it.
func (p *pump) do(f func()) error {
	p.start()
	return p.calls.run(f, func() error {
		if r, _, err := procPostThreadMessageW.Call(uintptr(p.tid), wmRunCall, 0, 0); r == 0 {
			return fmt.Errorf("PostThreadMessageW: %w", err)
		}
		return nil
	})
}

type winHooker struct{}

// PlatformHooker returns the hooker for the running OS.
func PlatformHooker() Hooker { return winHooker{} }

func (winHooker) Hook(kind HookKind, fn func()) (func() error, error) {
	var (
		id   uintptr
		proc uintptr
		slot *atomic.Pointer[func()]
	)
	switch kind {
	case Mouse:
		id, proc, slot = whMouseLL, mouseProc, &mouseFn
	case Keyboard:
		id, proc, slot = whKeyboardLL, keyboardProc, &keyboardFn
	default:
		return nil, fmt.Errorf("unknown hook kind %v", kind)
	}

	var module windows.Handle
	if err := windows.GetModuleHandleEx(0, nil, &module); err != nil {
		return nil, fmt.Errorf("module handle: %w", err)
	}

	slot.Store(&fn)
	var (
		hhk     uintptr
		hookErr error
	)
	err := hookPump.do(func() {
		var err error
		hhk, _, err = procSetWindowsHookExW.Call(id, proc, uintptr(module), 0)
		if hhk == 0 {
			hookErr = err
		}
	})
	if err == nil {
		err = hookErr
	}
	if err != nil {
		slot.Store(nil)
		return nil, fmt.Errorf("SetWindowsHookExW: %w", err)
	}

	unhook := func() error {
		slot.Store(nil)
		var unhookErr error
		err := hookPump.do(func() {
			if r, _, err := procUnhookWindowsHookEx.Call(hhk); r == 0 {
				unhookErr = err
			}
		})
		if err != nil {
			return err
		}
		return unhookErr
	}
	return unhook, nil
}
