//go:build !windows

package activity

type unsupportedHooker struct{}

func (unsupportedHooker) Hook(HookKind, func()) (func() error, error) {
	return nil, ErrUnsupported
}

// PlatformHooker returns the hooker for the running OS.
func PlatformHooker() Hooker { return unsupportedHooker{} }
