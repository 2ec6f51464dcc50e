//go:build windows

// LockFileEx/UnlockFileEx implementation of the single-owner guard for
// Windows.
package recordstore

import (
	"syscall"
	"unsafe"
)

var (
	modkernel32      = syscall.NewLazyDLL("kernel32.dll")
	procLockFileEx   = modkernel32.NewProc("LockFileEx")
	procUnlockFileEx = modkernel32.NewProc("UnlockFileEx")
)

const (
	lockfileExclusiveLock   = 0x00000002
	lockfileFailImmediately = 0x00000001
)

func (l *ownerLock) tryLock() error {
	h := syscall.Handle(l.f.Fd())
	var overlapped syscall.Overlapped

	flags := uintptr(lockfileExclusiveLock | lockfileFailImmediately)
	r1, _, err := procLockFileEx.Call(
		uintptr(h),
		flags,
		0,
		0xFFFFFFFF,
		0xFFFFFFFF,
		uintptr(unsafe.Pointer(&overlapped)),
	)
	if r1 == 0 {
		return ErrAlreadyOpen
	}
	return nil
}

func (l *ownerLock) unlock() error {
	h := syscall.Handle(l.f.Fd())
	var overlapped syscall.Overlapped

	r1, _, err := procUnlockFileEx.Call(
		uintptr(h),
		0,
		0xFFFFFFFF,
		0xFFFFFFFF,
		uintptr(unsafe.Pointer(&overlapped)),
	)
	if r1 == 0 {
		return err
	}
	return nil
}
