//go:build !windows

package launcher

import "syscall"

func detachedAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true, // own process group
		Pgid:    0,
	}
}
