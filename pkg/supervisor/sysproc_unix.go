//go:build !windows

package supervisor

import "syscall"

func newSessionAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
