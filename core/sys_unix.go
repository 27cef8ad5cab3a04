//go:build unix

package core

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddr lets a restarted node rebind its port while old connections sit in TIME_WAIT
func reuseAddr(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return serr
}
